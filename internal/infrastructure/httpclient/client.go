// Package httpclient builds the retrying HTTP clients used for outbound calls.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Base replaces the underlying http.Client, e.g. one carrying OAuth2 tokens.
	Base *http.Client
}

// New returns a retryablehttp client logging through logger. Timeout applies
// per attempt.
func New(opts Options, logger *logrus.Logger) *retryablehttp.Client {
	r := retryablehttp.NewClient()
	if opts.Base != nil {
		r.HTTPClient = opts.Base
	}
	r.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		r.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		r.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		r.HTTPClient.Timeout = opts.Timeout
	}
	r.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if logger != nil {
		r.Logger = leveledLogger{logger: logger}
	} else {
		r.Logger = nil
	}
	return r
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger *logrus.Logger
}

func (l leveledLogger) fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{"component": "http_client"}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			f[k] = keysAndValues[i+1]
		}
	}
	return f
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(l.fields(keysAndValues)).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(l.fields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(l.fields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(l.fields(keysAndValues)).Warn(msg)
}
