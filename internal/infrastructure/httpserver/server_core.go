package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	customMiddleware "github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/middleware"
	"github.com/torrecontrole/sentinela/internal/infrastructure/metrics"
)

const defaultHeartbeat = 25 * time.Second

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
	// Heartbeat is the comment interval on event streams. Zero uses 25s.
	Heartbeat time.Duration
	// DesviosDataset is the list item histories are read from by default.
	DesviosDataset string
}

type ServerDeps struct {
	AuthService        ports.AuthService
	AuditService       ports.AuditService
	DesvioService      ports.DesvioService
	SessionService     *services.SessionService
	DataSource         ports.DataSource
	RateLimiterService ports.RateLimiterService
	Metrics            *metrics.Metrics
	HealthCheckers     []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	authSvc        ports.AuthService
	auditSvc       ports.AuditService
	desvioSvc      ports.DesvioService
	sessions       *services.SessionService
	data           ports.DataSource
	metrics        *metrics.Metrics
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{}

	if serverConfig.Heartbeat <= 0 {
		serverConfig.Heartbeat = defaultHeartbeat
	}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		authSvc:        deps.AuthService,
		auditSvc:       deps.AuditService,
		desvioSvc:      deps.DesvioService,
		sessions:       deps.SessionService,
		data:           deps.DataSource,
		metrics:        deps.Metrics,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.AuthService,
			deps.SessionService,
			deps.RateLimiterService,
			deps.Metrics,
			logger,
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// requestValidator runs the Validate method of request types that have one.
type requestValidator struct{}

func (v *requestValidator) Validate(i interface{}) error {
	if val, ok := i.(interface{ Validate() error }); ok {
		return val.Validate()
	}
	return nil
}
