package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

const defaultNotifyTimeout = 15 * time.Second

// NotificationService delivers every notification to all channels in the
// background. Delivery failures are logged, never returned.
type NotificationService struct {
	notifiers []ports.Notifier
	timeout   time.Duration
	logger    *logrus.Logger
	wg        sync.WaitGroup
}

func NewNotificationService(notifiers []ports.Notifier, timeout time.Duration, logger *logrus.Logger) *NotificationService {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &NotificationService{notifiers: notifiers, timeout: timeout, logger: logger}
}

func (s *NotificationService) Notify(ctx context.Context, n notification.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	// delivery outlives the request that triggered it
	base := context.WithoutCancel(ctx)
	for _, notifier := range s.notifiers {
		s.wg.Add(1)
		go func(notifier ports.Notifier) {
			defer s.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, s.timeout)
			defer cancel()
			if err := notifier.Send(sendCtx, n); err != nil && s.logger != nil {
				s.logger.WithFields(logrus.Fields{
					"channel":  notifier.Name(),
					"title":    n.Title,
					"severity": n.Severity.String(),
				}).WithError(err).Warn("failed to deliver notification")
			}
		}(notifier)
	}
}

// Wait blocks until every pending delivery finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}
