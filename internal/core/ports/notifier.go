package ports

import (
	"context"

	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
)

// Notifier delivers a notification to one channel (Teams, e-mail).
type Notifier interface {
	Name() string
	Send(ctx context.Context, n notification.Notification) error
}

// NotificationService fans a notification out to every configured channel.
// Notify never blocks the caller on delivery.
type NotificationService interface {
	Notify(ctx context.Context, n notification.Notification)
}
