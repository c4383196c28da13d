package ports

import (
	"context"

	"github.com/torrecontrole/sentinela/internal/core/domain/refresh"
)

// RefreshCoordinator drives the periodic reload of one session's view.
type RefreshCoordinator interface {
	Enable(enabled bool)
	NotifyTyping(field string, typing bool)
	ForceRefresh(ctx context.Context) (refresh.Result, error)
	Status() refresh.Status
	Close()
}
