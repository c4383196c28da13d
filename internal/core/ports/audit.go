package ports

import (
	"context"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
)

// AuditRepository defines the interface for audit log data operations
type AuditRepository interface {
	Create(ctx context.Context, log *audit.AuditLog) error
	List(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, error)
	Count(ctx context.Context, filter *audit.AuditLogFilter) (int, error)
	CountByAction(ctx context.Context, filter *audit.AuditLogFilter) (map[audit.AuditAction]int, error)
	History(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error)
}

// AuditService defines the interface for audit logging business logic
type AuditService interface {
	LogAction(ctx context.Context, req *audit.CreateAuditLogRequest) error
	GetAuditLogs(ctx context.Context, filter *audit.AuditLogFilter) (*audit.Page, error)
	ItemHistory(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error)
}
