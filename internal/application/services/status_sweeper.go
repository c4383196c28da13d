package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

const defaultNaoTratadoLimit = 2 * time.Hour

// StatusSweeper closes desvios nobody finished handling in time. Any record
// still open Limit after it was created becomes Não Tratado, stamped by the
// system actor.
type StatusSweeper struct {
	data     ports.DataSource
	cfg      DesvioConfig
	limit    time.Duration
	audit    ports.AuditService
	notifier ports.NotificationService
	logger   *logrus.Logger
	now      func() time.Time
}

func NewStatusSweeper(data ports.DataSource, cfg DesvioConfig, limit time.Duration, auditSvc ports.AuditService, notifier ports.NotificationService, logger *logrus.Logger) *StatusSweeper {
	if cfg.Dataset == "" {
		cfg.Dataset = "Desvios"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if limit <= 0 {
		limit = defaultNaoTratadoLimit
	}
	return &StatusSweeper{
		data:     data,
		cfg:      cfg,
		limit:    limit,
		audit:    auditSvc,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Expired returns the records of rows that must be closed at now. Records
// without a readable creation stamp are left alone.
func (s *StatusSweeper) Expired(rows desvio.Rows, now time.Time) desvio.Rows {
	var out desvio.Rows
	for _, r := range rows {
		if r.ID() == 0 || desvio.Status(r.String(desvio.FieldStatus)).Closed() {
			continue
		}
		created, ok := parseEntrada(r.CreatedAt(), s.cfg.Location)
		if !ok {
			continue
		}
		if now.Sub(created) > s.limit {
			out = append(out, r)
		}
	}
	return out
}

// Sweep loads the desvios list and saves Não Tratado on every expired
// record. It returns how many records were saved.
func (s *StatusSweeper) Sweep(ctx context.Context) (int, error) {
	rows, err := s.data.Load(ctx, desvio.Query{Dataset: s.cfg.Dataset})
	if err != nil {
		return 0, err
	}
	now := s.now()
	expired := s.Expired(rows, now)
	if len(expired) == 0 {
		return 0, nil
	}

	stamp := now.In(s.cfg.Location).Format(SharePointTimeLayout)
	updates := make(desvio.Rows, len(expired))
	for i, r := range expired {
		updates[i] = desvio.Record{
			desvio.FieldID:            r.ID(),
			desvio.FieldStatus:        string(desvio.StatusNaoTratado),
			desvio.FieldAprovadoPor:   auth.SystemActor,
			desvio.FieldDataAprovacao: stamp,
		}
	}
	saved, err := s.data.SaveBatch(ctx, s.cfg.Dataset, updates)
	if saved == 0 && err != nil {
		return 0, err
	}

	system := auth.Actor{Email: auth.SystemActor, Role: auth.RoleAdmin}
	for _, r := range expired {
		recordAudit(ctx, s.audit, s.logger, system, &audit.CreateAuditLogRequest{
			Action:     audit.ActionNaoTratado,
			Resource:   audit.ResourceDesvio,
			ResourceID: strconv.Itoa(r.ID()),
			Dataset:    s.cfg.Dataset,
			ItemID:     r.ID(),
			EventTitle: r.EventTitle(),
			Details: map[string]any{
				"previous_status": r.String(desvio.FieldStatus),
				"created":         r.CreatedAt(),
				"limit":           s.limit.String(),
				"batch_saved":     saved,
			},
		})
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, notification.Notification{
			Title:     "Desvios não tratados",
			Message:   fmt.Sprintf("%d desvio(s) encerrado(s) sem tratativa após %s.", saved, s.limit),
			Severity:  notification.SeverityWarning,
			Facts:     map[string]string{"Lista": s.cfg.Dataset},
			CreatedAt: now,
		})
	}
	if s.logger != nil {
		entry := s.logger.WithFields(logrus.Fields{"expired": len(expired), "saved": saved})
		if err != nil {
			entry.WithError(err).Warn("nao tratado sweep partially saved")
		} else {
			entry.Info("nao tratado sweep saved")
		}
	}
	return saved, err
}

// Run sweeps every interval until ctx is done. A failed sweep is logged and
// retried on the next tick.
func (s *StatusSweeper) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && s.logger != nil {
				s.logger.WithError(err).Warn("nao tratado sweep failed")
			}
		}
	}
}
