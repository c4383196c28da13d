package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

type AuditService struct {
	repo   ports.AuditRepository
	logger *logrus.Logger
	now    func() time.Time
}

func NewAuditService(repo ports.AuditRepository, logger *logrus.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *AuditService) LogAction(ctx context.Context, req *audit.CreateAuditLogRequest) error {
	if req == nil {
		return errors.New("audit request is nil")
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = auth.SystemActor
	}

	auditLog := &audit.AuditLog{
		ID:         uuid.New(),
		Actor:      actor,
		Action:     string(req.Action),
		Class:      req.Action.Class(),
		Timestamp:  s.now().UTC(),
		Resource:   string(req.Resource),
		ResourceID: req.ResourceID,
		Dataset:    req.Dataset,
		ItemID:     req.ItemID,
		EventTitle: req.EventTitle,
		Details:    req.Details,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}

	err := s.repo.Create(ctx, auditLog)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"actor": actor, "action": req.Action, "resource": req.Resource}).WithError(err).Error("failed to persist audit log")
		}
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"actor": actor, "action": req.Action, "resource": req.Resource, "resource_id": req.ResourceID}).Debug("audit log persisted")
	}
	return nil
}

// GetAuditLogs returns one page of entries for the admin view together with
// the number of matches per action class.
func (s *AuditService) GetAuditLogs(ctx context.Context, filter *audit.AuditLogFilter) (*audit.Page, error) {
	if filter == nil {
		filter = &audit.AuditLogFilter{}
	}
	if filter.Limit <= 0 || filter.Limit > maxAuditPageSize {
		filter.Limit = defaultAuditPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	g, gctx := errgroup.WithContext(ctx)
	var (
		logs     []*audit.AuditLog
		total    int
		byAction map[audit.AuditAction]int
	)
	g.Go(func() (err error) {
		logs, err = s.repo.List(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		byAction, err = s.repo.CountByAction(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := &audit.Page{
		Logs:    logs,
		Total:   total,
		ByClass: map[audit.Class]int{},
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}
	if page.Logs == nil {
		page.Logs = []*audit.AuditLog{}
	}
	for action, n := range byAction {
		if c := action.Class(); c != "" {
			page.ByClass[c] += n
		}
	}
	return page, nil
}

// ItemHistory returns what happened to one desvio item, oldest first.
func (s *AuditService) ItemHistory(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error) {
	if itemID <= 0 {
		return nil, fmt.Errorf("invalid item id %d", itemID)
	}
	return s.repo.History(ctx, dataset, itemID)
}

// recordAudit writes req on behalf of actor. A failing audit store never
// fails the action being audited.
func recordAudit(ctx context.Context, svc ports.AuditService, logger *logrus.Logger, actor auth.Actor, req *audit.CreateAuditLogRequest) {
	if svc == nil {
		return
	}
	req.Actor = actor.Email
	req.IPAddress = actor.IPAddress
	req.UserAgent = actor.UserAgent
	if err := svc.LogAction(context.WithoutCancel(ctx), req); err != nil && logger != nil {
		logger.WithFields(logrus.Fields{"actor": actor.Email, "action": req.Action, "item_id": req.ItemID}).WithError(err).Warn("audit entry lost")
	}
}
