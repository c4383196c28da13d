package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

// DesvioConfig names the desvios list and the timezone audit stamps are written in.
type DesvioConfig struct {
	Dataset  string
	Location *time.Location
}

// DesvioService reads desvios and records tratativas and reviews on them.
type DesvioService struct {
	data     ports.DataSource
	cfg      DesvioConfig
	audit    ports.AuditService
	notifier ports.NotificationService
	logger   *logrus.Logger
	now      func() time.Time
}

func NewDesvioService(data ports.DataSource, cfg DesvioConfig, auditSvc ports.AuditService, notifier ports.NotificationService, logger *logrus.Logger) *DesvioService {
	if cfg.Dataset == "" {
		cfg.Dataset = "Desvios"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &DesvioService{
		data:     data,
		cfg:      cfg,
		audit:    auditSvc,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// List loads a dataset through the cache. An empty dataset means the desvios
// list, which is narrowed to the actor's areas and drops events closed as
// Não Tratado.
func (s *DesvioService) List(ctx context.Context, actor auth.Actor, q desvio.Query) (desvio.Rows, error) {
	if strings.TrimSpace(q.Dataset) == "" {
		q.Dataset = s.cfg.Dataset
	}
	rows, err := s.data.Load(ctx, q)
	if err != nil || q.Dataset != s.cfg.Dataset {
		return rows, err
	}
	out := make(desvio.Rows, 0, len(rows))
	for _, r := range rows {
		if desvio.Status(r.String(desvio.FieldStatus)) == desvio.StatusNaoTratado {
			continue
		}
		if canAccess(actor, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// canAccess reports whether actor may see and act on the record.
func canAccess(actor auth.Actor, r desvio.Record) bool {
	return actor.SeesAllAreas() || desvio.LocationOf(r).VisibleTo(actor.Areas)
}

// Motivos returns where the item's event happened and the motivos a
// tratativa on it may use.
func (s *DesvioService) Motivos(ctx context.Context, actor auth.Actor, itemID int) (desvio.Location, []string, error) {
	rows, err := s.data.Load(ctx, desvio.Query{Dataset: s.cfg.Dataset})
	if err != nil {
		return desvio.Location{}, nil, err
	}
	target, ok := rows.FindByID(itemID)
	if !ok {
		return desvio.Location{}, nil, fmt.Errorf("desvio %d: %w", itemID, desvio.ErrNotFound)
	}
	if !canAccess(actor, target) {
		return desvio.Location{}, nil, fmt.Errorf("desvio %d: %w", itemID, ErrForbidden)
	}
	place := desvio.LocationOf(target)
	return place, place.Area.Motivos(), nil
}

func (s *DesvioService) stamp() string {
	return s.now().In(s.cfg.Location).Format(SharePointTimeLayout)
}

// SubmitTratativa saves the tratativa on one item and recomputes the status
// of the event the item belongs to. It returns the new event status.
func (s *DesvioService) SubmitTratativa(ctx context.Context, actor auth.Actor, itemID int, t desvio.Tratativa) (desvio.Status, error) {
	rows, err := s.data.Load(ctx, desvio.Query{Dataset: s.cfg.Dataset})
	if err != nil {
		return "", err
	}
	target, ok := rows.FindByID(itemID)
	if !ok {
		return "", fmt.Errorf("desvio %d: %w", itemID, desvio.ErrNotFound)
	}
	if !canAccess(actor, target) {
		return "", fmt.Errorf("desvio %d: %w", itemID, ErrForbidden)
	}
	if st := desvio.Status(target.String(desvio.FieldStatus)); st.Closed() {
		verr := &ValidationError{}
		verr.add("Desvio %d está encerrado (status %q)", itemID, st)
		return "", verr
	}
	place := desvio.LocationOf(target)
	if err := ValidateTratativa(t, place.Area, target.String(desvio.FieldDataEntrada), s.now(), s.cfg.Location); err != nil {
		return "", err
	}

	update := desvio.Record{
		desvio.FieldID:                itemID,
		desvio.FieldMotivo:            NormalizeMotivo(t.Motivo),
		desvio.FieldPrevisao:          nil,
		desvio.FieldObservacoes:       strings.TrimSpace(t.Observacoes),
		desvio.FieldPreenchidoPor:     actorEmail(actor),
		desvio.FieldDataPreenchimento: s.stamp(),
	}
	if p := strings.TrimSpace(t.PrevisaoLiberacao); p != "" {
		previsao, _ := ParsePrevisao(p, s.cfg.Location)
		update[desvio.FieldPrevisao] = previsao.Format(SharePointTimeLayout)
	}

	event := eventOf(rows, target)
	for i, r := range event {
		if r.ID() == itemID {
			merged := r.Clone()
			for k, v := range update {
				merged[k] = v
			}
			event[i] = merged
		}
	}
	status := desvio.EventStatus(event)
	update[desvio.FieldStatus] = string(status)

	if err := s.data.Save(ctx, s.cfg.Dataset, update); err != nil {
		return "", err
	}

	var siblings desvio.Rows
	for _, r := range event {
		if r.ID() != itemID && r.String(desvio.FieldStatus) != string(status) {
			siblings = append(siblings, desvio.Record{desvio.FieldID: r.ID(), desvio.FieldStatus: string(status)})
		}
	}
	if len(siblings) > 0 {
		if _, err := s.data.SaveBatch(ctx, s.cfg.Dataset, siblings); err != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{"item_id": itemID, "siblings": len(siblings)}).WithError(err).Warn("failed to propagate event status")
		}
	}

	titulo := target.EventTitle()
	recordAudit(ctx, s.audit, s.logger, actor, &audit.CreateAuditLogRequest{
		Action:     audit.ActionTratativa,
		Resource:   audit.ResourceDesvio,
		ResourceID: strconv.Itoa(itemID),
		Dataset:    s.cfg.Dataset,
		ItemID:     itemID,
		EventTitle: titulo,
		Details: map[string]any{
			"poi":      place.POI,
			"motivo":   update[desvio.FieldMotivo],
			"previsao": update[desvio.FieldPrevisao],
			"status":   status,
		},
	})
	s.notify(ctx, notification.Notification{
		Title:    "Tratativa registrada",
		Message:  fmt.Sprintf("%s registrou tratativa no desvio %d.", actorEmail(actor), itemID),
		Severity: notification.SeverityInfo,
		Facts: map[string]string{
			"Evento":  titulo,
			"Placa":   target.String(desvio.FieldPlaca),
			"Motivo":  NormalizeMotivo(t.Motivo),
			"Status":  string(status),
			"Usuário": actorEmail(actor),
		},
	})
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"item_id": itemID, "actor": actor.Email, "status": status}).Info("tratativa saved")
	}
	return status, nil
}

// Review approves or rejects the given items. Only items awaiting approval can
// be reviewed. It returns how many items were saved; a partial failure is
// reported together with the count.
func (s *DesvioService) Review(ctx context.Context, actor auth.Actor, req desvio.ReviewRequest) (int, error) {
	if !actor.Role.CanReview() {
		return 0, ErrForbidden
	}
	if err := ValidateReview(req); err != nil {
		return 0, err
	}

	rows, err := s.data.Load(ctx, desvio.Query{Dataset: s.cfg.Dataset})
	if err != nil {
		return 0, err
	}
	verr := &ValidationError{}
	targets := make(map[int]desvio.Record, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		r, ok := rows.FindByID(id)
		if !ok {
			return 0, fmt.Errorf("desvio %d: %w", id, desvio.ErrNotFound)
		}
		if !canAccess(actor, r) {
			return 0, fmt.Errorf("desvio %d: %w", id, ErrForbidden)
		}
		targets[id] = r
		if st := r.String(desvio.FieldStatus); st != string(desvio.StatusPreenchido) {
			verr.add("Desvio %d não está aguardando aprovação (status %q)", id, st)
		}
	}
	if err := verr.orNil(); err != nil {
		return 0, err
	}

	status := req.Decision.Status()
	stamp := s.stamp()
	justificativa := strings.TrimSpace(req.Justificativa)
	updates := make(desvio.Rows, 0, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		u := desvio.Record{
			desvio.FieldID:            id,
			desvio.FieldStatus:        string(status),
			desvio.FieldAprovadoPor:   actorEmail(actor),
			desvio.FieldDataAprovacao: stamp,
		}
		if req.Decision == desvio.DecisionReject {
			u[desvio.FieldReprova] = justificativa
		}
		updates = append(updates, u)
	}

	saved, err := s.data.SaveBatch(ctx, s.cfg.Dataset, updates)
	if saved == 0 && err != nil {
		return 0, err
	}

	action := audit.ActionApprove
	severity := notification.SeveritySuccess
	title := "Desvios aprovados"
	if req.Decision == desvio.DecisionReject {
		action = audit.ActionReject
		severity = notification.SeverityWarning
		title = "Desvios reprovados"
	}
	ids := make([]string, len(req.ItemIDs))
	for i, id := range req.ItemIDs {
		ids[i] = strconv.Itoa(id)
		recordAudit(ctx, s.audit, s.logger, actor, &audit.CreateAuditLogRequest{
			Action:     action,
			Resource:   audit.ResourceDesvio,
			ResourceID: ids[i],
			Dataset:    s.cfg.Dataset,
			ItemID:     id,
			EventTitle: targets[id].EventTitle(),
			Details: map[string]any{
				"status":        status,
				"batch_size":    len(req.ItemIDs),
				"batch_saved":   saved,
				"justificativa": justificativa,
			},
		})
	}
	facts := map[string]string{
		"Itens":   strings.Join(ids, ", "),
		"Usuário": actorEmail(actor),
	}
	if justificativa != "" {
		facts["Justificativa"] = justificativa
	}
	s.notify(ctx, notification.Notification{
		Title:    title,
		Message:  fmt.Sprintf("%d de %d desvios marcados como %s.", saved, len(req.ItemIDs), status),
		Severity: severity,
		Facts:    facts,
	})
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"actor": actor.Email, "decision": req.Decision, "items": len(req.ItemIDs), "saved": saved}).Info("review saved")
	}
	return saved, err
}

func (s *DesvioService) notify(ctx context.Context, n notification.Notification) {
	if s.notifier == nil {
		return
	}
	n.CreatedAt = s.now()
	s.notifier.Notify(ctx, n)
}

// eventOf returns copies of every record of the event target belongs to. An
// event is the set of items sharing a title.
func eventOf(rows desvio.Rows, target desvio.Record) desvio.Rows {
	title := target.EventTitle()
	if title == "" {
		return desvio.Rows{target.Clone()}
	}
	var out desvio.Rows
	for _, r := range rows {
		if r.EventTitle() == title {
			out = append(out, r.Clone())
		}
	}
	return out
}

func actorEmail(a auth.Actor) string {
	if e := strings.ToLower(strings.TrimSpace(a.Email)); e != "" {
		return e
	}
	return auth.SystemActor
}
