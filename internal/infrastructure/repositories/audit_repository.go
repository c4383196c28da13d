package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/infrastructure/db"
)

const auditColumns = `id, actor, action, resource, resource_id, dataset, item_id, event_title,
	details, ip_address, user_agent, timestamp`

// auditRow is the audit_logs row as stored. Details stays raw JSON text until
// it is handed out.
type auditRow struct {
	ID         uuid.UUID      `db:"id"`
	Actor      string         `db:"actor"`
	Action     string         `db:"action"`
	Resource   string         `db:"resource"`
	ResourceID string         `db:"resource_id"`
	Dataset    string         `db:"dataset"`
	ItemID     sql.NullInt64  `db:"item_id"`
	EventTitle string         `db:"event_title"`
	Details    sql.NullString `db:"details"`
	IPAddress  string         `db:"ip_address"`
	UserAgent  string         `db:"user_agent"`
	Timestamp  time.Time      `db:"timestamp"`
}

func newAuditRow(l *audit.AuditLog) (auditRow, error) {
	row := auditRow{
		ID:         l.ID,
		Actor:      l.Actor,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		Dataset:    l.Dataset,
		EventTitle: l.EventTitle,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		Timestamp:  l.Timestamp,
	}
	if l.ItemID > 0 {
		row.ItemID = sql.NullInt64{Int64: int64(l.ItemID), Valid: true}
	}
	if l.Details != nil {
		b, err := json.Marshal(l.Details)
		if err != nil {
			return auditRow{}, err
		}
		row.Details = sql.NullString{String: string(b), Valid: true}
	}
	return row, nil
}

func (r auditRow) log() *audit.AuditLog {
	l := &audit.AuditLog{
		ID:         r.ID,
		Actor:      r.Actor,
		Action:     r.Action,
		Class:      audit.AuditAction(r.Action).Class(),
		Resource:   r.Resource,
		ResourceID: r.ResourceID,
		Dataset:    r.Dataset,
		EventTitle: r.EventTitle,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		Timestamp:  r.Timestamp,
	}
	if r.ItemID.Valid {
		l.ItemID = int(r.ItemID.Int64)
	}
	if r.Details.Valid && r.Details.String != "" {
		var details any
		if err := json.Unmarshal([]byte(r.Details.String), &details); err == nil {
			l.Details = details
		}
	}
	return l
}

// auditWhere accumulates conditions with postgres placeholders numbered in
// the order their arguments were added.
type auditWhere struct {
	conds []string
	args  []any
	none  bool
}

func (w *auditWhere) add(expr string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(expr, "?", "$"+strconv.Itoa(len(w.args)), 1))
}

func (w *auditWhere) String() string {
	if w.none {
		return " WHERE FALSE"
	}
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *auditWhere) next() string {
	return "$" + strconv.Itoa(len(w.args)+1)
}

func auditConditions(f *audit.AuditLogFilter) *auditWhere {
	w := &auditWhere{}
	if f == nil {
		return w
	}
	if f.Actor != "" {
		w.add("actor = ?", strings.ToLower(strings.TrimSpace(f.Actor)))
	}
	actions, ok := f.ActionSet()
	if !ok {
		w.none = true
		return w
	}
	switch len(actions) {
	case 0:
	case 1:
		w.add("action = ?", string(actions[0]))
	default:
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = string(a)
		}
		w.add("action = ANY(?)", pq.Array(names))
	}
	if f.Resource != "" {
		w.add("resource = ?", f.Resource)
	}
	if f.ResourceID != "" {
		w.add("resource_id = ?", f.ResourceID)
	}
	if f.Dataset != "" {
		w.add("dataset = ?", f.Dataset)
	}
	if f.ItemID > 0 {
		w.add("item_id = ?", f.ItemID)
	}
	if f.EventTitle != "" {
		w.add("event_title = ?", f.EventTitle)
	}
	if f.Since != nil {
		w.add("timestamp >= ?", *f.Since)
	}
	if f.Until != nil {
		w.add("timestamp <= ?", *f.Until)
	}
	return w
}

type auditRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewAuditRepository returns the postgres audit trail.
func NewAuditRepository(database *db.Database, logger *logrus.Logger) ports.AuditRepository {
	return &auditRepository{
		db:     database,
		logger: logger,
	}
}

func (r *auditRepository) Create(ctx context.Context, l *audit.AuditLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	row, err := newAuditRow(l)
	if err != nil {
		return err
	}

	_, err = r.db.DB.NamedExecContext(ctx, `INSERT INTO audit_logs (`+auditColumns+`) VALUES (
		:id, :actor, :action, :resource, :resource_id, :dataset, :item_id, :event_title,
		:details, :ip_address, :user_agent, :timestamp)`, row)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"actor": l.Actor, "action": l.Action, "item_id": l.ItemID}).WithError(err).Error("db: failed to insert audit log")
		}
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"actor": l.Actor, "action": l.Action, "resource_id": l.ResourceID}).Debug("db: audit log inserted")
	}
	return nil
}

// List returns the newest entries matching the filter first.
func (r *auditRepository) List(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, error) {
	query, args := buildAuditList(filter)
	return r.selectLogs(ctx, query, args)
}

// History returns every entry recorded for one list item, oldest first.
func (r *auditRepository) History(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error) {
	query, args := buildAuditHistory(dataset, itemID)
	return r.selectLogs(ctx, query, args)
}

func (r *auditRepository) selectLogs(ctx context.Context, query string, args []any) ([]*audit.AuditLog, error) {
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"query": query, "args": args}).Debug("db: executing audit query")
	}
	var rows []auditRow
	if err := r.db.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"query": query}).WithError(err).Error("db: audit query failed")
		}
		return nil, err
	}
	logs := make([]*audit.AuditLog, len(rows))
	for i, row := range rows {
		logs[i] = row.log()
	}
	return logs, nil
}

func (r *auditRepository) Count(ctx context.Context, filter *audit.AuditLogFilter) (int, error) {
	w := auditConditions(filter)
	var count int
	if err := r.db.DB.GetContext(ctx, &count, "SELECT COUNT(*) FROM audit_logs"+w.String(), w.args...); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: audit count failed")
		}
		return 0, err
	}
	return count, nil
}

// CountByAction splits the entries matching the filter by action.
func (r *auditRepository) CountByAction(ctx context.Context, filter *audit.AuditLogFilter) (map[audit.AuditAction]int, error) {
	query, args := buildAuditCountByAction(filter)
	var rows []struct {
		Action string `db:"action"`
		N      int    `db:"n"`
	}
	if err := r.db.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: audit summary failed")
		}
		return nil, err
	}
	out := make(map[audit.AuditAction]int, len(rows))
	for _, row := range rows {
		out[audit.AuditAction(row.Action)] = row.N
	}
	return out, nil
}

func buildAuditList(f *audit.AuditLogFilter) (string, []any) {
	w := auditConditions(f)
	query := "SELECT " + auditColumns + " FROM audit_logs" + w.String() + " ORDER BY timestamp DESC"
	if f != nil && f.Limit > 0 {
		query += " LIMIT " + w.next()
		w.args = append(w.args, f.Limit)
	}
	if f != nil && f.Offset > 0 {
		query += " OFFSET " + w.next()
		w.args = append(w.args, f.Offset)
	}
	return query, w.args
}

func buildAuditHistory(dataset string, itemID int) (string, []any) {
	w := &auditWhere{}
	w.add("item_id = ?", itemID)
	if dataset != "" {
		w.add("dataset = ?", dataset)
	}
	return "SELECT " + auditColumns + " FROM audit_logs" + w.String() + " ORDER BY timestamp ASC", w.args
}

func buildAuditCountByAction(f *audit.AuditLogFilter) (string, []any) {
	w := auditConditions(f)
	return "SELECT action, COUNT(*) AS n FROM audit_logs" + w.String() + " GROUP BY action", w.args
}
