package audit

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is one entry of the admin audit trail. Desvio entries carry the
// SharePoint item and the event title they touched so an item's history can
// be read back without joining against the list.
type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Class      Class     `json:"class"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id"`
	Dataset    string    `json:"dataset,omitempty"`
	ItemID     int       `json:"item_id,omitempty"`
	EventTitle string    `json:"event_title,omitempty"`
	Details    any       `json:"details"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Timestamp  time.Time `json:"timestamp"`
}

type AuditAction string

const (
	ActionLogin          AuditAction = "login"
	ActionLogout         AuditAction = "logout"
	ActionView           AuditAction = "view"
	ActionTratativa      AuditAction = "tratativa"
	ActionApprove        AuditAction = "approve"
	ActionReject         AuditAction = "reject"
	ActionNaoTratado     AuditAction = "nao_tratado"
	ActionRefreshEnable  AuditAction = "refresh_enable"
	ActionRefreshDisable AuditAction = "refresh_disable"
	ActionForceRefresh   AuditAction = "force_refresh"
	ActionCacheClear     AuditAction = "cache_clear"
)

// Class groups actions the way the admin view filters them.
type Class string

const (
	ClassAccess  Class = "access"
	ClassDesvio  Class = "desvio"
	ClassRefresh Class = "refresh"
	ClassCache   Class = "cache"
)

var classActions = map[Class][]AuditAction{
	ClassAccess:  {ActionLogin, ActionLogout, ActionView},
	ClassDesvio:  {ActionTratativa, ActionApprove, ActionReject, ActionNaoTratado},
	ClassRefresh: {ActionRefreshEnable, ActionRefreshDisable, ActionForceRefresh},
	ClassCache:   {ActionCacheClear},
}

// Actions lists the actions of the class; nil for an unknown class.
func (c Class) Actions() []AuditAction {
	return classActions[c]
}

// Class returns the class the action belongs to, or "" when unknown.
func (a AuditAction) Class() Class {
	for c, actions := range classActions {
		for _, x := range actions {
			if x == a {
				return c
			}
		}
	}
	return ""
}

type AuditResource string

const (
	ResourceDesvio  AuditResource = "desvio"
	ResourceSession AuditResource = "session"
	ResourceCache   AuditResource = "cache"
	ResourceUser    AuditResource = "user"
)

// CreateAuditLogRequest represents the request to create an audit log entry
type CreateAuditLogRequest struct {
	Actor      string        `json:"actor"`
	Action     AuditAction   `json:"action"`
	Resource   AuditResource `json:"resource"`
	ResourceID string        `json:"resource_id,omitempty"`
	Dataset    string        `json:"dataset,omitempty"`
	ItemID     int           `json:"item_id,omitempty"`
	EventTitle string        `json:"event_title,omitempty"`
	Details    any           `json:"details,omitempty"`
	IPAddress  string        `json:"ip_address"`
	UserAgent  string        `json:"user_agent"`
}

// AuditLogFilter selects audit entries. Zero fields match everything; Class
// and Actions narrow each other when both are set.
type AuditLogFilter struct {
	Actor      string        `json:"actor,omitempty" query:"actor"`
	Actions    []AuditAction `json:"actions,omitempty" query:"action"`
	Class      Class         `json:"class,omitempty" query:"class"`
	Resource   string        `json:"resource,omitempty" query:"resource"`
	ResourceID string        `json:"resource_id,omitempty" query:"resource_id"`
	Dataset    string        `json:"dataset,omitempty" query:"dataset"`
	ItemID     int           `json:"item_id,omitempty" query:"item_id"`
	EventTitle string        `json:"event_title,omitempty" query:"event_title"`
	Since      *time.Time    `json:"since,omitempty" query:"since"`
	Until      *time.Time    `json:"until,omitempty" query:"until"`
	Limit      int           `json:"limit" query:"limit"`
	Offset     int           `json:"offset" query:"offset"`
}

// ActionSet resolves Actions and Class into the set of actions to match.
// ok is false when the two exclude each other, so nothing can match.
func (f *AuditLogFilter) ActionSet() (actions []AuditAction, ok bool) {
	if f.Class == "" {
		return f.Actions, true
	}
	inClass := f.Class.Actions()
	if len(f.Actions) == 0 {
		return inClass, len(inClass) > 0
	}
	for _, a := range f.Actions {
		if a.Class() == f.Class {
			actions = append(actions, a)
		}
	}
	return actions, len(actions) > 0
}

// Page is what the admin view renders: one page of entries, the total that
// matched and how the matches split by class.
type Page struct {
	Logs    []*AuditLog   `json:"logs"`
	Total   int           `json:"total"`
	ByClass map[Class]int `json:"by_class"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}
