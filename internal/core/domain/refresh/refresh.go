package refresh

import (
	"time"

	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
)

// State of a session's refresh coordinator.
type State string

const (
	StateDisabled   State = "disabled"
	StateIdle       State = "idle"
	StateSuppressed State = "suppressed"
	StateRefreshing State = "refreshing"
)

type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// Result of one reload. Err is nil on success, in which case Datasets holds
// the freshly loaded rows keyed by dataset name.
type Result struct {
	Trigger     Trigger                `json:"trigger"`
	Datasets    map[string]desvio.Rows `json:"datasets,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Err         error                  `json:"-"`
	Error       string                 `json:"error,omitempty"`
}

func (r Result) OK() bool { return r.Err == nil }

// Status is a point-in-time view of a coordinator for the UI indicator.
type Status struct {
	State               State     `json:"state"`
	Enabled             bool      `json:"enabled"`
	Interval            string    `json:"interval"`
	TypingFields        []string  `json:"typing_fields"`
	LastRefreshAt       time.Time `json:"last_refresh_at,omitzero"`
	NextTickAt          time.Time `json:"next_tick_at,omitzero"`
	SecondsRemaining    int       `json:"seconds_remaining"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}
