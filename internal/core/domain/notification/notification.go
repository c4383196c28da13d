package notification

import (
	"fmt"
	"strings"
	"time"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeveritySuccess:  "success",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity is case-insensitive.
func ParseSeverity(name string) (Severity, error) {
	for s, n := range severityNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", name)
}

// Notification is a message for a chat channel or an alert mailbox.
type Notification struct {
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Severity  Severity          `json:"severity"`
	Facts     map[string]string `json:"facts,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
