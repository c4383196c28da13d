package email

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

var alertColors = map[notification.Severity]string{
	notification.SeverityInfo:     "0078D4",
	notification.SeveritySuccess:  "28A745",
	notification.SeverityWarning:  "FFC107",
	notification.SeverityError:    "DC3545",
	notification.SeverityCritical: "8B0000",
}

type alertFact struct {
	Name  string
	Value string
}

type alertData struct {
	System    string
	Title     string
	Message   string
	Severity  string
	Color     string
	CreatedAt string
	Facts     []alertFact
}

// AlertNotifier mails notifications at or above a minimum severity.
type AlertNotifier struct {
	email       *EmailService
	to          []string
	minSeverity notification.Severity
}

func NewAlertNotifier(email *EmailService, to []string, minSeverity notification.Severity) *AlertNotifier {
	return &AlertNotifier{email: email, to: to, minSeverity: minSeverity}
}

func (a *AlertNotifier) Name() string { return "email" }

// Send drops notifications below the minimum severity without error.
func (a *AlertNotifier) Send(ctx context.Context, n notification.Notification) error {
	if n.Severity < a.minSeverity {
		return nil
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	data := alertData{
		System:    "Sistema Sentinela",
		Title:     n.Title,
		Message:   n.Message,
		Severity:  n.Severity.String(),
		Color:     alertColors[n.Severity],
		CreatedAt: created.Format("02/01/2006 15:04:05"),
	}
	names := make([]string, 0, len(n.Facts))
	for k := range n.Facts {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		data.Facts = append(data.Facts, alertFact{Name: k, Value: n.Facts[k]})
	}

	body, err := a.email.renderTemplate("alert", data)
	if err != nil {
		return fmt.Errorf("failed to render alert email: %w", err)
	}
	return a.email.SendEmail(ctx, a.to, &ports.EmailTemplate{
		Subject: fmt.Sprintf("[Sentinela][%s] %s", n.Severity.String(), n.Title),
		Body:    body,
		IsHTML:  true,
	})
}
