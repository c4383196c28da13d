// Package teams posts notifications to a Microsoft Teams incoming webhook.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpclient"
)

const DefaultTimeout = 10 * time.Second

var themeColors = map[notification.Severity]string{
	notification.SeverityInfo:     "0078D4",
	notification.SeveritySuccess:  "28A745",
	notification.SeverityWarning:  "FFC107",
	notification.SeverityError:    "DC3545",
	notification.SeverityCritical: "8B0000",
}

var severityIcons = map[notification.Severity]string{
	notification.SeverityInfo:     "ℹ️",
	notification.SeveritySuccess:  "✅",
	notification.SeverityWarning:  "⚠️",
	notification.SeverityError:    "❌",
	notification.SeverityCritical: "🚨",
}

type messageCard struct {
	Type       string        `json:"@type"`
	Context    string        `json:"@context"`
	ThemeColor string        `json:"themeColor"`
	Summary    string        `json:"summary"`
	Title      string        `json:"title"`
	Sections   []cardSection `json:"sections"`
}

type cardSection struct {
	ActivityTitle    string     `json:"activityTitle"`
	ActivitySubtitle string     `json:"activitySubtitle"`
	Text             string     `json:"text"`
	Facts            []cardFact `json:"facts,omitempty"`
}

type cardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notifier sends MessageCards to one webhook.
type Notifier struct {
	webhookURL string
	client     *retryablehttp.Client
	logger     *logrus.Logger
}

func NewNotifier(webhookURL string, timeout time.Duration, logger *logrus.Logger) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     httpclient.New(httpclient.Options{Timeout: timeout, RetryMax: 1}, logger),
		logger:     logger,
	}
}

func (n *Notifier) Name() string { return "teams" }

func (n *Notifier) Send(ctx context.Context, msg notification.Notification) error {
	body, err := json.Marshal(buildCard(msg))
	if err != nil {
		return fmt.Errorf("failed to encode teams card: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post teams notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("teams webhook returned status %d", resp.StatusCode)
	}
	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{"title": msg.Title, "severity": msg.Severity.String()}).Debug("teams notification sent")
	}
	return nil
}

func buildCard(msg notification.Notification) messageCard {
	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	color, ok := themeColors[msg.Severity]
	if !ok {
		color = themeColors[notification.SeverityInfo]
	}

	names := make([]string, 0, len(msg.Facts))
	for k := range msg.Facts {
		names = append(names, k)
	}
	sort.Strings(names)
	facts := make([]cardFact, 0, len(names))
	for _, k := range names {
		facts = append(facts, cardFact{Name: k, Value: msg.Facts[k]})
	}

	return messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    msg.Title,
		Title:      fmt.Sprintf("%s %s", severityIcons[msg.Severity], msg.Title),
		Sections: []cardSection{{
			ActivityTitle:    "Sistema Sentinela",
			ActivitySubtitle: created.Format("02/01/2006 15:04:05"),
			Text:             msg.Message,
			Facts:            facts,
		}},
	}
}
