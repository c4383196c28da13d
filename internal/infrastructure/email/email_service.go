package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"path"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/ports"
)

//go:embed templates/*.html
var templateFS embed.FS

// EmailConfig holds email service configuration
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// EmailService implements ports.EmailService with SendGrid.
type EmailService struct {
	config    *EmailConfig
	logger    *logrus.Logger
	send      func(*mail.SGMailV3) (int, string, error)
	templates map[string]*template.Template
}

// NewEmailService creates a new email service instance
func NewEmailService(config *EmailConfig, logger *logrus.Logger) (*EmailService, error) {
	client := sendgrid.NewSendClient(config.SendGridAPIKey)
	return newEmailService(config, logger, func(m *mail.SGMailV3) (int, string, error) {
		resp, err := client.Send(m)
		if err != nil {
			return 0, "", err
		}
		return resp.StatusCode, resp.Body, nil
	})
}

func newEmailService(config *EmailConfig, logger *logrus.Logger, send func(*mail.SGMailV3) (int, string, error)) (*EmailService, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	return &EmailService{
		config:    config,
		logger:    logger,
		send:      send,
		templates: templates,
	}, nil
}

// loadTemplates parses every template embedded in the binary
func loadTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	files, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		name := strings.TrimSuffix(f.Name(), path.Ext(f.Name()))
		tmpl, err := template.ParseFS(templateFS, path.Join("templates", f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", f.Name(), err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// SendEmail sends one message to every recipient.
func (e *EmailService) SendEmail(ctx context.Context, to []string, tmpl *ports.EmailTemplate) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}
	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = tmpl.Subject
	p := mail.NewPersonalization()
	for _, addr := range to {
		p.AddTos(mail.NewEmail("", addr))
	}
	message.AddPersonalizations(p)
	if tmpl.IsHTML {
		message.AddContent(mail.NewContent("text/html", tmpl.Body))
	} else {
		message.AddContent(mail.NewContent("text/plain", tmpl.Body))
	}

	status, body, err := e.send(message)
	if err == nil && (status < 200 || status >= 300) {
		err = fmt.Errorf("sendgrid returned status %d: %s", status, body)
	}
	if err != nil {
		if e.logger != nil {
			e.logger.WithFields(logrus.Fields{
				"to":      to,
				"subject": tmpl.Subject,
			}).WithError(err).Error("Failed to send email")
		}
		return fmt.Errorf("failed to send email: %w", err)
	}

	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"to":          to,
			"subject":     tmpl.Subject,
			"status_code": status,
		}).Info("Email sent successfully")
	}
	return nil
}

// renderTemplate renders an email template with the provided data
func (e *EmailService) renderTemplate(templateName string, data interface{}) (string, error) {
	tmpl, exists := e.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	return buf.String(), nil
}
