package ports

import (
	"context"
)

// EmailService defines the interface for email operations
type EmailService interface {
	SendEmail(ctx context.Context, to []string, tmpl *EmailTemplate) error
}

// EmailTemplate represents email template data
type EmailTemplate struct {
	Subject string
	Body    string
	IsHTML  bool
}
