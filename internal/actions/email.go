package actions

import (
	"context"

	"github.com/wneessen/go-mail"

	"github.com/rendis/autoforge/pkg/schema"
)

// EmailAction implements the "send_email" action over a configured SMTP relay.
type EmailAction struct {
	cfg SMTPConfig
}

// NewEmailAction creates a new send_email action.
func NewEmailAction(cfg SMTPConfig) *EmailAction {
	if cfg.Port <= 0 {
		cfg.Port = defaultSMTPPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.From == "" {
		cfg.From = defaultSMTPFrom
	}
	return &EmailAction{cfg: cfg}
}

func (a *EmailAction) Kind() schema.ActionKind { return schema.ActionSendEmail }

func (a *EmailAction) Description() string {
	return "Send a plain-text email through the configured SMTP relay."
}

func (a *EmailAction) Execute(ctx context.Context, config map[string]any) schema.Outcome {
	to := stringParam(config, "to", "")
	subject := stringParam(config, "subject", "")
	body := stringParam(config, "body", "")
	if to == "" || subject == "" || body == "" {
		return schema.ErrorOutcome("to, subject, and body are required for email")
	}
	if a.cfg.Host == "" {
		return schema.ErrorOutcome("SMTP host not configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(a.cfg.From); err != nil {
		return schema.ErrorOutcome("invalid sender address: %v", err)
	}
	if err := msg.To(to); err != nil {
		return schema.ErrorOutcome("invalid recipient address: %v", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(a.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(a.cfg.Timeout),
	}
	if a.cfg.Username != "" && a.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(a.cfg.Username),
			mail.WithPassword(a.cfg.Password),
		)
	}

	client, err := mail.NewClient(a.cfg.Host, opts...)
	if err != nil {
		return schema.ErrorOutcome("%v", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return schema.ErrorOutcome("%v", err)
	}
	return schema.OKOutcome(map[string]any{"success": true, "to": to})
}
