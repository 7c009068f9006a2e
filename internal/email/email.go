// Package email renders the lifecycle notifications and hands them to a
// transport. Every send is best-effort: failures are logged and reported as
// false, never as an error the caller must handle.
package email

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/dharsanguruparan/PartnerGate/internal/logging"
)

// Kind selects the template of a notification.
type Kind string

const (
	KindApplicationConfirmation Kind = "application_confirmation"
	KindAdminNewApplication     Kind = "admin_new_application"
	KindMeetingScheduled        Kind = "meeting_scheduled"
	KindMeetingUpdated          Kind = "meeting_updated"
	KindTermsLink               Kind = "terms_link"
	KindApplicationRejected     Kind = "application_rejected"
	KindTermsAccepted           Kind = "terms_accepted"
	KindContractApproved        Kind = "contract_approved"
	KindContractRejected        Kind = "contract_rejected"
)

// Data is the template input.
type Data map[string]any

// Dispatcher sends one templated email.
type Dispatcher interface {
	Send(ctx context.Context, kind Kind, recipient string, data Data) bool
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, to, subject, body string) error
}

type tmpl struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[Kind][2]string{
	KindApplicationConfirmation: {
		"We received your partner application",
		"Hi {{.Name}},\n\nthanks for applying to the partner program. We will review your application and get back to you.\n",
	},
	KindAdminNewApplication: {
		"New partner application: {{.Name}}",
		"{{.Name}} <{{.Email}}> submitted a partner application.\nApplication id: {{.ApplicationID}}\n",
	},
	KindMeetingScheduled: {
		"Your partner interview is scheduled",
		"Hi {{.Name}},\n\nwe would like to meet you on {{.Date}} at {{.Time}}.\nJoin here: {{.Link}}\n",
	},
	KindMeetingUpdated: {
		"Your partner interview was rescheduled",
		"Hi {{.Name}},\n\nyour interview moved to {{.Date}} at {{.Time}}.\nJoin here: {{.Link}}\n",
	},
	KindTermsLink: {
		"Review and accept your partner terms",
		"Hi {{.Name}},\n\nplease review and accept the partner terms here:\n{{.Link}}\n\nThe link is valid until {{.ExpiresAt}}.\n",
	},
	KindApplicationRejected: {
		"Your partner application",
		"Hi {{.Name}},\n\nafter careful review we will not move forward with your application.{{if .Reason}}\n\nReason: {{.Reason}}{{end}}\n",
	},
	KindTermsAccepted: {
		"We received your signed partner terms",
		"Hi {{.Name}},\n\nthanks for accepting the partner terms (version {{.ContractVersion}}). Our team will verify your documents shortly.\n",
	},
	KindContractApproved: {
		"Welcome aboard, your partner account is active",
		"Hi {{.Name}},\n\nyour documents were verified and your partner account is now active.\n",
	},
	KindContractRejected: {
		"Your partner documents need attention",
		"Hi {{.Name}},\n\nwe could not verify your documents.{{if .Reason}}\n\nReason: {{.Reason}}{{end}}{{if .Link}}\n\nPlease submit them again here:\n{{.Link}}{{end}}\n",
	},
}

// Mailer renders templates and delivers them through a Transport.
type Mailer struct {
	transport Transport
	logger    logging.Logger
	parsed    map[Kind]tmpl
}

// NewMailer parses every template up front.
func NewMailer(transport Transport, logger logging.Logger) (*Mailer, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	m := &Mailer{transport: transport, logger: logger.With("component", "email"), parsed: map[Kind]tmpl{}}
	for kind, src := range templates {
		subject, err := template.New(string(kind) + ".subject").Option("missingkey=zero").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		body, err := template.New(string(kind) + ".body").Option("missingkey=zero").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", kind, err)
		}
		m.parsed[kind] = tmpl{subject: subject, body: body}
	}
	return m, nil
}

// Render produces the subject and body of kind.
func (m *Mailer) Render(kind Kind, data Data) (string, string, error) {
	t, ok := m.parsed[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", kind)
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

func (m *Mailer) Send(ctx context.Context, kind Kind, recipient string, data Data) bool {
	if recipient == "" {
		m.logger.Warn(ctx, "email skipped, no recipient", "kind", kind)
		return false
	}
	subject, body, err := m.Render(kind, data)
	if err != nil {
		m.logger.Warn(ctx, "email render failed", "kind", kind, "error", err)
		return false
	}
	if err := m.transport.Deliver(ctx, recipient, subject, body); err != nil {
		m.logger.Warn(ctx, "email delivery failed", "kind", kind, "to", recipient, "error", err)
		return false
	}
	m.logger.Info(ctx, "email sent", "kind", kind, "to", recipient)
	return true
}

// FanOut sends kind to every recipient and returns how many succeeded.
func FanOut(ctx context.Context, d Dispatcher, kind Kind, recipients []string, data Data) int {
	sent := 0
	for _, to := range recipients {
		if d.Send(ctx, kind, to, data) {
			sent++
		}
	}
	return sent
}
