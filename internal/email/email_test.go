package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PartnerGate/internal/logging"
)

type captureTransport struct {
	to, subject, body string
	err               error
}

func (c *captureTransport) Deliver(_ context.Context, to, subject, body string) error {
	c.to, c.subject, c.body = to, subject, body
	return c.err
}

func TestEveryKindRenders(t *testing.T) {
	m, err := NewMailer(&captureTransport{}, nil)
	require.NoError(t, err)
	for kind := range templates {
		subject, body, err := m.Render(kind, Data{"Name": "Ana"})
		require.NoError(t, err, kind)
		assert.NotEmpty(t, subject, kind)
		assert.NotEmpty(t, body, kind)
	}
	_, _, err = m.Render("nope", nil)
	require.Error(t, err)
}

func TestMailerSend_TermsLink(t *testing.T) {
	tr := &captureTransport{}
	m, err := NewMailer(tr, nil)
	require.NoError(t, err)

	ok := m.Send(context.Background(), KindTermsLink, "ana@example.com", Data{
		"Name": "Ana", "Link": "https://partners.example.com/terms?token=abc", "ExpiresAt": "2026-02-01",
	})
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", tr.to)
	assert.Contains(t, tr.body, "https://partners.example.com/terms?token=abc")
}

func TestMailerSend_FailureIsSwallowed(t *testing.T) {
	rec := logging.NewRecorder()
	m, err := NewMailer(&captureTransport{err: errors.New("relay down")}, rec)
	require.NoError(t, err)

	assert.False(t, m.Send(context.Background(), KindContractApproved, "ana@example.com", Data{"Name": "Ana"}))
	assert.True(t, rec.Has("WARN", "email delivery failed"))
	assert.False(t, m.Send(context.Background(), KindContractApproved, "", nil))
}

func TestRejectedTemplateOmitsEmptyReason(t *testing.T) {
	m, err := NewMailer(&captureTransport{}, nil)
	require.NoError(t, err)
	_, body, err := m.Render(KindApplicationRejected, Data{"Name": "Ana"})
	require.NoError(t, err)
	assert.NotContains(t, body, "Reason")
}

func TestFanOut_CountsSuccesses(t *testing.T) {
	r := NewRecorder()
	r.Fail["b@example.com"] = true
	n := FanOut(context.Background(), r, KindAdminNewApplication,
		[]string{"a@example.com", "b@example.com", "c@example.com"}, Data{"Name": "Ana"})
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, r.Count(KindAdminNewApplication))
}

func TestSMTPTransport_BuildsMessage(t *testing.T) {
	tr := NewSMTPTransport("smtp.example.com", 587, "user", "pass", "partners@example.com")
	var gotAddr string
	var gotMsg []byte
	tr.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.NotNil(t, a)
		assert.Equal(t, []string{"ana@example.com"}, to)
		return nil
	}
	require.NoError(t, tr.Deliver(context.Background(), "ana@example.com", "Hello", "line1\nline2"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "From: partners@example.com\r\n"))
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.Contains(t, msg, "line1\r\nline2")
}
