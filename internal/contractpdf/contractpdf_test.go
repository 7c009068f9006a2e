package contractpdf

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PartnerGate/internal/model"
	pdfutil "github.com/dharsanguruparan/PartnerGate/internal/pdf"
)

func sampleInput() Input {
	return Input{
		ApplicationID: "app-1",
		RecordID:      "rec-1",
		Text:          "PARTNER SERVICES AGREEMENT\nVersion: v1\n\nPARTNER\nLegal name: Ana Silva\n",
		Hash:          strings.Repeat("ab", 32),
		AcceptedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Acceptance:    &model.Acceptance{LegalName: "Ana Silva", ContractVersion: "v1", IPAddress: "203.0.113.9"},
	}
}

func TestRender_ContainsHashAndText(t *testing.T) {
	data, err := Render(sampleInput())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	text, err := pdfutil.ExtractText(data)
	require.NoError(t, err)
	compact := strings.Join(strings.Fields(text), "")
	assert.Contains(t, compact, strings.Repeat("ab", 32))
	assert.Contains(t, compact, "PARTNERSERVICESAGREEMENT")
}

func TestRender_Deterministic(t *testing.T) {
	a, err := Render(sampleInput())
	require.NoError(t, err)
	b, err := Render(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRender_RequiresAcceptance(t *testing.T) {
	in := sampleInput()
	in.Acceptance = nil
	_, err := Render(in)
	require.Error(t, err)
}

func TestIsHeading(t *testing.T) {
	assert.True(t, isHeading("PAYOUT"))
	assert.False(t, isHeading("Method: bank"))
	assert.False(t, isHeading("1. SCOPE"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "app-1/rec-1.pdf", ObjectKey("app-1", "rec-1"))
}
