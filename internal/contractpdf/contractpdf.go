// Package contractpdf lays out an accepted contract as a PDF: the rendered
// contract text followed by a signature block with the integrity hash.
package contractpdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/dharsanguruparan/PartnerGate/internal/model"
)

// Input is everything that appears on the document.
type Input struct {
	ApplicationID string
	RecordID      string
	Text          string
	Hash          string
	AcceptedAt    time.Time
	Acceptance    *model.Acceptance
}

// Render returns the PDF bytes. The output is deterministic for a given
// input.
func Render(in Input) ([]byte, error) {
	if in.Acceptance == nil {
		return nil, fmt.Errorf("render pdf: acceptance missing")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(in.AcceptedAt)
	pdf.SetModificationDate(in.AcceptedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Partner Services Agreement", true)
	pdf.SetCreator("PartnerGate", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Record %s - page %d/{nb}", in.RecordID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	for _, line := range strings.Split(strings.TrimRight(in.Text, "\n"), "\n") {
		switch {
		case line == "":
			pdf.Ln(3)
		case isHeading(line):
			pdf.SetFont("Helvetica", "B", 11)
			pdf.MultiCell(0, 6, tr(line), "", "L", false)
		default:
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, tr(line), "", "L", false)
		}
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "SIGNATURE", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	acc := in.Acceptance
	pdf.CellFormat(0, 5, tr("Signed by: "+acc.LegalName), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, "Accepted at: "+in.AcceptedAt.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, "Contract version: "+acc.ContractVersion, "", 1, "L", false, 0, "")
	if acc.IPAddress != "" {
		pdf.CellFormat(0, 5, "IP address: "+acc.IPAddress, "", 1, "L", false, 0, "")
	}
	if g := acc.Geolocation; g != nil {
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("Location: %s, %s, %s", g.City, g.Region, g.Country)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
	pdf.SetFont("Courier", "", 9)
	pdf.CellFormat(0, 5, "SHA-256 "+in.Hash, "", 1, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectKey is where the PDF of one record is stored.
func ObjectKey(applicationID, recordID string) string {
	return fmt.Sprintf("%s/%s.pdf", applicationID, recordID)
}

func isHeading(line string) bool {
	return line == strings.ToUpper(line) && strings.IndexFunc(line, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0 && !strings.ContainsAny(line, ":0123456789")
}
