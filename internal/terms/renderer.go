package terms

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/PartnerGate/internal/model"
)

// ContractRenderer produces the exact contract text shown to the signer. The
// output must depend only on persisted data so the contract PDF worker can
// render the same bytes again and check the hash.
type ContractRenderer interface {
	Render(app *model.Application, rec *model.TermsRecord, acc *model.Acceptance) (string, error)
	// HasTemplate reports whether id can be rendered. The empty id is the
	// standard agreement and always exists.
	HasTemplate(id string) bool
}

// Hash returns the hex sha256 of the rendered contract.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DefaultRenderer renders a header block with the parties and the signer's
// contractual data followed by the clauses of the selected template.
type DefaultRenderer struct {
	// Clauses maps template ids to their legal text. The empty id is the
	// standard agreement.
	Clauses map[string]string
}

const standardClauses = `1. Scope. The Partner provides services to the Company as an independent contractor.
2. Independence. Nothing in this agreement creates an employment relationship.
3. Payment. The Company pays the Partner through the payout method recorded above.
4. Confidentiality. The Partner keeps all non-public Company information confidential.
5. Term. Either party may end this agreement with thirty days written notice.`

func (r DefaultRenderer) HasTemplate(id string) bool {
	if id == "" {
		return true
	}
	_, ok := r.Clauses[id]
	return ok
}

func (r DefaultRenderer) Render(app *model.Application, rec *model.TermsRecord, acc *model.Acceptance) (string, error) {
	if acc == nil {
		return "", fmt.Errorf("render contract: acceptance missing")
	}
	templateID := ""
	if rec != nil && rec.TemplateID != nil {
		templateID = *rec.TemplateID
	}
	clauses := standardClauses
	if templateID != "" {
		custom, ok := r.Clauses[templateID]
		if !ok {
			return "", fmt.Errorf("render contract: unknown template %q", templateID)
		}
		clauses = custom
	}

	var b strings.Builder
	b.WriteString("PARTNER SERVICES AGREEMENT\n")
	fmt.Fprintf(&b, "Version: %s\n", acc.ContractVersion)
	if templateID != "" {
		fmt.Fprintf(&b, "Template: %s\n", templateID)
	}
	if app != nil {
		fmt.Fprintf(&b, "Application: %s\n", app.ID)
	}
	b.WriteString("\nPARTNER\n")
	fmt.Fprintf(&b, "Legal name: %s\n", acc.LegalName)
	fmt.Fprintf(&b, "Date of birth: %s\n", acc.DateOfBirth)
	fmt.Fprintf(&b, "Nationality: %s\n", acc.Nationality)
	fmt.Fprintf(&b, "Residence: %s\n", acc.Residence)
	fmt.Fprintf(&b, "Email: %s\n", acc.Email)
	fmt.Fprintf(&b, "Phone: %s\n", acc.Phone)

	a := acc.Address
	b.WriteString("\nADDRESS\n")
	fmt.Fprintf(&b, "%s %s", a.Street, a.Number)
	if a.Complement != "" {
		fmt.Fprintf(&b, ", %s", a.Complement)
	}
	fmt.Fprintf(&b, "\n%s %s, %s, %s\n", a.PostalCode, a.City, a.Region, a.Country)

	biz := acc.Business
	b.WriteString("\nBUSINESS\n")
	fmt.Fprintf(&b, "Type: %s\n", biz.Type)
	if biz.CompanyName != "" {
		fmt.Fprintf(&b, "Company: %s\n", biz.CompanyName)
	}
	fmt.Fprintf(&b, "Tax id: %s\n", biz.TaxID)
	if biz.VATNumber != "" {
		fmt.Fprintf(&b, "VAT: %s\n", biz.VATNumber)
	}

	p := acc.Payout
	b.WriteString("\nPAYOUT\n")
	fmt.Fprintf(&b, "Method: %s\n", p.Method)
	switch p.Method {
	case "bank":
		fmt.Fprintf(&b, "Account: %s (%s)\n", p.IBAN, p.AccountName)
	case "paypal":
		fmt.Fprintf(&b, "PayPal: %s\n", p.PayPalEmail)
	}

	b.WriteString("\nTERMS\n")
	b.WriteString(clauses)
	b.WriteString("\n")
	return b.String(), nil
}
