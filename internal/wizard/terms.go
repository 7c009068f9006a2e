package wizard

import (
	"strings"

	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/terms"
)

// Terms wizard fields.
const (
	FieldLegalName   = "legalName"
	FieldDateOfBirth = "dateOfBirth"
	FieldNationality = "nationality"
	FieldResidence   = "residence"
	FieldContactMail = "contactEmail"
	FieldContactTel  = "contactPhone"

	FieldStreet     = "street"
	FieldNumber     = "number"
	FieldComplement = "complement"
	FieldPostalCode = "postalCode"
	FieldAddrCity   = "addressCity"
	FieldRegion     = "region"
	FieldAddrCtry   = "addressCountry"

	FieldBusinessType = "businessType"
	FieldBizCompany   = "businessCompanyName"
	FieldBizTaxID     = "businessTaxId"
	FieldBizVAT       = "businessVatNumber"

	FieldPayoutMethod = "payoutMethod"
	FieldIBAN         = "iban"
	FieldAccountName  = "accountName"
	FieldPayPalEmail  = "paypalEmail"

	FieldDocumentFront = "documentFront"
	FieldDocumentBack  = "documentBack"
	FieldSelfie        = "selfie"
	FieldSignature     = "signature"

	FieldSignatureConfirmed = "signatureConfirmed"
)

// TermsSteps returns the six steps of the terms acceptance wizard.
func TermsSteps() []form.Step {
	return []form.Step{
		{
			Name:   "identity",
			Fields: []string{FieldLegalName, FieldDateOfBirth, FieldNationality, FieldResidence, FieldContactMail, FieldContactTel},
			Validate: rules([]rule{
				req(FieldLegalName), req(FieldDateOfBirth), req(FieldNationality), req(FieldResidence), req(FieldContactMail), req(FieldContactTel),
				format(FieldDateOfBirth, "datetime=2006-01-02", "use the YYYY-MM-DD format"),
				format(FieldContactMail, "email", "enter a valid email address"),
				format(FieldContactTel, "min=6,max=20", "enter a valid phone number"),
			}),
		},
		{
			Name:   "address",
			Fields: []string{FieldStreet, FieldNumber, FieldComplement, FieldPostalCode, FieldAddrCity, FieldRegion, FieldAddrCtry},
			Validate: rules([]rule{
				req(FieldStreet), req(FieldNumber), req(FieldPostalCode), req(FieldAddrCity), req(FieldRegion), req(FieldAddrCtry),
			}),
		},
		{
			Name:   "business",
			Fields: []string{FieldBusinessType, FieldBizCompany, FieldBizTaxID, FieldBizVAT},
			Validate: rules(
				[]rule{
					req(FieldBusinessType), req(FieldBizTaxID),
					format(FieldBusinessType, "oneof=individual company", "choose individual or company"),
				},
				when(fieldIs(FieldBusinessType, "company"), req(FieldBizCompany), req(FieldBizVAT)),
			),
		},
		{
			Name:   "payout",
			Fields: []string{FieldPayoutMethod, FieldIBAN, FieldAccountName, FieldPayPalEmail},
			Validate: rules(
				[]rule{req(FieldPayoutMethod), format(FieldPayoutMethod, "oneof=bank paypal", "choose bank or paypal")},
				when(fieldIs(FieldPayoutMethod, "bank"), req(FieldIBAN), req(FieldAccountName),
					format(FieldIBAN, "alphanum,min=15,max=34", "enter a valid IBAN")),
				when(fieldIs(FieldPayoutMethod, "paypal"), req(FieldPayPalEmail),
					format(FieldPayPalEmail, "email", "enter a valid email address")),
			),
		},
		{
			Name:      "documents",
			Fields:    []string{FieldDocumentFront, FieldDocumentBack, FieldSelfie},
			Artifacts: []string{FieldDocumentFront, FieldDocumentBack, FieldSelfie},
		},
		{
			Name:      "signature",
			Fields:    []string{FieldSignature, FieldSignatureConfirmed},
			Artifacts: []string{FieldSignature},
			Validate:  mustAccept(FieldSignatureConfirmed, "confirm your signature before accepting"),
		},
	}
}

// NewTermsForm builds the terms acceptance wizard controller.
func NewTermsForm(opts ...form.Option) *form.Controller {
	opts = append([]form.Option{form.WithErrorMapper(MapMissingUpload)}, opts...)
	return form.New("terms", TermsSteps(), opts...)
}

// AcceptanceFrom converts wizard values into an acceptance request. Contract
// hash, geolocation and client metadata are filled in by the terms service.
func AcceptanceFrom(v form.Values) terms.AcceptRequest {
	acc := model.Acceptance{
		LegalName:   v.Get(FieldLegalName),
		DateOfBirth: v.Get(FieldDateOfBirth),
		Nationality: v.Get(FieldNationality),
		Residence:   v.Get(FieldResidence),
		Email:       model.NormalizeEmail(v.Get(FieldContactMail)),
		Phone:       v.Get(FieldContactTel),
		Address: model.Address{
			Street:     v.Get(FieldStreet),
			Number:     v.Get(FieldNumber),
			Complement: v.Get(FieldComplement),
			PostalCode: v.Get(FieldPostalCode),
			City:       v.Get(FieldAddrCity),
			Region:     v.Get(FieldRegion),
			Country:    v.Get(FieldAddrCtry),
		},
		Business: model.BusinessInfo{
			Type:  strings.ToLower(v.Get(FieldBusinessType)),
			TaxID: v.Get(FieldBizTaxID),
		},
		Payout: model.Payout{Method: strings.ToLower(v.Get(FieldPayoutMethod))},
	}
	if acc.Business.Type == "company" {
		acc.Business.CompanyName = v.Get(FieldBizCompany)
		acc.Business.VATNumber = v.Get(FieldBizVAT)
	}
	switch acc.Payout.Method {
	case "bank":
		acc.Payout.IBAN = strings.ToUpper(strings.ReplaceAll(v.Get(FieldIBAN), " ", ""))
		acc.Payout.AccountName = v.Get(FieldAccountName)
	case "paypal":
		acc.Payout.PayPalEmail = model.NormalizeEmail(v.Get(FieldPayPalEmail))
	}
	acc.DocumentFrontRef = artifactRef(v, FieldDocumentFront)
	acc.DocumentBackRef = artifactRef(v, FieldDocumentBack)
	acc.SelfieRef = artifactRef(v, FieldSelfie)
	acc.SignatureRef = artifactRef(v, FieldSignature)

	return terms.AcceptRequest{Acceptance: acc, SignatureConfirmed: truthy(v, FieldSignatureConfirmed)}
}
