package model

import "time"

// VerificationStatus is the staff review outcome of an accepted terms record.
// The empty value is the legacy null and is treated as pending.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = ""
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Resolved reports whether the status is terminal.
func (v VerificationStatus) Resolved() bool {
	return v == VerificationApproved || v == VerificationRejected
}

// Address is the postal block collected during acceptance.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Region     string `json:"region"`
	Country    string `json:"country"`
}

// BusinessInfo is the business-type / tax block.
type BusinessInfo struct {
	Type        string `json:"type"`
	CompanyName string `json:"companyName,omitempty"`
	TaxID       string `json:"taxId"`
	VATNumber   string `json:"vatNumber,omitempty"`
}

// Payout is the partner's payout preference.
type Payout struct {
	Method      string `json:"method"`
	IBAN        string `json:"iban,omitempty"`
	AccountName string `json:"accountName,omitempty"`
	PayPalEmail string `json:"paypalEmail,omitempty"`
}

// Geolocation is the best-effort snapshot resolved from the signer's IP.
type Geolocation struct {
	City    string  `json:"city,omitempty"`
	Region  string  `json:"region,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}

// Acceptance is everything written onto a terms record when the candidate
// signs. It is written once, in a single update.
type Acceptance struct {
	LegalName   string `json:"legalName"`
	DateOfBirth string `json:"dateOfBirth"`
	Nationality string `json:"nationality"`
	Residence   string `json:"residence"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`

	Address  Address      `json:"address"`
	Business BusinessInfo `json:"business"`
	Payout   Payout       `json:"payout"`

	ContractHash    string       `json:"contractHash"`
	ContractVersion string       `json:"contractVersion"`
	Geolocation     *Geolocation `json:"geolocation,omitempty"`
	IPAddress       string       `json:"ipAddress"`
	UserAgent       string       `json:"userAgent"`

	DocumentFrontRef string `json:"documentFrontRef"`
	DocumentBackRef  string `json:"documentBackRef"`
	SelfieRef        string `json:"selfieRef"`
	SignatureRef     string `json:"signatureRef"`
}

// TermsRecord is the single-use terms link and, once accepted, the legal
// acceptance data for one application.
type TermsRecord struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"applicationId"`
	Token         string     `json:"-"`
	TemplateID    *string    `json:"templateId,omitempty"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	AcceptedAt    *time.Time `json:"acceptedAt,omitempty"`

	Acceptance *Acceptance `json:"acceptance,omitempty"`

	VerificationStatus VerificationStatus `json:"verificationStatus,omitempty"`
	ReviewedBy         string             `json:"reviewedBy,omitempty"`
	ReviewedAt         *time.Time         `json:"reviewedAt,omitempty"`
	RejectionReason    string             `json:"rejectionReason,omitempty"`
	ContractPDFRef     string             `json:"contractPdfRef,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Accepted reports whether the candidate already signed this record.
func (r *TermsRecord) Accepted() bool {
	return r.AcceptedAt != nil
}

// Expired reports whether the link is no longer valid at now. A link is
// valid while now < ExpiresAt, matching the conditional acceptance update.
func (r *TermsRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// EffectiveVerification normalizes the legacy null status: an accepted record
// without a status is pending, an unaccepted one has none.
func (r *TermsRecord) EffectiveVerification() VerificationStatus {
	if !r.Accepted() {
		return VerificationNone
	}
	if r.VerificationStatus == VerificationNone {
		return VerificationPending
	}
	return r.VerificationStatus
}
