// Package model contains the entities shared by the lifecycle services, the
// repositories and the HTTP layer.
package model

import (
	"strings"
	"time"
)

// ApplicationStatus describes where an application sits in the review
// lifecycle. The set is closed; ParseApplicationStatus rejects anything else.
type ApplicationStatus string

const (
	StatusPending             ApplicationStatus = "pending"
	StatusApprovedForMeeting  ApplicationStatus = "approved_for_meeting"
	StatusApprovedForContract ApplicationStatus = "approved_for_contract"
	// StatusApproved is the legacy approval that skipped the meeting stage.
	StatusApproved         ApplicationStatus = "approved"
	StatusContractAccepted ApplicationStatus = "contract_accepted"
	StatusActive           ApplicationStatus = "active"
	StatusRejected         ApplicationStatus = "rejected"
)

// ParseApplicationStatus converts a raw string, returning ok=false for
// unknown values.
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	st := ApplicationStatus(strings.TrimSpace(s))
	switch st {
	case StatusPending, StatusApprovedForMeeting, StatusApprovedForContract,
		StatusApproved, StatusContractAccepted, StatusActive, StatusRejected:
		return st, true
	}
	return "", false
}

// AcceptsTerms reports whether an application in this status may complete a
// terms acceptance. The legacy approved status behaves like
// approved_for_contract.
func (s ApplicationStatus) AcceptsTerms() bool {
	return s == StatusApprovedForContract || s == StatusApproved
}

// Meeting holds the scheduling data captured when staff approve an
// application for a meeting.
type Meeting struct {
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Link        string    `json:"link"`
	ScheduledBy string    `json:"scheduledBy"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// Submission is the payload collected by the application wizard.
type Submission struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	City      string `json:"city"`
	Country   string `json:"country"`

	HasCompany  bool   `json:"hasCompany"`
	CompanyName string `json:"companyName,omitempty"`
	TaxID       string `json:"taxId"`
	VATNumber   string `json:"vatNumber,omitempty"`

	YearsExperience  string   `json:"yearsExperience"`
	AreasOfExpertise []string `json:"areasOfExpertise"`
	InterestedRoles  []string `json:"interestedRoles"`
	LinkedInURL      string   `json:"linkedinUrl,omitempty"`
	CVRef            string   `json:"cvRef"`
	Motivation       string   `json:"motivation"`

	AcceptPrivacy   bool `json:"acceptPrivacy"`
	AcceptMarketing bool `json:"acceptMarketing"`
}

// Application is a candidate's partner-program application.
type Application struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	Status          ApplicationStatus `json:"status"`
	Submission      Submission        `json:"submission"`
	Meeting         *Meeting          `json:"meeting,omitempty"`
	RejectionReason string            `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// FullName joins first and last name for email salutations.
func (a *Application) FullName() string {
	return strings.TrimSpace(a.Submission.FirstName + " " + a.Submission.LastName)
}

// NormalizeEmail lower-cases and trims an address so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
