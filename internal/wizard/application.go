package wizard

import (
	"context"
	"errors"
	"strings"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
)

// ApplicationDraftKey is the fixed draft key of the application wizard.
const ApplicationDraftKey = "application-wizard"

const emailTakenMsg = "an application with this email already exists"

// Application wizard fields.
const (
	FieldFirstName       = "firstName"
	FieldLastName        = "lastName"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldCity            = "city"
	FieldCountry         = "country"
	FieldHasCompany      = "hasCompany"
	FieldCompanyName     = "companyName"
	FieldTaxID           = "taxId"
	FieldVATNumber       = "vatNumber"
	FieldYearsExperience = "yearsExperience"
	FieldExpertise       = "areasOfExpertise"
	FieldRoles           = "interestedRoles"
	FieldLinkedIn        = "linkedinUrl"
	FieldCV              = "cv"
	FieldMotivation      = "motivation"
	FieldAcceptPrivacy   = "acceptPrivacy"
	FieldAcceptMarketing = "acceptMarketing"
)

// ApplicationSteps returns the four steps of the application wizard.
// emailTaken backs the duplicate email check of step 1.
func ApplicationSteps(emailTaken func(ctx context.Context, email string) (bool, error)) []form.Step {
	return []form.Step{
		{
			Name:   "personal",
			Fields: []string{FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldCity, FieldCountry},
			Validate: rules([]rule{
				req(FieldFirstName), req(FieldLastName), req(FieldEmail), req(FieldPhone), req(FieldCity), req(FieldCountry),
				format(FieldEmail, "email", "enter a valid email address"),
				format(FieldPhone, "min=6,max=20", "enter a valid phone number"),
			}),
			Checks: []form.ExistenceCheck{{Field: FieldEmail, Message: emailTakenMsg, Exists: emailTaken}},
		},
		{
			Name:   "business",
			Fields: []string{FieldHasCompany, FieldCompanyName, FieldTaxID, FieldVATNumber},
			Validate: rules(
				[]rule{req(FieldHasCompany), req(FieldTaxID), format(FieldHasCompany, "oneof=yes no", "choose yes or no")},
				when(fieldIs(FieldHasCompany, "yes"), req(FieldCompanyName), req(FieldVATNumber)),
			),
		},
		{
			Name:      "professional",
			Fields:    []string{FieldYearsExperience, FieldExpertise, FieldRoles, FieldLinkedIn, FieldCV},
			Artifacts: []string{FieldCV},
			Validate: all(
				rules([]rule{
					req(FieldYearsExperience),
					format(FieldYearsExperience, "oneof=0-2 3-5 6-10 10+", "choose a range"),
					format(FieldLinkedIn, "url", "enter a valid URL"),
				}),
				nonEmptyLists(FieldExpertise, FieldRoles),
			),
		},
		{
			Name:   "motivation",
			Fields: []string{FieldMotivation, FieldAcceptPrivacy, FieldAcceptMarketing},
			Validate: all(
				rules([]rule{req(FieldMotivation), format(FieldMotivation, "min=50", "tell us a bit more (at least 50 characters)")}),
				mustAccept(FieldAcceptPrivacy, "you must accept the privacy policy"),
			),
		},
	}
}

// MapApplicationError sends a duplicate email conflict back to the email
// field on step 1 and a missing CV upload back to the CV field.
func MapApplicationError(err error) (string, string, bool) {
	if errors.Is(err, common.ErrConflict) {
		return FieldEmail, emailTakenMsg, true
	}
	return MapMissingUpload(err)
}

// NewApplicationForm builds the application wizard controller.
func NewApplicationForm(emailTaken func(ctx context.Context, email string) (bool, error), opts ...form.Option) *form.Controller {
	opts = append([]form.Option{form.WithErrorMapper(MapApplicationError)}, opts...)
	return form.New("application", ApplicationSteps(emailTaken), opts...)
}

// SubmissionFrom converts wizard values into the stored submission.
func SubmissionFrom(v form.Values) model.Submission {
	sub := model.Submission{
		FirstName:        v.Get(FieldFirstName),
		LastName:         v.Get(FieldLastName),
		Email:            model.NormalizeEmail(v.Get(FieldEmail)),
		Phone:            v.Get(FieldPhone),
		City:             v.Get(FieldCity),
		Country:          v.Get(FieldCountry),
		HasCompany:       strings.EqualFold(v.Get(FieldHasCompany), "yes"),
		TaxID:            v.Get(FieldTaxID),
		YearsExperience:  v.Get(FieldYearsExperience),
		AreasOfExpertise: compact(v.List(FieldExpertise)),
		InterestedRoles:  compact(v.List(FieldRoles)),
		LinkedInURL:      v.Get(FieldLinkedIn),
		Motivation:       v.Get(FieldMotivation),
		AcceptPrivacy:    truthy(v, FieldAcceptPrivacy),
		AcceptMarketing:  truthy(v, FieldAcceptMarketing),
	}
	if sub.HasCompany {
		sub.CompanyName = v.Get(FieldCompanyName)
		sub.VATNumber = v.Get(FieldVATNumber)
	}
	sub.CVRef = artifactRef(v, FieldCV)
	return sub
}

func compact(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
