package wizard

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/upload"
)

func never(context.Context, string) (bool, error) { return false, nil }

func applicationValues() form.Values {
	v := form.NewValues()
	v.Set(FieldFirstName, "Ana")
	v.Set(FieldLastName, "Silva")
	v.Set(FieldEmail, " Ana@Example.com ")
	v.Set(FieldPhone, "+351912345678")
	v.Set(FieldCity, "Lisbon")
	v.Set(FieldCountry, "PT")
	v.Set(FieldHasCompany, "no")
	v.Set(FieldTaxID, "123456789")
	v.Set(FieldYearsExperience, "3-5")
	v.SetList(FieldExpertise, []string{"sales", " "})
	v.SetList(FieldRoles, []string{"ambassador"})
	v.Attach(FieldCV, form.Artifact{Meta: form.FileMeta{Name: "cv.pdf", Size: 2048, Type: "application/pdf"}, Ref: "cv/abc/cv.pdf"})
	v.Set(FieldMotivation, strings.Repeat("I want to grow the partner network. ", 3))
	v.Set(FieldAcceptPrivacy, "true")
	return v
}

func TestApplicationForm_CompleteValuesPass(t *testing.T) {
	c := NewApplicationForm(never)
	step, errs := c.FindFirstInvalidStep(context.Background(), applicationValues())
	assert.Equal(t, 0, step, errs)
}

func TestApplicationForm_StepRules(t *testing.T) {
	c := NewApplicationForm(never)
	ctx := context.Background()

	v := applicationValues()
	v.Set(FieldEmail, "not-an-email")
	res := c.ValidateStep(ctx, 1, v)
	require.False(t, res.OK)
	assert.Equal(t, "enter a valid email address", res.Errors[FieldEmail])

	v = applicationValues()
	v.Set(FieldHasCompany, "yes")
	res = c.ValidateStep(ctx, 2, v)
	require.False(t, res.OK)
	assert.Contains(t, res.Errors, FieldCompanyName)
	assert.Contains(t, res.Errors, FieldVATNumber)

	v = applicationValues()
	v.SetList(FieldRoles, nil)
	v.Set(FieldLinkedIn, "linkedin")
	res = c.ValidateStep(ctx, 3, v)
	require.False(t, res.OK)
	assert.Contains(t, res.Errors, FieldRoles)
	assert.Contains(t, res.Errors, FieldLinkedIn)

	v = applicationValues()
	v.Set(FieldAcceptPrivacy, "false")
	res = c.ValidateStep(ctx, 4, v)
	require.False(t, res.OK)
	assert.Contains(t, res.Errors, FieldAcceptPrivacy)
}

func TestApplicationForm_DuplicateEmailOnStepOne(t *testing.T) {
	var seen string
	c := NewApplicationForm(func(_ context.Context, email string) (bool, error) {
		seen = email
		return true, nil
	})
	res := c.ValidateStep(context.Background(), 1, applicationValues())
	require.False(t, res.OK)
	assert.Equal(t, emailTakenMsg, res.Errors[FieldEmail])
	assert.Equal(t, "Ana@Example.com", seen)
}

func TestApplicationForm_ConflictRedirectsToEmailStep(t *testing.T) {
	c := NewApplicationForm(never)
	err := c.Session(ApplicationDraftKey).Submit(context.Background(), applicationValues(), func(context.Context) error {
		return fmt.Errorf("create application: %w", common.ErrConflict)
	})
	var se *form.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Step)
	assert.Equal(t, emailTakenMsg, se.Fields[FieldEmail])
}

func TestApplicationForm_ResumeStopsAtCV(t *testing.T) {
	c := NewApplicationForm(never)
	restored := applicationValues().Snapshot()
	assert.Equal(t, 3, c.InferResumeStep(restored))
}

func TestSubmissionFrom(t *testing.T) {
	v := applicationValues()
	v.Set(FieldCompanyName, "ignored")
	sub := SubmissionFrom(v)

	assert.Equal(t, "ana@example.com", sub.Email)
	assert.False(t, sub.HasCompany)
	assert.Empty(t, sub.CompanyName, "company fields only apply to companies")
	assert.Equal(t, []string{"sales"}, sub.AreasOfExpertise)
	assert.Equal(t, "cv/abc/cv.pdf", sub.CVRef)
	assert.True(t, sub.AcceptPrivacy)
	assert.False(t, sub.AcceptMarketing)
}

func refFor(field string) string {
	return string(ArtifactKinds[field]) + "/1/" + field + ".png"
}

func termsValues() form.Values {
	v := form.NewValues()
	v.Set(FieldLegalName, "Ana Maria Silva")
	v.Set(FieldDateOfBirth, "1990-04-12")
	v.Set(FieldNationality, "Portuguese")
	v.Set(FieldResidence, "Portugal")
	v.Set(FieldContactMail, "ana@example.com")
	v.Set(FieldContactTel, "+351912345678")
	v.Set(FieldStreet, "Rua Augusta")
	v.Set(FieldNumber, "10")
	v.Set(FieldPostalCode, "1100-053")
	v.Set(FieldAddrCity, "Lisbon")
	v.Set(FieldRegion, "Lisboa")
	v.Set(FieldAddrCtry, "PT")
	v.Set(FieldBusinessType, "individual")
	v.Set(FieldBizTaxID, "123456789")
	v.Set(FieldPayoutMethod, "bank")
	v.Set(FieldIBAN, "PT50 0002 0123 1234 5678 9015 4")
	v.Set(FieldAccountName, "Ana Silva")
	for _, f := range []string{FieldDocumentFront, FieldDocumentBack, FieldSelfie, FieldSignature} {
		v.Attach(f, form.Artifact{Meta: form.FileMeta{Name: f + ".png", Size: 100, Type: "image/png"}, Ref: refFor(f)})
	}
	v.Set(FieldSignatureConfirmed, "true")
	return v
}

func TestTermsForm_CompleteValuesPass(t *testing.T) {
	c := NewTermsForm()
	v := termsValues()
	v.Set(FieldIBAN, "PT50000201231234567890154")
	step, errs := c.FindFirstInvalidStep(context.Background(), v)
	assert.Equal(t, 0, step, errs)
}

func TestTermsForm_PayoutRules(t *testing.T) {
	c := NewTermsForm()
	ctx := context.Background()

	v := termsValues()
	v.Set(FieldIBAN, "")
	res := c.ValidateStep(ctx, 4, v)
	require.False(t, res.OK)
	assert.Contains(t, res.Errors, FieldIBAN)

	v.Set(FieldPayoutMethod, "paypal")
	res = c.ValidateStep(ctx, 4, v)
	require.False(t, res.OK)
	assert.Contains(t, res.Errors, FieldPayPalEmail)
	assert.NotContains(t, res.Errors, FieldIBAN)

	v.Set(FieldPayPalEmail, "pay@example.com")
	assert.True(t, c.ValidateStep(ctx, 4, v).OK)
}

func TestTermsForm_SignatureMustBeConfirmed(t *testing.T) {
	c := NewTermsForm()
	v := termsValues()
	v.Set(FieldSignatureConfirmed, "")
	res := c.ValidateStep(context.Background(), 6, v)
	require.False(t, res.OK)
	assert.Contains(t, res.Errors, FieldSignatureConfirmed)
}

func TestTermsForm_ResumeStopsAtDocuments(t *testing.T) {
	c := NewTermsForm()
	v := termsValues()
	v.Set(FieldIBAN, "PT50000201231234567890154")
	assert.Equal(t, 5, c.InferResumeStep(v.Snapshot()))
}

func TestAcceptanceFrom(t *testing.T) {
	v := termsValues()
	v.Set(FieldBizCompany, "ignored")
	v.Set(FieldPayPalEmail, "ignored@example.com")
	req := AcceptanceFrom(v)

	assert.True(t, req.SignatureConfirmed)
	acc := req.Acceptance
	assert.Equal(t, "PT50000201231234567890154", acc.Payout.IBAN)
	assert.Empty(t, acc.Payout.PayPalEmail)
	assert.Empty(t, acc.Business.CompanyName)
	assert.Equal(t, "document_front/1/documentFront.png", acc.DocumentFrontRef)
	assert.Equal(t, "signature/1/signature.png", acc.SignatureRef)
	assert.Equal(t, "Lisbon", acc.Address.City)
}

func TestArtifactRefs_MustMatchFieldKind(t *testing.T) {
	v := termsValues()
	v.Attach(FieldSelfie, form.Artifact{Meta: form.FileMeta{Name: "front.png"}, Ref: refFor(FieldDocumentFront)})
	v.Attach(FieldDocumentBack, form.Artifact{Meta: form.FileMeta{Name: "back.png"}, Ref: "uploads/anything"})
	acc := AcceptanceFrom(v).Acceptance
	assert.Empty(t, acc.SelfieRef)
	assert.Empty(t, acc.DocumentBackRef)
	assert.Equal(t, refFor(FieldDocumentFront), acc.DocumentFrontRef)

	a := applicationValues()
	a.Attach(FieldCV, form.Artifact{Meta: form.FileMeta{Name: "cv.pdf"}, Ref: "selfie/abc/cv.pdf"})
	assert.Empty(t, SubmissionFrom(a).CVRef)
}

func TestMissingUploadRedirectsToFileStep(t *testing.T) {
	c := NewTermsForm()
	v := termsValues()
	v.Set(FieldIBAN, "PT50000201231234567890154")
	err := c.Session("terms:tok").Submit(context.Background(), v, func(context.Context) error {
		return fmt.Errorf("accept terms: %w", &upload.MissingError{Kind: model.UploadSelfie})
	})
	var se *form.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 5, se.Step)
	assert.Equal(t, reselectMsg, se.Fields[FieldSelfie])
	assert.ErrorIs(t, err, common.ErrValidation)

	a := NewApplicationForm(never)
	err = a.Session(ApplicationDraftKey).Submit(context.Background(), applicationValues(), func(context.Context) error {
		return &upload.MissingError{Kind: model.UploadCV}
	})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Step)
	assert.Equal(t, reselectMsg, se.Fields[FieldCV])
}
