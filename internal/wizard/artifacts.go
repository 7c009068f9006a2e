package wizard

import (
	"errors"

	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/upload"
)

const reselectMsg = "please select this file again"

// ArtifactKinds maps each file field to the upload kind its refs must carry.
var ArtifactKinds = map[string]model.UploadKind{
	FieldCV:            model.UploadCV,
	FieldDocumentFront: model.UploadDocumentFront,
	FieldDocumentBack:  model.UploadDocumentBack,
	FieldSelfie:        model.UploadSelfie,
	FieldSignature:     model.UploadSignature,
}

// artifactRef returns the field's upload ref, or "" when the ref was not
// issued for the field's kind.
func artifactRef(v form.Values, field string) string {
	a, ok := v.Artifact(field)
	if !ok {
		return ""
	}
	if kind, known := ArtifactKinds[field]; known && !kind.Owns(a.Ref) {
		return ""
	}
	return a.Ref
}

// MapMissingUpload sends an artifact the services could not find back to
// the file field that carried it.
func MapMissingUpload(err error) (string, string, bool) {
	var missing *upload.MissingError
	if !errors.As(err, &missing) {
		return "", "", false
	}
	for field, kind := range ArtifactKinds {
		if kind == missing.Kind {
			return field, reselectMsg, true
		}
	}
	return "", "", false
}
