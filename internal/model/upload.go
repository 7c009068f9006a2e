package model

import (
	"strings"
	"time"
)

// UploadKind selects the validation rules and bucket prefix of an upload.
type UploadKind string

const (
	UploadCV            UploadKind = "cv"
	UploadDocumentFront UploadKind = "document_front"
	UploadDocumentBack  UploadKind = "document_back"
	UploadSelfie        UploadKind = "selfie"
	UploadSignature     UploadKind = "signature"
	UploadContractPDF   UploadKind = "contract_pdf"
)

// Owns reports whether ref is a key the upload service hands out for k:
// "<kind>/<id>/<name>".
func (k UploadKind) Owns(ref string) bool {
	rest, ok := strings.CutPrefix(ref, string(k)+"/")
	if !ok {
		return false
	}
	id, name, ok := strings.Cut(rest, "/")
	return ok && id != "" && name != "" && !strings.Contains(name, "/") && name != ".."
}

// FileRecord describes a stored object. Ref is the stable object key handed
// back to the client and later persisted on entities.
type FileRecord struct {
	Ref         string     `json:"ref"`
	Kind        UploadKind `json:"kind"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
	CreatedAt   time.Time  `json:"createdAt"`
}
