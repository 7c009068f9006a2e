// Package upload validates candidate files while streaming them to a temp
// file and stores the accepted ones in the uploads bucket.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/config"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/model"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
)

// sniffLen matches the header length mimetype inspects by default.
const sniffLen = 3072

// Policy limits the size and detected content type of one upload kind.
type Policy struct {
	MaxSize int64
	Types   []string
}

// Policies derives the per-kind rules from configuration.
func Policies(cfg *config.Config) map[model.UploadKind]Policy {
	doc := Policy{MaxSize: cfg.MaxDocumentSize, Types: cfg.DocumentTypes}
	return map[model.UploadKind]Policy{
		model.UploadCV:            {MaxSize: cfg.MaxCVSize, Types: cfg.CVTypes},
		model.UploadDocumentFront: doc,
		model.UploadDocumentBack:  doc,
		model.UploadSelfie:        doc,
		model.UploadSignature:     {MaxSize: cfg.MaxDocumentSize, Types: cfg.SignatureTypes},
	}
}

// Service stages, checks and stores uploads.
type Service struct {
	store    s3storage.ObjectStore
	policies map[model.UploadKind]Policy
	logger   logging.Logger
	now      func() time.Time
}

func NewService(store s3storage.ObjectStore, policies map[model.UploadKind]Policy, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Service{store: store, policies: policies, logger: logger, now: time.Now}
}

// Policy returns the rules for kind.
func (s *Service) Policy(kind model.UploadKind) (Policy, bool) {
	p, ok := s.policies[kind]
	return p, ok
}

// Upload streams r through the kind's checks and stores it. Rejections wrap
// common.ErrUpload with a human-readable message.
func (s *Service) Upload(ctx context.Context, kind model.UploadKind, filename string, r io.Reader) (*model.FileRecord, error) {
	policy, ok := s.policies[kind]
	if !ok {
		return nil, fmt.Errorf("unknown upload kind %q: %w", kind, common.ErrUpload)
	}
	tmp, err := stage(r, policy.MaxSize)
	if err != nil {
		return nil, err
	}
	defer tmp.cleanup()

	if !slices.Contains(policy.Types, tmp.contentType) {
		return nil, fmt.Errorf("file type %s not allowed, expected %s: %w",
			tmp.contentType, strings.Join(policy.Types, ", "), common.ErrUpload)
	}

	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	key := fmt.Sprintf("%s/%s/%s", kind, uuid.NewString(), name)
	if _, err := tmp.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	if err := s.store.Put(ctx, s3storage.Uploads, key, tmp.f, tmp.size, tmp.contentType); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "upload stored", "kind", kind, "ref", key, "size", tmp.size)
	return &model.FileRecord{
		Ref:         key,
		Kind:        kind,
		Name:        name,
		Size:        tmp.size,
		ContentType: tmp.contentType,
		CreatedAt:   s.now().UTC(),
	}, nil
}

type tempUpload struct {
	f           *os.File
	size        int64
	contentType string
}

func (t *tempUpload) cleanup() {
	t.f.Close()
	os.Remove(t.f.Name())
}

// stage copies r into a temp file, failing as soon as it grows past limit,
// and sniffs the content type from the first bytes.
func stage(r io.Reader, limit int64) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "partnergate-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmp := &tempUpload{f: tmpFile}
	var sniff []byte
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			tmp.size += int64(n)
			if tmp.size > limit {
				tmp.cleanup()
				return nil, fmt.Errorf("file exceeds the %s limit: %w", humanSize(limit), common.ErrUpload)
			}
			if len(sniff) < sniffLen {
				sniff = append(sniff, buf[:min(n, sniffLen-len(sniff))]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				tmp.cleanup()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			tmp.cleanup()
			return nil, fmt.Errorf("read file: %w", readErr)
		}
	}
	if tmp.size == 0 {
		tmp.cleanup()
		return nil, fmt.Errorf("empty file: %w", common.ErrUpload)
	}
	ct := mimetype.Detect(sniff).String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	tmp.contentType = ct
	return tmp, nil
}

func humanSize(n int64) string {
	const mib = 1 << 20
	if n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// MissingError reports an artifact ref that does not point at a stored
// upload of the expected kind. It matches common.ErrValidation.
type MissingError struct {
	Kind model.UploadKind
}

func (e *MissingError) Error() string {
	return strings.ReplaceAll(string(e.Kind), "_", " ") + " was not uploaded"
}

func (e *MissingError) Unwrap() error { return common.ErrValidation }

// Verify checks that ref was issued for kind and, when objects is set, that
// the object is stored.
func Verify(ctx context.Context, objects s3storage.ObjectStore, kind model.UploadKind, ref string) error {
	if !kind.Owns(ref) {
		return &MissingError{Kind: kind}
	}
	if objects == nil {
		return nil
	}
	ok, err := objects.Exists(ctx, s3storage.Uploads, ref)
	if err != nil {
		return fmt.Errorf("check %s upload: %w", kind, err)
	}
	if !ok {
		return &MissingError{Kind: kind}
	}
	return nil
}
