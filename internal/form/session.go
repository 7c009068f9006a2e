package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/draft"
)

// SnapshotVersion is bumped whenever the serialized Values layout changes.
const SnapshotVersion = 1

// Session is one user's pass through a form, identified by its draft key.
// Sessions are cheap views over the controller; the in-flight guard lives on
// the controller so every request for a key shares it.
type Session struct {
	c   *Controller
	key string
}

// Key returns the draft key.
func (s *Session) Key() string {
	return s.key
}

// PersistDraft schedules a debounced write of every serializable field.
// Artifacts are represented by their metadata only.
func (s *Session) PersistDraft(v Values) error {
	if s.c.debouncer == nil {
		return nil
	}
	data, err := json.Marshal(v.Snapshot())
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	s.c.debouncer.Schedule(s.key, draft.Snapshot{
		Version: SnapshotVersion,
		SavedAt: s.c.now().UTC(),
		Data:    data,
	})
	return nil
}

// FlushDraft writes a pending draft immediately.
func (s *Session) FlushDraft(ctx context.Context) error {
	if s.c.debouncer == nil {
		return nil
	}
	return s.c.debouncer.Flush(ctx, s.key)
}

// ResumeDraft returns the stored snapshot, or nil when there is none or it was
// written by an incompatible form version.
func (s *Session) ResumeDraft(ctx context.Context) (*Values, error) {
	if s.c.drafts == nil {
		return nil, nil
	}
	snap, err := s.c.drafts.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if snap.Version != SnapshotVersion {
		s.c.logger.Info(ctx, "discarding incompatible draft", "key", s.key, "version", snap.Version)
		return nil, nil
	}
	v := NewValues()
	if err := json.Unmarshal(snap.Data, &v); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if v.Artifacts == nil {
		v.Artifacts = map[string]Artifact{}
	}
	return &v, nil
}

// ClearDraft drops any pending write and deletes the stored snapshot. A
// write already in progress finishes before the delete.
func (s *Session) ClearDraft(ctx context.Context) error {
	if s.c.debouncer == nil {
		return nil
	}
	return s.c.debouncer.Clear(ctx, s.key)
}

// SubmitOnce runs action unless another call on this session is still in
// flight, in which case it returns ErrInFlight without running it. The flag
// is set before action starts and cleared when it settles.
func (s *Session) SubmitOnce(ctx context.Context, action func(ctx context.Context) error) error {
	if _, busy := s.c.inFlight.LoadOrStore(s.key, struct{}{}); busy {
		return ErrInFlight
	}
	defer s.c.inFlight.Delete(s.key)
	return action(ctx)
}

// Submit is the terminal submission: it re-validates every step, runs action
// at most once, maps a failure to the step owning the offending field and
// clears the draft on success.
func (s *Session) Submit(ctx context.Context, v Values, action func(ctx context.Context) error) error {
	return s.SubmitOnce(ctx, func(ctx context.Context) error {
		if step, errs := s.c.FindFirstInvalidStep(ctx, v); step > 0 {
			return wrapInvalid(step, errs)
		}
		if err := action(ctx); err != nil {
			return s.c.locate(err)
		}
		if err := s.ClearDraft(ctx); err != nil {
			s.c.logger.Warn(ctx, "clear draft failed", "key", s.key, "error", err)
		}
		return nil
	})
}
