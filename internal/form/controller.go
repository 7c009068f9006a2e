package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/draft"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
)

const defaultCheckTimeout = 3 * time.Second

// Validator runs the synchronous required/format rules of a step. Cross-field
// rules belong to the step that renders the dependent field.
type Validator func(v Values) FieldErrors

// ExistenceCheck is an out-of-band lookup, such as a duplicate email check.
// A timeout or lookup failure counts as "no conflict": the data layer makes
// the authoritative check at submission time.
type ExistenceCheck struct {
	Field   string
	Message string
	Exists  func(ctx context.Context, value string) (bool, error)
}

// Step is one page of a form.
type Step struct {
	Name     string
	Fields   []string
	Validate Validator
	Checks   []ExistenceCheck
	// Artifacts lists file fields that need a live artifact. Metadata alone
	// restored from a draft never satisfies them.
	Artifacts []string
}

// ErrorMapper translates a terminal submission error into the field it
// concerns.
type ErrorMapper func(err error) (field, msg string, ok bool)

type Option func(*Controller)

func WithCheckTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.checkTimeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithErrorMapper(m ErrorMapper) Option {
	return func(c *Controller) { c.mapErr = m }
}

// WithDrafts enables draft persistence through store, debounced by delay.
func WithDrafts(store draft.Store, delay time.Duration) Option {
	return func(c *Controller) {
		c.drafts = store
		c.debounce = delay
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller holds the step definitions of one form. It is stateless apart
// from the keys with a submission in flight and safe for concurrent use.
type Controller struct {
	name         string
	steps        []Step
	checkTimeout time.Duration
	logger       logging.Logger
	mapErr       ErrorMapper
	now          func() time.Time

	drafts    draft.Store
	debounce  time.Duration
	debouncer *draft.Debouncer

	inFlight sync.Map
}

// New builds a controller over steps, numbered from 1.
func New(name string, steps []Step, opts ...Option) *Controller {
	c := &Controller{
		name:         name,
		steps:        steps,
		checkTimeout: defaultCheckTimeout,
		logger:       logging.Nop{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("form", name)
	if c.drafts != nil {
		c.debouncer = draft.NewDebouncer(c.drafts, c.debounce, c.logger)
	}
	return c
}

// Len returns the number of steps.
func (c *Controller) Len() int {
	return len(c.steps)
}

// Steps returns the step definitions.
func (c *Controller) Steps() []Step {
	return c.steps
}

// StepOf returns the step that renders field, or 0.
func (c *Controller) StepOf(field string) int {
	for i, s := range c.steps {
		for _, f := range s.Fields {
			if f == field {
				return i + 1
			}
		}
	}
	return 0
}

// ValidateStep runs the rules of one step, including its existence checks.
func (c *Controller) ValidateStep(ctx context.Context, step int, v Values) Result {
	errs, ok := c.validateLocal(step, v)
	if !ok && errs == nil {
		return Result{Errors: FieldErrors{"step": "unknown step"}}
	}
	for _, chk := range c.steps[step-1].Checks {
		if _, failed := errs[chk.Field]; failed {
			continue
		}
		value := v.Get(chk.Field)
		if value == "" || chk.Exists == nil {
			continue
		}
		if c.exists(ctx, chk, value) {
			errs.Add(chk.Field, chk.Message)
		}
	}
	return Result{OK: len(errs) == 0, Errors: errs}
}

// Advance moves forward only when the current step validates, and never past
// the last step.
func (c *Controller) Advance(ctx context.Context, current int, v Values) (int, Result) {
	res := c.ValidateStep(ctx, current, v)
	if !res.OK {
		return current, res
	}
	if current >= len(c.steps) {
		return len(c.steps), res
	}
	return current + 1, res
}

// GoBack is always allowed above the first step and does not re-validate.
func (c *Controller) GoBack(current int) int {
	if current > 1 {
		return current - 1
	}
	return 1
}

// FindFirstInvalidStep validates every step and returns the first failing
// one in step order, or 0 when all pass. Step 1 runs alone first because it
// carries the existence check; the rest run concurrently.
func (c *Controller) FindFirstInvalidStep(ctx context.Context, v Values) (int, FieldErrors) {
	if len(c.steps) == 0 {
		return 0, nil
	}
	if res := c.ValidateStep(ctx, 1, v); !res.OK {
		return 1, res.Errors
	}
	results := make([]Result, len(c.steps))
	g, gctx := errgroup.WithContext(ctx)
	for i := 2; i <= len(c.steps); i++ {
		step := i
		g.Go(func() error {
			results[step-1] = c.ValidateStep(gctx, step, v)
			return nil
		})
	}
	_ = g.Wait()
	for i := 2; i <= len(c.steps); i++ {
		if !results[i-1].OK {
			return i, results[i-1].Errors
		}
	}
	return 0, nil
}

// InferResumeStep returns the first step a restored snapshot does not yet
// satisfy. Steps needing a live artifact are never satisfied by a snapshot,
// so the user always lands on them to pick the file again. Existence checks
// are skipped; they run again on advance.
func (c *Controller) InferResumeStep(v Values) int {
	for i := 1; i <= len(c.steps); i++ {
		if _, ok := c.validateLocal(i, v); !ok {
			return i
		}
	}
	if len(c.steps) == 0 {
		return 0
	}
	return len(c.steps)
}

// Session returns the session for key. Only keys with a submission in flight
// are tracked, so reading or saving drafts leaves no state behind.
func (c *Controller) Session(key string) *Session {
	return &Session{c: c, key: key}
}

// InFlight returns the number of keys with a submission in progress.
func (c *Controller) InFlight() int {
	n := 0
	c.inFlight.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func (c *Controller) validateLocal(step int, v Values) (FieldErrors, bool) {
	if step < 1 || step > len(c.steps) {
		return nil, false
	}
	s := c.steps[step-1]
	errs := FieldErrors{}
	if s.Validate != nil {
		errs.Merge(s.Validate(v))
	}
	for _, name := range s.Artifacts {
		if _, ok := v.Artifact(name); ok {
			continue
		}
		if _, hasMeta := v.Files[name]; hasMeta {
			errs.Add(name, "please select this file again")
		} else {
			errs.Add(name, "file is required")
		}
	}
	return errs, len(errs) == 0
}

func (c *Controller) exists(ctx context.Context, chk ExistenceCheck, value string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	type outcome struct {
		exists bool
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		found, err := chk.Exists(ctx, value)
		ch <- outcome{exists: found, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			c.logger.Warn(ctx, "existence check failed, permitting", "field", chk.Field, "error", o.err)
			return false
		}
		return o.exists
	case <-ctx.Done():
		c.logger.Warn(ctx, "existence check timed out, permitting", "field", chk.Field)
		return false
	}
}

// locate turns a terminal error into a StepError pointing at the step that
// owns the offending field.
func (c *Controller) locate(err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	if c.mapErr == nil {
		return err
	}
	field, msg, ok := c.mapErr(err)
	if !ok {
		return err
	}
	step := c.StepOf(field)
	if step == 0 {
		return err
	}
	return &StepError{Step: step, Fields: FieldErrors{field: msg}, Err: err}
}

// wrapInvalid builds the gate failure returned before a terminal action.
func wrapInvalid(step int, errs FieldErrors) error {
	return &StepError{Step: step, Fields: errs, Err: common.ErrValidation}
}
