// Package review models the staff review dialog as one finite-state value.
// Only one pending action can exist at a time, so approve, reject and
// template selection can never both believe they own the same decision.
package review

import (
	"errors"
	"fmt"
	"strings"
)

// State is the dialog state.
type State string

const (
	Idle                     State = "idle"
	ConfirmingApproval       State = "confirming_approval"
	PromptingRejectionReason State = "prompting_rejection_reason"
	ConfirmingRejection      State = "confirming_rejection"
	SelectingTemplate        State = "selecting_template"
)

// Subject is what the dialog acts on.
type Subject string

const (
	// SubjectMeeting is an application awaiting the post-meeting decision.
	SubjectMeeting Subject = "meeting"
	// SubjectApplication is a pending application.
	SubjectApplication Subject = "application"
	// SubjectContract is an accepted terms record awaiting verification.
	SubjectContract Subject = "contract"
)

// Target identifies the entity under review.
type Target struct {
	Subject Subject
	ID      string
}

// ActionKind is the decision the dialog produces.
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionReject  ActionKind = "reject"
)

// Action is emitted once the dialog completes. Template is set only when a
// template was selected; Reissue tells a contract rejection whether a new
// link was requested at all.
type Action struct {
	Kind       ActionKind
	Target     Target
	Reason     string
	TemplateID *string
	Reissue    bool
}

var ErrIllegalEvent = errors.New("illegal dialog event")

// Dialog is the immutable dialog value. Every event returns the next value.
type Dialog struct {
	state  State
	target Target
	reason string
	// intent remembers which decision a template selection completes.
	intent ActionKind
}

// New returns an idle dialog.
func New() Dialog {
	return Dialog{state: Idle}
}

func (d Dialog) State() State { return d.state }
func (d Dialog) Target() Target { return d.target }
func (d Dialog) Reason() string { return d.reason }

// Approve opens the approval confirmation for target.
func (d Dialog) Approve(target Target) (Dialog, error) {
	if d.state != Idle {
		return d, d.illegal("approve")
	}
	if target.Subject == SubjectApplication {
		return d, fmt.Errorf("%w: pending applications are approved by scheduling a meeting", ErrIllegalEvent)
	}
	return Dialog{state: ConfirmingApproval, target: target, intent: ActionApprove}, nil
}

// Reject opens the rejection reason prompt for target.
func (d Dialog) Reject(target Target) (Dialog, error) {
	if d.state != Idle {
		return d, d.illegal("reject")
	}
	return Dialog{state: PromptingRejectionReason, target: target, intent: ActionReject}, nil
}

// SubmitReason records the optional reason and moves to confirmation.
func (d Dialog) SubmitReason(reason string) (Dialog, error) {
	if d.state != PromptingRejectionReason {
		return d, d.illegal("submit reason")
	}
	d.reason = strings.TrimSpace(reason)
	d.state = ConfirmingRejection
	return d, nil
}

// Confirm completes the confirmation step. Decisions that take a contract
// template continue to template selection; the rest yield their action.
func (d Dialog) Confirm() (Dialog, *Action, error) {
	switch d.state {
	case ConfirmingApproval:
		if d.target.Subject == SubjectMeeting {
			d.state = SelectingTemplate
			return d, nil, nil
		}
		return New(), &Action{Kind: ActionApprove, Target: d.target}, nil
	case ConfirmingRejection:
		if d.target.Subject == SubjectContract {
			d.state = SelectingTemplate
			return d, nil, nil
		}
		return New(), &Action{Kind: ActionReject, Target: d.target, Reason: d.reason}, nil
	}
	return d, nil, d.illegal("confirm")
}

// SelectTemplate completes the dialog with the chosen template. A nil id is
// the explicit "no template" choice.
func (d Dialog) SelectTemplate(templateID *string) (Dialog, *Action, error) {
	if d.state != SelectingTemplate {
		return d, nil, d.illegal("select template")
	}
	var tpl *string
	if templateID != nil {
		v := *templateID
		tpl = &v
	}
	return New(), &Action{Kind: d.intent, Target: d.target, Reason: d.reason, TemplateID: tpl, Reissue: true}, nil
}

// Close dismisses the current step. Closing the template selector of a
// contract rejection still completes the rejection, without a new link.
// Closing anything else cancels the dialog.
func (d Dialog) Close() (Dialog, *Action) {
	if d.state == SelectingTemplate && d.intent == ActionReject {
		return New(), &Action{Kind: ActionReject, Target: d.target, Reason: d.reason}
	}
	return New(), nil
}

func (d Dialog) illegal(event string) error {
	return fmt.Errorf("%w: %s while %s", ErrIllegalEvent, event, d.state)
}
