package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/PartnerGate/internal/application"
	"github.com/dharsanguruparan/PartnerGate/internal/auth"
	"github.com/dharsanguruparan/PartnerGate/internal/config"
	"github.com/dharsanguruparan/PartnerGate/internal/review"
	"github.com/dharsanguruparan/PartnerGate/internal/verification"
)

func issuerFor(cfg *config.Config) *auth.Issuer {
	return auth.NewIssuer(cfg.StaffJWTSecret, cfg.StaffTokenTTL)
}

type reviewOptions struct {
	subject   string
	reviewer  string
	reason    string
	template  string
	noReissue bool
}

func newReviewCmd() *cobra.Command {
	opts := &reviewOptions{}
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Record a staff decision on an application or contract",
	}
	cmd.PersistentFlags().StringVar(&opts.subject, "subject", string(review.SubjectMeeting), "What is reviewed: application, meeting or contract")
	cmd.PersistentFlags().StringVar(&opts.reviewer, "reviewer", os.Getenv("USER"), "Reviewer recorded on the decision")
	cmd.PersistentFlags().StringVar(&opts.template, "template", "", "Contract template for the terms link (empty for none)")

	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve after the meeting, or approve a verified contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, review.ActionApprove, args[0], opts)
		},
	}
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an application or a submitted contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, review.ActionReject, args[0], opts)
		},
	}
	reject.Flags().StringVar(&opts.reason, "reason", "", "Reason shown to the candidate")
	reject.Flags().BoolVar(&opts.noReissue, "no-reissue", false, "Reject a contract without sending a new terms link")

	cmd.AddCommand(approve, reject)
	return cmd
}

func runReview(cmd *cobra.Command, kind review.ActionKind, id string, opts *reviewOptions) error {
	target, err := parseTarget(opts.subject, id)
	if err != nil {
		return err
	}
	act, err := decide(kind, target, opts.reason, optional(opts.template), !opts.noReissue)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	stack, err := buildStack(ctx)
	if err != nil {
		cancel()
		return err
	}
	defer stack.Close()
	stack.Side.Start(ctx)
	defer func() {
		cancel()
		stack.Side.Wait()
	}()

	summary, err := apply(ctx, deciders{apps: stack.Applications, contracts: stack.Verification}, opts.reviewer, act)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}

func parseTarget(subject, id string) (review.Target, error) {
	s := review.Subject(strings.ToLower(strings.TrimSpace(subject)))
	switch s {
	case review.SubjectApplication, review.SubjectMeeting, review.SubjectContract:
	default:
		return review.Target{}, fmt.Errorf("unknown subject %q", subject)
	}
	if strings.TrimSpace(id) == "" {
		return review.Target{}, fmt.Errorf("id is required")
	}
	return review.Target{Subject: s, ID: id}, nil
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// decide walks the review dialog through the events a staff member would
// trigger and returns the resulting action.
func decide(kind review.ActionKind, target review.Target, reason string, templateID *string, reissue bool) (*review.Action, error) {
	d := review.New()
	var err error
	switch kind {
	case review.ActionApprove:
		d, err = d.Approve(target)
	case review.ActionReject:
		if d, err = d.Reject(target); err == nil {
			d, err = d.SubmitReason(reason)
		}
	default:
		return nil, fmt.Errorf("unknown decision %q", kind)
	}
	if err != nil {
		return nil, err
	}

	d, act, err := d.Confirm()
	if err != nil || act != nil {
		return act, err
	}
	if kind == review.ActionReject && !reissue {
		_, act = d.Close()
		return act, nil
	}
	_, act, err = d.SelectTemplate(templateID)
	return act, err
}

type deciders struct {
	apps      *application.Service
	contracts *verification.Service
}

func apply(ctx context.Context, svc deciders, reviewer string, act *review.Action) (string, error) {
	id := act.Target.ID
	switch {
	case act.Target.Subject == review.SubjectContract && act.Kind == review.ActionApprove:
		rec, err := svc.contracts.Approve(ctx, id, reviewer)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contract %s approved, application %s is active", rec.ID, rec.ApplicationID), nil
	case act.Target.Subject == review.SubjectContract:
		var reissue *verification.Reissue
		if act.Reissue {
			reissue = &verification.Reissue{TemplateID: act.TemplateID}
		}
		out, err := svc.contracts.Reject(ctx, id, reviewer, act.Reason, reissue)
		if err != nil {
			return "", err
		}
		if out.Reissued != nil {
			return fmt.Sprintf("contract %s rejected, new terms link %s sent", id, out.Reissued.ID), nil
		}
		return fmt.Sprintf("contract %s rejected", id), nil
	case act.Kind == review.ActionApprove:
		app, err := svc.apps.ApproveAfterMeeting(ctx, id, reviewer, act.TemplateID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("application %s is %s", app.ID, app.Status), nil
	default:
		app, err := svc.apps.Reject(ctx, id, reviewer, act.Reason)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("application %s is %s", app.ID, app.Status), nil
	}
}
