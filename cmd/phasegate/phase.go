package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// errApprovalBlocked makes a blocked approval exit non-zero after the
// violations have been printed.
var errApprovalBlocked = errors.New("approval blocked")

var phaseFlag string

// target resolves the project and phase a transition command refers to.
func target(ctx context.Context, svc *workflow.Service, args []string) (string, string, error) {
	name, err := svc.Resolve(ctx, projectArg(args))
	if err != nil {
		return "", "", err
	}
	if phaseFlag != "" {
		return name, phaseFlag, nil
	}
	snap, err := svc.Status(ctx, name)
	if err != nil {
		return "", "", err
	}
	if snap.Project.CurrentPhase == phases.Done {
		return "", "", fmt.Errorf("project %q is complete; there is no current phase", name)
	}
	return name, snap.Project.CurrentPhase, nil
}

var submitCmd = &cobra.Command{
	Use:   "submit [project]",
	Short: "Mark the current phase as ready for approval",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		name, phase, err := target(cmd.Context(), svc, args)
		if err != nil {
			return err
		}
		res, err := svc.Submit(cmd.Context(), name, phase)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "%s/%s is awaiting approval\n", name, phase)
		renderValidation(out, res.Preview)
		return nil
	},
}

var signoffOpts struct {
	tier       string
	result     string
	conditions []string
}

var signoffCmd = &cobra.Command{
	Use:   "signoff [project]",
	Short: "Record a reviewer's verdict on the current phase",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		name, phase, err := target(cmd.Context(), svc, args)
		if err != nil {
			return err
		}
		so := project.Signoff{
			ReviewerTier: signoffOpts.tier,
			Result:       project.SignoffResult(signoffOpts.result),
			Conditions:   signoffOpts.conditions,
		}
		if _, err := svc.Signoff(cmd.Context(), name, phase, so); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sign-off recorded on %s/%s: %s by %s\n", name, phase, so.Result, so.ReviewerTier)
		return nil
	},
}

var approveOpts struct {
	overrides []string
	ack       bool
	findings  []string
}

var approveCmd = &cobra.Command{
	Use:   "approve [project]",
	Short: "Approve the current phase and advance the project",
	Long: `Approve a phase that is awaiting approval. The task lifecycle checks are
re-run against a fresh read of the task board; any violation blocks the
approval and nothing is written.

Overrides take the form name or name=value, e.g. --override skip_signoff
or --override min_tasks_per_phase=1. They are recorded on the phase.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		name, phase, err := target(cmd.Context(), svc, args)
		if err != nil {
			return err
		}
		res, err := svc.Approve(cmd.Context(), name, phase, workflow.ApproveOptions{
			OverrideFlags: approveOpts.overrides,
			Acknowledge:   approveOpts.ack,
			Findings:      approveOpts.findings,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			renderApproval(out, res)
		}
		if !res.OK {
			return errApprovalBlocked
		}
		return nil
	},
}

var rejectReason string

var rejectCmd = &cobra.Command{
	Use:   "reject [project]",
	Short: "Reject the phase awaiting approval",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		name, phase, err := target(cmd.Context(), svc, args)
		if err != nil {
			return err
		}
		if _, err := svc.Reject(cmd.Context(), name, phase, rejectReason); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s rejected: %s\n", name, phase, rejectReason)
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen [project]",
	Short: "Resume work on a rejected phase",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		name, phase, err := target(cmd.Context(), svc, args)
		if err != nil {
			return err
		}
		if _, err := svc.Reopen(cmd.Context(), name, phase); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s is back in progress\n", name, phase)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, signoffCmd, approveCmd, rejectCmd, reopenCmd} {
		c.Flags().StringVar(&phaseFlag, "phase", "", "phase name (default: the current phase)")
	}

	signoffCmd.Flags().StringVar(&signoffOpts.tier, "tier", "", "reviewer tier, e.g. peer, lead, security")
	signoffCmd.Flags().StringVar(&signoffOpts.result, "result", string(project.SignoffApproved), "approved, conditional or rejected")
	signoffCmd.Flags().StringArrayVar(&signoffOpts.conditions, "condition", nil, "condition of a conditional sign-off (repeatable)")
	_ = signoffCmd.MarkFlagRequired("tier")

	approveCmd.Flags().StringArrayVar(&approveOpts.overrides, "override", nil, "override name or name=value (repeatable)")
	approveCmd.Flags().BoolVar(&approveOpts.ack, "ack", false, "acknowledge the conditions of a conditional sign-off")
	approveCmd.Flags().StringArrayVar(&approveOpts.findings, "findings", nil, "finding gathered during the phase (repeatable)")

	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the phase is rejected")
	_ = rejectCmd.MarkFlagRequired("reason")

	rootCmd.AddCommand(submitCmd, signoffCmd, approveCmd, rejectCmd, reopenCmd)
}
