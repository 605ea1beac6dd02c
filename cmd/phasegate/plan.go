package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/signals"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

type planFlags struct {
	name        string
	mode        string
	hints       []string
	specialists []string
	staleness   int
	recovery    string
	overrides   []string
	dryRun      bool
}

var planOpts planFlags

var planCmd = &cobra.Command{
	Use:   "plan <description>",
	Short: "Score a description and create a project",
	Long: `Score a description of work for signal categories and complexity, build
the phase plan and create the project with its first phase in progress.

Archetype hints take the form name:confidence:impact_bonus:min_complexity,
e.g. --hint infrastructure-framework:0.9:1:5. Omitted trailing fields are 0.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := strings.Join(args, " ")
		hints, err := parseHints(planOpts.hints)
		if err != nil {
			return err
		}

		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		if planOpts.dryRun {
			score := svc.Score(description, hints)
			plan, err := svc.Catalog().Plan(phases.Input{
				Signals:    score.Signals,
				Complexity: score.Complexity,
				Available:  planOpts.specialistsOrNil(cmd),
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(out, map[string]any{"score": score, "plan": plan})
			}
			renderScore(out, score)
			fmt.Fprintf(out, "Plan:        %s\n", strings.Join(plan, " → "))
			return nil
		}

		standing, err := project.ParseOverrideFlags(planOpts.overrides)
		if err != nil {
			return err
		}
		res, err := svc.Plan(cmd.Context(), workflow.PlanRequest{
			Name:           planOpts.name,
			Description:    description,
			Mode:           phases.Mode(planOpts.mode),
			ArchetypeHints: hints,
			Available:      planOpts.specialistsOrNil(cmd),
			Lifecycle: &project.LifecycleConfig{
				StalenessThresholdMinutes: planOpts.staleness,
				RecoveryMode:              planOpts.recovery,
				UserOverrides:             standing,
			},
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(out, res)
		}
		renderPlan(out, res)
		return nil
	},
}

// specialistsOrNil distinguishes "flag not given" (every specialist is
// available) from an explicit empty list.
func (o *planFlags) specialistsOrNil(cmd *cobra.Command) []string {
	if !cmd.Flags().Changed("specialists") {
		return nil
	}
	return append([]string{}, o.specialists...)
}

// parseHints decodes name:confidence:impact_bonus:min_complexity strings.
func parseHints(raw []string) (map[string]signals.ArchetypeHint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	hints := make(map[string]signals.ArchetypeHint, len(raw))
	for _, r := range raw {
		parts := strings.Split(r, ":")
		name := strings.TrimSpace(parts[0])
		if name == "" || len(parts) > 4 {
			return nil, fmt.Errorf("invalid hint %q: want name:confidence:impact_bonus:min_complexity", r)
		}
		var h signals.ArchetypeHint
		var err error
		if len(parts) > 1 {
			if h.Confidence, err = strconv.ParseFloat(parts[1], 64); err != nil {
				return nil, fmt.Errorf("invalid hint %q: confidence: %w", r, err)
			}
		}
		if len(parts) > 2 {
			if h.ImpactBonus, err = strconv.Atoi(parts[2]); err != nil {
				return nil, fmt.Errorf("invalid hint %q: impact_bonus: %w", r, err)
			}
		}
		if len(parts) > 3 {
			if h.MinComplexity, err = strconv.Atoi(parts[3]); err != nil {
				return nil, fmt.Errorf("invalid hint %q: min_complexity: %w", r, err)
			}
		}
		hints[name] = h
	}
	return hints, nil
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planOpts.name, "name", "", "project name (default: slug of the description)")
	f.StringVar(&planOpts.mode, "mode", string(phases.ModeDynamic), "plan mode: dynamic or static")
	f.StringArrayVar(&planOpts.hints, "hint", nil, "archetype hint name:confidence:impact_bonus:min_complexity (repeatable)")
	f.StringSliceVar(&planOpts.specialists, "specialists", nil, "specialist roles available to staff phases (default: all)")
	f.IntVar(&planOpts.staleness, "staleness-minutes", 0, "minutes before an in-progress task is stale (default from config)")
	f.StringVar(&planOpts.recovery, "recovery", "", "stale task recovery mode: manual or auto (default from config)")
	f.StringArrayVar(&planOpts.overrides, "override", nil, "standing override applied to every approval (repeatable)")
	f.BoolVar(&planOpts.dryRun, "dry-run", false, "score and plan without creating the project")
	rootCmd.AddCommand(planCmd)
}
