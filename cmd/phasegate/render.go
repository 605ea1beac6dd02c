package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/HendryAvila/phasegate/internal/approval"
	"github.com/HendryAvila/phasegate/internal/lifecycle"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/signals"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

var (
	header = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func none(ss []string) string {
	if len(ss) == 0 {
		return gray("none")
	}
	return strings.Join(ss, ", ")
}

func renderScore(w io.Writer, s signals.Result) {
	fmt.Fprintf(w, "Signals:     %s\n", none(s.Signals))
	fmt.Fprintf(w, "Complexity:  %d/%d (impact %d, reversibility %d, novelty %d)\n",
		s.Complexity, signals.MaxComplexity,
		s.Dimensions.Impact, s.Dimensions.Reversibility, s.Dimensions.Novelty)
	if len(s.AppliedArchetypes) > 0 {
		fmt.Fprintf(w, "Archetypes:  %s\n", strings.Join(s.AppliedArchetypes, ", "))
	}
	if s.NeedsClarification {
		fmt.Fprintf(w, "%s\n", yellow("Low confidence: no signal categories matched; clarify the scope first."))
	}
}

func renderPlan(w io.Writer, res *workflow.PlanResult) {
	p := res.Project
	fmt.Fprintf(w, "\n%s\n\n", header("=== Project "+p.Name+" ==="))
	renderScore(w, res.Score)
	fmt.Fprintf(w, "Mode:        %s\n", p.PhasePlanMode)
	fmt.Fprintf(w, "Plan:        %s\n", strings.Join(p.PhasePlan, " → "))
	fmt.Fprintf(w, "Specialists: %s\n", none(res.Specialists))
	fmt.Fprintf(w, "\nPhase %s is in progress.\n", green(p.CurrentPhase))
}

func phaseStatus(s project.PhaseStatus) string {
	switch s {
	case project.PhaseApproved:
		return green("● " + string(s))
	case project.PhaseInProgress, project.PhaseAwaitingApproval:
		return yellow("◐ " + string(s))
	case project.PhaseRejected:
		return red("✗ " + string(s))
	}
	return gray("○ " + string(s))
}

func renderStatus(w io.Writer, snap *workflow.Snapshot) {
	p := snap.Project
	fmt.Fprintf(w, "\n%s\n\n", header("=== Project "+p.Name+" ==="))
	fmt.Fprintf(w, "Description: %s\n", p.Description)
	fmt.Fprintf(w, "Status:      %s\n", p.Status)
	fmt.Fprintf(w, "Mode:        %s\n", p.PhasePlanMode)
	fmt.Fprintf(w, "Complexity:  %d\n", p.ComplexityScore)
	fmt.Fprintf(w, "Signals:     %s\n", none(p.SignalsDetected))
	fmt.Fprintf(w, "Specialists: %s\n\n", none(snap.Specialists))

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Phase", "Status", "Sign-off", "Tasks"})
	for i, name := range p.PhasePlan {
		rec := p.Phase(name)
		if rec == nil {
			continue
		}
		signoff, stats := "", ""
		if rec.Signoff != nil {
			signoff = fmt.Sprintf("%s (%s)", rec.Signoff.Result, rec.Signoff.ReviewerTier)
		}
		if rec.TaskStats != nil {
			stats = fmt.Sprintf("%d/%d", rec.TaskStats.Completed, rec.TaskStats.Total)
		}
		marker := name
		if name == p.CurrentPhase {
			marker = "▶ " + name
		}
		tw.AppendRow(table.Row{i + 1, marker, phaseStatus(rec.Status), signoff, stats})
	}
	tw.Render()

	if !snap.BoardDetected {
		fmt.Fprintf(w, "\n%s\n", gray("No task board detected: every phase sees an empty task list."))
	}
	if len(snap.CurrentTasks) > 0 {
		fmt.Fprintf(w, "\n%s\n", header("Tasks in "+p.CurrentPhase))
		tt := table.NewWriter()
		tt.SetOutputMirror(w)
		tt.AppendHeader(table.Row{"ID", "Subject", "Status", "Updated"})
		for _, t := range snap.CurrentTasks {
			tt.AppendRow(table.Row{t.ID, t.Subject, t.Status, t.UpdatedAt.Format("2006-01-02 15:04")})
		}
		tt.Render()
	}
	if pv := snap.Preview; pv != nil {
		fmt.Fprintf(w, "\n%s\n", header("Approval preview"))
		renderValidation(w, *pv)
	}
}

func renderViolations(w io.Writer, vs []lifecycle.Violation, paint func(...any) string) {
	for _, v := range vs {
		fmt.Fprintf(w, "  %s %s\n", paint("✗ "+string(v.Check)+":"), v.Message)
		fmt.Fprintf(w, "      override: %s\n", v.Override)
		if v.Remedy != "" {
			fmt.Fprintf(w, "      remedy:   %s\n", v.Remedy)
		}
		if len(v.TaskIDs) > 0 {
			fmt.Fprintf(w, "      tasks:    %s\n", strings.Join(v.TaskIDs, ", "))
		}
	}
}

func renderStats(w io.Writer, s project.TaskStats) {
	fmt.Fprintf(w, "  tasks: %d total, %d completed, %d blocked, %d stale\n",
		s.Total, s.Completed, s.Blocked, s.Stale)
}

func renderValidation(w io.Writer, r lifecycle.Result) {
	renderStats(w, r.Stats)
	if r.OK {
		fmt.Fprintf(w, "  %s\n", green("✓ no blocking violations"))
	}
	renderViolations(w, r.Violations, red)
	if len(r.Conditions) > 0 {
		fmt.Fprintf(w, "  %s %s\n", yellow("conditions to acknowledge:"), strings.Join(r.Conditions, "; "))
	}
}

func renderApproval(w io.Writer, res *approval.Result) {
	if !res.OK {
		fmt.Fprintf(w, "%s\n", red(fmt.Sprintf("Approval of %s/%s blocked; nothing was written.", res.Project, res.Phase)))
		renderViolations(w, res.Violations, red)
		if len(res.PendingConditions) > 0 {
			fmt.Fprintf(w, "  %s\n", yellow("conditional sign-off; re-run with --ack to accept:"))
			for _, c := range res.PendingConditions {
				fmt.Fprintf(w, "    - %s\n", c)
			}
		}
		return
	}

	fmt.Fprintf(w, "%s\n", green(fmt.Sprintf("✓ %s/%s approved", res.Project, res.Phase)))
	if res.Stats != nil {
		renderStats(w, *res.Stats)
	}
	if len(res.OverridesUsed) > 0 {
		fmt.Fprintf(w, "  overrides used: %s\n", yellow(strings.Join(res.OverridesUsed, ", ")))
		renderViolations(w, res.Suppressed, yellow)
	}
	if len(res.Injected) > 0 {
		fmt.Fprintf(w, "  checkpoint injected: %s\n", strings.Join(res.Injected, ", "))
	}
	if res.Completed {
		fmt.Fprintf(w, "%s\n", green("All phases approved; the project is complete."))
		return
	}
	fmt.Fprintf(w, "Next phase: %s\n", res.NextPhase)
}

func renderProjects(w io.Writer, ps []*project.Project) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Name", "Status", "Current phase", "Complexity", "Updated"})
	for _, p := range ps {
		tw.AppendRow(table.Row{p.Name, p.Status, p.CurrentPhase, p.ComplexityScore, p.UpdatedAt})
	}
	tw.Render()
}
