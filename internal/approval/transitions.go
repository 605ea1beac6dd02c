package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/phasegate/internal/lifecycle"
	"github.com/HendryAvila/phasegate/internal/project"
)

func nowRFC3339() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// SubmitResult is the outcome of Submit. Preview is what Approve would
// report if it ran now; it is advisory.
type SubmitResult struct {
	Project *project.Project `json:"-"`
	Preview lifecycle.Result `json:"preview"`
}

// Submit moves the current phase from in_progress to awaiting_approval.
func (m *Machine) Submit(ctx context.Context, name, phase string) (*SubmitResult, error) {
	var preview lifecycle.Result
	p, err := m.store.Update(ctx, name, func(p *project.Project) error {
		rec, err := guard(p, phase, project.PhaseInProgress)
		if err != nil {
			return err
		}
		rec.Status = project.PhaseAwaitingApproval
		rec.SubmittedAt = nowRFC3339()
		preview, err = m.validate(ctx, p, rec, project.Overrides{})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.metrics.transition(string(project.PhaseAwaitingApproval))
	m.logger.Info("phase submitted", zap.String("project", name), zap.String("phase", phase),
		zap.Bool("would_pass", preview.OK))
	return &SubmitResult{Project: p, Preview: preview}, nil
}

// Preview validates the current phase without changing anything. It
// reads without the lock, so the answer may be stale by one transition.
func (m *Machine) Preview(ctx context.Context, name string, ov project.Overrides) (*lifecycle.Result, error) {
	p, err := m.store.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	rec := p.Current()
	if rec == nil {
		return nil, fmt.Errorf("project %q has no current phase", name)
	}
	res, err := m.validate(ctx, p, rec, ov)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RecordSignoff stores a reviewer's verdict on the current phase. It may
// be recorded while the phase is in progress or awaiting approval, and
// replaces any earlier sign-off.
func (m *Machine) RecordSignoff(ctx context.Context, name, phase string, s project.Signoff) (*project.Project, error) {
	if err := project.ValidateSignoffResult(s.Result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.ReviewerTier) == "" {
		return nil, fmt.Errorf("signoff needs a reviewer tier")
	}
	if s.Result == project.SignoffConditional && len(s.Conditions) == 0 {
		return nil, fmt.Errorf("a conditional signoff needs at least one condition")
	}
	p, err := m.store.Update(ctx, name, func(p *project.Project) error {
		rec, err := guard(p, phase, project.PhaseInProgress, project.PhaseAwaitingApproval)
		if err != nil {
			return err
		}
		s.RecordedAt = nowRFC3339()
		rec.Signoff = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("signoff recorded", zap.String("project", name), zap.String("phase", phase),
		zap.String("result", string(s.Result)), zap.String("reviewer_tier", s.ReviewerTier))
	return p, nil
}

// Reject moves an awaiting_approval phase to rejected with a reason.
func (m *Machine) Reject(ctx context.Context, name, phase, reason string) (*project.Project, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("a rejection needs a reason")
	}
	p, err := m.store.Update(ctx, name, func(p *project.Project) error {
		rec, err := guard(p, phase, project.PhaseAwaitingApproval)
		if err != nil {
			return err
		}
		rec.Status = project.PhaseRejected
		rec.RejectReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.transition(string(project.PhaseRejected))
	m.logger.Info("phase rejected", zap.String("project", name), zap.String("phase", phase))
	return p, nil
}

// Reopen moves a rejected phase back to in_progress so work can resume.
func (m *Machine) Reopen(ctx context.Context, name, phase string) (*project.Project, error) {
	p, err := m.store.Update(ctx, name, func(p *project.Project) error {
		rec, err := guard(p, phase, project.PhaseRejected)
		if err != nil {
			return err
		}
		rec.Status = project.PhaseInProgress
		rec.SubmittedAt = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.transition(string(project.PhaseInProgress))
	m.logger.Info("phase reopened", zap.String("project", name), zap.String("phase", phase))
	return p, nil
}
