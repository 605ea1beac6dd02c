package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/phasegate/internal/lifecycle"
	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/signals"
	"github.com/HendryAvila/phasegate/internal/tasks"
)

// board is a task source whose contents tests can change between calls.
type board struct {
	mu    sync.Mutex
	tasks []tasks.Task
}

func (b *board) List(ctx context.Context, f tasks.Filter) ([]tasks.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tasks.Static(b.tasks).List(ctx, f)
}

func (b *board) set(ts ...tasks.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = ts
}

type fixture struct {
	store   *project.Store
	backend *project.FileBackend
	board   *board
	metrics *Metrics
	m       *Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := project.NewFileBackend(t.TempDir(), project.FileOptions{})
	store := project.NewStore(backend, nil)
	b := &board{}
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewMachine(store, phases.DefaultCatalog(), Options{Tasks: b, Metrics: metrics})
	return &fixture{store: store, backend: backend, board: b, metrics: metrics, m: m}
}

func completed(id, subject string) tasks.Task {
	return tasks.Task{ID: id, Subject: subject, Status: tasks.StatusCompleted, UpdatedAt: time.Now()}
}

func buildTasks() []tasks.Task {
	return []tasks.Task{
		completed("b1", "build: api"),
		completed("b2", "build: worker"),
		completed("b3", "build: cli"),
	}
}

// seed creates a project whose current phase is build, awaiting approval
// with an approved sign-off.
func (f *fixture) seed(t *testing.T, name string, mode phases.Mode) {
	t.Helper()
	p := &project.Project{
		Name:            name,
		Description:     "Ship the reporting endpoint",
		PhasePlan:       []string{"clarify", "build", "review"},
		PhasePlanMode:   mode,
		CurrentPhase:    "build",
		SignalsDetected: []string{"needs_clarification"},
		TaskLifecycle:   project.LifecycleConfig{StalenessThresholdMinutes: 60, RecoveryMode: project.RecoveryManual},
	}
	p.EnsurePhaseRecords()
	p.Phases["clarify"].Status = project.PhaseApproved
	p.Phases["build"].Status = project.PhaseAwaitingApproval
	p.Phases["build"].Signoff = &project.Signoff{ReviewerTier: "lead", Result: project.SignoffApproved}
	require.NoError(t, f.store.Create(context.Background(), p))
	require.Equal(t, name, p.Name)
}

func TestApprove_AdvancesToNextPhase(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()...)

	res, err := f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "review", res.NextPhase)
	assert.False(t, res.Completed)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 3, res.Stats.Completed)

	p, err := f.store.Read(context.Background(), "proj-x")
	require.NoError(t, err)
	assert.Equal(t, "review", p.CurrentPhase)
	assert.Equal(t, project.PhaseApproved, p.Phase("build").Status)
	assert.NotEmpty(t, p.Phase("build").ApprovedAt)
	assert.Equal(t, 3, p.Phase("build").TaskStats.Total)
	assert.Equal(t, project.PhaseInProgress, p.Phase("review").Status)
	assert.NotEmpty(t, p.Phase("review").StartedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ApprovalsTotal.WithLabelValues(OutcomeApproved)))
}

func TestApprove_ConcurrentCallsExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()...)

	const callers = 2
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
		}(i)
	}
	close(start)
	wg.Wait()

	wins, stateChanged := 0, 0
	for i := 0; i < callers; i++ {
		switch {
		case errs[i] == nil && results[i].OK:
			wins++
		case errors.Is(errs[i], ErrStateChanged):
			stateChanged++
		default:
			t.Fatalf("unexpected outcome: %+v, %v", results[i], errs[i])
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, stateChanged)

	p, err := f.store.Read(context.Background(), "proj-x")
	require.NoError(t, err)
	assert.Equal(t, "review", p.CurrentPhase)
}

func TestApprove_NotAwaitingApproval(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()...)

	// clarify is already approved and not current.
	_, err := f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "clarify"})
	var sce *StateChangedError
	require.ErrorAs(t, err, &sce)
	assert.Equal(t, "clarify", sce.Phase)

	// review is pending.
	_, err = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "review"})
	assert.ErrorIs(t, err, ErrStateChanged)

	_, err = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "launch"})
	assert.ErrorIs(t, err, ErrStateChanged)

	// A retry after success is rejected by the fresh read.
	res, err := f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	require.NoError(t, err)
	require.True(t, res.OK)
	_, err = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	assert.ErrorIs(t, err, ErrStateChanged)

	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.ApprovalsTotal.WithLabelValues(OutcomeStateChanged)))
}

func TestApprove_InProgressPhaseRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()...)
	_, err := f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	require.NoError(t, err)

	_, err = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "review"})
	var sce *StateChangedError
	require.ErrorAs(t, err, &sce)
	assert.Equal(t, string(project.PhaseInProgress), sce.Actual)
}

func TestApprove_BlockedWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()[:2]...)

	res, err := f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, lifecycle.CheckMinCount, res.Violations[0].Check)

	rec, err := f.backend.Read(context.Background(), "proj-x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version, "blocked approval must not write")

	res, err = f.m.Approve(context.Background(), Request{
		Project:   "proj-x",
		Phase:     "build",
		Overrides: project.Overrides{SkipMinTaskValidation: true},
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"skip_min_task_validation"}, res.OverridesUsed)

	p, err := f.store.Read(context.Background(), "proj-x")
	require.NoError(t, err)
	assert.Equal(t, []string{"skip_min_task_validation"}, p.Phase("build").TaskStats.OverridesUsed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ApprovalsTotal.WithLabelValues(OutcomeBlocked)))
}

func TestApprove_RevalidatesAgainstFreshSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()...)

	preview, err := f.m.Preview(context.Background(), "proj-x", project.Overrides{})
	require.NoError(t, err)
	require.True(t, preview.OK)

	// A task is reopened between the preview and the commit.
	ts := buildTasks()
	ts[2].Status = tasks.StatusInProgress
	f.board.set(ts...)

	res, err := f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, lifecycle.CheckTerminalState, res.Violations[0].Check)
}

func TestApprove_ConditionalSignoffNeedsAcknowledgment(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()...)
	_, err := f.m.RecordSignoff(context.Background(), "proj-x", "build", project.Signoff{
		ReviewerTier: "lead",
		Result:       project.SignoffConditional,
		Conditions:   []string{"add a load test before launch"},
	})
	require.NoError(t, err)

	res, err := f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Empty(t, res.Violations)
	assert.Equal(t, []string{"add a load test before launch"}, res.PendingConditions)

	res, err = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build", AcknowledgeConditions: true})
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestApprove_LastPhaseCompletesProject(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(append(buildTasks(), completed("r1", "review: walkthrough"))...)
	ctx := context.Background()

	_, err := f.m.Approve(ctx, Request{Project: "proj-x", Phase: "build"})
	require.NoError(t, err)
	_, err = f.m.RecordSignoff(ctx, "proj-x", "review", project.Signoff{ReviewerTier: "lead", Result: project.SignoffApproved})
	require.NoError(t, err)
	_, err = f.m.Submit(ctx, "proj-x", "review")
	require.NoError(t, err)

	res, err := f.m.Approve(ctx, Request{Project: "proj-x", Phase: "review"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Completed)
	assert.Equal(t, phases.Done, res.NextPhase)

	p, err := f.store.Read(ctx, "proj-x")
	require.NoError(t, err)
	assert.Equal(t, project.StatusComplete, p.Status)
	assert.Equal(t, phases.Done, p.CurrentPhase)
	assert.Len(t, p.Phases, 3, "no record is created past the last phase")

	_, err = f.m.Approve(ctx, Request{Project: "proj-x", Phase: "review"})
	assert.ErrorIs(t, err, ErrStateChanged)
}

func TestApprove_ArchivedProject(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "proj-x", phases.ModeStatic)
	f.board.set(buildTasks()...)
	_, err := f.store.Archive(context.Background(), "proj-x")
	require.NoError(t, err)

	_, err = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	assert.ErrorIs(t, err, ErrStateChanged)
}

func TestApprove_LockTimeoutSurfaced(t *testing.T) {
	backend := project.NewFileBackend(t.TempDir(), project.FileOptions{LockTimeout: 100 * time.Millisecond})
	store := project.NewStore(backend, nil)
	metrics := NewMetrics(nil)
	f := &fixture{store: store, backend: backend, board: &board{}, metrics: metrics}
	f.m = NewMachine(store, phases.DefaultCatalog(), Options{Tasks: f.board, Metrics: metrics})
	f.seed(t, "proj-x", phases.ModeStatic)

	unlock, err := backend.Lock(context.Background(), "proj-x")
	require.NoError(t, err)
	defer unlock()

	_, err = f.m.Approve(context.Background(), Request{Project: "proj-x", Phase: "build"})
	assert.ErrorIs(t, err, project.ErrLockTimeout)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ApprovalsTotal.WithLabelValues(OutcomeLockTimeout)))
}

// seedClarify creates a project waiting on clarify approval, with no
// detected signals yet.
func (f *fixture) seedClarify(t *testing.T, name string, mode phases.Mode) {
	t.Helper()
	p := &project.Project{
		Name:            name,
		Description:     "Tidy the settings screen",
		PhasePlan:       []string{"clarify", "build", "review"},
		PhasePlanMode:   mode,
		CurrentPhase:    "clarify",
		SignalsDetected: []string{"needs_clarification"},
	}
	p.EnsurePhaseRecords()
	p.Phases["clarify"].Status = project.PhaseAwaitingApproval
	p.Phases["clarify"].Signoff = &project.Signoff{ReviewerTier: "pm", Result: project.SignoffApproved}
	require.NoError(t, f.store.Create(context.Background(), p))
	f.board.set(completed("c1", "clarify: scope"))
}

func TestApprove_DynamicCheckpointInjectsPhases(t *testing.T) {
	f := newFixture(t)
	f.seedClarify(t, "proj-x", phases.ModeDynamic)

	res, err := f.m.Approve(context.Background(), Request{
		Project:  "proj-x",
		Phase:    "clarify",
		Findings: []string{"requires a database schema migration"},
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Contains(t, res.Injected, "design")

	p, err := f.store.Read(context.Background(), "proj-x")
	require.NoError(t, err)
	assert.Equal(t, "clarify", p.PhasePlan[0])
	assert.Equal(t, "review", p.PhasePlan[len(p.PhasePlan)-1])
	assert.Less(t, p.PhaseIndex("design"), p.PhaseIndex("build"))
	assert.Equal(t, p.PhasePlan[1], p.CurrentPhase, "the first injected phase runs next")
	assert.Equal(t, res.NextPhase, p.CurrentPhase)
	assert.Contains(t, p.SignalsDetected, "data")
	assert.NotContains(t, p.SignalsDetected, "needs_clarification")
	assert.GreaterOrEqual(t, p.ComplexityScore, 4)
	for _, name := range p.PhasePlan {
		assert.NotNil(t, p.Phase(name), name)
	}
}

func TestApprove_StaticCheckpointKeepsPlan(t *testing.T) {
	f := newFixture(t)
	f.seedClarify(t, "proj-x", phases.ModeStatic)

	res, err := f.m.Approve(context.Background(), Request{
		Project:  "proj-x",
		Phase:    "clarify",
		Findings: []string{"requires a database schema migration"},
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Empty(t, res.Injected)
	assert.Equal(t, "build", res.NextPhase)

	p, err := f.store.Read(context.Background(), "proj-x")
	require.NoError(t, err)
	assert.Equal(t, []string{"clarify", "build", "review"}, p.PhasePlan)
}

func TestApprove_CheckpointRederivesDetectedArchetypes(t *testing.T) {
	f := newFixture(t)
	desc := "Write a plugin to improve API latency"
	initial := signals.Score(desc, nil)
	require.Equal(t, 3, initial.Complexity)
	require.Empty(t, initial.AppliedArchetypes)

	p := &project.Project{
		Name:               "plugin-api",
		Description:        desc,
		PhasePlan:          []string{"clarify", "design", "test-strategy", "build", "operate", "review"},
		PhasePlanMode:      phases.ModeDynamic,
		CurrentPhase:       "clarify",
		SignalsDetected:    initial.Signals,
		ComplexityScore:    initial.Complexity,
		DetectedArchetypes: initial.Archetypes,
	}
	p.EnsurePhaseRecords()
	p.Phases["clarify"].Status = project.PhaseAwaitingApproval
	p.Phases["clarify"].Signoff = &project.Signoff{ReviewerTier: "pm", Result: project.SignoffApproved}
	require.NoError(t, f.store.Create(context.Background(), p))
	f.board.set(completed("c1", "clarify: scope"))

	findings := "the plugin framework will expose a versioning endpoint"
	res, err := f.m.Approve(context.Background(), Request{
		Project:  "plugin-api",
		Phase:    "clarify",
		Findings: []string{findings},
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, []string{"ideate"}, res.Injected)

	fresh := signals.Score(desc+"\n"+findings, nil)
	require.Equal(t, 5, fresh.Complexity)

	got, err := f.store.Read(context.Background(), "plugin-api")
	require.NoError(t, err)
	assert.Equal(t, fresh.Complexity, got.ComplexityScore)
	assert.Equal(t, "ideate", got.CurrentPhase)
	assert.Equal(t, []string{"clarify", "ideate", "design", "test-strategy", "build", "operate", "review"}, got.PhasePlan)
	assert.Empty(t, got.ArchetypeHints)
	assert.GreaterOrEqual(t, got.DetectedArchetypes["infrastructure-framework"].Confidence, signals.MinArchetypeConfidence)
}

func TestSubmitRejectReopen(t *testing.T) {
	f := newFixture(t)
	f.seedClarify(t, "proj-x", phases.ModeStatic)
	ctx := context.Background()

	_, err := f.m.Submit(ctx, "proj-x", "clarify")
	assert.ErrorIs(t, err, ErrStateChanged, "already awaiting approval")

	_, err = f.m.Reject(ctx, "proj-x", "clarify", "")
	assert.Error(t, err)

	p, err := f.m.Reject(ctx, "proj-x", "clarify", "scope is still vague")
	require.NoError(t, err)
	assert.Equal(t, project.PhaseRejected, p.Phase("clarify").Status)
	assert.Equal(t, "scope is still vague", p.Phase("clarify").RejectReason)

	_, err = f.m.Approve(ctx, Request{Project: "proj-x", Phase: "clarify"})
	assert.ErrorIs(t, err, ErrStateChanged, "a rejected phase cannot be approved")

	p, err = f.m.Reopen(ctx, "proj-x", "clarify")
	require.NoError(t, err)
	assert.Equal(t, project.PhaseInProgress, p.Phase("clarify").Status)

	sub, err := f.m.Submit(ctx, "proj-x", "clarify")
	require.NoError(t, err)
	assert.True(t, sub.Preview.OK)
	assert.Equal(t, project.PhaseAwaitingApproval, sub.Project.Phase("clarify").Status)
}

func TestRecordSignoff_Validation(t *testing.T) {
	f := newFixture(t)
	f.seedClarify(t, "proj-x", phases.ModeStatic)
	ctx := context.Background()

	_, err := f.m.RecordSignoff(ctx, "proj-x", "clarify", project.Signoff{ReviewerTier: "pm", Result: "maybe"})
	assert.Error(t, err)

	_, err = f.m.RecordSignoff(ctx, "proj-x", "clarify", project.Signoff{ReviewerTier: "pm", Result: project.SignoffConditional})
	assert.Error(t, err)

	_, err = f.m.RecordSignoff(ctx, "proj-x", "build", project.Signoff{ReviewerTier: "pm", Result: project.SignoffApproved})
	assert.ErrorIs(t, err, ErrStateChanged, "only the current phase can be signed off")
}

func TestMergeSignals(t *testing.T) {
	assert.Equal(t, []string{"data", "security"}, mergeSignals([]string{"needs_clarification", "security"}, []string{"data"}))
	assert.Equal(t, []string{"needs_clarification"}, mergeSignals([]string{"needs_clarification"}, []string{"needs_clarification"}))
}
