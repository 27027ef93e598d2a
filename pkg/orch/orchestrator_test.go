package orch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/pkg/actions"
	"codepilot/pkg/config"
	"codepilot/pkg/host"
	"codepilot/pkg/plan"
	"codepilot/pkg/proposer"
	"codepilot/pkg/proto"
	"codepilot/pkg/sandbox"
)

// fakeProposer replays scripted proposals and completions.
type fakeProposer struct {
	mu              sync.Mutex
	proposals       []proposer.Proposal
	completions     []string
	pi, ci          int
	completePrompts []string
}

func (f *fakeProposer) Propose(_ context.Context, _ proposer.Request) (proposer.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pi >= len(f.proposals) {
		return proposer.Proposal{}, nil
	}
	p := f.proposals[f.pi]
	f.pi++
	return p, nil
}

func (f *fakeProposer) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completePrompts = append(f.completePrompts, prompt)
	if f.ci >= len(f.completions) {
		return "yes: done", nil
	}
	c := f.completions[f.ci]
	f.ci++
	return c, nil
}

type fakeProvider struct {
	mu        sync.Mutex
	responses map[string]sandbox.RunResult
	commands  []string
	stopped   int
	deleted   int
}

func (f *fakeProvider) Create(_ context.Context, image string) (sandbox.Handle, error) {
	return sandbox.Handle{ID: "box-1", Image: image}, nil
}

func (f *fakeProvider) Get(_ context.Context, id string) (sandbox.Handle, error) {
	return sandbox.Handle{ID: id}, nil
}

func (f *fakeProvider) RunCommand(_ context.Context, _ sandbox.Handle, cmd []string, _ string, _ time.Duration) (sandbox.RunResult, error) {
	joined := strings.Join(cmd, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, joined)
	for prefix, res := range f.responses {
		if strings.HasPrefix(joined, prefix) {
			return res, nil
		}
	}
	return sandbox.RunResult{}, nil
}

func (f *fakeProvider) Stop(_ context.Context, _ sandbox.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeProvider) Delete(_ context.Context, _ sandbox.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeProvider) ran(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// memStore is an in-memory durable plan store.
type memStore struct {
	mu     sync.Mutex
	plans  map[string]plan.TaskPlan
	writes int
}

func newMemStore() *memStore {
	return &memStore{plans: make(map[string]plan.TaskPlan)}
}

func (s *memStore) ReadPlan(_ context.Context, ref string) (plan.TaskPlan, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[ref]
	return p, ok, nil
}

func (s *memStore) WritePlan(_ context.Context, ref string, p plan.TaskPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[ref] = p
	s.writes++
	return nil
}

func updatePlanProposal(items ...string) proposer.Proposal {
	anyItems := make([]any, len(items))
	for i, it := range items {
		anyItems[i] = it
	}
	return proposer.Proposal{
		Text: "submitting plan",
		Actions: []proto.ActionRequest{
			proto.NewActionRequest(actions.ActionUpdatePlan, map[string]any{
				"title": "task",
				"items": anyItems,
			}),
		},
	}
}

func shellProposal(command string) proposer.Proposal {
	return proposer.Proposal{
		Text: "running " + command,
		Actions: []proto.ActionRequest{
			proto.NewActionRequest(actions.ActionShell, map[string]any{"command": command}),
		},
	}
}

func newTestOrch(fp *fakeProposer, provider *fakeProvider, store PlanStore, mutate func(*config.Config)) *Orchestrator {
	cfg := config.Default()
	cfg.Safety.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	mgr := sandbox.NewManager(provider, cfg.Sandbox, nil)
	return New(Options{
		Config:   cfg,
		Proposer: fp,
		Sandbox:  mgr,
		Registry: actions.NewRegistry(mgr),
		Store:    store,
	})
}

func runSpec() RunSpec {
	return RunSpec{
		Request: "add feature",
		PlanRef: "issue-1",
		RepoURL: "https://example.com/repo.git",
		Branch:  "feature/x",
	}
}

func TestRunHappyPath(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("write A", "write B"),
			shellProposal("echo A > a.txt"),
			{Text: "item finished"},
			{Text: "item finished"},
			{Text: "everything is in place"},
		},
		completions: []string{"yes: wrote A", "yes: wrote B"},
	}
	provider := &fakeProvider{}
	store := newMemStore()
	o := newTestOrch(fp, provider, store, nil)

	require.NoError(t, o.Run(context.Background(), runSpec()))
	assert.Equal(t, StateConcluding, o.State())

	stored, ok, err := store.ReadPlan(context.Background(), "issue-1")
	require.NoError(t, err)
	require.True(t, ok)
	task, err := plan.GetActiveTask(stored)
	require.NoError(t, err)
	assert.True(t, task.Completed)

	items, err := plan.GetActiveItems(stored)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Completed)
	assert.True(t, items[1].Completed)

	// Session released on conclusion.
	assert.Equal(t, 1, provider.stopped)
	assert.Equal(t, 1, provider.deleted)
}

func TestReadOnlyPhaseRollsBackWrites(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			// The proposer gathers context but sneaks in a write.
			shellProposal("echo oops > f.txt"),
			updatePlanProposal("do the work"),
		},
	}
	provider := &fakeProvider{responses: map[string]sandbox.RunResult{
		"git status --porcelain": {Output: " M f.txt\n?? g.txt\n"},
		"git stash push":         {Output: "Saved working directory"},
	}}
	o := newTestOrch(fp, provider, newMemStore(), nil)

	spec := runSpec()
	spec.RequireApproval = true
	require.NoError(t, o.Run(context.Background(), spec))
	assert.Equal(t, StateSuspended, o.State())

	// The changes were stashed and discarded.
	assert.True(t, provider.ran("git stash push"))
	assert.True(t, provider.ran("git stash drop"))

	// Every result turn of the rolled-back step carries the warning.
	var resultTurns, warned int
	for _, turn := range o.Log().Visible() {
		if turn.IsResult() {
			resultTurns++
			if strings.Contains(turn.Content, rollbackWarning) {
				warned++
			}
		}
	}
	require.Positive(t, resultTurns)
	assert.Equal(t, resultTurns, warned)
}

func TestSuspendAndResume(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("single item"),
			{Text: "item finished"},
			{Text: "plan satisfied"},
		},
		completions: []string{"yes: done"},
	}
	provider := &fakeProvider{}
	store := newMemStore()
	o := newTestOrch(fp, provider, store, nil)

	spec := runSpec()
	spec.RequireApproval = true
	require.NoError(t, o.Run(context.Background(), spec))
	require.Equal(t, StateSuspended, o.State())

	tok := o.Token()
	assert.Equal(t, "issue-1", tok.PlanRef)
	assert.Equal(t, "box-1", tok.SessionID)
	assert.NotZero(t, tok.TaskID)

	require.NoError(t, o.Resume(context.Background(), tok, "approved, go ahead"))
	assert.Equal(t, StateConcluding, o.State())

	// The approval is a visible turn.
	var approved bool
	for _, turn := range o.Log().Visible() {
		if strings.Contains(turn.Content, "approved, go ahead") {
			approved = true
		}
	}
	assert.True(t, approved)
}

func TestResumeRequiresSuspendedState(t *testing.T) {
	o := newTestOrch(&fakeProposer{}, &fakeProvider{}, nil, nil)
	err := o.Resume(context.Background(), ResumeToken{}, "go")
	assert.ErrorIs(t, err, plan.ErrInvalidState)
}

func TestBudgetTriggersSummarization(t *testing.T) {
	longText := strings.Repeat("investigating the failing build system thoroughly ", 20)
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("fix build"),
			{Text: longText, Actions: []proto.ActionRequest{
				proto.NewActionRequest(actions.ActionShell, map[string]any{"command": "make"}),
			}},
			{Text: "item finished"},
			{Text: "plan satisfied"},
		},
		completions: []string{
			"FILES: Makefile\nINSIGHTS: build needed a clean\nOPEN ITEMS: none",
			"yes: fixed",
		},
	}
	o := newTestOrch(fp, &fakeProvider{}, newMemStore(), func(cfg *config.Config) {
		cfg.Budget.MaxContextTokens = 120
		cfg.Budget.KeepRecentTurns = 1
	})

	require.NoError(t, o.Run(context.Background(), runSpec()))
	assert.Equal(t, StateConcluding, o.State())

	var summaries int
	for _, turn := range o.Log().Visible() {
		if turn.Role == proto.RoleSummary {
			summaries++
			assert.Contains(t, turn.Content, "Makefile")
		}
	}
	assert.Positive(t, summaries)
	// The audit trail still holds the extracted turns.
	assert.Greater(t, len(o.Log().Audit()), len(o.Log().Visible()))
}

func TestSustainedFailuresTriggerDiagnosis(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("fix the tests"),
			shellProposal("go test ./..."),
			shellProposal("go test ./..."),
			shellProposal("go test ./..."),
			{Text: "item finished"},
			{Text: "plan satisfied"},
		},
		completions: []string{
			"Root cause: missing dependency; install it before retesting.",
			"yes: resolved",
		},
	}
	provider := &fakeProvider{responses: map[string]sandbox.RunResult{
		"sh -c go test": {ExitCode: 1, Output: "FAIL: boom"},
	}}
	o := newTestOrch(fp, provider, newMemStore(), nil)

	require.NoError(t, o.Run(context.Background(), runSpec()))
	assert.Equal(t, StateConcluding, o.State())

	var diagnostics int
	for _, turn := range o.Log().Visible() {
		if turn.Diagnostic {
			diagnostics++
			assert.Contains(t, turn.Content, "Root cause")
		}
	}
	assert.Equal(t, 1, diagnostics)
}

func TestProposerZeroActionsAdvancesPhases(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("only item"),
			{Text: "nothing left to do"},
			{Text: "review clean"},
		},
		completions: []string{"yes: confirmed"},
	}
	o := newTestOrch(fp, &fakeProvider{}, newMemStore(), nil)

	require.NoError(t, o.Run(context.Background(), runSpec()))
	assert.Equal(t, StateConcluding, o.State())
}

func TestReviewInjectsNewItems(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("write code"),
			{Text: "item finished"},
			// Review finds a gap and injects a new item.
			{Text: "tests are missing", Actions: []proto.ActionRequest{
				proto.NewActionRequest(actions.ActionUpdatePlan, map[string]any{
					"items": []any{"write tests"},
				}),
			}},
			{Text: "item finished"},
			{Text: "all covered now"},
		},
		completions: []string{"yes: code written", "yes: tests written"},
	}
	store := newMemStore()
	o := newTestOrch(fp, &fakeProvider{}, store, nil)

	require.NoError(t, o.Run(context.Background(), runSpec()))
	assert.Equal(t, StateConcluding, o.State())

	stored := store.plans["issue-1"]
	items, err := plan.GetActiveItems(stored)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// The injected item starts unstarted and the completed one is intact.
	assert.Equal(t, "write code", items[0].Text)
	assert.True(t, items[0].Completed)
	assert.Equal(t, "write tests", items[1].Text)
	assert.True(t, items[1].Completed)
}

func TestCancellationReleasesSession(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{updatePlanProposal("item")},
	}
	provider := &fakeProvider{}
	o := newTestOrch(fp, provider, newMemStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Run(ctx, runSpec())
	require.Error(t, err)
	assert.Equal(t, StateAborted, o.State())
	assert.Equal(t, 1, provider.deleted)
}

func TestTransitionTable(t *testing.T) {
	assert.NoError(t, ValidateTransition(StatePlanning, StateActing))
	assert.NoError(t, ValidateTransition(StateActing, StateDiagnosing))
	assert.NoError(t, ValidateTransition(StateVerifying, StateReviewing))
	assert.NoError(t, ValidateTransition(StateSuspended, StatePlanning))

	assert.Error(t, ValidateTransition(StateConcluding, StateActing))
	assert.Error(t, ValidateTransition(StateAborted, StatePlanning))
	assert.Error(t, ValidateTransition(StateVerifying, StatePlanning))

	assert.True(t, IsTerminal(StateConcluding))
	assert.True(t, IsTerminal(StateAborted))
	assert.False(t, IsTerminal(StateActing))
}

type fakePRCreator struct {
	opts *host.PROptions
}

func (f *fakePRCreator) CreateOrUpdatePR(_ context.Context, opts host.PROptions) (*host.PullRequest, error) {
	f.opts = &opts
	return &host.PullRequest{Number: 5, URL: "https://example.com/pr/5"}, nil
}

func TestConcludeOpensPullRequest(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("write the fix"),
			shellProposal("apply fix"),
			{Text: "item finished"},
			{Text: "fix applied and verified"},
		},
		completions: []string{"yes: fixed"},
	}
	provider := &fakeProvider{responses: map[string]sandbox.RunResult{
		"git status --porcelain": {Output: " M pkg/a.go\n"},
	}}
	pr := &fakePRCreator{}

	cfg := config.Default()
	cfg.Safety.Enabled = false
	mgr := sandbox.NewManager(provider, cfg.Sandbox, nil)
	o := New(Options{
		Config:   cfg,
		Proposer: fp,
		Sandbox:  mgr,
		Registry: actions.NewRegistry(mgr),
		Store:    newMemStore(),
		Host:     pr,
	})

	require.NoError(t, o.Run(context.Background(), runSpec()))
	assert.Equal(t, StateConcluding, o.State())

	require.NotNil(t, pr.opts)
	assert.Equal(t, "fix applied and verified", pr.opts.Title)
	assert.Equal(t, "feature/x", pr.opts.Head)
	assert.Contains(t, pr.opts.Body, plan.BeginMarker)

	assert.True(t, provider.ran("git push -u origin feature/x"))
	// Session released after finalization.
	assert.Equal(t, 1, provider.deleted)
}

func completeItemProposal(summary string) proposer.Proposal {
	return proposer.Proposal{
		Text: "marking the item done",
		Actions: []proto.ActionRequest{
			proto.NewActionRequest(actions.ActionCompleteItem, map[string]any{"summary": summary}),
		},
	}
}

func TestCompleteItemActionMarksPlanItem(t *testing.T) {
	fp := &fakeProposer{
		proposals: []proposer.Proposal{
			updatePlanProposal("write code", "write docs"),
			completeItemProposal("code written"),
			completeItemProposal("docs written"),
			{Text: "plan satisfied"},
		},
	}
	store := newMemStore()
	o := newTestOrch(fp, &fakeProvider{}, store, nil)

	require.NoError(t, o.Run(context.Background(), runSpec()))
	assert.Equal(t, StateConcluding, o.State())

	items, err := plan.GetActiveItems(store.plans["issue-1"])
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Completed)
	assert.Equal(t, "code written", items[0].Summary)
	assert.True(t, items[1].Completed)
	assert.Equal(t, "docs written", items[1].Summary)

	// The explicit claim skips the verification round entirely.
	assert.Empty(t, fp.completePrompts)
}

func TestPlanningWithoutPlanAborts(t *testing.T) {
	// The proposer never produces a plan or any executable action.
	fp := &fakeProposer{}
	provider := &fakeProvider{}
	o := newTestOrch(fp, provider, newMemStore(), nil)

	err := o.Run(context.Background(), runSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning attempts")
	assert.Equal(t, StateAborted, o.State())
	assert.Equal(t, 1, provider.deleted)
}
