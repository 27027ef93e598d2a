package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/pkg/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPlanRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.ReadPlan(ctx, "issue-42")
	require.NoError(t, err)
	assert.False(t, ok)

	p, taskID := plan.CreateTask(plan.NewTaskPlan(), "fix the bug", "bugfix", []string{"find it", "fix it"}, nil)
	require.NoError(t, s.WritePlan(ctx, "issue-42", p))

	loaded, ok, err := s.ReadPlan(ctx, "issue-42")
	require.NoError(t, err)
	require.True(t, ok)

	task, err := plan.GetActiveTask(loaded)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)

	items, err := plan.GetActiveItems(loaded)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "find it", items[0].Text)
}

func TestWritePlanReplacesDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, taskID := plan.CreateTask(plan.NewTaskPlan(), "req", "task", []string{"one"}, nil)
	require.NoError(t, s.WritePlan(ctx, "ref", p))

	updated, err := plan.CompleteItem(p, taskID, 0, "done")
	require.NoError(t, err)
	require.NoError(t, s.WritePlan(ctx, "ref", updated))

	loaded, ok, err := s.ReadPlan(ctx, "ref")
	require.NoError(t, err)
	require.True(t, ok)
	items, err := plan.GetActiveItems(loaded)
	require.NoError(t, err)
	assert.True(t, items[0].Completed)
}

func TestPlanSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	p, _ := plan.CreateTask(plan.NewTaskPlan(), "req", "task", []string{"one"}, nil)
	require.NoError(t, s.WritePlan(ctx, "ref", p))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, ok, err := s.ReadPlan(ctx, "ref")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LookupSession(ctx, "issue-7")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := SessionRecord{
		ID:        "codepilot-abc",
		PlanRef:   "issue-7",
		RepoURL:   "https://example.com/repo.git",
		Branch:    "feature/x",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveSession(ctx, rec))

	found, err := s.LookupSession(ctx, "issue-7")
	require.NoError(t, err)
	assert.Equal(t, "codepilot-abc", found.ID)
	assert.Equal(t, "feature/x", found.Branch)
	assert.Nil(t, found.ReleasedAt)

	require.NoError(t, s.MarkReleased(ctx, "codepilot-abc"))

	_, err = s.LookupSession(ctx, "issue-7")
	assert.ErrorIs(t, err, ErrNotFound)

	// A second release is a no-op on an already-released session.
	assert.ErrorIs(t, s.MarkReleased(ctx, "codepilot-abc"), ErrNotFound)
}

func TestLookupPrefersNewestSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := SessionRecord{ID: "old", PlanRef: "ref", RepoURL: "u", Branch: "b", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	cur := SessionRecord{ID: "new", PlanRef: "ref", RepoURL: "u", Branch: "b", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveSession(ctx, old))
	require.NoError(t, s.SaveSession(ctx, cur))

	found, err := s.LookupSession(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "new", found.ID)
}
