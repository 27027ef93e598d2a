package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/pkg/config"
	"codepilot/pkg/proto"
)

type fakeProvider struct {
	createErr error
	getErr    error
	runErr    error
	responses map[string]RunResult
	commands  []string
	created   int
	stopped   int
	deleted   int
}

func (f *fakeProvider) Create(_ context.Context, image string) (Handle, error) {
	if f.createErr != nil {
		return Handle{}, f.createErr
	}
	f.created++
	return Handle{ID: "box-1", Image: image}, nil
}

func (f *fakeProvider) Get(_ context.Context, id string) (Handle, error) {
	if f.getErr != nil {
		return Handle{}, f.getErr
	}
	return Handle{ID: id}, nil
}

func (f *fakeProvider) RunCommand(_ context.Context, _ Handle, cmd []string, _ string, _ time.Duration) (RunResult, error) {
	joined := strings.Join(cmd, " ")
	f.commands = append(f.commands, joined)
	if f.runErr != nil {
		return RunResult{}, f.runErr
	}
	for prefix, res := range f.responses {
		if strings.HasPrefix(joined, prefix) {
			return res, nil
		}
	}
	return RunResult{}, nil
}

func (f *fakeProvider) Stop(_ context.Context, _ Handle) error   { f.stopped++; return nil }
func (f *fakeProvider) Delete(_ context.Context, _ Handle) error { f.deleted++; return nil }

func testCfg() config.SandboxCfg {
	return config.Default().Sandbox
}

func collectEvents(events *[]Event) EventSink {
	return func(e Event) { *events = append(*events, e) }
}

func TestAcquireFreshSession(t *testing.T) {
	fp := &fakeProvider{responses: map[string]RunResult{
		"git ls-files": {Output: "main.go\ngo.mod\n"},
	}}
	var events []Event
	m := NewManager(fp, testCfg(), collectEvents(&events))

	s, err := m.Acquire(context.Background(), "", "https://example.com/repo.git", "feature/x")
	require.NoError(t, err)
	assert.Equal(t, "box-1", s.ID)
	assert.Equal(t, "feature/x", s.Branch)
	assert.Equal(t, "main.go\ngo.mod", s.TreeSnapshot)

	var cloned, branched, identity bool
	for _, c := range fp.commands {
		switch {
		case strings.HasPrefix(c, "git clone"):
			cloned = true
		case strings.HasPrefix(c, "git checkout -B feature/x"):
			branched = true
		case strings.HasPrefix(c, "git config user.name"):
			identity = true
		}
	}
	assert.True(t, cloned)
	assert.True(t, branched)
	assert.True(t, identity)

	// Lifecycle events: skipped resume, then pending/success pairs.
	require.NotEmpty(t, events)
	assert.Equal(t, "resume_session", events[0].Action)
	assert.Equal(t, proto.StatusSkipped, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, proto.StatusSuccess, last.Status)
}

func TestAcquireResumesExistingSession(t *testing.T) {
	fp := &fakeProvider{responses: map[string]RunResult{
		"git ls-files": {Output: "main.go\n"},
	}}
	m := NewManager(fp, testCfg(), nil)

	s, err := m.Acquire(context.Background(), "box-7", "https://example.com/repo.git", "main")
	require.NoError(t, err)
	assert.Equal(t, "box-7", s.ID)
	assert.Zero(t, fp.created)

	var pulled bool
	for _, c := range fp.commands {
		if strings.HasPrefix(c, "git pull") {
			pulled = true
		}
	}
	assert.True(t, pulled)
}

func TestAcquireFallsThroughToCreateOnResumeFailure(t *testing.T) {
	fp := &fakeProvider{getErr: ErrNotFound}
	var events []Event
	m := NewManager(fp, testCfg(), collectEvents(&events))

	s, err := m.Acquire(context.Background(), "gone-session", "https://example.com/repo.git", "main")
	require.NoError(t, err)
	assert.Equal(t, 1, fp.created)
	assert.Equal(t, "box-1", s.ID)

	var resumeFailed bool
	for _, e := range events {
		if e.Action == "resume_session" && e.Status == proto.StatusError {
			resumeFailed = true
		}
	}
	assert.True(t, resumeFailed)
}

func TestAcquireFatalWhenCreateFails(t *testing.T) {
	fp := &fakeProvider{getErr: ErrNotFound, createErr: errors.New("daemon down")}
	m := NewManager(fp, testCfg(), nil)

	_, err := m.Acquire(context.Background(), "stale", "https://example.com/repo.git", "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCloneFailureCleansUpContainer(t *testing.T) {
	fp := &fakeProvider{responses: map[string]RunResult{
		"git clone": {ExitCode: 128, Output: "fatal: repository not found"},
	}}
	m := NewManager(fp, testCfg(), nil)

	_, err := m.Acquire(context.Background(), "", "https://example.com/missing.git", "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, fp.deleted)
}

func TestRelease(t *testing.T) {
	fp := &fakeProvider{}
	var events []Event
	m := NewManager(fp, testCfg(), collectEvents(&events))

	s := &Session{ID: "box-9", Handle: Handle{ID: "box-9"}}
	require.NoError(t, m.Release(context.Background(), s))
	assert.Equal(t, 1, fp.stopped)
	assert.Equal(t, 1, fp.deleted)

	require.Len(t, events, 2)
	assert.Equal(t, "release_session", events[0].Action)
	assert.Equal(t, proto.StatusPending, events[0].Status)
	assert.Equal(t, proto.StatusSuccess, events[1].Status)
}

func TestChangedFilesParsesPorcelain(t *testing.T) {
	fp := &fakeProvider{responses: map[string]RunResult{
		"git status --porcelain": {Output: " M pkg/a.go\n?? newfile.txt\nA  staged.go\n"},
	}}
	m := NewManager(fp, testCfg(), nil)
	s := &Session{Handle: Handle{ID: "box"}, WorkDir: "/workspace"}

	files, err := m.ChangedFiles(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/a.go", "newfile.txt", "staged.go"}, files)
}

func TestChangedFilesEmptyTree(t *testing.T) {
	fp := &fakeProvider{}
	m := NewManager(fp, testCfg(), nil)
	s := &Session{Handle: Handle{ID: "box"}}

	files, err := m.ChangedFiles(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStashAndDiscard(t *testing.T) {
	fp := &fakeProvider{responses: map[string]RunResult{
		"git stash push": {Output: "Saved working directory"},
	}}
	m := NewManager(fp, testCfg(), nil)
	s := &Session{Handle: Handle{ID: "box"}}

	require.NoError(t, m.StashAndDiscard(context.Background(), s))

	var dropped bool
	for _, c := range fp.commands {
		if c == "git stash drop" {
			dropped = true
		}
	}
	assert.True(t, dropped)
}

func TestStashAndDiscardNoChanges(t *testing.T) {
	fp := &fakeProvider{responses: map[string]RunResult{
		"git stash push": {Output: "No local changes to save"},
	}}
	m := NewManager(fp, testCfg(), nil)
	s := &Session{Handle: Handle{ID: "box"}}

	require.NoError(t, m.StashAndDiscard(context.Background(), s))
	for _, c := range fp.commands {
		assert.NotEqual(t, "git stash drop", c)
	}
}

func TestCommitAndPush(t *testing.T) {
	fp := &fakeProvider{responses: map[string]RunResult{
		"git status --porcelain": {Output: " M pkg/a.go\n?? pkg/b.go\n"},
	}}
	m := NewManager(fp, testCfg(), nil)
	s := &Session{Handle: Handle{ID: "box"}, Branch: "feature/x"}

	pushed, err := m.CommitAndPush(context.Background(), s, "add the feature")
	require.NoError(t, err)
	assert.True(t, pushed)

	var added, committed, pushedCmd bool
	for _, c := range fp.commands {
		switch {
		case c == "git add -A":
			added = true
		case strings.HasPrefix(c, "git commit -m add the feature"):
			committed = true
		case c == "git push -u origin feature/x":
			pushedCmd = true
		}
	}
	assert.True(t, added)
	assert.True(t, committed)
	assert.True(t, pushedCmd)
}

func TestCommitAndPushCleanTree(t *testing.T) {
	fp := &fakeProvider{}
	m := NewManager(fp, testCfg(), nil)
	s := &Session{Handle: Handle{ID: "box"}, Branch: "feature/x"}

	pushed, err := m.CommitAndPush(context.Background(), s, "noop")
	require.NoError(t, err)
	assert.False(t, pushed)
	for _, c := range fp.commands {
		assert.False(t, strings.HasPrefix(c, "git push"), "unexpected push: %s", c)
	}
}
