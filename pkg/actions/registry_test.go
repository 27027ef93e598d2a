package actions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/pkg/config"
	"codepilot/pkg/proto"
	"codepilot/pkg/sandbox"
)

type scriptedProvider struct {
	responses map[string]sandbox.RunResult
	commands  []string
}

func (p *scriptedProvider) Create(_ context.Context, image string) (sandbox.Handle, error) {
	return sandbox.Handle{ID: "box", Image: image}, nil
}

func (p *scriptedProvider) Get(_ context.Context, id string) (sandbox.Handle, error) {
	return sandbox.Handle{ID: id}, nil
}

func (p *scriptedProvider) RunCommand(_ context.Context, _ sandbox.Handle, cmd []string, _ string, _ time.Duration) (sandbox.RunResult, error) {
	joined := strings.Join(cmd, " ")
	p.commands = append(p.commands, joined)
	for prefix, res := range p.responses {
		if strings.Contains(joined, prefix) {
			return res, nil
		}
	}
	return sandbox.RunResult{}, nil
}

func (p *scriptedProvider) Stop(_ context.Context, _ sandbox.Handle) error   { return nil }
func (p *scriptedProvider) Delete(_ context.Context, _ sandbox.Handle) error { return nil }

func newTestRegistry(responses map[string]sandbox.RunResult) (*Registry, *scriptedProvider, *sandbox.Session) {
	p := &scriptedProvider{responses: responses}
	m := sandbox.NewManager(p, config.Default().Sandbox, nil)
	s := &sandbox.Session{ID: "box", Handle: sandbox.Handle{ID: "box"}, WorkDir: "/workspace"}
	return NewRegistry(m), p, s
}

func TestUnknownActionYieldsSyntheticError(t *testing.T) {
	r, _, s := newTestRegistry(nil)

	res := r.Execute(context.Background(), proto.NewActionRequest("teleport", nil), s)
	assert.Equal(t, proto.StatusError, res.Status)
	assert.Contains(t, res.Text, "unknown action")
}

func TestShellSuccessAndFailure(t *testing.T) {
	r, _, s := newTestRegistry(map[string]sandbox.RunResult{
		"go test": {ExitCode: 0, Output: "ok\n"},
		"go vet":  {ExitCode: 2, Output: "vet: something"},
	})

	res := r.Execute(context.Background(), proto.NewActionRequest(ActionShell, map[string]any{"command": "go test ./..."}), s)
	assert.Equal(t, proto.StatusSuccess, res.Status)
	assert.Equal(t, "ok\n", res.Text)

	res = r.Execute(context.Background(), proto.NewActionRequest(ActionShell, map[string]any{"command": "go vet ./..."}), s)
	assert.Equal(t, proto.StatusError, res.Status)
	assert.Contains(t, res.Text, "exit 2")
}

func TestShellMissingArgument(t *testing.T) {
	r, _, s := newTestRegistry(nil)

	res := r.Execute(context.Background(), proto.NewActionRequest(ActionShell, nil), s)
	assert.Equal(t, proto.StatusError, res.Status)
	assert.Contains(t, res.Text, "missing command")
}

func TestReadFile(t *testing.T) {
	r, p, s := newTestRegistry(map[string]sandbox.RunResult{
		"cat main.go": {Output: "package main\n"},
	})

	res := r.Execute(context.Background(), proto.NewActionRequest(ActionReadFile, map[string]any{"path": "main.go"}), s)
	require.Equal(t, proto.StatusSuccess, res.Status)
	assert.Equal(t, "package main\n", res.Text)
	assert.Contains(t, p.commands[len(p.commands)-1], "cat main.go")
}

func TestEditFileQuotesContent(t *testing.T) {
	r, p, s := newTestRegistry(nil)

	res := r.Execute(context.Background(), proto.NewActionRequest(ActionEditFile, map[string]any{
		"path":    "pkg/x.go",
		"content": "it's quoted",
	}), s)
	require.Equal(t, proto.StatusSuccess, res.Status)
	last := p.commands[len(p.commands)-1]
	assert.Contains(t, last, `'it'\''s quoted'`)
	assert.Contains(t, last, "mkdir -p 'pkg'")
}

func TestSearchNoMatchesIsSuccess(t *testing.T) {
	r, _, s := newTestRegistry(map[string]sandbox.RunResult{
		"grep": {ExitCode: 1},
	})

	res := r.Execute(context.Background(), proto.NewActionRequest(ActionSearch, map[string]any{"pattern": "TODO"}), s)
	assert.Equal(t, proto.StatusSuccess, res.Status)
	assert.Equal(t, "no matches", res.Text)
}

func TestInstallDepsMarksSession(t *testing.T) {
	r, _, s := newTestRegistry(nil)
	require.False(t, s.DepsInstalled())

	res := r.Execute(context.Background(), proto.NewActionRequest(ActionInstallDeps, nil), s)
	assert.Equal(t, proto.StatusSuccess, res.Status)
	assert.True(t, s.DepsInstalled())
}

func TestControlNamesAreNotExecutable(t *testing.T) {
	r, _, _ := newTestRegistry(nil)

	for _, name := range []string{ActionUpdatePlan, ActionCompleteItem, ActionDiagnose, ActionDone} {
		assert.True(t, IsControl(name))
		assert.False(t, r.Has(name))
	}
	assert.False(t, IsControl(ActionShell))
}
