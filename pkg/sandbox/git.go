package sandbox

import (
	"context"
	"fmt"
	"strings"

	"codepilot/pkg/proto"
)

func (m *Manager) git(ctx context.Context, s *Session, args ...string) (RunResult, error) {
	return m.Run(ctx, s, append([]string{"git"}, args...))
}

func (m *Manager) clone(ctx context.Context, s *Session) error {
	res, err := m.Run(ctx, s, []string{"git", "clone", s.RepoURL, s.WorkDir})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git clone exited %d: %s", res.ExitCode, res.Output)
	}
	// checkout -B creates the branch when absent and reuses it when the
	// remote already has it.
	res, err = m.git(ctx, s, "checkout", "-B", s.Branch)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git checkout -B %s exited %d: %s", s.Branch, res.ExitCode, res.Output)
	}
	return nil
}

func (m *Manager) pull(ctx context.Context, s *Session) error {
	res, err := m.git(ctx, s, "pull", "--ff-only")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git pull exited %d: %s", res.ExitCode, res.Output)
	}
	return nil
}

func (m *Manager) configureIdentity(ctx context.Context, s *Session) error {
	name := m.cfg.GitUserName
	if name == "" {
		name = "codepilot"
	}
	email := m.cfg.GitUserEmail
	if email == "" {
		email = "codepilot@localhost"
	}
	for _, kv := range [][2]string{{"user.name", name}, {"user.email", email}} {
		res, err := m.git(ctx, s, "config", kv[0], kv[1])
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("git config %s exited %d: %s", kv[0], res.ExitCode, res.Output)
		}
	}
	return nil
}

// refreshSnapshot regenerates the tracked-file listing the proposer sees as
// its view of the codebase.
func (m *Manager) refreshSnapshot(ctx context.Context, s *Session) error {
	res, err := m.git(ctx, s, "ls-files")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git ls-files exited %d: %s", res.ExitCode, res.Output)
	}
	s.TreeSnapshot = strings.TrimSpace(res.Output)
	return nil
}

// ChangedFiles lists working-tree paths that differ from HEAD, including
// untracked files.
func (m *Manager) ChangedFiles(ctx context.Context, s *Session) ([]string, error) {
	res, err := m.git(ctx, s, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git status exited %d: %s", res.ExitCode, res.Output)
	}
	var files []string
	for _, line := range strings.Split(res.Output, "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// CommitAndPush stages everything, commits with message, and pushes the
// session branch. Returns false without error when the tree is clean.
func (m *Manager) CommitAndPush(ctx context.Context, s *Session, message string) (bool, error) {
	changed, err := m.ChangedFiles(ctx, s)
	if err != nil {
		return false, err
	}
	if len(changed) == 0 {
		return false, nil
	}

	res, err := m.git(ctx, s, "add", "-A")
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("git add exited %d: %s", res.ExitCode, res.Output)
	}

	res, err = m.git(ctx, s, "commit", "-m", message)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("git commit exited %d: %s", res.ExitCode, res.Output)
	}

	res, err = m.git(ctx, s, "push", "-u", "origin", s.Branch)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("git push exited %d: %s", res.ExitCode, res.Output)
	}

	m.emit("commit_and_push", proto.StatusSuccess, s.Branch)
	return true, nil
}

// StashAndDiscard drops every uncommitted change made during the current
// step, untracked files included. Used when a read-only phase produced
// writes it should not have.
func (m *Manager) StashAndDiscard(ctx context.Context, s *Session) error {
	res, err := m.git(ctx, s, "stash", "push", "--include-untracked")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git stash exited %d: %s", res.ExitCode, res.Output)
	}
	if strings.Contains(res.Output, "No local changes") {
		return nil
	}
	res, err = m.git(ctx, s, "stash", "drop")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git stash drop exited %d: %s", res.ExitCode, res.Output)
	}
	return nil
}
