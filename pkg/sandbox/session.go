package sandbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"codepilot/pkg/config"
	"codepilot/pkg/logx"
	"codepilot/pkg/proto"
)

// Session is one acquired environment plus the repository state inside it.
// Action handlers run concurrently against a shared session; the mutable
// state behind the accessor methods is safe for concurrent use.
type Session struct {
	ID           string
	Handle       Handle
	WorkDir      string
	RepoURL      string
	Branch       string
	TreeSnapshot string

	depsInstalled atomic.Bool
}

// MarkDepsInstalled records that the repository's dependencies have been
// installed in this session.
func (s *Session) MarkDepsInstalled() {
	s.depsInstalled.Store(true)
}

// DepsInstalled reports whether install_dependencies has succeeded here.
func (s *Session) DepsInstalled() bool {
	return s.depsInstalled.Load()
}

// Event records one lifecycle transition. Events are append-only so a
// caller can render live progress without polling container internals.
type Event struct {
	Action    string             `json:"action"`
	Status    proto.ActionStatus `json:"status"`
	Detail    string             `json:"detail,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// EventSink receives lifecycle events. A nil sink discards them.
type EventSink func(Event)

// Manager owns session acquire/resume/release against a Provider.
type Manager struct {
	provider Provider
	cfg      config.SandboxCfg
	logger   *logx.Logger
	sink     EventSink
}

func NewManager(provider Provider, cfg config.SandboxCfg, sink EventSink) *Manager {
	return &Manager{
		provider: provider,
		cfg:      cfg,
		logger:   logx.NewLogger("sandbox"),
		sink:     sink,
	}
}

func (m *Manager) emit(action string, status proto.ActionStatus, detail string) {
	if m.sink == nil {
		return
	}
	m.sink(Event{Action: action, Status: status, Detail: detail, Timestamp: time.Now().UTC()})
}

// Acquire returns a ready session. When sessionID names an existing
// environment it is resumed (pull latest, refresh the tree snapshot); any
// resume failure falls through to fresh creation rather than failing the
// turn. Only a failed fresh creation is fatal.
func (m *Manager) Acquire(ctx context.Context, sessionID, repoURL, branch string) (*Session, error) {
	if sessionID != "" {
		s, err := m.resume(ctx, sessionID, repoURL, branch)
		if err == nil {
			return s, nil
		}
		m.logger.Warn("resume of session %s failed, creating fresh: %v", sessionID, err)
		m.emit("resume_session", proto.StatusError, err.Error())
	} else {
		m.emit("resume_session", proto.StatusSkipped, "no prior session")
	}
	return m.create(ctx, repoURL, branch)
}

func (m *Manager) resume(ctx context.Context, sessionID, repoURL, branch string) (*Session, error) {
	m.emit("resume_session", proto.StatusPending, sessionID)

	h, err := m.provider.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:      sessionID,
		Handle:  h,
		WorkDir: m.cfg.WorkDir,
		RepoURL: repoURL,
		Branch:  branch,
	}
	if err := m.pull(ctx, s); err != nil {
		return nil, err
	}
	if err := m.refreshSnapshot(ctx, s); err != nil {
		return nil, err
	}
	m.emit("resume_session", proto.StatusSuccess, sessionID)
	m.logger.Info("resumed session %s on branch %s", sessionID, branch)
	return s, nil
}

func (m *Manager) create(ctx context.Context, repoURL, branch string) (*Session, error) {
	m.emit("create_sandbox", proto.StatusPending, m.cfg.Image)

	h, err := m.provider.Create(ctx, m.cfg.Image)
	if err != nil {
		m.emit("create_sandbox", proto.StatusError, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s := &Session{
		ID:      h.ID,
		Handle:  h,
		WorkDir: m.cfg.WorkDir,
		RepoURL: repoURL,
		Branch:  branch,
	}
	m.emit("create_sandbox", proto.StatusSuccess, h.ID)

	m.emit("clone_repository", proto.StatusPending, repoURL)
	if err := m.clone(ctx, s); err != nil {
		m.emit("clone_repository", proto.StatusError, err.Error())
		m.releaseBestEffort(ctx, s)
		return nil, fmt.Errorf("%w: clone: %v", ErrUnavailable, err)
	}
	m.emit("clone_repository", proto.StatusSuccess, branch)

	if err := m.configureIdentity(ctx, s); err != nil {
		m.releaseBestEffort(ctx, s)
		return nil, fmt.Errorf("%w: git identity: %v", ErrUnavailable, err)
	}
	if err := m.refreshSnapshot(ctx, s); err != nil {
		m.logger.Warn("tree snapshot failed for %s: %v", s.ID, err)
	}
	m.logger.Info("created session %s on branch %s", s.ID, branch)
	return s, nil
}

// Release stops and deletes the environment. Called on graceful idle (the
// proposer emitted no further actions) or when a pull request is finalized.
func (m *Manager) Release(ctx context.Context, s *Session) error {
	m.emit("release_session", proto.StatusPending, s.ID)
	stopErr := m.provider.Stop(ctx, s.Handle)
	delErr := m.provider.Delete(ctx, s.Handle)
	if stopErr != nil || delErr != nil {
		err := stopErr
		if err == nil {
			err = delErr
		}
		m.emit("release_session", proto.StatusError, err.Error())
		return err
	}
	m.emit("release_session", proto.StatusSuccess, s.ID)
	m.logger.Info("released session %s", s.ID)
	return nil
}

func (m *Manager) releaseBestEffort(ctx context.Context, s *Session) {
	if err := m.Release(ctx, s); err != nil {
		m.logger.Warn("cleanup of half-built session %s failed: %v", s.ID, err)
	}
}

// Run executes one command in the session's working directory with the
// configured per-command timeout.
func (m *Manager) Run(ctx context.Context, s *Session, cmd []string) (RunResult, error) {
	return m.provider.RunCommand(ctx, s.Handle, cmd, s.WorkDir, m.cfg.CommandTimeout)
}
