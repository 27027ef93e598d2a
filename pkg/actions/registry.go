package actions

import (
	"context"
	"fmt"

	"codepilot/pkg/logx"
	"codepilot/pkg/proto"
	"codepilot/pkg/sandbox"
)

// Result is the outcome of executing one action.
type Result struct {
	Status proto.ActionStatus
	Text   string
}

func Success(text string) Result {
	return Result{Status: proto.StatusSuccess, Text: text}
}

func Failure(format string, args ...any) Result {
	return Result{Status: proto.StatusError, Text: fmt.Sprintf(format, args...)}
}

// Handler executes one named action against a sandbox session.
type Handler interface {
	Name() string
	Execute(ctx context.Context, args map[string]any, s *sandbox.Session) Result
}

// Registry is an explicit name-to-handler map, constructed per engine
// instance rather than held in a package global.
type Registry struct {
	handlers map[string]Handler
	logger   *logx.Logger
}

// NewRegistry builds a registry with the standard handlers wired to the
// given sandbox manager.
func NewRegistry(m *sandbox.Manager) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		logger:   logx.NewLogger("actions"),
	}
	r.Register(&shellHandler{m: m})
	r.Register(&readFileHandler{m: m})
	r.Register(&editFileHandler{m: m})
	r.Register(&searchHandler{m: m})
	r.Register(&fetchURLHandler{m: m})
	r.Register(&installDepsHandler{m: m})
	return r
}

func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Has reports whether a handler is registered for the name.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Execute runs the request's handler. Unknown names yield a synthetic
// error result rather than an error return, so a bad proposal degrades
// into a transcript entry the proposer can react to.
func (r *Registry) Execute(ctx context.Context, req proto.ActionRequest, s *sandbox.Session) Result {
	h, ok := r.handlers[req.Name]
	if !ok {
		r.logger.Warn("unknown action %q proposed", req.Name)
		return Failure("unknown action %q", req.Name)
	}
	return h.Execute(ctx, req.Arguments, s)
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok && str != ""
}
