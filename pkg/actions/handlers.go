package actions

import (
	"context"
	"fmt"
	"strings"

	"codepilot/pkg/sandbox"
)

type shellHandler struct {
	m *sandbox.Manager
}

func (h *shellHandler) Name() string { return ActionShell }

func (h *shellHandler) Execute(ctx context.Context, args map[string]any, s *sandbox.Session) Result {
	command, ok := stringArg(args, "command")
	if !ok {
		return Failure("shell: missing command argument")
	}
	res, err := h.m.Run(ctx, s, []string{"sh", "-c", command})
	if err != nil {
		return Failure("shell: %v", err)
	}
	if res.ExitCode != 0 {
		return Failure("exit %d\n%s", res.ExitCode, res.Output)
	}
	return Success(res.Output)
}

type readFileHandler struct {
	m *sandbox.Manager
}

func (h *readFileHandler) Name() string { return ActionReadFile }

func (h *readFileHandler) Execute(ctx context.Context, args map[string]any, s *sandbox.Session) Result {
	path, ok := stringArg(args, "path")
	if !ok {
		return Failure("read_file: missing path argument")
	}
	res, err := h.m.Run(ctx, s, []string{"cat", path})
	if err != nil {
		return Failure("read_file: %v", err)
	}
	if res.ExitCode != 0 {
		return Failure("read_file %s: %s", path, res.Output)
	}
	return Success(res.Output)
}

type editFileHandler struct {
	m *sandbox.Manager
}

func (h *editFileHandler) Name() string { return ActionEditFile }

func (h *editFileHandler) Execute(ctx context.Context, args map[string]any, s *sandbox.Session) Result {
	path, ok := stringArg(args, "path")
	if !ok {
		return Failure("edit_file: missing path argument")
	}
	content, present := args["content"].(string)
	if !present {
		return Failure("edit_file: missing content argument")
	}
	script := fmt.Sprintf("mkdir -p %s && printf '%%s' %s > %s",
		shellQuote(parentDir(path)), shellQuote(content), shellQuote(path))
	res, err := h.m.Run(ctx, s, []string{"sh", "-c", script})
	if err != nil {
		return Failure("edit_file: %v", err)
	}
	if res.ExitCode != 0 {
		return Failure("edit_file %s: %s", path, res.Output)
	}
	return Success(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

type searchHandler struct {
	m *sandbox.Manager
}

func (h *searchHandler) Name() string { return ActionSearch }

func (h *searchHandler) Execute(ctx context.Context, args map[string]any, s *sandbox.Session) Result {
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return Failure("search: missing pattern argument")
	}
	path, _ := stringArg(args, "path")
	if path == "" {
		path = "."
	}
	script := fmt.Sprintf("grep -rn %s %s", shellQuote(pattern), shellQuote(path))
	res, err := h.m.Run(ctx, s, []string{"sh", "-c", script})
	if err != nil {
		return Failure("search: %v", err)
	}
	// grep exits 1 when nothing matched, which is a valid outcome.
	if res.ExitCode == 1 {
		return Success("no matches")
	}
	if res.ExitCode != 0 {
		return Failure("search: exit %d\n%s", res.ExitCode, res.Output)
	}
	return Success(res.Output)
}

type fetchURLHandler struct {
	m *sandbox.Manager
}

func (h *fetchURLHandler) Name() string { return ActionFetchURL }

func (h *fetchURLHandler) Execute(ctx context.Context, args map[string]any, s *sandbox.Session) Result {
	url, ok := stringArg(args, "url")
	if !ok {
		return Failure("fetch_url: missing url argument")
	}
	script := fmt.Sprintf("curl -fsSL --max-time 60 %s", shellQuote(url))
	res, err := h.m.Run(ctx, s, []string{"sh", "-c", script})
	if err != nil {
		return Failure("fetch_url: %v", err)
	}
	if res.ExitCode != 0 {
		return Failure("fetch_url %s: exit %d\n%s", url, res.ExitCode, res.Output)
	}
	return Success(res.Output)
}

type installDepsHandler struct {
	m *sandbox.Manager
}

func (h *installDepsHandler) Name() string { return ActionInstallDeps }

// defaultInstallScript picks the installer from whichever manifest the
// repository carries.
const defaultInstallScript = `if [ -f go.mod ]; then go mod download;
elif [ -f package.json ]; then npm install;
elif [ -f requirements.txt ]; then pip install -r requirements.txt;
elif [ -f Cargo.toml ]; then cargo fetch;
else echo "no recognized dependency manifest"; fi`

func (h *installDepsHandler) Execute(ctx context.Context, args map[string]any, s *sandbox.Session) Result {
	script, ok := stringArg(args, "command")
	if !ok {
		script = defaultInstallScript
	}
	res, err := h.m.Run(ctx, s, []string{"sh", "-c", script})
	if err != nil {
		return Failure("install_dependencies: %v", err)
	}
	if res.ExitCode != 0 {
		return Failure("install_dependencies: exit %d\n%s", res.ExitCode, res.Output)
	}
	s.MarkDepsInstalled()
	return Success(res.Output)
}

// shellQuote wraps s in single quotes, escaping embedded single quotes the
// POSIX way.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "."
	}
	return path[:idx]
}
