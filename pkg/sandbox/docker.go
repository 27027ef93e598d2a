package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"codepilot/pkg/config"
	"codepilot/pkg/logx"
)

const (
	dockerCommand = "docker"
	podmanCommand = "podman"
)

// DockerProvider runs environments as long-lived containers. Each container
// persists for the duration of a session so state survives between commands.
type DockerProvider struct {
	logger    *logx.Logger
	dockerCmd string
	prefix    string
	resources config.ResourceCfg
}

func NewDockerProvider(cfg config.SandboxCfg) *DockerProvider {
	// Prefer docker; fall back to podman when only podman is installed.
	dockerCmd := dockerCommand
	if _, err := exec.LookPath(dockerCommand); err != nil {
		if _, err := exec.LookPath(podmanCommand); err == nil {
			dockerCmd = podmanCommand
		}
	}
	return &DockerProvider{
		logger:    logx.NewLogger("docker"),
		dockerCmd: dockerCmd,
		prefix:    "codepilot-",
		resources: cfg.Resources,
	}
}

// Available reports whether the container daemon responds.
func (d *DockerProvider) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, d.dockerCmd, "ps", "-q").Run() == nil
}

func (d *DockerProvider) Create(ctx context.Context, image string) (Handle, error) {
	name := d.prefix + uuid.New().String()[:8]

	args := []string{"run", "-d", "--name", name, "--security-opt", "no-new-privileges"}
	if d.resources.CPUs != "" {
		args = append(args, "--cpus", d.resources.CPUs)
	}
	if d.resources.Memory != "" {
		args = append(args, "--memory", d.resources.Memory)
	}
	if d.resources.PIDs > 0 {
		args = append(args, "--pids-limit", strconv.FormatInt(d.resources.PIDs, 10))
	}
	args = append(args, image, "sleep", "infinity")

	d.logger.Info("starting container %s (image=%s)", name, image)
	cmd := exec.CommandContext(ctx, d.dockerCmd, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		d.logger.Error("container start failed: %v\n%s", err, output)
		return Handle{}, fmt.Errorf("start container %s: %w", name, err)
	}
	return Handle{ID: name, Image: image}, nil
}

func (d *DockerProvider) Get(ctx context.Context, id string) (Handle, error) {
	cmd := exec.CommandContext(ctx, d.dockerCmd, "ps", "-q", "--filter", "name="+id)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Handle{}, fmt.Errorf("query container %s: %w", id, err)
	}
	if strings.TrimSpace(string(output)) == "" {
		return Handle{}, ErrNotFound
	}
	return Handle{ID: id}, nil
}

func (d *DockerProvider) RunCommand(ctx context.Context, h Handle, cmd []string, cwd string, timeout time.Duration) (RunResult, error) {
	if len(cmd) == 0 {
		return RunResult{}, fmt.Errorf("command cannot be empty")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execArgs := []string{"exec", "-i"}
	if cwd != "" {
		execArgs = append(execArgs, "--workdir", cwd)
	}
	execArgs = append(execArgs, h.ID)
	execArgs = append(execArgs, cmd...)

	d.logger.Debug("exec in %s: %s", h.ID, strings.Join(cmd, " "))
	execCmd := exec.CommandContext(ctx, d.dockerCmd, execArgs...)
	output, err := execCmd.CombinedOutput()
	result := RunResult{Output: string(output)}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is a command outcome, not a transport failure.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = 1
		return result, fmt.Errorf("docker exec in %s: %w", h.ID, err)
	}
	return result, nil
}

func (d *DockerProvider) Stop(ctx context.Context, h Handle) error {
	if err := exec.CommandContext(ctx, d.dockerCmd, "stop", h.ID).Run(); err != nil {
		d.logger.Warn("failed to stop container %s: %v", h.ID, err)
		return fmt.Errorf("stop container %s: %w", h.ID, err)
	}
	return nil
}

func (d *DockerProvider) Delete(ctx context.Context, h Handle) error {
	if err := exec.CommandContext(ctx, d.dockerCmd, "rm", "-f", h.ID).Run(); err != nil {
		d.logger.Warn("failed to remove container %s: %v", h.ID, err)
		return fmt.Errorf("remove container %s: %w", h.ID, err)
	}
	return nil
}
