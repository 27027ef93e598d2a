package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"codepilot/pkg/actions"
	"codepilot/pkg/config"
	"codepilot/pkg/eventlog"
	"codepilot/pkg/host"
	"codepilot/pkg/logx"
	"codepilot/pkg/metrics"
	"codepilot/pkg/orch"
	"codepilot/pkg/persistence"
	"codepilot/pkg/proposer"
	"codepilot/pkg/proposer/anthropic"
	"codepilot/pkg/proposer/openai"
	"codepilot/pkg/safety"
	"codepilot/pkg/sandbox"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		repoURL     = flag.String("repo", "", "Git repository URL to work on")
		branch      = flag.String("branch", "", "Branch to create or continue on")
		planRef     = flag.String("plan-ref", "", "Durable plan reference (issue number or database key)")
		request     = flag.String("request", "", "The task request text")
		sessionID   = flag.String("session", "", "Existing sandbox session to resume")
		approve     = flag.Bool("require-approval", false, "Pause after planning until the plan is approved")
		issueStore  = flag.Bool("issue-store", false, "Keep the plan in the GitHub issue body instead of SQLite")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("codepilot %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if *debug {
		logx.SetDebug(true)
	}

	os.Exit(run(runOptions{
		configPath: *configPath,
		repoURL:    *repoURL,
		branch:     *branch,
		planRef:    *planRef,
		request:    *request,
		sessionID:  *sessionID,
		approve:    *approve,
		issueStore: *issueStore,
	}))
}

type runOptions struct {
	configPath string
	repoURL    string
	branch     string
	planRef    string
	request    string
	sessionID  string
	approve    bool
	issueStore bool
}

// run contains the main application logic and returns an exit code, so
// defers execute before the process exits.
func run(opts runOptions) int {
	logger := logx.NewLogger("main")

	if opts.repoURL == "" || opts.request == "" {
		fmt.Fprintln(os.Stderr, "both -repo and -request are required")
		return 2
	}
	if opts.branch == "" {
		opts.branch = fmt.Sprintf("codepilot/%d", time.Now().Unix())
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, registry, logger)
	}

	model, err := buildProposer(cfg, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	var db *persistence.Store
	if opts.planRef != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create storage directory: %v\n", err)
			return 1
		}
		db, err = persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			return 1
		}
		defer func() { _ = db.Close() }()
	}

	store, hostClient, err := buildStore(db, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open plan store: %v\n", err)
		return 1
	}

	// A known unreleased session for this plan is resumed rather than
	// recloned.
	if opts.sessionID == "" && db != nil {
		if rec, lerr := db.LookupSession(ctx, opts.planRef); lerr == nil {
			logger.Info("resuming recorded session %s", rec.ID)
			opts.sessionID = rec.ID
			opts.branch = rec.Branch
		}
	}

	events, err := eventlog.NewWriter(cfg.EventLog.Dir, opts.planRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open event log: %v\n", err)
		return 1
	}
	defer func() { _ = events.Close() }()

	provider := sandbox.NewDockerProvider(cfg.Sandbox)
	if !provider.Available() {
		fmt.Fprintln(os.Stderr, "no container runtime available; install docker or podman")
		return 1
	}
	sink := func(e sandbox.Event) {
		m.SandboxEvents.WithLabelValues(e.Action, string(e.Status)).Inc()
		if err := events.WriteSandboxEvent(e); err != nil {
			logger.Warn("event log write failed: %v", err)
		}
	}
	sandboxMgr := sandbox.NewManager(provider, cfg.Sandbox, sink)

	var filter *safety.Filter
	if cfg.Safety.Enabled {
		filter = safety.NewFilter(safety.NewModelClassifier(model), actions.SideEffecting, cfg.Safety.ClassifierTimeout)
	}

	o := orch.New(orch.Options{
		Config:   cfg,
		Proposer: model,
		Sandbox:  sandboxMgr,
		Registry: actions.NewRegistry(sandboxMgr),
		Filter:   filter,
		Store:    store,
		Host:     hostClient,
		Metrics:  m,
	})

	err = o.Run(ctx, orch.RunSpec{
		Request:         opts.request,
		PlanRef:         opts.planRef,
		RepoURL:         opts.repoURL,
		Branch:          opts.branch,
		SessionID:       opts.sessionID,
		RequireApproval: opts.approve,
	})

	for _, turn := range o.Log().Audit() {
		if werr := events.WriteTurn(turn); werr != nil {
			logger.Warn("event log write failed: %v", werr)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted, session released")
			return 130
		}
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		return 1
	}

	if o.State() == orch.StateSuspended {
		tok := o.Token()
		if db != nil && tok.SessionID != "" {
			rec := persistence.SessionRecord{
				ID:        tok.SessionID,
				PlanRef:   opts.planRef,
				RepoURL:   opts.repoURL,
				Branch:    opts.branch,
				CreatedAt: time.Now().UTC(),
			}
			if serr := db.SaveSession(ctx, rec); serr != nil {
				logger.Warn("save session record: %v", serr)
			}
		}
		fmt.Println("Plan is awaiting approval.")
		fmt.Printf("Resume with: codepilot -repo %s -branch %s -plan-ref %s -session %s -request <verdict>\n",
			opts.repoURL, opts.branch, tok.PlanRef, tok.SessionID)
		return 0
	}

	if db != nil && opts.sessionID != "" {
		if rerr := db.MarkReleased(ctx, opts.sessionID); rerr != nil && !errors.Is(rerr, persistence.ErrNotFound) {
			logger.Warn("mark session released: %v", rerr)
		}
	}

	fmt.Printf("Done. Final state: %s\n", o.State())
	return 0
}

// buildProposer selects the model backend and wraps it with the circuit
// breaker and retry layers.
func buildProposer(cfg config.Config, m *metrics.Metrics) (proposer.Proposer, error) {
	var (
		inner proposer.Proposer
		err   error
	)
	switch cfg.Model.Provider {
	case config.ProviderAnthropic:
		var key string
		key, err = apiKey("ANTHROPIC_API_KEY")
		if err == nil {
			inner = anthropic.New(key, cfg.Model.Name)
		}
	case config.ProviderOpenAI:
		var key string
		key, err = apiKey("OPENAI_API_KEY")
		if err == nil {
			inner = openai.New(key, cfg.Model.Name)
		}
	default:
		err = fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
	if err != nil {
		return nil, err
	}

	breakers := orch.NewBreakerRegistry(orch.DefaultBreakerConfig, m)
	guarded := breakers.Get(cfg.Model.Provider, inner)
	return orch.NewRetryProposer(guarded, orch.DefaultRetryConfig), nil
}

// apiKey reads the key from the environment, prompting on the terminal
// when absent and stdin is interactive.
func apiKey(envVar string) (string, error) {
	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		return key, nil
	}
	if !term.IsTerminal(syscall.Stdin) {
		return "", fmt.Errorf("%s is not set", envVar)
	}
	fmt.Printf("Enter %s: ", envVar)
	raw, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", envVar, err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", fmt.Errorf("%s is empty", envVar)
	}
	return key, nil
}

// buildStore picks the durable plan store (the GitHub issue body when
// requested, SQLite otherwise) and the host client used for pull request
// finalization on GitHub-hosted repositories.
func buildStore(db *persistence.Store, opts runOptions) (orch.PlanStore, orch.PRCreator, error) {
	client, err := host.NewClientFromRemote(opts.repoURL)
	if err != nil {
		// Non-GitHub remotes still work; they just get no PR.
		client = nil
	}

	var hostClient orch.PRCreator
	if client != nil {
		hostClient = client
	}

	if opts.planRef == "" {
		return nil, hostClient, nil
	}
	if opts.issueStore {
		if client == nil {
			return nil, nil, fmt.Errorf("issue store requires a GitHub repository URL")
		}
		return host.NewIssueStore(client), hostClient, nil
	}
	return db, hostClient, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("metrics listening on %s", addr)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server: %v", err)
	}
}
