package orch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"codepilot/pkg/actions"
	"codepilot/pkg/config"
	"codepilot/pkg/contextmgr"
	"codepilot/pkg/diagnosis"
	"codepilot/pkg/host"
	"codepilot/pkg/logx"
	"codepilot/pkg/metrics"
	"codepilot/pkg/plan"
	"codepilot/pkg/proposer"
	"codepilot/pkg/proto"
	"codepilot/pkg/safety"
	"codepilot/pkg/sandbox"
)

// rollbackWarning is appended to every result turn of a step whose file
// changes were discarded. Untracked side effects are worse than a loud
// rollback.
const rollbackWarning = "WARNING: file changes made during a read-only phase were stashed and discarded"

// PlanStore is the durable plan boundary: an issue body, a database row.
// Writes replace the whole document atomically.
type PlanStore interface {
	ReadPlan(ctx context.Context, ref string) (plan.TaskPlan, bool, error)
	WritePlan(ctx context.Context, ref string, p plan.TaskPlan) error
}

// PRCreator opens or refreshes the pull request for a finished task.
type PRCreator interface {
	CreateOrUpdatePR(ctx context.Context, opts host.PROptions) (*host.PullRequest, error)
}

// Options wires an Orchestrator. Filter, Store, Host, and Metrics may be
// nil.
type Options struct {
	Config   config.Config
	Proposer proposer.Proposer
	Sandbox  *sandbox.Manager
	Registry *actions.Registry
	Filter   *safety.Filter
	Store    PlanStore
	Host     PRCreator
	Metrics  *metrics.Metrics
}

// RunSpec describes one task run.
type RunSpec struct {
	Request string
	PlanRef string
	RepoURL string
	Branch  string
	// SessionID resumes an existing sandbox session when set.
	SessionID string
	// RequireApproval pauses after planning in the Suspended state; the
	// caller continues with Resume.
	RequireApproval bool
}

// ResumeToken carries the minimal state needed to continue a suspended
// run. Resumption is a plain function call.
type ResumeToken struct {
	PlanRef   string
	SessionID string
	TaskID    uuid.UUID
}

// Orchestrator owns one task's turn sequence. Steps run strictly
// sequentially; only the actions inside a single step execute concurrently.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Orchestrator struct {
	cfg        config.Config
	proposer   proposer.Proposer
	sandboxMgr *sandbox.Manager
	registry   *actions.Registry
	filter     *safety.Filter
	store      PlanStore
	host       PRCreator
	metrics    *metrics.Metrics
	budget     *contextmgr.Manager
	summarizer *contextmgr.Summarizer
	heuristic  diagnosis.Heuristic
	logger     *logx.Logger

	state   State
	log     *proto.TurnLog
	planDoc plan.TaskPlan
	spec    RunSpec
	session *sandbox.Session
	taskID  uuid.UUID
}

type proposerCompressor struct {
	p proposer.Proposer
}

func (c proposerCompressor) Compress(ctx context.Context, prompt string) (string, error) {
	return c.p.Complete(ctx, prompt)
}

func New(opts Options) *Orchestrator {
	budget := contextmgr.NewManager(opts.Config.Budget)
	return &Orchestrator{
		cfg:        opts.Config,
		proposer:   opts.Proposer,
		sandboxMgr: opts.Sandbox,
		registry:   opts.Registry,
		filter:     opts.Filter,
		store:      opts.Store,
		host:       opts.Host,
		metrics:    opts.Metrics,
		budget:     budget,
		summarizer: contextmgr.NewSummarizer(budget, proposerCompressor{opts.Proposer}),
		heuristic: diagnosis.Heuristic{
			Window:    opts.Config.Diagnose.Window,
			Threshold: opts.Config.Diagnose.ErrorRateThreshold,
		},
		logger:  logx.NewLogger("orch"),
		state:   StatePlanning,
		log:     proto.NewTurnLog(),
		planDoc: plan.NewTaskPlan(),
	}
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	return o.state
}

// Log exposes the turn log for inspection and persistence.
func (o *Orchestrator) Log() *proto.TurnLog {
	return o.log
}

// Plan returns the current plan aggregate.
func (o *Orchestrator) Plan() plan.TaskPlan {
	return o.planDoc
}

func (o *Orchestrator) transition(to State) error {
	if err := ValidateTransition(o.state, to); err != nil {
		return err
	}
	o.logger.Info("state %s -> %s", o.state, to)
	if o.metrics != nil {
		o.metrics.StateTransitions.WithLabelValues(string(o.state), string(to)).Inc()
	}
	o.state = to
	return nil
}

// Run executes a task from the initial request to a terminal state, or to
// Suspended when spec.RequireApproval is set. A Suspended run is continued
// with Resume.
func (o *Orchestrator) Run(ctx context.Context, spec RunSpec) error {
	o.spec = spec
	o.log.Append(proto.NewUserTurn(spec.Request))

	session, err := o.sandboxMgr.Acquire(ctx, spec.SessionID, spec.RepoURL, spec.Branch)
	if err != nil {
		return o.abort(ctx, fmt.Errorf("acquire sandbox: %w", err))
	}
	o.session = session

	if o.store != nil && spec.PlanRef != "" {
		stored, ok, err := o.store.ReadPlan(ctx, spec.PlanRef)
		if err != nil {
			return o.abort(ctx, fmt.Errorf("read plan %s: %w", spec.PlanRef, err))
		}
		if ok {
			o.planDoc = stored
		}
	}

	if err := o.runPlanning(ctx); err != nil {
		return err
	}
	if o.state == StateSuspended {
		return nil
	}
	return o.runLoop(ctx)
}

// Resume continues a suspended run with the user's verdict injected as a
// visible turn.
func (o *Orchestrator) Resume(ctx context.Context, tok ResumeToken, userInput string) error {
	if o.state != StateSuspended {
		return fmt.Errorf("resume from %s: %w", o.state, plan.ErrInvalidState)
	}
	o.taskID = tok.TaskID
	if userInput != "" {
		o.log.Append(proto.NewUserTurn(userInput))
	}
	if err := o.transition(StatePlanning); err != nil {
		return err
	}
	if err := o.transition(StateActing); err != nil {
		return err
	}
	return o.runLoop(ctx)
}

// Token returns the resumption token for a suspended run.
func (o *Orchestrator) Token() ResumeToken {
	return ResumeToken{PlanRef: o.spec.PlanRef, SessionID: o.sessionID(), TaskID: o.taskID}
}

func (o *Orchestrator) sessionID() string {
	if o.session == nil {
		return ""
	}
	return o.session.ID
}

// maxPlanningNudges caps how often an empty proposal (no plan, no
// context-gathering actions) is answered with a retry prompt before the
// run aborts.
const maxPlanningNudges = 3

// runPlanning drives Planning (and its read-only GatheringContext detours)
// until a plan exists.
func (o *Orchestrator) runPlanning(ctx context.Context) error {
	nudges := 0
	for {
		if err := ctx.Err(); err != nil {
			return o.halt(ctx, err)
		}
		proposal, err := o.propose(ctx, planningTools())
		if err != nil {
			return o.abort(ctx, fmt.Errorf("planning proposal: %w", err))
		}
		idx := o.appendAssistant(proposal)
		safe := o.filterActions(ctx, idx)

		if planReq, ok := findAction(safe, actions.ActionUpdatePlan); ok {
			if err := o.applyPlanUpdate(ctx, planReq); err != nil {
				return o.abort(ctx, err)
			}
			if o.spec.RequireApproval {
				return o.transition(StateSuspended)
			}
			return o.transition(StateActing)
		}

		executable := executableOnly(safe)
		if len(executable) == 0 {
			// Proposer produced neither a plan nor context-gathering
			// actions; surface that and retry a bounded number of times.
			nudges++
			if nudges > maxPlanningNudges {
				return o.abort(ctx, fmt.Errorf("no plan after %d planning attempts", nudges))
			}
			o.log.Append(proto.NewUserTurn("Propose a plan with the update_plan action, or gather more context first."))
			continue
		}

		// The proposer signaled it lacks information: run the reads in a
		// contractually read-only detour.
		if err := o.transition(StateGatheringContext); err != nil {
			return o.abort(ctx, err)
		}
		o.executeStep(ctx, executable)
		if _, err := o.maybeSummarize(ctx, StateGatheringContext); err != nil {
			return o.abort(ctx, err)
		}
		if err := o.transition(StatePlanning); err != nil {
			return o.abort(ctx, err)
		}
	}
}

// runLoop advances the post-planning state machine to a terminal state.
func (o *Orchestrator) runLoop(ctx context.Context) error {
	for !IsTerminal(o.state) {
		if err := ctx.Err(); err != nil {
			return o.halt(ctx, err)
		}
		var err error
		switch o.state {
		case StateActing:
			err = o.stepActing(ctx)
		case StateVerifying:
			err = o.stepVerifying(ctx)
		case StateReviewing:
			err = o.stepReviewing(ctx)
		default:
			err = fmt.Errorf("unexpected state %s in run loop: %w", o.state, plan.ErrInvalidState)
		}
		if err != nil {
			return o.abort(ctx, err)
		}
	}
	return nil
}

// stepActing runs one propose-filter-execute-route cycle.
func (o *Orchestrator) stepActing(ctx context.Context) error {
	proposal, err := o.propose(ctx, actingTools())
	if err != nil {
		return fmt.Errorf("acting proposal: %w", err)
	}
	idx := o.appendAssistant(proposal)
	safe := o.filterActions(ctx, idx)

	if req, ok := findAction(safe, actions.ActionUpdatePlan); ok {
		if err := o.applyPlanRevision(ctx, req); err != nil {
			return err
		}
	}

	executable := executableOnly(safe)
	if len(executable) > 0 {
		o.executeStep(ctx, executable)
	}

	// Routing priority: budget, then diagnosis, then phase advance.
	if over, err := o.maybeSummarize(ctx, StateActing); err != nil {
		return err
	} else if over {
		return nil
	}
	if o.heuristic.ShouldDiagnose(o.log.Visible()) {
		return o.stepDiagnosing(ctx)
	}
	if req, ok := findAction(safe, actions.ActionCompleteItem); ok {
		return o.applyItemCompletion(ctx, req)
	}
	if len(executable) == 0 || hasAction(safe, actions.ActionDone) {
		return o.transition(StateVerifying)
	}
	return nil
}

// applyItemCompletion marks the current plan item complete on the
// proposer's explicit claim, skipping the verification round, then routes
// to the next item or to review.
func (o *Orchestrator) applyItemCompletion(ctx context.Context, req proto.ActionRequest) error {
	item, ok, err := plan.NextItem(o.planDoc)
	if err != nil {
		return err
	}
	if !ok {
		o.log.Append(proto.NewUserTurn("complete_item proposed but no plan item is open."))
		return o.transition(StateVerifying)
	}

	summary, _ := req.Arguments["summary"].(string)
	task, err := plan.GetActiveTask(o.planDoc)
	if err != nil {
		return err
	}
	updated, err := plan.CompleteItem(o.planDoc, task.ID, item.Index, summaryLine(summary))
	if err != nil {
		return err
	}
	o.planDoc = updated
	if err := o.persistPlan(ctx); err != nil {
		return err
	}

	remaining, err := plan.GetRemainingItems(o.planDoc)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		// Verifying finds no open item and forwards to review.
		return o.transition(StateVerifying)
	}
	return nil
}

// stepVerifying judges the current plan item; completion persists the plan
// and an exhausted plan routes to Reviewing.
func (o *Orchestrator) stepVerifying(ctx context.Context) error {
	item, ok, err := plan.NextItem(o.planDoc)
	if err != nil {
		return err
	}
	if !ok {
		return o.transition(StateReviewing)
	}

	answer, err := o.proposer.Complete(ctx, verifyPrompt(item, o.log.Visible()))
	if err != nil {
		return fmt.Errorf("verify item %d: %w", item.Index, err)
	}
	if !isAffirmative(answer) {
		o.log.Append(proto.NewUserTurn(fmt.Sprintf("Plan item %d (%s) is not complete yet: %s", item.Index, item.Text, strings.TrimSpace(answer))))
		return o.transition(StateActing)
	}

	task, err := plan.GetActiveTask(o.planDoc)
	if err != nil {
		return err
	}
	updated, err := plan.CompleteItem(o.planDoc, task.ID, item.Index, summaryLine(answer))
	if err != nil {
		return err
	}
	o.planDoc = updated
	if err := o.persistPlan(ctx); err != nil {
		return err
	}

	remaining, err := plan.GetRemainingItems(o.planDoc)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return o.transition(StateReviewing)
	}
	return o.transition(StateActing)
}

// stepReviewing asks whether the whole plan satisfied the request; it may
// inject new, unstarted items and loop back to Acting.
func (o *Orchestrator) stepReviewing(ctx context.Context) error {
	proposal, err := o.propose(ctx, reviewingTools())
	if err != nil {
		return fmt.Errorf("review proposal: %w", err)
	}
	idx := o.appendAssistant(proposal)
	safe := o.filterActions(ctx, idx)

	if req, ok := findAction(safe, actions.ActionUpdatePlan); ok {
		items := stringListArg(req.Arguments, "items")
		if len(items) > 0 {
			task, err := plan.GetActiveTask(o.planDoc)
			if err != nil {
				return err
			}
			updated, err := plan.AppendItems(o.planDoc, task.ID, items, plan.CreatedByAgent)
			if err != nil {
				return err
			}
			o.planDoc = updated
			if err := o.persistPlan(ctx); err != nil {
				return err
			}
			return o.transition(StateActing)
		}
	}

	return o.conclude(ctx, proposal.Text)
}

// stepDiagnosing runs one analysis round over the recent failures and
// records it as a diagnostic result so the cooldown suppresses a rerun.
func (o *Orchestrator) stepDiagnosing(ctx context.Context) error {
	if err := o.transition(StateDiagnosing); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.DiagnosisRuns.Inc()
	}

	req := proto.NewActionRequest(diagnosis.ActionName, nil)
	o.log.Append(proto.NewAssistantTurn("Repeated action failures detected; analyzing before continuing.", []proto.ActionRequest{req}))

	report, err := o.proposer.Complete(ctx, diagnosePrompt(o.log.Visible()))
	if err != nil {
		return fmt.Errorf("diagnose: %w", err)
	}
	result := proto.NewResultTurn(req, proto.StatusSuccess, report)
	result.Diagnostic = true
	o.log.Append(result)

	return o.transition(StateActing)
}

// maybeSummarize trips the budget check and, when over, compresses history
// and returns to the given state.
func (o *Orchestrator) maybeSummarize(ctx context.Context, returnTo State) (bool, error) {
	if !o.budget.OverBudget(o.log.Visible()) {
		return false, nil
	}
	if err := o.transition(StateSummarizing); err != nil {
		return false, err
	}
	planText, err := plan.Render(o.planDoc)
	if err != nil {
		return false, err
	}
	extracted, err := o.summarizer.Summarize(ctx, o.log, planText)
	if err != nil {
		return false, fmt.Errorf("summarize: %w", err)
	}
	o.logger.Info("summarized %d turns", extracted)
	if o.metrics != nil {
		o.metrics.Summarizations.Inc()
	}
	return true, o.transition(returnTo)
}

// executeStep runs the step's actions concurrently and appends result
// turns in request order, then reconciles working-tree state.
func (o *Orchestrator) executeStep(ctx context.Context, reqs []proto.ActionRequest) {
	results := make([]actions.Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range reqs {
		g.Go(func() error {
			results[i] = o.registry.Execute(gctx, reqs[i], o.session)
			return nil
		})
	}
	// Handlers report failure through result status, never through the
	// group error.
	_ = g.Wait()

	indices := make([]int, len(reqs))
	for i := range reqs {
		indices[i] = o.log.Append(proto.NewResultTurn(reqs[i], results[i].Status, results[i].Text))
		if o.metrics != nil {
			o.metrics.ActionsExecuted.WithLabelValues(reqs[i].Name, string(results[i].Status)).Inc()
		}
	}

	o.reconcileWorkingTree(ctx, indices)
}

// reconcileWorkingTree is the step's sole serialization point: one thread
// inspects the diff after all concurrent actions resolve. In a read-only
// phase any uncommitted change is stashed and discarded, and the step's
// result turns are rewritten with a visible warning.
func (o *Orchestrator) reconcileWorkingTree(ctx context.Context, resultIndices []int) {
	if o.state != StateGatheringContext {
		return
	}
	changed, err := o.sandboxMgr.ChangedFiles(ctx, o.session)
	if err != nil {
		o.logger.Warn("working-tree check failed: %v", err)
		return
	}
	if len(changed) == 0 {
		return
	}
	o.logger.Warn("read-only phase produced %d changed files, rolling back: %v", len(changed), changed)
	if err := o.sandboxMgr.StashAndDiscard(ctx, o.session); err != nil {
		o.logger.Error("stash-and-discard failed: %v", err)
	}
	for _, idx := range resultIndices {
		turn, ok := o.log.At(idx)
		if !ok {
			continue
		}
		rewritten := turn
		rewritten.ID = uuid.New().String()
		rewritten.Content = turn.Content + "\n\n" + rollbackWarning
		o.log.Supersede(idx, rewritten)
	}
}

// filterActions passes the assistant turn at idx through the safety
// filter, rewriting it when anything is dropped.
func (o *Orchestrator) filterActions(ctx context.Context, idx int) []proto.ActionRequest {
	turn, ok := o.log.At(idx)
	if !ok {
		return nil
	}
	if o.filter == nil || !o.cfg.Safety.Enabled {
		return turn.Actions
	}
	safe, filtered := o.filter.Apply(ctx, o.log, idx)
	if filtered && o.metrics != nil {
		o.metrics.ActionsFiltered.Add(float64(len(turn.Actions) - len(safe)))
	}
	return safe
}

func (o *Orchestrator) propose(ctx context.Context, tools []proposer.ToolSpec) (proposer.Proposal, error) {
	planText, err := plan.Render(o.planDoc)
	if err != nil {
		return proposer.Proposal{}, err
	}
	start := time.Now()
	proposal, err := o.proposer.Propose(ctx, proposer.Request{
		System:      systemPrompt(o.state, o.session),
		PlanContext: planContext(o.state, planText, o.planDoc),
		Turns:       o.log.Visible(),
		Tools:       tools,
		MaxTokens:   o.cfg.Model.MaxReplyTokens,
	})
	if o.metrics != nil {
		o.metrics.ProposalSeconds.Observe(time.Since(start).Seconds())
	}
	return proposal, err
}

func (o *Orchestrator) appendAssistant(p proposer.Proposal) int {
	turn := proto.NewAssistantTurn(p.Text, p.Actions)
	if p.Usage.OutputTokens > 0 {
		turn.ActualTokens = p.Usage.OutputTokens
	}
	return o.log.Append(turn)
}

func (o *Orchestrator) applyPlanUpdate(ctx context.Context, req proto.ActionRequest) error {
	items := stringListArg(req.Arguments, "items")
	if len(items) == 0 {
		return fmt.Errorf("update_plan proposed with no items")
	}
	title, _ := req.Arguments["title"].(string)
	updated, taskID := plan.CreateTask(o.planDoc, o.spec.Request, title, items, nil)
	o.planDoc = updated
	o.taskID = taskID
	return o.persistPlan(ctx)
}

// applyPlanRevision replaces the not-yet-completed tail of the active plan
// mid-execution.
func (o *Orchestrator) applyPlanRevision(ctx context.Context, req proto.ActionRequest) error {
	items := stringListArg(req.Arguments, "items")
	if len(items) == 0 {
		return nil
	}
	task, err := plan.GetActiveTask(o.planDoc)
	if err != nil {
		return err
	}
	updated, err := plan.ReviseTask(o.planDoc, task.ID, items, plan.CreatedByAgent)
	if err != nil {
		return err
	}
	o.planDoc = updated
	return o.persistPlan(ctx)
}

func (o *Orchestrator) persistPlan(ctx context.Context) error {
	if o.store == nil || o.spec.PlanRef == "" {
		return nil
	}
	if err := o.store.WritePlan(ctx, o.spec.PlanRef, o.planDoc); err != nil {
		return fmt.Errorf("persist plan %s: %w", o.spec.PlanRef, err)
	}
	return nil
}

func (o *Orchestrator) conclude(ctx context.Context, summary string) error {
	task, err := plan.GetActiveTask(o.planDoc)
	if err == nil && !task.Completed {
		updated, cerr := plan.CompleteTask(o.planDoc, task.ID, summaryLine(summary))
		if cerr != nil {
			return cerr
		}
		o.planDoc = updated
		if err := o.persistPlan(ctx); err != nil {
			return err
		}
	}
	if err := o.finalize(ctx, summary); err != nil {
		// A failed push or PR update leaves the work in the sandbox; the
		// task itself concluded.
		o.logger.Error("finalize: %v", err)
	}
	if err := o.transition(StateConcluding); err != nil {
		return err
	}
	if o.session != nil {
		if err := o.sandboxMgr.Release(ctx, o.session); err != nil {
			o.logger.Warn("session release failed: %v", err)
		}
		o.session = nil
	}
	return nil
}

// finalize pushes the session branch and opens or refreshes the pull
// request. Skipped when no host client is wired or nothing changed.
func (o *Orchestrator) finalize(ctx context.Context, summary string) error {
	if o.host == nil || o.session == nil {
		return nil
	}
	pushed, err := o.sandboxMgr.CommitAndPush(ctx, o.session, summaryLine(summary))
	if err != nil {
		return fmt.Errorf("commit and push: %w", err)
	}
	if !pushed {
		o.logger.Info("working tree clean, no pull request update")
		return nil
	}

	planText, err := plan.Render(o.planDoc)
	if err != nil {
		return err
	}
	title := summaryLine(summary)
	if title == "" {
		title = summaryLine(o.spec.Request)
	}
	pr, err := o.host.CreateOrUpdatePR(ctx, host.PROptions{
		Title: title,
		Body:  strings.TrimSpace(summary) + "\n\n" + planText,
		Head:  o.session.Branch,
	})
	if err != nil {
		return fmt.Errorf("create or update PR: %w", err)
	}
	o.logger.Info("pull request #%d: %s", pr.Number, pr.URL)
	return nil
}

// abort moves to the terminal Aborted state, releasing the session. The
// triggering error is also rendered as a plain-text diagnostic turn.
func (o *Orchestrator) abort(ctx context.Context, cause error) error {
	o.logger.Error("aborting: %v", cause)
	o.log.Append(proto.NewUserTurn("Fatal: " + cause.Error()))
	o.state = StateAborted
	if o.session != nil {
		if err := o.sandboxMgr.Release(ctx, o.session); err != nil {
			o.logger.Warn("session release on abort failed: %v", err)
		}
		o.session = nil
	}
	return cause
}

// halt handles external cancellation: release the session, keep the log,
// surface the context error.
func (o *Orchestrator) halt(ctx context.Context, cause error) error {
	o.logger.Warn("halted: %v", cause)
	if o.session != nil {
		// The run context is already done; use a fresh one for cleanup.
		if err := o.sandboxMgr.Release(context.WithoutCancel(ctx), o.session); err != nil {
			o.logger.Warn("session release on halt failed: %v", err)
		}
		o.session = nil
	}
	o.state = StateAborted
	return cause
}

func findAction(reqs []proto.ActionRequest, name string) (proto.ActionRequest, bool) {
	for _, r := range reqs {
		if r.Name == name {
			return r, true
		}
	}
	return proto.ActionRequest{}, false
}

func hasAction(reqs []proto.ActionRequest, name string) bool {
	_, ok := findAction(reqs, name)
	return ok
}

// executableOnly strips control actions; unknown names stay in so the
// registry can surface them as synthetic error results.
func executableOnly(reqs []proto.ActionRequest) []proto.ActionRequest {
	var out []proto.ActionRequest
	for _, req := range reqs {
		if !actions.IsControl(req.Name) {
			out = append(out, req)
		}
	}
	return out
}

func stringListArg(args map[string]any, key string) []string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func isAffirmative(answer string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes")
}

// summaryLine trims a model answer down to a single stored summary line.
func summaryLine(answer string) string {
	line := strings.TrimSpace(answer)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	const maxLen = 200
	if len(line) > maxLen {
		line = line[:maxLen]
	}
	return line
}
