// Package orchestrator is the central process: it supervises collector child
// processes, watches the vault for filesystem events, routes task documents
// between stages, runs the periodic jobs, and owns the only call-out to the
// reasoning collaborator.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"deskhand/internal/config"
	"deskhand/internal/eventlog"
	"deskhand/internal/reasoning"
	"deskhand/internal/security"
	"deskhand/internal/supervisor"
	"deskhand/internal/task"
	"deskhand/internal/vault"
)

// CollectorSpec names one collector child and the command that runs it.
type CollectorSpec struct {
	Name string
	Cmd  []string
	Env  map[string]string
}

// Params wires an Orchestrator.
type Params struct {
	Config     *config.Config
	Vault      *vault.Vault
	Gate       *security.Gate
	Reasoner   reasoning.Client
	Events     *eventlog.Log
	Collectors []CollectorSpec
}

// Orchestrator drives the task lifecycle state machine.
type Orchestrator struct {
	cfg      *config.Config
	vault    *vault.Vault
	gate     *security.Gate
	reasoner reasoning.Client
	events   *eventlog.Log
	specs    []CollectorSpec
	logger   *slog.Logger

	collectors []*supervisor.CollectorProcess
	jobs       []*job

	// now is injectable for scheduler tests.
	now func() time.Time
}

// New builds an orchestrator. Run starts it.
func New(p Params, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:      p.Config,
		vault:    p.Vault,
		gate:     p.Gate,
		reasoner: p.Reasoner,
		events:   p.Events,
		specs:    p.Collectors,
		logger:   logger,
		now:      time.Now,
	}
	o.jobs = o.buildJobs()
	return o
}

// Run starts collectors, the vault watcher and the scheduler, then blocks
// until the context is cancelled. Shutdown stops event intake first, then
// terminates collectors with a grace period.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.vault.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	if err := o.vault.Reconcile(); err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}

	o.startCollectors(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create vault watcher: %w", err)
	}
	defer watcher.Close()

	for _, stage := range []vault.Stage{vault.StageNeedsAction, vault.StagePendingApproval, vault.StageApproved} {
		if err := watcher.Add(o.vault.StageDir(stage)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", stage, err)
		}
	}

	// Documents that landed in Needs_Action while the orchestrator was down
	// produce no events; drain them before relying on the watcher.
	o.drainBacklog(ctx)

	o.logger.Info("orchestrator started",
		"vault", o.vault.Root,
		"collectors", len(o.collectors))

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				o.shutdown()
				return fmt.Errorf("vault watcher closed unexpectedly")
			}
			o.handleFSEvent(ctx, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				o.shutdown()
				return fmt.Errorf("vault watcher closed unexpectedly")
			}
			o.logger.Error("vault watcher error", "error", err)

		case <-tick.C:
			o.runDueJobs(ctx)
		}
	}
}

func (o *Orchestrator) startCollectors(ctx context.Context) {
	for _, spec := range o.specs {
		proc := supervisor.NewCollectorProcess(spec.Name, spec.Cmd, spec.Env, o.logger)
		if err := proc.Start(ctx); err != nil {
			o.logger.Error("failed to start collector", "collector", spec.Name, "error", err)
			continue
		}
		o.collectors = append(o.collectors, proc)
	}
}

func (o *Orchestrator) shutdown() {
	o.logger.Info("shutting down orchestrator")
	grace := o.cfg.StopGrace()
	for _, proc := range o.collectors {
		if err := proc.Stop(grace); err != nil {
			o.logger.Warn("collector stop", "collector", proc.Name(), "error", err)
		}
	}
	o.logger.Info("orchestrator shut down complete")
}

// handleFSEvent routes filesystem notifications. Only creation drives the
// state machine; modify events are logged and nothing more.
func (o *Orchestrator) handleFSEvent(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(strings.ToLower(name), ".md") || strings.HasPrefix(name, ".") {
		return
	}

	stage, ok := o.vault.StageOf(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		o.handleCreated(ctx, event.Name, stage)
	case event.Op.Has(fsnotify.Write):
		o.logger.Info("task document modified", "file", name, "stage", stage)
	}
}

func (o *Orchestrator) handleCreated(ctx context.Context, path string, stage vault.Stage) {
	switch stage {
	case vault.StageNeedsAction:
		o.ProcessNewTask(ctx, path)
	case vault.StageApproved:
		o.ExecuteApproved(path)
	case vault.StagePendingApproval:
		o.handleApprovalRequest(path)
	}
}

// ProcessNewTask drives Needs_Action → In_Progress → {Pending_Approval |
// Plans | Done}. The reasoning call is synchronous; this is a low-volume task
// queue, not a request-serving system.
func (o *Orchestrator) ProcessNewTask(ctx context.Context, path string) {
	name := filepath.Base(path)
	o.logger.Info("processing new task", "file", name)

	doc, err := o.vault.Read(path)
	if err != nil {
		// Unparseable documents are quarantined, not silently defaulted.
		o.logger.Error("quarantining unparseable task", "file", name, "error", err)
		if _, moveErr := o.vault.MoveToErrors(path); moveErr != nil {
			o.logger.Error("failed to quarantine task", "file", name, "error", moveErr)
		}
		return
	}

	inProgress, err := o.vault.Move(path, vault.StageInProgress)
	if err != nil {
		o.logger.Error("failed to move task to In_Progress", "file", name, "error", err)
		return
	}
	o.recordTransition(doc.Header.ID, vault.StageNeedsAction, vault.StageInProgress)

	result := o.reasoner.Analyze(ctx, reasoning.Request{
		TaskID: doc.Header.ID,
		Body:   doc.Body,
		Metadata: map[string]string{
			"id":       doc.Header.ID,
			"source":   doc.Header.Source,
			"priority": doc.Header.Priority,
			"category": doc.Header.Category,
		},
	})

	if !result.Success {
		o.failTask(inProgress, doc, result.Err)
		return
	}

	o.routeAnalyzed(inProgress, doc, result)
}

// routeAnalyzed appends the response to the document and classifies the
// combined text: "approval" wins over "plan"/"planned", anything else is done.
func (o *Orchestrator) routeAnalyzed(path string, doc *task.Document, result reasoning.Result) {
	doc.Body = fmt.Sprintf("%s\n\n---\n\n## Analysis\n%s\n", strings.TrimRight(doc.Body, "\n"), result.Content)
	if err := o.vault.Write(path, doc); err != nil {
		o.logger.Error("failed to append analysis", "file", filepath.Base(path), "error", err)
	}

	combined := strings.ToLower(doc.Body)
	var dest vault.Stage
	switch {
	case strings.Contains(combined, "approval"):
		dest = vault.StagePendingApproval
	case strings.Contains(combined, "plan"):
		dest = vault.StagePlans
	default:
		dest = vault.StageDone
	}

	if _, err := o.vault.Move(path, dest); err != nil {
		o.logger.Error("failed to route task", "file", filepath.Base(path), "dest", dest, "error", err)
		return
	}
	o.recordTransition(doc.Header.ID, vault.StageInProgress, dest)
	o.logger.Info("task routed", "task_id", doc.Header.ID, "stage", dest)
}

// failTask moves a task whose reasoning call failed into the error holding
// area. It is not retried automatically; an operator must re-trigger it.
func (o *Orchestrator) failTask(path string, doc *task.Document, reason string) {
	o.logger.Error("reasoning call failed", "task_id", doc.Header.ID, "error", reason)

	if _, err := o.vault.MoveToErrors(path); err != nil {
		o.logger.Error("failed to move task to error area", "file", filepath.Base(path), "error", err)
	}

	if err := o.events.Append(eventlog.Record{
		Kind:    eventlog.KindReasoningFailure,
		Subject: doc.Header.ID,
		Detail:  reason,
	}); err != nil {
		o.logger.Error("failed to record reasoning failure", "error", err)
	}
}

// ExecuteApproved performs the now-sanctioned action for a document a human
// moved into Approved, then archives it in Done.
func (o *Orchestrator) ExecuteApproved(path string) {
	name := filepath.Base(path)
	o.logger.Info("executing approved action", "file", name)

	doc, err := o.vault.Read(path)
	if err != nil {
		o.logger.Error("failed to read approved task", "file", name, "error", err)
		return
	}

	// The human's move is the authorization; the gate decision is logged for
	// the audit trail.
	level, reason := o.gate.Evaluate(security.ActionCommunication, security.Context{
		"human_approved": true,
	})
	o.logger.Info("approved action gate check", "task_id", doc.Header.ID, "level", level.String(), "reason", reason)

	if _, err := o.vault.Move(path, vault.StageDone); err != nil {
		o.logger.Error("failed to archive approved task", "file", name, "error", err)
		return
	}
	o.recordTransition(doc.Header.ID, vault.StageApproved, vault.StageDone)
	o.logger.Info("approved action executed and archived", "task_id", doc.Header.ID)
}

func (o *Orchestrator) handleApprovalRequest(path string) {
	o.logger.Info("approval required", "file", filepath.Base(path))
}

// drainBacklog processes documents already sitting in stages the watcher
// would otherwise only see new events for.
func (o *Orchestrator) drainBacklog(ctx context.Context) {
	for _, path := range o.vault.List(vault.StageNeedsAction) {
		if ctx.Err() != nil {
			return
		}
		o.ProcessNewTask(ctx, path)
	}
	for _, path := range o.vault.List(vault.StageApproved) {
		if ctx.Err() != nil {
			return
		}
		o.ExecuteApproved(path)
	}
}

func (o *Orchestrator) recordTransition(taskID string, from, to vault.Stage) {
	if err := o.events.Append(eventlog.Record{
		Kind:    eventlog.KindTaskTransition,
		Subject: taskID,
		Fields:  map[string]string{"from": string(from), "to": string(to)},
	}); err != nil {
		o.logger.Warn("failed to record transition", "error", err)
	}
}

// Status is a point-in-time snapshot for health logging.
type Status struct {
	Running         bool
	StageCounts     map[vault.Stage]int
	CollectorStates map[string]supervisor.State
}

// GetStatus reports stage counts and collector health.
func (o *Orchestrator) GetStatus() Status {
	states := map[string]supervisor.State{}
	for _, proc := range o.collectors {
		states[proc.Name()] = proc.State()
	}
	return Status{
		Running:         true,
		StageCounts:     o.vault.Counts(),
		CollectorStates: states,
	}
}
