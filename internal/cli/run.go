package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"deskhand/internal/config"
	"deskhand/internal/eventlog"
	"deskhand/internal/orchestrator"
	"deskhand/internal/reasoning"
	"deskhand/internal/security"
	"deskhand/internal/vault"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the orchestrator",
	Long: `Start the orchestrator: launch collector child processes, watch the vault
for new task documents, and route them through the approval pipeline until a
termination signal arrives.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info("configuration loaded",
		"vault", cfg.VaultPath,
		"dropzone", cfg.DropzonePath)

	v := vault.Open(cfg.VaultPath, logger)
	if err := v.Initialize(); err != nil {
		return fmt.Errorf("failed to create required directories: %w", err)
	}

	events, err := eventlog.Open(filepath.Join(v.LogsPath(), "events.ndjson"), logger)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer events.Close()

	gate := security.NewGate(security.Params{
		ThresholdLow:  cfg.Security.ApprovalThresholdLow,
		ThresholdHigh: cfg.Security.ApprovalThresholdHigh,
		KnownContacts: cfg.Security.KnownContacts,
		Recorder:      &gateRecorder{events: events, logger: logger},
	}, logger)

	reasoner, err := reasoning.NewCommandClient(cfg.Reasoning.Cmd, cfg.ReasoningTimeout(), logger)
	if err != nil {
		return fmt.Errorf("failed to build reasoning client: %w", err)
	}

	specs, err := collectorSpecs(cfg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Params{
		Config:     cfg,
		Vault:      v,
		Gate:       gate,
		Reasoner:   reasoner,
		Events:     events,
		Collectors: specs,
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return orch.Run(ctx)
}

// collectorSpecs resolves each configured collector to a runnable command. An
// empty cmd re-execs this binary with the collect subcommand.
func collectorSpecs(cfg *config.Config) ([]orchestrator.CollectorSpec, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable path: %w", err)
	}

	specs := make([]orchestrator.CollectorSpec, 0, len(cfg.Collectors))
	for _, col := range cfg.Collectors {
		cmd := col.Cmd
		if len(cmd) == 0 {
			cmd = []string{
				self, "collect",
				"--source", col.Name,
				"--vault", cfg.VaultPath,
				"--dropzone", cfg.DropzonePath,
			}
			if col.IntervalSeconds > 0 {
				cmd = append(cmd, "--interval", fmt.Sprintf("%d", col.IntervalSeconds))
			}
		}
		specs = append(specs, orchestrator.CollectorSpec{
			Name: col.Name,
			Cmd:  cmd,
			Env:  col.Env,
		})
	}
	return specs, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// CLI path overrides beat both file and environment.
	if vaultPath, _ := cmd.Flags().GetString("vault"); vaultPath != "" {
		cfg.VaultPath = vaultPath
	}
	if dropzonePath, _ := cmd.Flags().GetString("dropzone"); dropzonePath != "" {
		cfg.DropzonePath = dropzonePath
	}

	return cfg, nil
}

// gateRecorder persists gate decisions to the event log.
type gateRecorder struct {
	events *eventlog.Log
	logger *slog.Logger
}

func (r *gateRecorder) RecordDecision(action security.ActionType, level security.ApprovalLevel, reason string) {
	if err := r.events.Append(eventlog.Record{
		Kind:    eventlog.KindSecurityDecision,
		Subject: string(action),
		Detail:  reason,
		Fields:  map[string]string{"level": level.String()},
	}); err != nil {
		r.logger.Warn("failed to record security decision", "error", err)
	}
}
