package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"deskhand/internal/collector"
	"deskhand/internal/vault"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single collector",
	Long: `Run one collector in the foreground. The orchestrator launches this
subcommand as a supervised child process for each configured source.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().String("source", "dropzone", "Source to collect from")
	collectCmd.Flags().Int("interval", 0, "Polling interval in seconds (0 = source default)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sourceName, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	intervalSeconds, err := cmd.Flags().GetInt("interval")
	if err != nil {
		return err
	}

	v := vault.Open(cfg.VaultPath, logger)
	if err := v.Initialize(); err != nil {
		return fmt.Errorf("failed to create required directories: %w", err)
	}

	source, err := buildSource(sourceName, cfg.DropzonePath)
	if err != nil {
		return err
	}

	dedupe, err := collector.LoadDedupe(
		filepath.Join(v.LogsPath(), fmt.Sprintf("seen_%s.txt", sourceName)), logger)
	if err != nil {
		return fmt.Errorf("failed to load dedupe set: %w", err)
	}

	var opts []collector.Option
	if intervalSeconds > 0 {
		opts = append(opts, collector.WithInterval(time.Duration(intervalSeconds)*time.Second))
	}

	runtime := collector.NewRuntime(source, v, dedupe, logger, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runtime.Run(ctx)
	if errors.Is(err, collector.ErrStopped) {
		// Terminal for this collector; the orchestrator's health check
		// surfaces the non-zero exit.
		return err
	}
	if err == nil || ctx.Err() != nil {
		// A termination signal is a graceful stop.
		return nil
	}
	return err
}

func buildSource(name, dropzonePath string) (collector.Source, error) {
	switch name {
	case "dropzone":
		return collector.NewDropzoneSource(dropzonePath, nil)
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}
