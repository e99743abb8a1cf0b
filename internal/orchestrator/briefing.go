package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"deskhand/internal/fsutil"
	"deskhand/internal/supervisor"
	"deskhand/internal/vault"
)

// generateDailyBriefing counts documents per stage and writes a summary into
// the Logs area.
func (o *Orchestrator) generateDailyBriefing(ctx context.Context) error {
	status := o.GetStatus()
	now := o.now()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Daily Status Briefing - %s\n\n", now.Format("2006-01-02"))
	sb.WriteString("## Task Status\n\n")
	sb.WriteString(stageTable(status))
	sb.WriteString("\n\n## System Health\n\n")
	sb.WriteString(healthSummary(status))
	fmt.Fprintf(&sb, "\n\n---\nGenerated by deskhand at %s\n", now.Format("2006-01-02T15:04:05"))

	path := filepath.Join(o.vault.LogsPath(), fmt.Sprintf("daily_briefing_%s.md", now.Format("20060102")))
	if err := fsutil.AtomicWrite(path, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to write daily briefing: %w", err)
	}

	o.logger.Info("daily briefing generated", "path", path)
	return nil
}

// generateWeeklyBriefing writes the operator-facing weekly summary into the
// Briefings area.
func (o *Orchestrator) generateWeeklyBriefing(ctx context.Context) error {
	status := o.GetStatus()
	now := o.now()

	weekStart := now.AddDate(0, 0, -int(now.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 6)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Weekly Briefing - Week of %s to %s\n\n",
		weekStart.Format("2006-01-02"), weekEnd.Format("2006-01-02"))

	sb.WriteString("## Pipeline\n\n")
	sb.WriteString(stageTable(status))

	completed := status.StageCounts[vault.StageDone]
	rejected := status.StageCounts[vault.StageRejected]
	waiting := status.StageCounts[vault.StagePendingApproval]

	sb.WriteString("\n\n## Key Metrics\n\n")
	metrics := table.NewWriter()
	metrics.AppendHeader(table.Row{"Metric", "Value", "Target"})
	metrics.AppendRows([]table.Row{
		{"Tasks completed", completed, "-"},
		{"Tasks rejected", rejected, "-"},
		{"Awaiting approval", waiting, "0"},
		{"Monthly revenue target", fmt.Sprintf("$%.0f", o.cfg.Security.MonthlyRevenueTarget), "-"},
	})
	sb.WriteString(metrics.RenderMarkdown())

	sb.WriteString("\n\n## System Health\n\n")
	sb.WriteString(healthSummary(status))

	sb.WriteString("\n\n## Next Week Priorities\n\n")
	fmt.Fprintf(&sb, "- Process %d pending tasks\n", status.StageCounts[vault.StageNeedsAction])
	fmt.Fprintf(&sb, "- Follow up on %d approval requests\n", waiting)
	fmt.Fprintf(&sb, "- Monitor %d ongoing tasks\n", status.StageCounts[vault.StageInProgress])

	fmt.Fprintf(&sb, "\n---\nGenerated by deskhand at %s\n", now.Format("2006-01-02T15:04:05"))

	path := filepath.Join(o.vault.BriefingsPath(), fmt.Sprintf("%s_weekly_briefing.md", now.Format("20060102")))
	if err := fsutil.AtomicWrite(path, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to write weekly briefing: %w", err)
	}

	o.logger.Info("weekly briefing generated", "path", path)
	return nil
}

// stageTable renders the per-stage document counts as a markdown table.
func stageTable(status Status) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Stage", "Documents"})
	for _, stage := range vault.Stages {
		t.AppendRow(table.Row{string(stage), status.StageCounts[stage]})
	}
	return t.RenderMarkdown()
}

func healthSummary(status Status) string {
	healthy := 0
	for _, state := range status.CollectorStates {
		if state == supervisor.StateRunning {
			healthy++
		}
	}
	return fmt.Sprintf("- **Orchestrator:** healthy\n- **Collectors:** %d/%d healthy",
		healthy, len(status.CollectorStates))
}
