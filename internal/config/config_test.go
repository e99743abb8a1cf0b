package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./deskhand_vault", cfg.VaultPath)
	assert.Equal(t, "./deskhand_dropzone", cfg.DropzonePath)
	assert.Equal(t, 50.0, cfg.Security.ApprovalThresholdLow)
	assert.Equal(t, 100.0, cfg.Security.ApprovalThresholdHigh)
	assert.Equal(t, []string{"claude", "-p"}, cfg.Reasoning.Cmd)
	assert.Equal(t, 120*time.Second, cfg.ReasoningTimeout())
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval())
	assert.Equal(t, 5*time.Second, cfg.StopGrace())

	require.Len(t, cfg.Collectors, 1)
	assert.Equal(t, "dropzone", cfg.Collectors[0].Name)
	assert.Equal(t, 10, cfg.Collectors[0].IntervalSeconds)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskhand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vault_path: /srv/vault
security:
  approval_threshold_low: 25
  approval_threshold_high: 200
  known_contacts:
    - alice@client.com
collectors:
  - name: dropzone
    interval_seconds: 5
  - name: mailbox
    cmd: ["mailbox-collector", "--poll"]
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/vault", cfg.VaultPath)
	assert.Equal(t, "./deskhand_dropzone", cfg.DropzonePath, "unset keys keep their defaults")
	assert.Equal(t, 25.0, cfg.Security.ApprovalThresholdLow)
	assert.Equal(t, 200.0, cfg.Security.ApprovalThresholdHigh)
	assert.Equal(t, []string{"alice@client.com"}, cfg.Security.KnownContacts)

	require.Len(t, cfg.Collectors, 2)
	assert.Equal(t, "mailbox", cfg.Collectors[1].Name)
	assert.Equal(t, []string{"mailbox-collector", "--poll"}, cfg.Collectors[1].Cmd)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DESKHAND_VAULT_PATH", "/env/vault")
	t.Setenv("DESKHAND_REASONING_TIMEOUT_SECONDS", "30")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/env/vault", cfg.VaultPath)
	assert.Equal(t, 30*time.Second, cfg.ReasoningTimeout())
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			VaultPath:    "./vault",
			DropzonePath: "./dropzone",
			Security: Security{
				ApprovalThresholdLow:  50,
				ApprovalThresholdHigh: 100,
			},
			Reasoning: Reasoning{Cmd: []string{"claude", "-p"}},
			Scheduler: Scheduler{
				HealthCheckSeconds: 30,
				DailyBriefingAt:    "08:00",
				WeeklyBriefingDay:  "Sunday",
				WeeklyBriefingAt:   "09:00",
			},
			Collectors: []CollectorConfig{{Name: "dropzone"}},
		}
	}

	assert.NoError(t, valid().Validate())

	broken := valid()
	broken.VaultPath = ""
	assert.ErrorContains(t, broken.Validate(), "vault_path")

	broken = valid()
	broken.Security.ApprovalThresholdHigh = 10
	assert.ErrorContains(t, broken.Validate(), "approval_threshold_high")

	broken = valid()
	broken.Reasoning.Cmd = nil
	assert.ErrorContains(t, broken.Validate(), "reasoning.cmd")

	broken = valid()
	broken.Scheduler.DailyBriefingAt = "25:00"
	assert.ErrorContains(t, broken.Validate(), "daily_briefing_at")

	broken = valid()
	broken.Scheduler.WeeklyBriefingDay = "Someday"
	assert.ErrorContains(t, broken.Validate(), "weekly_briefing_day")

	broken = valid()
	broken.Collectors = append(broken.Collectors, CollectorConfig{Name: "dropzone"})
	assert.ErrorContains(t, broken.Validate(), "duplicate collector")
}

func TestParseClock(t *testing.T) {
	at, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, [2]int{8, 30}, at)

	_, err = ParseClock("not a time")
	assert.Error(t, err)

	_, err = ParseClock("24:00")
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday("sunday")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, day)

	_, err = ParseWeekday("Caturday")
	assert.Error(t, err)
}
