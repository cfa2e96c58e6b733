package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./blockd.db
  busy_timeout: 5s
alarms:
  user_id: user-1
  look_ahead_days: 14
  bridge_timeout: 10s
  retry_max: 2
  timezone: Asia/Jakarta
enforce:
  enabled: true
  idle_poll: 5m
  active_poll: 2m
  allowed_apps:
    - com.spotify.music
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Alarms.UserID != "user-1" || cfg.Alarms.LookAheadDays != 14 {
		t.Fatalf("alarms = %+v", cfg.Alarms)
	}
	if !cfg.Enforce.Enabled || len(cfg.Enforce.AllowedApps) != 1 {
		t.Fatalf("enforce = %+v", cfg.Enforce)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
alarms:
  user_id: u
  look_ahed_days: 7
enforce: {}
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("misspelled field must be rejected")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
alarms:
  user_id: u
  bridge_timeout: ten seconds
enforce: {}
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("unparsable duration must be rejected")
	}
}

func TestResolvedDefaults(t *testing.T) {
	var a AlarmsConfig
	if got := a.ResolvedLookAhead(); got != 7 {
		t.Fatalf("look ahead default = %d", got)
	}
	if got := a.ResolvedBridgeTimeout(); got != 10*time.Second {
		t.Fatalf("bridge timeout default = %s", got)
	}
	if got := a.ResolvedRetryMax(); got != 3 {
		t.Fatalf("retry max default = %d", got)
	}

	var e EnforceConfig
	if got := e.ResolvedIdlePoll(); got != 5*time.Minute {
		t.Fatalf("idle poll default = %s", got)
	}
	if got := e.ResolvedActivePoll(); got != 2*time.Minute {
		t.Fatalf("active poll default = %s", got)
	}
}

func TestLoadCommitsSnapshot(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
alarms:
  user_id: u
enforce: {}
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get must return the committed snapshot")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{
		Logging: LoggingConfig{Level: "info"},
		Alarms:  AlarmsConfig{UserID: "u"},
	}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Alarms:  AlarmsConfig{UserID: "u"},
		Enforce: EnforceConfig{Enabled: true},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"enforce", "logging"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatalf("expected log attrs for changed sections")
	}

	if changed, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs must report no changes, got %v", changed)
	}
}
