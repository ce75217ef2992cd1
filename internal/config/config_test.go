package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sitewatch/pkg/logx"
)

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: 30s
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  timezone: UTC
  check_timeout: 2m
notifier:
  batch_size: 50
  rate_per_sec: 10
  send_timeout: 15s
  retry_max: 2
storage:
  driver: file
  path: ./data
sites:
  example:
    enabled: false
  hackernews:
    schedule: "interval:600"
    options:
      url: "https://news.ycombinator.com/best"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if got := cfg.SchedulerConfig(); !got.Enabled || got.Timezone != "UTC" || got.CheckTimeout != 2*time.Minute {
		t.Fatalf("scheduler config = %+v", got)
	}
	if got := cfg.NotifierConfig(); got.BatchSize != 50 || got.SendTimeout != 15*time.Second {
		t.Fatalf("notifier config = %+v", got)
	}
	if cfg.SiteEnabled("example") {
		t.Fatal("example should be disabled")
	}
	if !cfg.SiteEnabled("hackernews") || !cfg.SiteEnabled("unlisted") {
		t.Fatal("sites without enabled:false must default to enabled")
	}
	if got := cfg.SiteSchedule("hackernews"); got != "interval:600" {
		t.Fatalf("schedule override = %q", got)
	}

	var opts struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(cfg.SiteOptions("hackernews"), &opts); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	if opts.URL != "https://news.ycombinator.com/best" {
		t.Fatalf("options url = %q", opts.URL)
	}
	if cfg.SiteOptions("example") != nil {
		t.Fatal("example carries no options block")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"telegram":{"token":"t"}}`), logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "telegram:\n  token: t\nbogus: 1\n"},
		{"missing token", "telegram:\n  token: \"\"\n"},
		{"bad driver", "telegram:\n  token: t\nstorage:\n  driver: postgres\n"},
		{"bad duration", "telegram:\n  token: t\nscheduler:\n  enabled: true\n  check_timeout: soon\n"},
		{"bad timezone", "telegram:\n  token: t\nscheduler:\n  enabled: true\n  timezone: Mars/Olympus\n"},
		{"bad site schedule", "telegram:\n  token: t\nsites:\n  example:\n    schedule: whenever\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeConfig(t, "config.yaml", tt.content), logx.Nop())
			if _, err := m.Load(); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestWatchReload(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(ctx)
	}()

	changed := validYAML + "\n# touched\n"
	changed = strings.Replace(changed, "level: debug", "level: info", 1)
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updates:
		if cfg.Logging.Level != "info" {
			t.Fatalf("reloaded level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within deadline")
	}
	cancel()
	<-done
}
