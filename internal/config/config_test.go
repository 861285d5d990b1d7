package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"10s", 10 * time.Second, false},
		{"2m30s", 2*time.Minute + 30*time.Second, false},
		{"0s", 0, false},
		{"-5s", 0, true},
		{"10", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("x.y", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	def := 30 * time.Minute
	if d, err := ParseDurationOrDefault("x", "", def); err != nil || d != def {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "0s", def); err != nil || d != def {
		t.Fatalf("zero: d=%v err=%v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "5s", def); err != nil || d != 5*time.Second {
		t.Fatalf("set: d=%v err=%v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "bogus", def); err == nil {
		t.Fatal("bogus duration accepted")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  poll_timeout: 10s
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  timezone: Europe/Moscow
  rate_per_sec: 5
wizard:
  session_ttl: 45m
storage:
  path: /tmp/autopost.db
  busy_timeout: 5s
health:
  enabled: true
  addr: ":9090"
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging section wrong: %+v", cfg.Logging)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Timezone != "Europe/Moscow" || cfg.Scheduler.RatePerSec != 5 {
		t.Fatalf("scheduler section wrong: %+v", cfg.Scheduler)
	}
	if cfg.Wizard.SessionTTL != "45m" {
		t.Fatalf("wizard section wrong: %+v", cfg.Wizard)
	}
	if cfg.Storage.Path != "/tmp/autopost.db" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage section wrong: %+v", cfg.Storage)
	}
	if cfg.Health.Addr != ":9090" {
		t.Fatalf("health section wrong: %+v", cfg.Health)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"telegram":{"poll_timeout":"10s"},"logging":{"level":"info","console":true},"scheduler":{"enabled":false},"storage":{"path":"bot.db"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "bot.db" || cfg.Scheduler.Enabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
  colour: true
storage:
  path: bot.db
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"storage":{"path":"a.db"}}{"storage":{"path":"b.db"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	want := &Config{Logging: LoggingConfig{Level: "warn"}}
	m.publish(want)
	select {
	case got := <-sub:
		if got != want {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no publish received")
	}

	// A full buffer drops the oldest entry, not the newest.
	first := &Config{Logging: LoggingConfig{Level: "a"}}
	second := &Config{Logging: LoggingConfig{Level: "b"}}
	m.publish(first)
	m.publish(second)
	if got := <-sub; got != second {
		t.Fatalf("got level %q, want newest", got.Logging.Level)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	sub := m.Subscribe(1)
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel not closed")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(&Config{})
}
