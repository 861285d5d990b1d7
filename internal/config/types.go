package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Wizard    WizardConfig    `json:"wizard,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Health    HealthConfig    `json:"health,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty; the BOT_TOKEN environment variable is used
	// as a fallback so tokens can stay out of the config file.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the post dispatcher.
//
// CronSpec defaults to "* * * * *" (one evaluation per minute, matching the
// HH:MM granularity of scheduled posts). Timezone is an IANA name; empty
// means the system local zone.
type SchedulerConfig struct {
	Enabled    bool   `json:"enabled"`
	Timezone   string `json:"timezone,omitempty"`
	CronSpec   string `json:"cron_spec,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// WizardConfig controls the conversation session table.
//
// SessionTTL is a Go duration string; sessions idle longer than this are
// pruned. Empty or "0s" keeps the default (30m).
type WizardConfig struct {
	SessionTTL string `json:"session_ttl,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// HealthConfig controls the liveness endpoint used by hosting platforms.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: ":8080"
}
