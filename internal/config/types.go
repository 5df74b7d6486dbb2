package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Roster   RosterConfig   `json:"roster"`
	Health   HealthConfig   `json:"health"`
	Report   ReportConfig   `json:"report"`
}

// TelegramConfig carries the bot identity. Token and OwnerID are required;
// both can come from the environment (BOT_TOKEN / OWNER_ID) instead of the
// config file.
type TelegramConfig struct {
	Token   string `json:"token"`
	OwnerID int64  `json:"owner_id"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings and errors to the operator chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RosterConfig controls user roster persistence.
//
// Driver values:
//   - "file": JSON file keyed by stringified user id (default)
//   - "sqlite": SQLite database file (optional build tag)
type RosterConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HealthConfig controls the HTTP liveness endpoint. PORT env overrides Port.
type HealthConfig struct {
	Port int `json:"port"`
}

// ReportConfig schedules a periodic roster stats summary to the operator.
// Schedule is a standard 5-field cron spec; empty disables the report.
type ReportConfig struct {
	Schedule string `json:"schedule,omitempty"`
}

func defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			Telegram: LoggingTelegram{MinLevel: "warn", RatePerSec: 1},
		},
		Roster: RosterConfig{Driver: "file", Path: "./users.json"},
		Health: HealthConfig{Port: 10000},
	}
}
