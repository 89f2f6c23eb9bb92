package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	MCStatus MCStatusConfig `json:"mcstatus"`
	Tracker  TrackerConfig  `json:"tracker"`

	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
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
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the durable job store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./status.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MCStatusConfig controls the remote status API client.
type MCStatusConfig struct {
	BaseURL string `json:"base_url,omitempty"` // default: https://api.mcsrvstat.us/3
	// Timeout is a Go duration string for the whole HTTP round trip.
	Timeout string `json:"timeout,omitempty"` // default: "10s"
}

// TrackerConfig controls poll and expiry timing for tracked jobs.
//
// All durations are Go duration strings. Defaults match the original bot:
// message polls every 1m, channel polls every 5m, messages live 15m and are
// deleted 1m after expiry.
type TrackerConfig struct {
	MessagePollInterval string `json:"message_poll_interval,omitempty"`
	ChannelPollInterval string `json:"channel_poll_interval,omitempty"`
	DefaultLifetime     string `json:"default_lifetime,omitempty"`
	GracePeriod         string `json:"grace_period,omitempty"`

	// RenamePerMinute caps chat title renames (Telegram rate-limits them).
	RenamePerMinute int `json:"rename_per_minute,omitempty"`
}

// MaintenanceConfig controls periodic housekeeping (store compaction and a
// tracked-jobs summary log line).
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// CompactSchedule is a cron spec or "@every <dur>" (default "@every 24h").
	CompactSchedule string `json:"compact_schedule,omitempty"`
	// SummarySchedule is a cron spec or "@every <dur>" (default "@every 1h").
	SummarySchedule string `json:"summary_schedule,omitempty"`
}
