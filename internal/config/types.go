package config

// Config is the root of the bot configuration file (JSON or YAML).
//
// All duration-valued fields are Go duration strings (e.g. "30m", "24h").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// OwnerUserIDs may run privileged commands (/delete on others'
	// reminders, /sweep) and receive mirrored log lines.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// NotifyChatID, when non-zero, receives every reminder notification
	// regardless of who owns the reminder ("supervisor receives all").
	// When zero, notifications go to the reminder owner's chat.
	NotifyChatID int64 `json:"notify_chat_id,omitempty"`

	// LogChatID receives mirrored log lines when logging.telegram is on.
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level    string        `json:"level,omitempty"`
	Console  bool          `json:"console"`
	File     FileLogConfig `json:"file,omitempty"`
	Telegram ChatLogConfig `json:"telegram,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type ChatLogConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type RemindersConfig struct {
	// Timezone is the single IANA zone applied to all date/time parsing,
	// formatting and scheduling. Defaults to UTC; never the host zone.
	Timezone string `json:"timezone,omitempty"`

	// Buckets define the notification lead times, in firing order.
	// When omitted, the built-in 24h/3h pair is used.
	Buckets []BucketConfig `json:"buckets,omitempty"`

	Sweep SweepConfig `json:"sweep"`
	HTTP  HTTPConfig  `json:"http"`
}

type BucketConfig struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Lead      string `json:"lead"`
	Tolerance string `json:"tolerance"`
}

// SweepConfig controls the built-in periodic trigger. Every accepts a
// Go duration ("10m") or a cron spec ("*/10 * * * *").
type SweepConfig struct {
	Enabled bool   `json:"enabled"`
	Every   string `json:"every,omitempty"`
}

// HTTPConfig controls the external sweep trigger endpoint.
type HTTPConfig struct {
	Enabled    bool   `json:"enabled"`
	Addr       string `json:"addr,omitempty"`    // default "127.0.0.1:8484"
	APIKey     string `json:"api_key,omitempty"` // optional X-API-Key gate (do not log)
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
