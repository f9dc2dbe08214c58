package config

// Config is the whole postbot configuration file.
//
// Durations are Go duration strings ("500ms", "10s", "1m"). Every section
// may be omitted; zero values mean the documented default.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Storage   StorageConfig   `json:"storage"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	// Token is usually supplied through POSTBOT_TELEGRAM_TOKEN.
	Token string `json:"token"`
	// OwnerUserIDs may use /status. Everyone else only manages their own posts.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id receiving the Telegram log sink, if enabled.
	GroupLog string `json:"group_log"`
	// PollTimeout defaults to 10s.
	PollTimeout string `json:"poll_timeout"`
	// CommandTimeout bounds one handler; "0s" disables it. Defaults to 2m
	// because an immediate post waits for every channel.
	CommandTimeout string `json:"command_timeout,omitempty"`
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

// SchedulerConfig controls daily triggers.
//
// Enabled is a pointer so an omitted key means enabled while an explicit
// false keeps schedules stored but never fired.
type SchedulerConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Timezone    string `json:"timezone,omitempty"` // default: Asia/Kolkata
	JobTimeout  string `json:"job_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

func (s SchedulerConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

type BroadcastConfig struct {
	// Delay follows every successful send; default 500ms, "0s" disables.
	Delay        string `json:"delay,omitempty"`
	FooterHandle string `json:"footer_handle,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./postbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // memory (default), file, sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// OpsConfig controls the optional operator HTTP server (/healthz,
// /metrics and, when Pprof is set, /debug/pprof/).
//
// Prefer a loopback Addr. A non-loopback Addr needs a Token or an explicit
// AllowInsecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile can run 30s+.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. 0 keeps Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
