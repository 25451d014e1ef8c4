package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("500ms", "4s", "2m"). Secrets may be left empty and
// supplied through the environment instead (see env.go).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Download  DownloadConfig  `json:"download"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Metrics   MetricsConfig   `json:"metrics"`
	Janitor   JanitorConfig   `json:"janitor"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives warnings when logging.telegram is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// SaveChannel gets one archived copy of every track; 0 disables it.
	SaveChannel int64  `json:"save_channel,omitempty"`
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
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "bolt", "path": "./data/tunebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type DownloadConfig struct {
	Dir    string `json:"dir"`
	APIURL string `json:"api_url"`
	APIKey string `json:"api_key"`
	// Mirrors omitted means "try api_url/backupyt"; [] disables mirrors.
	Mirrors []string `json:"mirrors,omitempty"`

	PollInterval   string `json:"poll_interval,omitempty"`
	PollMax        int    `json:"poll_max,omitempty"`
	APITimeout     string `json:"api_timeout,omitempty"`
	MirrorTimeout  string `json:"mirror_timeout,omitempty"`
	FetchTimeout   string `json:"fetch_timeout,omitempty"`
	ResolveTimeout string `json:"resolve_timeout,omitempty"`
	LookupTimeout  string `json:"lookup_timeout,omitempty"`
	VideoViaAPI    bool   `json:"video_via_api,omitempty"`

	// YTDLPPath defaults to "yt-dlp" on PATH; "-" disables the extractor tier.
	YTDLPPath  string `json:"ytdlp_path,omitempty"`
	CookiesDir string `json:"cookies_dir,omitempty"`
	// KeepFor is how long a sent file stays on disk; "0s" keeps it.
	KeepFor string `json:"keep_for,omitempty"`
}

// BroadcastConfig tunes the dispatcher. Zero values pick the defaults:
// batch_size 100, concurrency 10, batch_pause 2.5s, retry_budget 3,
// retry_ceiling 2m, retry_margin 1s, transient_delay 1.5s.
type BroadcastConfig struct {
	BatchSize      int    `json:"batch_size,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty"`
	BatchPause     string `json:"batch_pause,omitempty"`
	RetryBudget    int    `json:"retry_budget,omitempty"`
	RetryCeiling   string `json:"retry_ceiling,omitempty"`
	RetryMargin    string `json:"retry_margin,omitempty"`
	TransientDelay string `json:"transient_delay,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	StatusTTL      string `json:"status_ttl,omitempty"`
	StatusMax      int    `json:"status_max,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":9090"
	// Pprof mounts /debug/pprof on the metrics listener.
	Pprof bool `json:"pprof,omitempty"`
}

// JanitorConfig controls the periodic cache sweep.
type JanitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval,omitempty"` // default 30m
	MaxAge   string `json:"max_age,omitempty"`  // default 24h
}
