package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"tunebot/pkg/logx"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  save_channel: -100123
  poll_timeout: 10s
logging:
  level: info
  console: true
storage:
  driver: bolt
  path: ./data/tunebot.db
download:
  dir: ./downloads
  api_url: https://api.example
  api_key: secret
  poll_interval: 4s
  poll_max: 7
broadcast:
  batch_size: 50
  concurrency: 5
  batch_pause: 2s
`

func TestParseYAML(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || !slices.Equal(cfg.Telegram.OwnerUserIDs, []int64{42}) {
		t.Fatalf("unexpected telegram section: %+v", cfg.Telegram)
	}
	if cfg.Telegram.SaveChannel != -100123 {
		t.Fatalf("expected save channel -100123, got %d", cfg.Telegram.SaveChannel)
	}
	if cfg.Download.PollMax != 7 || cfg.Broadcast.Concurrency != 5 {
		t.Fatalf("unexpected numeric values: %+v %+v", cfg.Download, cfg.Broadcast)
	}
	if m.Get() != cfg {
		t.Fatalf("expected Load to commit the config")
	}
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.json", `{"telegram":{"token":"x","nope":1}}`))
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.json", `{"telegram":{}}{"telegram":{}}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestParseRejectsBadYAMLShapes(t *testing.T) {
	cases := map[string]string{
		"empty.yaml":     "  \n",
		"multi.yaml":     "logging:\n  level: info\n---\nlogging:\n  level: debug\n",
		"unknown.yml":    "logging:\n  colour: true\n",
		"bad-indent.yml": "logging:\n level: info\n  console: true\n",
	}
	for name, body := range cases {
		if _, err := NewConfigManager(writeConfig(t, name, body)).Parse(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseYAMLWithoutExtension(t *testing.T) {
	path := writeConfig(t, "tunebot.conf", "logging:\n  level: debug\n")
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug, got %q", cfg.Logging.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("TUNEBOT_TOKEN", "from-env")
	t.Setenv("TUNEBOT_API_KEY", "env-key")
	t.Setenv("TUNEBOT_SAVE_CHANNEL", "-100999")

	m := NewConfigManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "from-env" || cfg.Download.APIKey != "env-key" {
		t.Fatalf("expected env overrides, got token=%q key=%q", cfg.Telegram.Token, cfg.Download.APIKey)
	}
	if cfg.Telegram.SaveChannel != -100999 {
		t.Fatalf("expected save channel from env, got %d", cfg.Telegram.SaveChannel)
	}
	if cfg.Download.APIURL != "https://api.example" {
		t.Fatalf("expected unset env to keep file value, got %q", cfg.Download.APIURL)
	}
}

func TestEnvHelpListsVariables(t *testing.T) {
	help, err := EnvHelp()
	if err != nil {
		t.Fatalf("env help: %v", err)
	}
	if !strings.Contains(help, "TUNEBOT_TOKEN") {
		t.Fatalf("expected TUNEBOT_TOKEN in help, got %q", help)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{name: "bad duration", mod: func(c *Config) { c.Download.PollInterval = "soon" }, want: "download.poll_interval"},
		{name: "lookup timeout", mod: func(c *Config) { c.Download.LookupTimeout = "later" }, want: "download.lookup_timeout"},
		{name: "negative duration", mod: func(c *Config) { c.Broadcast.BatchPause = "-1s" }, want: "broadcast.batch_pause"},
		{name: "driver", mod: func(c *Config) { c.Storage.Driver = "mongo" }, want: "storage.driver"},
		{name: "mirror", mod: func(c *Config) { c.Download.Mirrors = []string{"ftp://x"} }, want: "download.mirrors[0]"},
		{name: "concurrency", mod: func(c *Config) { c.Broadcast.Concurrency = 500 }, want: "broadcast.concurrency"},
		{name: "negative", mod: func(c *Config) { c.Broadcast.RetryBudget = -1 }, want: "numeric settings"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg Config
			tt.mod(&cfg)
			err := Validate(&cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	if err := Validate(&Config{}); err != nil {
		t.Fatalf("expected zero config to be valid, got %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("expected default, got %v %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "abc", time.Second); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	old := &Config{}
	old.Telegram.Token = "old-token"
	old.Download.APIKey = "old-key"
	cur := &Config{}
	cur.Telegram.Token = "new-token"
	cur.Download.APIKey = "new-key"
	cur.Broadcast.BatchSize = 20

	changed, attrs := SummarizeConfigChange(old, cur)
	if !slices.Equal(changed, []string{"telegram", "download", "broadcast"}) {
		t.Fatalf("unexpected sections: %v", changed)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("reloaded", attrs...)
	for _, secret := range []string{"old-token", "new-token", "old-key", "new-key"} {
		if strings.Contains(buf.String(), secret) {
			t.Fatalf("secret %q leaked: %s", secret, buf.String())
		}
	}
	if !strings.Contains(buf.String(), "telegram.token_changed") {
		t.Fatalf("expected token change flag, got %s", buf.String())
	}
	if got := RestartRequired(changed); !slices.Equal(got, []string{"telegram", "download"}) {
		t.Fatalf("unexpected restart sections: %v", got)
	}
}

func TestSummarizeConfigChangeDownloadFields(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := &Config{}
		c.Download.APIURL = "https://api.example"
		c.Download.PollMax = 7
		c.Download.Mirrors = []string{"https://m1.example"}
		return c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{"unchanged", func(*Config) {}, nil},
		{"poll_max", func(c *Config) { c.Download.PollMax = 8 }, []string{"download"}},
		{"mirror added", func(c *Config) { c.Download.Mirrors = append(c.Download.Mirrors, "https://m2.example") }, []string{"download"}},
		{"mirrors disabled", func(c *Config) { c.Download.Mirrors = []string{} }, []string{"download"}},
		{"mirrors defaulted", func(c *Config) { c.Download.Mirrors = nil }, []string{"download"}},
		{"lookup_timeout", func(c *Config) { c.Download.LookupTimeout = "10s" }, []string{"download"}},
	}
	for _, tc := range cases {
		cur := base()
		tc.mutate(cur)
		changed, _ := SummarizeConfigChange(base(), cur)
		if !slices.Equal(changed, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, changed)
		}
	}
}

func TestReloadPublishesChanges(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// Same content: nothing published.
	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatal("expected no publish for unchanged content")
	default:
	}

	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "batch_size: 50", "batch_size: 80", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-ch:
		if cfg.Broadcast.BatchSize != 80 {
			t.Fatalf("expected batch size 80, got %d", cfg.Broadcast.BatchSize)
		}
	default:
		t.Fatal("expected a published config")
	}
}

func TestReloadHonoursValidator(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SetValidator(func(context.Context, *Config) error { return os.ErrPermission })
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "level: info", "level: debug", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if m.Get().Logging.Level != "info" {
		t.Fatalf("expected rejected config to be ignored, got level %q", m.Get().Logging.Level)
	}
	select {
	case <-ch:
		t.Fatal("expected no publish after rejection")
	default:
	}
}
