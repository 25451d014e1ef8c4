package app

import (
	"time"

	"tunebot/internal/config"
	"tunebot/internal/runtime/supervisor"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

var SummarizeConfigChange = config.SummarizeConfigChange

var RestartRequired = config.RestartRequired

func parseDurationField(path, raw string) (time.Duration, error) {
	return config.ParseDurationField(path, raw)
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.New

var (
	WithLogger         = supervisor.WithLogger
	WithCancelOnError  = supervisor.WithCancelOnError
	WithRestartBackoff = supervisor.WithRestartBackoff
	WithMaxRestarts    = supervisor.WithMaxRestarts
)
