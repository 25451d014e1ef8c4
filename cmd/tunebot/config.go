package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tunebot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables that override the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		help, err := config.EnvHelp()
		if err != nil {
			return err
		}
		fmt.Print(help)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd, configEnvCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.NewConfigManager(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	storage := cfg.Storage.Driver
	if storage == "" {
		storage = "bolt"
	}
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Owners: %d\n", len(cfg.Telegram.OwnerUserIDs))
	fmt.Printf("  Storage: %s %s\n", storage, cfg.Storage.Path)
	fmt.Printf("  Download dir: %s\n", cfg.Download.Dir)
	fmt.Printf("  Primary API: %t\n", cfg.Download.APIURL != "")
	fmt.Printf("  Metrics: %t\n", cfg.Metrics.Enabled)
	fmt.Printf("  Janitor: %t\n", cfg.Janitor.Enabled)
	return nil
}
