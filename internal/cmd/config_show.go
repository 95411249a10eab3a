package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/botwire/botwire/internal/config"
)

const redacted = "********"

var (
	configShowFormat  string
	configShowSecrets bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and environment
variables are merged. Secrets are masked unless --show-secrets is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return writeConfig(cmd.OutOrStdout(), *cfg, configShowFormat, configShowSecrets)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := settings.ConfigFileUsed()
		if path == "" {
			path = config.DefaultConfigPath() + " (not present)"
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	},
}

func writeConfig(w io.Writer, cfg config.Config, format string, secrets bool) error {
	if !secrets {
		cfg = maskSecrets(cfg)
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}
}

func maskSecrets(cfg config.Config) config.Config {
	if cfg.Store.AuthToken != "" {
		cfg.Store.AuthToken = redacted
	}
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = redacted
	}
	return cfg
}

func init() {
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "yaml", "Output format: yaml|json")
	configShowCmd.Flags().BoolVar(&configShowSecrets, "show-secrets", false, "Print secrets unmasked")

	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
