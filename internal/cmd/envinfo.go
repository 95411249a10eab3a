package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/appid"
	"github.com/botwire/botwire/internal/config"
	"github.com/botwire/botwire/internal/observability"
	"github.com/botwire/botwire/internal/output"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime and effective configuration in one place.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := appid.Get()
		version := crucible.GetVersion()

		tables := []output.Table{
			output.KeyValueTable("Application",
				[2]string{"Name", identity.BinaryName},
				[2]string{"Version", versionInfo.Version},
				[2]string{"Commit", versionInfo.Commit},
				[2]string{"Built", versionInfo.BuildDate},
				[2]string{"Env Prefix", identity.EnvPrefix},
			),
			output.KeyValueTable("Runtime",
				[2]string{"Go", runtime.Version()},
				[2]string{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
				[2]string{"CPUs", fmt.Sprintf("%d", runtime.NumCPU())},
				[2]string{"Gofulmen", version.Gofulmen},
				[2]string{"Crucible", version.Crucible},
			),
		}

		cfg, err := loadConfig()
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
		} else {
			tables = append(tables, configSummary(cfg))
		}

		for _, tbl := range tables {
			rendered, err := output.Render(output.FormatTable, tbl, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
		}
		return nil
	},
}

func configSummary(cfg *config.Config) output.Table {
	storeLocation := cfg.Store.Path
	if strings.TrimSpace(cfg.Store.URL) != "" {
		storeLocation = cfg.Store.URL
	}
	configFile := settings.ConfigFileUsed()
	if configFile == "" {
		configFile = "(none)"
	}

	return output.KeyValueTable("Configuration",
		[2]string{"Config File", configFile},
		[2]string{"Listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)},
		[2]string{"Store", cfg.Store.Driver + " " + storeLocation},
		[2]string{"Rate Limit Backend", cfg.RateLimit.Backend},
		[2]string{"Typing Backend", cfg.Typing.Backend},
		[2]string{"Typing TTL", cfg.Typing.TTL.String()},
		[2]string{"Poll Interval", cfg.Stream.PollInterval.String()},
		[2]string{"Stream Lifetime", cfg.Stream.MaxLifetime.String()},
		[2]string{"Log Level", cfg.Logging.Level},
		[2]string{"Metrics", fmt.Sprintf("%t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port)},
	)
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
