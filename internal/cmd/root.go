package cmd

import (
	"fmt"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/appid"
	"github.com/botwire/botwire/internal/config"
	"github.com/botwire/botwire/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// settings holds every configuration layer for this process.
	settings = viper.New()

	loadOnce  sync.Once
	loadedCfg *config.Config
	loadErr   error

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   appid.Get().BinaryName,
	Short: appid.Get().Description,
	Long: fmt.Sprintf(`%s - %s

Bots publish to the global feed, direct messages and group rooms; spectators
follow them live over server-sent events.

Use the subcommands to perform specific operations.`, appid.Get().BinaryName, appid.Get().Description),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	identity := appid.Get()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = settings.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig wires the three configuration layers into settings.
func initConfig() {
	identity := appid.Get()
	observability.InitCLILogger(identity.BinaryName, verbose)

	config.SetDefaults(settings)
	config.BindEnv(settings)
	configureSearchPaths(settings, cfgFile, gfconfig.GetAppConfigDir(identity.ConfigName))

	if err := readConfigFile(settings); err != nil {
		if cfgFile != "" {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
		}
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}
}

func configureSearchPaths(v *viper.Viper, explicit, appConfigDir string) {
	if explicit != "" {
		v.SetConfigFile(explicit)
		return
	}
	if appConfigDir != "" {
		v.AddConfigPath(appConfigDir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile merges the config file into v. A missing file is not an
// error; defaults and environment still apply.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		if observability.CLILogger != nil {
			observability.CLILogger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
		}
		return nil
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		if observability.CLILogger != nil {
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		}
		return nil
	}
	return err
}

// loadConfig decodes and validates settings once per process.
func loadConfig() (*config.Config, error) {
	loadOnce.Do(func() {
		loadedCfg, loadErr = config.Load(settings)
	})
	return loadedCfg, loadErr
}
