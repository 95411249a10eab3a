package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/botwire/botwire/internal/appid"
	"github.com/botwire/botwire/internal/config"
	"github.com/botwire/botwire/internal/observability"
)

type checkStatus int

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
)

func (s checkStatus) mark() string {
	switch s {
	case checkOK:
		return "✅"
	case checkWarn:
		return "⚠️ "
	default:
		return "❌"
	}
}

type doctorCheck struct {
	name string
	run  func(ctx context.Context) (checkStatus, string)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check the runtime, configuration, store and rate limit backend, and report what needs fixing.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log := observability.CLILogger

		log.Info("=== " + appid.Get().BinaryName + " doctor ===")
		log.Info("")

		checks := doctorChecks()
		healthy := true
		for i, check := range checks {
			status, detail := check.run(ctx)
			line := fmt.Sprintf("[%d/%d] Checking %s... %s %s", i+1, len(checks), check.name, status.mark(), detail)
			switch status {
			case checkOK:
				log.Info(line)
			case checkWarn:
				log.Warn(line)
			default:
				log.Error(line)
				healthy = false
			}
		}

		log.Info("")
		if healthy {
			log.Info("✅ All checks passed.")
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
	},
}

func doctorChecks() []doctorCheck {
	return []doctorCheck{
		{name: "Go runtime", run: func(context.Context) (checkStatus, string) {
			return checkOK, fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		}},
		{name: "Gofulmen", run: func(context.Context) (checkStatus, string) {
			v := crucible.GetVersion()
			if v.Gofulmen == "" {
				return checkFail, "version unavailable"
			}
			return checkOK, fmt.Sprintf("v%s (crucible v%s)", v.Gofulmen, v.Crucible)
		}},
		{name: "config file", run: func(context.Context) (checkStatus, string) {
			if used := settings.ConfigFileUsed(); used != "" && fileExists(used) {
				return checkOK, used
			}
			return checkWarn, "none found, using defaults (run 'doctor init' to create one)"
		}},
		{name: "configuration", run: func(context.Context) (checkStatus, string) {
			if _, err := loadConfig(); err != nil {
				return checkFail, err.Error()
			}
			return checkOK, "valid"
		}},
		{name: "store", run: checkStore},
		{name: "rate limit backend", run: checkRateLimitBackend},
	}
}

func checkStore(ctx context.Context) (checkStatus, string) {
	cfg, err := loadConfig()
	if err != nil {
		return checkWarn, "skipped (config not loaded)"
	}

	location := cfg.Store.URL
	if strings.TrimSpace(location) == "" {
		abs, _ := filepath.Abs(cfg.Store.Path)
		location = abs
		if info, statErr := os.Stat(abs); statErr == nil {
			location = fmt.Sprintf("%s (%s)", abs, formatFileSize(info.Size()))
		}
	}

	db, err := openStore(ctx)
	if err != nil {
		observability.CLILogger.Debug("Store open failed", zap.Error(err))
		return checkFail, fmt.Sprintf("%s: %v", location, err)
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	bots, err := db.ListBots(ctx)
	if err != nil {
		return checkFail, fmt.Sprintf("%s: %v", location, err)
	}
	if len(bots) == 0 {
		return checkWarn, location + ", no bots registered (run 'bot create')"
	}
	return checkOK, fmt.Sprintf("%s, %d bot(s)", location, len(bots))
}

func checkRateLimitBackend(ctx context.Context) (checkStatus, string) {
	cfg, err := loadConfig()
	if err != nil {
		return checkWarn, "skipped (config not loaded)"
	}
	if cfg.RateLimit.Backend != "redis" {
		return checkOK, cfg.RateLimit.Backend
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close() // nolint:errcheck // best-effort cleanup

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return checkFail, fmt.Sprintf("redis %s unreachable: %v", cfg.Redis.Addr, err)
	}
	return checkOK, "redis " + cfg.Redis.Addr
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file populated with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if fileExists(configPath) && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		data, err := defaultConfigYAML()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0o600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

// defaultConfigYAML renders the built-in defaults, unaffected by the
// environment or an existing file.
func defaultConfigYAML() ([]byte, error) {
	v := viper.New()
	config.SetDefaults(v)
	return yaml.Marshal(v.AllSettings())
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func init() {
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "Overwrite an existing config file")
	doctorCmd.AddCommand(doctorInitCmd)
	rootCmd.AddCommand(doctorCmd)
}
