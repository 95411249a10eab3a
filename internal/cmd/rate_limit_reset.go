package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/botwire/botwire/internal/core/store"
	"github.com/botwire/botwire/internal/output"
)

var (
	rateLimitResetOpts       outputOptions
	rateLimitResetAll        bool
	rateLimitResetProfile    string
	rateLimitResetIdentifier string
	rateLimitResetExpired    bool
	rateLimitResetYes        bool
	rateLimitResetDryRun     bool
)

type rateLimitResetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored rate limit buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.RateLimitQuery{
			All:        rateLimitResetAll,
			Profile:    strings.TrimSpace(rateLimitResetProfile),
			Identifier: strings.TrimSpace(rateLimitResetIdentifier),
		}
		if rateLimitResetExpired {
			query.ExpiredAt = time.Now()
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		result := rateLimitResetResult{DryRun: rateLimitResetDryRun}
		result.Matched, err = db.CountRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		if !result.DryRun {
			result.Deleted, err = db.ResetRateLimits(cmd.Context(), query)
			if err != nil {
				return err
			}
		}

		return rateLimitResetOpts.emit("rate-limit.reset", resetTable(result), result)
	},
}

func resetTable(r rateLimitResetResult) output.Table {
	deleted := fmt.Sprintf("%d", r.Deleted)
	if r.DryRun {
		deleted = "(dry run)"
	}
	return output.KeyValueTable("Rate Limit Reset",
		[2]string{"Matched", fmt.Sprintf("%d", r.Matched)},
		[2]string{"Deleted", deleted},
	)
}

func init() {
	addOutputFlags(rateLimitResetCmd, &rateLimitResetOpts)
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset every bucket")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetProfile, "profile", "", "Reset buckets of this profile")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetIdentifier, "identifier", "", "Reset buckets of this identifier")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetExpired, "expired", false, "Reset buckets whose window has elapsed")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
}
