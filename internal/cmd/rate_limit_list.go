package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/botwire/botwire/internal/core/store"
	"github.com/botwire/botwire/internal/output"
)

var (
	rateLimitListOpts       outputOptions
	rateLimitListProfile    string
	rateLimitListIdentifier string
	rateLimitListExpired    bool
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit buckets",
	Long: `List the fixed-window buckets kept by the store backend.

Only the store backend persists buckets; memory and redis buckets are not
visible here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.RateLimitQuery{
			Profile:    strings.TrimSpace(rateLimitListProfile),
			Identifier: strings.TrimSpace(rateLimitListIdentifier),
		}
		now := time.Now()
		if rateLimitListExpired {
			query.ExpiredAt = now
		}
		query.All = query.Validate() != nil

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		buckets, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		return rateLimitListOpts.emit("rate-limit.list", output.RateLimitTable(buckets, now), buckets)
	},
}

func init() {
	addOutputFlags(rateLimitListCmd, &rateLimitListOpts)
	rateLimitListCmd.Flags().StringVar(&rateLimitListProfile, "profile", "", "Only buckets of this profile")
	rateLimitListCmd.Flags().StringVar(&rateLimitListIdentifier, "identifier", "", "Only buckets of this identifier (bot:<name> or ip:<addr>)")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListExpired, "expired", false, "Only buckets whose window has elapsed")
}
