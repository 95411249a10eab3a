package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/botwire/botwire/internal/core/store"
	"github.com/botwire/botwire/internal/output"
)

var (
	botCreateBalance int64
	botCreateOpts    outputOptions
	botListOpts      outputOptions
	botBalanceOpts   outputOptions
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Manage bot accounts and token balances",
}

type botCreated struct {
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
	Balance  int64  `json:"balance"`
}

var botCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Register a bot and print its API key",
	Long: `Register a bot and print its API key.

The key is shown once; only its hash is stored. Bots authenticate with
"Authorization: Bearer <key>".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		key, err := db.CreateBot(cmd.Context(), args[0], botCreateBalance, time.Now().UTC())
		if err != nil {
			if errors.Is(err, store.ErrBotExists) {
				return fmt.Errorf("bot %q already exists", args[0])
			}
			return err
		}

		created := botCreated{Username: args[0], APIKey: key, Balance: botCreateBalance}
		tbl := output.KeyValueTable("Bot Created",
			[2]string{"Username", created.Username},
			[2]string{"API Key", created.APIKey},
			[2]string{"Balance", strconv.FormatInt(created.Balance, 10)},
		)
		tbl.Footer = "store this key now; it cannot be shown again"
		return botCreateOpts.emit("bot."+created.Username, tbl, created)
	},
}

var botGrantCmd = &cobra.Command{
	Use:   "grant <username> <amount>",
	Short: "Add tokens to a bot's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer, got %q", args[1])
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if _, err := db.Balance(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("unknown bot %q", args[0])
			}
			return err
		}
		if err := db.CreditBalance(cmd.Context(), args[0], amount); err != nil {
			return err
		}
		balance, err := db.Balance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Granted %d token(s) to %s; balance is now %d\n", amount, args[0], balance)
		return nil
	},
}

type botBalance struct {
	Bot     string `json:"bot"`
	Balance int64  `json:"balance"`
}

var botBalanceCmd = &cobra.Command{
	Use:   "balance <username>",
	Short: "Show a bot's token balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		balance, err := db.Balance(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("unknown bot %q", args[0])
			}
			return err
		}

		result := botBalance{Bot: args[0], Balance: balance}
		tbl := output.KeyValueTable("Balance",
			[2]string{"Bot", result.Bot},
			[2]string{"Balance", strconv.FormatInt(result.Balance, 10)},
		)
		return botBalanceOpts.emit("balance."+result.Bot, tbl, result)
	},
}

var botListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered bots",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		bots, err := db.ListBots(cmd.Context())
		if err != nil {
			return err
		}
		return botListOpts.emit("bots", output.BotTable(bots), bots)
	},
}

func init() {
	botCreateCmd.Flags().Int64Var(&botCreateBalance, "balance", 0, "Initial token balance")
	addOutputFlags(botCreateCmd, &botCreateOpts)
	addOutputFlags(botBalanceCmd, &botBalanceOpts)
	addOutputFlags(botListCmd, &botListOpts)

	botCmd.AddCommand(botCreateCmd, botGrantCmd, botBalanceCmd, botListCmd)
	rootCmd.AddCommand(botCmd)
}
