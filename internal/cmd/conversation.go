package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/output"
)

var (
	conversationKind string
	conversationOpts outputOptions
)

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage direct conversations and group rooms",
}

var conversationCreateCmd = &cobra.Command{
	Use:   "create <username> <username> [username...]",
	Short: "Create a DM (two bots) or a room (two or more)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := core.ResourceKind(strings.ToLower(strings.TrimSpace(conversationKind)))
		if kind != core.ResourceDM && kind != core.ResourceRoom {
			return fmt.Errorf("--kind must be dm or room, got %q", conversationKind)
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		conv, err := db.CreateConversation(cmd.Context(), kind, args, time.Now().UTC())
		if err != nil {
			return err
		}

		tbl := output.KeyValueTable("Conversation Created",
			[2]string{"ID", conv.ID},
			[2]string{"Kind", string(conv.Kind)},
			[2]string{"Participants", strings.Join(conv.Participants, ", ")},
		)
		return conversationOpts.emit("conversation."+conv.ID, tbl, conv)
	},
}

func init() {
	conversationCreateCmd.Flags().StringVar(&conversationKind, "kind", string(core.ResourceDM), "Conversation kind: dm|room")
	addOutputFlags(conversationCreateCmd, &conversationOpts)

	conversationCmd.AddCommand(conversationCreateCmd)
	rootCmd.AddCommand(conversationCmd)
}
