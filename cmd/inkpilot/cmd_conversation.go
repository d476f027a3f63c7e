package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/inkpilot/internal/state"
	"github.com/user/inkpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationListCmd, conversationShowCmd)
	conversationShowCmd.Flags().Int("limit", 20, "number of most recent messages")
}

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		conversations := state.NewConversationStore(cfg.DataDir)
		messages := state.NewMessageLog(cfg.DataDir)

		ctx := context.Background()
		list, err := conversations.List(ctx)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tMODEL\tARTIFACT\tMESSAGES\tUPDATED")
		for _, c := range list {
			count, err := messages.Count(ctx, c.ID)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				c.ID,
				c.Title,
				c.Model,
				c.ArtifactID,
				count,
				c.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the latest messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()

		id := types.ConversationID(args[0])
		if _, err := state.NewConversationStore(cfg.DataDir).Get(ctx, id); err != nil {
			return err
		}
		msgs, err := state.NewMessageLog(cfg.DataDir).Tail(ctx, id, limit)
		if err != nil {
			return fmt.Errorf("read messages: %w", err)
		}
		for _, m := range msgs {
			fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}
