package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/inkpilot/internal/intent"
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringSlice("heading", nil, "document heading to include as editor context (repeatable)")
	classifyCmd.Flags().String("selection", "", "selected text to include as editor context")
}

var classifyCmd = &cobra.Command{
	Use:   "classify <utterance>",
	Short: "Classify an utterance with the configured intent model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		headings, _ := cmd.Flags().GetStringSlice("heading")
		selection, _ := cmd.Flags().GetString("selection")
		var ec *intent.EditorContext
		if len(headings) > 0 || selection != "" {
			ec = &intent.EditorContext{DocumentOutline: headings, CurrentSelection: selection}
		}

		router := newRouter(cfg, newResolver(cfg))
		classifier := intent.NewClassifier(router, cfg.LLM.ClassifierModel)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		result := classifier.Classify(ctx, strings.Join(args, " "), ec)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return nil
	},
}
