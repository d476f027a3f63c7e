package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/inkpilot/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Inkpilot Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.OpenAI.APIKey = prompt(scanner, "OpenAI API key (optional)", cfg.LLM.OpenAI.APIKey)
		cfg.LLM.Anthropic.APIKey = prompt(scanner, "Anthropic API key (optional)", cfg.LLM.Anthropic.APIKey)
		cfg.LLM.DefaultModel = prompt(scanner, "Default model", cfg.LLM.DefaultModel)
		cfg.LLM.ClassifierModel = prompt(scanner, "Intent classifier model", cfg.LLM.ClassifierModel)

		maxTokensStr := prompt(scanner, "Max output tokens", strconv.Itoa(cfg.LLM.MaxTokens))
		if n, err := strconv.Atoi(maxTokensStr); err == nil {
			cfg.LLM.MaxTokens = n
		}

		cfg.Brave.APIKey = prompt(scanner, "Brave API key (optional)", cfg.Brave.APIKey)

		cfg.Sync.Remote = prompt(scanner, "Sync remote (local or http)", cfg.Sync.Remote)
		if cfg.Sync.Remote == config.RemoteHTTP {
			cfg.Sync.RemoteURL = prompt(scanner, "Remote document store URL", cfg.Sync.RemoteURL)
		}
		cfg.Sync.RemoteToken = prompt(scanner, "Document store token (optional)", cfg.Sync.RemoteToken)

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if cfg.Telegram.Token != "" {
			chatStr := prompt(scanner, "Telegram chat id for error alerts", strconv.FormatInt(cfg.Telegram.ChatID, 10))
			if n, err := strconv.ParseInt(chatStr, 10, 64); err == nil {
				cfg.Telegram.ChatID = n
			}
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
