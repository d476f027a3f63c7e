// Package telegram delivers editor notifications to Telegram chats.
package telegram

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/inkpilot/internal/bus"
)

const (
	maxTelegramMessage = 4096

	// TargetPrefix marks delivery targets handled by the Notifier.
	TargetPrefix = "telegram:"
)

// Notifier sends notifications through a Telegram bot.
type Notifier struct {
	bot *tgbotapi.BotAPI
}

// New creates a Notifier for the bot identified by token.
func New(token string) (*Notifier, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint)
}

// NewWithEndpoint creates a Notifier against a custom Bot API endpoint
// (format "https://host/bot%s/%s").
func NewWithEndpoint(token, endpoint string) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Notifier{bot: bot}, nil
}

// Target returns the delivery target for chatID.
func Target(chatID int64) string {
	return TargetPrefix + strconv.FormatInt(chatID, 10)
}

// Deliver sends n to the chat named by target. It satisfies delivery.Handler.
func (n *Notifier) Deliver(target string, note bus.Notify) error {
	chatID, err := parseTarget(target)
	if err != nil {
		return err
	}
	text := note.Message
	if note.Level == bus.LevelError {
		text = "Error: " + text
	}
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := n.bot.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := n.bot.Send(msg); err != nil {
				slog.Warn("telegram send failed", "chat_id", chatID, "error", err)
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

func parseTarget(target string) (int64, error) {
	raw, ok := strings.CutPrefix(target, TargetPrefix)
	if !ok {
		return 0, fmt.Errorf("not a telegram target: %s", target)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chat id: %w", err)
	}
	return id, nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
