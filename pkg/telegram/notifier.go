package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/noah-isme/learnhub-api/pkg/observability"
)

// Notifier pushes short operational alerts to an admin chat.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// BotNotifier sends alerts through the Telegram Bot API.
type BotNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewBotNotifier authenticates the bot token against the API.
func NewBotNotifier(token string, chatID int64) (*BotNotifier, error) {
	return NewBotNotifierWithClient(token, chatID, tgbotapi.APIEndpoint, &http.Client{})
}

// NewBotNotifierWithClient lets callers override the API endpoint, which must
// contain two %s verbs for the token and method.
func NewBotNotifierWithClient(token string, chatID int64, endpoint string, client *http.Client) (*BotNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &BotNotifier{bot: bot, chatID: chatID}, nil
}

// Notify implements Notifier.
func (n *BotNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := n.bot.Send(msg)
	if isSystemErr(err) {
		observability.CaptureErr(err)
	}
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// NopNotifier drops every alert.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string) error { return nil }

// isSystemErr reports transport failures worth alerting on; Telegram
// validation errors (400s) are not.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, marker := range []string{"429", "502", "503", "timeout"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
