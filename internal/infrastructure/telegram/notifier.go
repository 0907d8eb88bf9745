package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ArticlePipeline/internal/ports"
)

// Notifier sends run reports to a Telegram chat via bot API.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier authenticates the bot and binds the target chat. An empty
// endpoint means the public Bot API.
func NewNotifier(botToken, chatID, endpoint string, client *http.Client) (*Notifier, error) {
	if botToken == "" || chatID == "" {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse chat id: %w", err)
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}

	return &Notifier{bot: bot, chatID: id}, nil
}

// PublishDigest posts a plain-text message. The bot API has no context
// support, so a cancelled ctx abandons the wait but not the request.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n == nil || n.bot == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, digest)
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
