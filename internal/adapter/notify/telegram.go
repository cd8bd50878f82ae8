package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"

	"crawlfetch/internal/crawl"
	"crawlfetch/internal/shared"
)

// Telegram sends failure summaries to one chat.
type Telegram struct {
	bot      *bot.Bot
	chatID   int64
	throttle *Throttle
	log      *slog.Logger
}

// TelegramOptions configures NewTelegram.
type TelegramOptions struct {
	Token  string
	ChatID int64
	// ServerURL overrides the Bot API endpoint.
	ServerURL string
	// Every limits how often messages are sent.
	Every  time.Duration
	Logger *slog.Logger
}

// NewTelegram creates the notifier without calling getMe, so it does not
// touch the network until the first failure.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if opts.Token == "" || opts.ChatID == 0 {
		return nil, fmt.Errorf("%w: telegram token and chat id are required", shared.ErrValidation)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	bopts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(10*time.Second, &http.Client{Timeout: 15 * time.Second}),
	}
	if opts.ServerURL != "" {
		bopts = append(bopts, bot.WithServerURL(opts.ServerURL))
	}
	b, err := bot.New(opts.Token, bopts...)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return &Telegram{bot: b, chatID: opts.ChatID, throttle: NewThrottle(opts.Every), log: log}, nil
}

// NotifyFailures sends a summary of failed. Throttled calls are dropped.
func (t *Telegram) NotifyFailures(ctx context.Context, failed []crawl.Result) error {
	if len(failed) == 0 {
		return nil
	}
	if !t.throttle.Allow() {
		t.log.Debug("telegram notification throttled", "failed", len(failed))
		return nil
	}
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   Summary(failed),
	})
	if err != nil {
		return shared.Wrap(shared.MarkKind(err, shared.KindDependencyFailure), "telegram send")
	}
	return nil
}
