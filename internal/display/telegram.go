package display

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"spotmylyrics/internal/lyrics"
	logx "spotmylyrics/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

// Telegram limits a text message to 4096 characters.
const telegramMaxRunes = 4096

type TelegramConfig struct {
	Token  string
	ChatID int64
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL  string
	Timeout time.Duration
}

// Telegram sends lyrics to a chat. It also implements logx.Sender so the
// log service can mirror warnings there.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// Offline skips the getMe round trip; the bot only sends.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, log: log.With(logx.String("comp", "telegram"))}, nil
}

func (t *Telegram) Show(ctx context.Context, tr lyrics.Track, text string) error {
	return t.send(ctx, tr.String()+"\n\n"+text)
}

func (t *Telegram) NotFound(ctx context.Context, tr lyrics.Track) error {
	return t.send(ctx, tr.String()+"\n\n"+notFoundText)
}

// SendLog implements logx.Sender.
func (t *Telegram) SendLog(ctx context.Context, text string) error {
	return t.send(ctx, text)
}

func (t *Telegram) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, truncateRunes(text, telegramMaxRunes), &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		// Debug only: a warning here would be mirrored back through SendLog.
		t.log.Debug("telegram send failed", logx.Err(err))
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
