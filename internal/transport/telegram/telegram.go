// Package telegram implements the transport.Sender capability on top of
// the Telegram Bot API via telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "sitewatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Offline skips the initial getMe call; used by tests.
	Offline bool
}

// Adapter sends notifications to Telegram chats.
//
// Session token format (issued by Session, parsed by Send):
//
//	telegram:<chat_id>
//	telegram:<chat_id>:<thread_id>
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

const sessionPrefix = "telegram:"

var ErrBadSession = errors.New("telegram: malformed session token")

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" && !cfg.Offline {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// Start begins long polling for commands. It returns immediately.
func (a *Adapter) Start() {
	go a.bot.Start()
	a.log.Info("telegram polling started")
}

// Stop halts long polling.
func (a *Adapter) Stop() {
	a.bot.Stop()
}

// Session builds the opaque session token for a chat. The host calls this
// when capturing a subscriber's delivery context.
func Session(chatID int64, threadID int) string {
	if threadID != 0 {
		return fmt.Sprintf("%s%d:%d", sessionPrefix, chatID, threadID)
	}
	return fmt.Sprintf("%s%d", sessionPrefix, chatID)
}

// ParseSession splits a session token back into chat and thread ids.
func ParseSession(session string) (chatID int64, threadID int, err error) {
	s := strings.TrimSpace(session)
	if !strings.HasPrefix(s, sessionPrefix) {
		return 0, 0, ErrBadSession
	}
	parts := strings.Split(s[len(sessionPrefix):], ":")
	if len(parts) < 1 || len(parts) > 2 {
		return 0, 0, ErrBadSession
	}
	chatID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadSession, err)
	}
	if len(parts) == 2 {
		threadID, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrBadSession, err)
		}
	}
	return chatID, threadID, nil
}

// Send implements transport.Sender.
func (a *Adapter) Send(ctx context.Context, session string, text string) error {
	chatID, threadID, err := ParseSession(session)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if threadID != 0 {
		opts.ThreadID = threadID
	}

	// telebot has no context-aware send; run it on the side so the caller's
	// deadline is still honored.
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(tele.ChatID(chatID), text, opts)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			a.log.Debug("telegram send failed", logx.Int64("chat_id", chatID), logx.Err(err))
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
