// Package telegram delivers console notifications to a Telegram chat.
// Outbound only: the console has no command surface.
package telegram

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/logging"
)

// Sender abstracts the Telegram send call (allows mocking in tests)
type Sender interface {
	SendMessage(chatID int64, text string, parseMode string) error
}

// RateLimiter implements token bucket algorithm for rate limiting
type RateLimiter struct {
	rate       int // messages per minute
	bucketSize int // burst size
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(messagesPerMinute int) *RateLimiter {
	if messagesPerMinute <= 0 {
		messagesPerMinute = 20
	}
	return &RateLimiter{
		rate:       messagesPerMinute,
		bucketSize: messagesPerMinute,
		tokens:     float64(messagesPerMinute),
		lastUpdate: time.Now(),
	}
}

// Allow checks if a message can be sent
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate).Minutes()
	rl.lastUpdate = now

	// Add tokens based on elapsed time
	rl.tokens += float64(rl.rate) * elapsed
	if rl.tokens > float64(rl.bucketSize) {
		rl.tokens = float64(rl.bucketSize)
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Notifier sends alert and digest messages to one configured chat.
type Notifier struct {
	chatID  int64
	enabled bool
	api     Sender
	limiter *RateLimiter
	logger  *logging.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSender injects a Sender, replacing the tgbotapi client.
func WithSender(s Sender) Option {
	return func(n *Notifier) {
		n.api = s
	}
}

// New builds a notifier from config. A disabled config yields a notifier
// whose Send is a no-op, so callers never need a nil check.
func New(cfg config.TelegramConfig, logger *logging.Logger, opts ...Option) (*Notifier, error) {
	n := &Notifier{logger: logger}
	for _, opt := range opts {
		opt(n)
	}

	if !cfg.Enabled {
		return n, nil
	}

	token := strings.TrimSpace(cfg.BotToken)
	if token == "" && n.api == nil {
		return nil, fmt.Errorf("telegram enabled without bot_token")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram enabled without chat_id")
	}

	if n.api == nil {
		client, err := NewClient(token)
		if err != nil {
			return nil, fmt.Errorf("telegram client: %w", err)
		}
		n.api = client
	}

	n.chatID = cfg.ChatID
	n.enabled = true
	n.limiter = NewRateLimiter(cfg.RateLimit.MessagesPerMinute)
	return n, nil
}

// Enabled reports whether messages will actually be delivered.
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// Send delivers one Markdown message to the configured chat. Messages beyond
// the rate limit are refused, not queued.
func (n *Notifier) Send(text string) error {
	if !n.enabled || strings.TrimSpace(text) == "" {
		return nil
	}
	if !n.limiter.Allow() {
		n.logger.Warn("telegram message dropped by rate limit", "chat_id", n.chatID)
		return fmt.Errorf("telegram rate limit exceeded")
	}
	if err := n.api.SendMessage(n.chatID, text, "Markdown"); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Notify sends a one-off message without requiring a Notifier instance.
// Errors are swallowed; one-shot CLI notifications are best effort.
func Notify(token string, chatID int64, text string) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 || strings.TrimSpace(text) == "" {
		return
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, _ = bot.Send(msg)
}
