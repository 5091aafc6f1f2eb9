package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client adapts tgbotapi.BotAPI to the Sender interface.
type Client struct {
	bot *tgbotapi.BotAPI
}

// NewClient creates a new Telegram client using tgbotapi.
func NewClient(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Client{bot: bot}, nil
}

// SendMessage sends a message to the specified chat.
func (c *Client) SendMessage(chatID int64, text string, parseMode string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	_, err := c.bot.Send(msg)
	return err
}

var _ Sender = (*Client)(nil)
