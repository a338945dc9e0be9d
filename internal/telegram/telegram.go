// Package telegram sends operator alerts to a chat. Without a bot token every
// call is a no-op.
package telegram

import (
	"sync"

	"MozoPOS/internal/config"
	"MozoPOS/pkg/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"
)

// Sender is satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	token  string
	chatID int64

	once sync.Once
	bot  Sender
	err  error
}

func New(cfg *config.Config) *Notifier {
	return &Notifier{token: cfg.TELEGRAM.BotToken, chatID: cfg.TELEGRAM.ChatID}
}

// NewWithSender uses bot instead of connecting with a token.
func NewWithSender(bot Sender, chatID int64) *Notifier {
	n := &Notifier{chatID: chatID, bot: bot}
	n.once.Do(func() {})
	return n
}

func (n *Notifier) Enabled() bool {
	return n != nil && (n.token != "" || n.bot != nil) && n.chatID != 0
}

func (n *Notifier) SendMessage(text string) error {
	if !n.Enabled() {
		return nil
	}
	bot, err := n.connect()
	if err != nil {
		return err
	}
	if _, err := bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}
	return nil
}

// SendMessageWithLogError sends text and only logs a failure.
func (n *Notifier) SendMessageWithLogError(text string) {
	if err := n.SendMessage(text); err != nil {
		logging.GetLogger().Errorf("failed telegram.SendMessage(), error: %v", err)
	}
}

func (n *Notifier) connect() (Sender, error) {
	n.once.Do(func() {
		bot, err := tgbotapi.NewBotAPI(n.token)
		if err != nil {
			n.err = errors.Wrap(err, "failed tgbotapi.NewBotAPI()")
			return
		}
		logging.GetLogger().Infof("Authorized on telegram account %s", bot.Self.UserName)
		n.bot = bot
	})
	return n.bot, n.err
}
