// Package telegram connects the bot to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/messenger"
	"github.com/shafeequrrehman007/wagpt/internal/services/images"
	"github.com/sirupsen/logrus"
)

// botAPI is the part of tgbotapi.BotAPI the transport uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client receives updates and implements messenger.Client.
type Client struct {
	bot           botAPI
	selfID        int64
	fetcher       images.Fetcher
	updateTimeout int
	logger        *logrus.Logger
}

// New authorizes the bot token and returns a ready client. Media is
// downloaded through fetcher.
func New(cfg *config.TelegramConfig, fetcher images.Fetcher, logger *logrus.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token not configured")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = cfg.Debug

	logger.WithField("username", bot.Self.UserName).Info("Bot authorized")

	return newClient(bot, bot.Self.ID, fetcher, cfg.UpdateTimeout, logger), nil
}

func newClient(bot botAPI, selfID int64, fetcher images.Fetcher, updateTimeout int, logger *logrus.Logger) *Client {
	return &Client{
		bot:           bot,
		selfID:        selfID,
		fetcher:       fetcher,
		updateTimeout: updateTimeout,
		logger:        logger,
	}
}

// Run long-polls for updates and hands every message to handle on its own
// goroutine. It returns once ctx is cancelled and in-flight handlers finish.
func (c *Client) Run(ctx context.Context, handle func(context.Context, messenger.Message)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.updateTimeout

	updates := c.bot.GetUpdatesChan(u)
	c.logger.Info("Using long polling")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}

			msg := c.wrap(update.Message)
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle(ctx, msg)
			}()
		}
	}
}

// Reply answers to, quoting content.Quote for images when it is set.
func (c *Client) Reply(ctx context.Context, to messenger.Message, content messenger.Content) error {
	chatID, err := parseChatID(to.Chat())
	if err != nil {
		return err
	}

	replyTo := messageID(to)
	if content.Image != nil && content.Quote != nil {
		if id := messageID(content.Quote); id != 0 {
			replyTo = id
		}
	}
	return c.deliver(chatID, replyTo, content)
}

// Send posts content to chat without quoting.
func (c *Client) Send(ctx context.Context, chat string, content messenger.Content) error {
	chatID, err := parseChatID(chat)
	if err != nil {
		return err
	}
	return c.deliver(chatID, 0, content)
}

func (c *Client) deliver(chatID int64, replyTo int, content messenger.Content) error {
	if content.Image != nil {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.jpg", Bytes: content.Image})
		photo.Caption = content.Caption
		photo.ReplyToMessageID = replyTo
		if _, err := c.bot.Send(photo); err != nil {
			return fmt.Errorf("failed to send photo: %w", err)
		}
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, content.Text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = replyTo
	_, err := c.bot.Send(msg)
	if err == nil {
		return nil
	}
	// formatted replies are not always valid Telegram Markdown
	c.logger.WithError(err).Debug("Markdown send failed, retrying as plain text")

	msg.ParseMode = ""
	if _, err = c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) wrap(m *tgbotapi.Message) *Message {
	return &Message{msg: m, client: c}
}

// Message adapts a Telegram message to messenger.Message.
type Message struct {
	msg    *tgbotapi.Message
	client *Client
}

// ID is unique per chat, so the chat ID is part of it.
func (m *Message) ID() string {
	return fmt.Sprintf("%d:%d", m.chatID(), m.msg.MessageID)
}

func (m *Message) Sender() string {
	if m.msg.From == nil {
		return strconv.FormatInt(m.chatID(), 10)
	}
	return strconv.FormatInt(m.msg.From.ID, 10)
}

func (m *Message) Chat() string {
	return strconv.FormatInt(m.chatID(), 10)
}

func (m *Message) Text() string {
	if m.msg.Text != "" {
		return m.msg.Text
	}
	return m.msg.Caption
}

func (m *Message) Kind() messenger.Kind {
	switch {
	case len(m.msg.Photo) > 0:
		return messenger.KindImage
	case m.msg.Document != nil && strings.HasPrefix(m.msg.Document.MimeType, "image/"):
		return messenger.KindImage
	case m.msg.Text != "":
		return messenger.KindText
	default:
		return messenger.KindOther
	}
}

func (m *Message) Quoted() messenger.Message {
	if m.msg.ReplyToMessage == nil {
		return nil
	}
	return m.client.wrap(m.msg.ReplyToMessage)
}

func (m *Message) FromSelf() bool {
	return m.msg.From != nil && m.msg.From.ID == m.client.selfID
}

// Download fetches the largest photo size, or an image document.
func (m *Message) Download(ctx context.Context) ([]byte, error) {
	var fileID string
	switch {
	case len(m.msg.Photo) > 0:
		fileID = m.msg.Photo[len(m.msg.Photo)-1].FileID
	case m.msg.Document != nil:
		fileID = m.msg.Document.FileID
	default:
		return nil, errors.New("message has no media")
	}

	url, err := m.client.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}

	data, err := m.client.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

func (m *Message) chatID() int64 {
	if m.msg.Chat == nil {
		return 0
	}
	return m.msg.Chat.ID
}

func messageID(msg messenger.Message) int {
	if m, ok := msg.(*Message); ok {
		return m.msg.MessageID
	}
	return 0
}

func parseChatID(chat string) (int64, error) {
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", chat, err)
	}
	return id, nil
}
