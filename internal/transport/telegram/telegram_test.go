package telegram

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shafeequrrehman007/wagpt/internal/messenger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botID = 999

type fakeBot struct {
	mu           sync.Mutex
	sent         []tgbotapi.Chattable
	failMarkdown bool
	updates      chan tgbotapi.Update
	stopped      bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	if m, ok := c.(tgbotapi.MessageConfig); ok && b.failMarkdown && m.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (b *fakeBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := f[url]; ok {
		return data, nil
	}
	return nil, errors.New("request failed with status code 404")
}

func newTestClient(bot *fakeBot, fetcher fakeFetcher) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return newClient(bot, botID, fetcher, 60, logger)
}

func tgMessage(id int, from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: id,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: 42},
		Text:      text,
	}
}

func TestMessageMapping(t *testing.T) {
	c := newTestClient(&fakeBot{}, nil)

	photo := tgMessage(7, 1001, "")
	photo.Caption = "!describe"
	photo.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	photo.ReplyToMessage = tgMessage(5, botID, "earlier")

	m := c.wrap(photo)
	assert.Equal(t, "42:7", m.ID())
	assert.Equal(t, "1001", m.Sender())
	assert.Equal(t, "42", m.Chat())
	assert.Equal(t, "!describe", m.Text())
	assert.Equal(t, messenger.KindImage, m.Kind())
	assert.False(t, m.FromSelf())

	quoted := m.Quoted()
	require.NotNil(t, quoted)
	assert.Equal(t, "42:5", quoted.ID())
	assert.True(t, quoted.FromSelf())
	assert.Equal(t, messenger.KindText, quoted.Kind())
	assert.Nil(t, quoted.Quoted())

	sticker := tgMessage(8, 1001, "")
	assert.Equal(t, messenger.KindOther, c.wrap(sticker).Kind())

	doc := tgMessage(9, 1001, "")
	doc.Document = &tgbotapi.Document{FileID: "doc", MimeType: "image/png"}
	assert.Equal(t, messenger.KindImage, c.wrap(doc).Kind())
}

func TestDownloadUsesLargestPhoto(t *testing.T) {
	c := newTestClient(&fakeBot{}, fakeFetcher{"https://files.example/large": []byte("jpeg")})

	msg := tgMessage(7, 1001, "")
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}

	data, err := c.wrap(msg).Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = c.wrap(tgMessage(8, 1001, "text only")).Download(context.Background())
	assert.Error(t, err)
}

func TestReplyText(t *testing.T) {
	bot := &fakeBot{}
	c := newTestClient(bot, nil)

	err := c.Reply(context.Background(), c.wrap(tgMessage(7, 1001, "hi")), messenger.Content{Text: "*hello*"})
	require.NoError(t, err)

	require.Len(t, bot.sent, 1)
	sent := bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(42), sent.ChatID)
	assert.Equal(t, 7, sent.ReplyToMessageID)
	assert.Equal(t, "*hello*", sent.Text)
	assert.Equal(t, tgbotapi.ModeMarkdown, sent.ParseMode)
}

func TestReplyFallsBackToPlainText(t *testing.T) {
	bot := &fakeBot{failMarkdown: true}
	c := newTestClient(bot, nil)

	err := c.Reply(context.Background(), c.wrap(tgMessage(7, 1001, "hi")), messenger.Content{Text: "a *b"})
	require.NoError(t, err)

	require.Len(t, bot.sent, 2)
	assert.Equal(t, "", bot.sent[1].(tgbotapi.MessageConfig).ParseMode)
}

func TestReplyImageQuotesOriginal(t *testing.T) {
	bot := &fakeBot{}
	c := newTestClient(bot, nil)

	cmd := tgMessage(7, 1001, "!searchimg")
	cmd.ReplyToMessage = tgMessage(3, 1002, "")
	msg := c.wrap(cmd)

	err := c.Reply(context.Background(), msg, messenger.Content{
		Image:   []byte("jpeg"),
		Caption: "📸 Cat",
		Quote:   msg.Quoted(),
	})
	require.NoError(t, err)

	require.Len(t, bot.sent, 1)
	photo := bot.sent[0].(tgbotapi.PhotoConfig)
	assert.Equal(t, 3, photo.ReplyToMessageID)
	assert.Equal(t, "📸 Cat", photo.Caption)
	assert.Equal(t, tgbotapi.FileBytes{Name: "image.jpg", Bytes: []byte("jpeg")}, photo.File)
}

func TestSendDoesNotQuote(t *testing.T) {
	bot := &fakeBot{}
	c := newTestClient(bot, nil)

	require.NoError(t, c.Send(context.Background(), "42", messenger.Content{Text: "slow down"}))
	assert.Equal(t, 0, bot.sent[0].(tgbotapi.MessageConfig).ReplyToMessageID)

	assert.Error(t, c.Send(context.Background(), "not-a-chat", messenger.Content{Text: "x"}))
}

func TestRunDispatchesMessages(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 3)}
	c := newTestClient(bot, nil)

	bot.updates <- tgbotapi.Update{UpdateID: 1, Message: tgMessage(1, 1001, "hello")}
	bot.updates <- tgbotapi.Update{UpdateID: 2}
	bot.updates <- tgbotapi.Update{UpdateID: 3, Message: tgMessage(2, 1001, "!ping")}

	received := make(chan string, 3)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(ctx context.Context, msg messenger.Message) {
			received <- msg.Text()
		})
		close(done)
	}()

	var texts []string
	for len(texts) < 2 {
		select {
		case text := <-received:
			texts = append(texts, text)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
	assert.ElementsMatch(t, []string{"hello", "!ping"}, texts)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.True(t, bot.stopped)
}
