package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/shafeequrrehman007/wagpt/internal/messenger"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/stretchr/testify/mock"
)

// fakeMessage is an inbound message built by tests.
type fakeMessage struct {
	id       string
	sender   string
	chat     string
	text     string
	kind     messenger.Kind
	quoted   *fakeMessage
	fromSelf bool
	image    []byte
}

func textMessage(id, sender, text string) *fakeMessage {
	return &fakeMessage{id: id, sender: sender, chat: sender, text: text, kind: messenger.KindText}
}

func (m *fakeMessage) ID() string { return m.id }
func (m *fakeMessage) Sender() string { return m.sender }
func (m *fakeMessage) Chat() string { return m.chat }
func (m *fakeMessage) Text() string { return m.text }
func (m *fakeMessage) Kind() messenger.Kind { return m.kind }
func (m *fakeMessage) FromSelf() bool { return m.fromSelf }

func (m *fakeMessage) Quoted() messenger.Message {
	if m.quoted == nil {
		return nil
	}
	return m.quoted
}

func (m *fakeMessage) Download(ctx context.Context) ([]byte, error) {
	if m.image == nil {
		return nil, errors.New("no media")
	}
	return m.image, nil
}

type outbound struct {
	to      string // message ID for replies, chat for sends
	reply   bool
	content messenger.Content
}

// recordingClient captures everything the handlers send.
type recordingClient struct {
	mu  sync.Mutex
	out []outbound
	// ImageErr, when set, fails replies carrying an image.
	ImageErr error
}

func (c *recordingClient) Reply(ctx context.Context, to messenger.Message, content messenger.Content) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if content.Image != nil && c.ImageErr != nil {
		return c.ImageErr
	}
	c.out = append(c.out, outbound{to: to.ID(), reply: true, content: content})
	return nil
}

func (c *recordingClient) Send(ctx context.Context, chat string, content messenger.Content) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, outbound{to: chat, content: content})
	return nil
}

// texts returns the text of every outbound text message in order.
func (c *recordingClient) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var texts []string
	for _, o := range c.out {
		if o.content.Image == nil {
			texts = append(texts, o.content.Text)
		}
	}
	return texts
}

// images returns every outbound image message in order.
func (c *recordingClient) images() []messenger.Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	var imgs []messenger.Content
	for _, o := range c.out {
		if o.content.Image != nil {
			imgs = append(imgs, o.content)
		}
	}
	return imgs
}

func (c *recordingClient) reset() {
	c.mu.Lock()
	c.out = nil
	c.mu.Unlock()
}

// MockAI is a mock implementation of ai.Service.
type MockAI struct {
	mock.Mock
}

func (m *MockAI) Ready() bool {
	return m.Called().Bool(0)
}

func (m *MockAI) Validate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockAI) Chat(ctx context.Context, history []models.Turn, message string) (string, error) {
	args := m.Called(ctx, history, message)
	return args.String(0), args.Error(1)
}

func (m *MockAI) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	args := m.Called(ctx, image, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockAI) Close() error {
	return nil
}

// fakeSearcher returns canned results.
type fakeSearcher struct {
	SearchFunc func(ctx context.Context, query string, count int) ([]models.ImageResult, error)
	queries    []string
}

func (s *fakeSearcher) Search(ctx context.Context, query string, count int) ([]models.ImageResult, error) {
	s.queries = append(s.queries, query)
	if s.SearchFunc != nil {
		return s.SearchFunc(ctx, query, count)
	}
	return nil, nil
}

// fakeFetcher serves bytes per URL; unknown URLs fail.
type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := f[url]; ok {
		return data, nil
	}
	return nil, errors.New("request failed with status code 404")
}
