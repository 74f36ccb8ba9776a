package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	visionModel string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *logrus.Logger
}

func NewOpenAI(cfg *config.AIConfig, logger *logrus.Logger) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}

	logger.WithFields(logrus.Fields{
		"model":   cfg.Model,
		"baseURL": clientConfig.BaseURL,
	}).Info("OpenAI-compatible client initialized")

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		visionModel: visionModel,
		temperature: cfg.Temperature,
		maxTokens:   int(cfg.MaxOutputTokens),
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

func (o *OpenAI) Ready() bool { return true }

func (o *OpenAI) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Validate(ctx context.Context) error {
	_, err := o.complete(ctx, o.model, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "Hello"},
	})
	if err != nil {
		return fmt.Errorf("openai key validation failed: %w", err)
	}
	return nil
}

func (o *OpenAI) Chat(ctx context.Context, history []models.Turn, message string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, turn := range history {
		role := openai.ChatMessageRoleAssistant
		if turn.Role == models.RoleUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text(),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	text, err := o.complete(ctx, o.model, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return text, nil
}

func (o *OpenAI) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	text, err := o.complete(ctx, o.visionModel, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}
	return text, nil
}

func (o *OpenAI) Close() error { return nil }
