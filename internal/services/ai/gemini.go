package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Gemini talks to the Google Gemini API.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	vision  *genai.GenerativeModel
	timeout time.Duration
	logger  *logrus.Logger
}

// NewGemini creates a Gemini client for cfg.Model and cfg.VisionModel.
func NewGemini(ctx context.Context, cfg *config.AIConfig, logger *logrus.Logger) (*Gemini, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.SetMaxOutputTokens(cfg.MaxOutputTokens)

	vision := model
	if cfg.VisionModel != "" && cfg.VisionModel != cfg.Model {
		vision = client.GenerativeModel(cfg.VisionModel)
		vision.SetTemperature(cfg.Temperature)
		vision.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}

	logger.WithField("model", cfg.Model).Info("Gemini client initialized")

	return &Gemini{
		client:  client,
		model:   model,
		vision:  vision,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

func (g *Gemini) Ready() bool { return true }

func (g *Gemini) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Gemini) Validate(ctx context.Context) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if _, err := g.model.GenerateContent(ctx, genai.Text("Hello")); err != nil {
		return fmt.Errorf("gemini key validation failed: %w", err)
	}
	return nil
}

func (g *Gemini) Chat(ctx context.Context, history []models.Turn, message string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	cs := g.model.StartChat()
	cs.History = toContents(history)

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return extractText(resp), nil
}

func (g *Gemini) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.vision.GenerateContent(ctx, genai.Text(prompt), genai.ImageData("jpeg", image))
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}

	return extractText(resp), nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// toContents converts stored turns to Gemini chat history.
func toContents(history []models.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		parts := make([]genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genai.Text(p.Text))
		}
		role := models.RoleModel
		if turn.Role == models.RoleUser {
			role = models.RoleUser
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: parts,
		})
	}
	return contents
}

// extractText joins the text parts of every candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var result strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				result.WriteString(string(text))
			}
		}
	}
	return result.String()
}
