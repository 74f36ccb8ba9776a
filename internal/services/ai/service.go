package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned by every operation when no AI key is set.
var ErrNotConfigured = errors.New("AI client not initialized")

// Prompts used for image analysis.
const (
	SearchQueryPrompt = "What is shown in this image? Provide a detailed search query that could find similar images."
	DescribePrompt    = "Describe this image in detail, including any text, objects, people, or notable features."
)

// Service is a generative AI backend.
type Service interface {
	// Ready reports whether the backend has credentials.
	Ready() bool
	// Validate sends one test request.
	Validate(ctx context.Context) error
	// Chat continues a conversation. history is sent as prior turns and
	// message as the new user turn.
	Chat(ctx context.Context, history []models.Turn, message string) (string, error)
	// Describe answers prompt about a JPEG image.
	Describe(ctx context.Context, image []byte, prompt string) (string, error)
	Close() error
}

// NewService builds the provider selected by ai.provider. Without a usable
// key it returns a disabled service and no error.
func NewService(ctx context.Context, cfg *config.AIConfig, logger *logrus.Logger) (Service, error) {
	if !cfg.Configured() {
		logger.Warn("AI API key not configured, AI features are disabled")
		return Disabled{}, nil
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg, logger), nil
	default:
		if !strings.HasPrefix(cfg.APIKey, "AIza") {
			logger.Warn("Gemini API key does not look valid, it usually starts with 'AIza'")
		}
		return NewGemini(ctx, cfg, logger)
	}
}

// Disabled is the Service used when no key is configured.
type Disabled struct{}

func (Disabled) Ready() bool { return false }

func (Disabled) Validate(context.Context) error { return ErrNotConfigured }

func (Disabled) Chat(context.Context, []models.Turn, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Describe(context.Context, []byte, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Close() error { return nil }

// Verify validates svc at startup and returns it when that succeeds. A
// failed check closes svc and returns Disabled, so only the AI features go away.
func Verify(ctx context.Context, svc Service, logger *logrus.Logger) Service {
	if !svc.Ready() {
		return svc
	}

	if err := svc.Validate(ctx); err != nil {
		logger.WithError(err).Error("AI API key validation failed, AI features are disabled")
		if cerr := svc.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close AI client")
		}
		return Disabled{}
	}

	logger.Info("AI API key validation successful")
	return svc
}
