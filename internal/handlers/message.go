package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/shafeequrrehman007/wagpt/internal/messenger"
	"github.com/shafeequrrehman007/wagpt/internal/middleware"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/shafeequrrehman007/wagpt/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// MessageHandler answers free text with the AI backend. It never replies
// with an error: failed or empty generations are only logged.
type MessageHandler struct {
	*Deps
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(deps *Deps) *MessageHandler {
	return &MessageHandler{Deps: deps}
}

// Handle sends msg with the sender's history to the AI and replies with
// the formatted answer.
func (h *MessageHandler) Handle(ctx context.Context, log *logrus.Entry, msg messenger.Message) {
	if !h.AI.Ready() {
		log.Debug("AI not configured, ignoring message")
		h.Metrics.RecordMessageProcessed("ignored")
		return
	}

	if h.GlobalLimiter.Limited(middleware.GlobalKey) {
		log.Warn("Global rate limit reached, dropping message")
		h.Metrics.RecordRateLimitExceeded("global")
		h.Metrics.RecordMessageProcessed("rate_limited")
		return
	}

	sender := msg.Sender()
	text := msg.Text()

	history, err := h.Storage.History(ctx, sender)
	if err != nil {
		log.WithError(err).Error("Failed to load chat history")
		history = nil
	}

	conversation := make([]models.Turn, 0, len(history)+1)
	if h.Prompt != "" {
		conversation = append(conversation, models.NewTurn(models.RoleUser, h.Prompt, time.Time{}))
	}
	conversation = append(conversation, boundContext(history, h.Config.History.MaxContextChars)...)

	log.WithField("preview", preview(text, 50)).Info("Processing message")

	h.GlobalLimiter.Increment(middleware.GlobalKey)

	start := time.Now()
	response, err := h.AI.Chat(ctx, conversation, text)
	if err != nil {
		h.Metrics.RecordAIRequest("chat", "error", time.Since(start))
		h.Metrics.RecordMessageProcessed("error")
		log.WithError(err).Error("Error processing message")
		return
	}
	h.Metrics.RecordAIRequest("chat", "success", time.Since(start))

	if strings.TrimSpace(response) == "" {
		log.Warn("Empty response from AI, not sending reply")
		h.Metrics.RecordMessageProcessed("empty")
		return
	}

	formatted := markdown.ToWhatsApp(response)

	now := h.Clock.Now()
	err = h.Storage.Append(ctx, sender,
		models.NewTurn(models.RoleUser, text, now),
		models.NewTurn(models.RoleModel, formatted, now),
	)
	if err != nil {
		log.WithError(err).Error("Failed to update chat history")
	}

	if err := h.Client.Reply(ctx, msg, messenger.Content{Text: formatted}); err != nil {
		log.WithError(err).Error("Failed to send response")
		h.Metrics.RecordMessageProcessed("error")
		return
	}

	log.Info("Response generated")
	h.Metrics.RecordMessageProcessed("success")
}

// minContextTurns is how many of the newest turns survive the character
// bound, so one long answer never empties the context.
const minContextTurns = 2

// boundContext drops the oldest turns while the combined text exceeds
// maxChars, keeping at least minContextTurns, then drops leading model
// turns so the context opens with the user. maxChars <= 0 disables the
// bound.
func boundContext(history []models.Turn, maxChars int) []models.Turn {
	start := 0
	if maxChars > 0 {
		total := 0
		for _, turn := range history {
			total += len(turn.Text())
		}
		for total > maxChars && start < len(history)-minContextTurns {
			total -= len(history[start].Text())
			start++
		}
	}

	for start < len(history) && history[start].Role != models.RoleUser {
		start++
	}

	return history[start:]
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
