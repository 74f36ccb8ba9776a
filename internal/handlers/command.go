package handlers

import (
	"context"
	"time"

	"github.com/shafeequrrehman007/wagpt/internal/i18n"
	"github.com/shafeequrrehman007/wagpt/internal/messenger"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/shafeequrrehman007/wagpt/internal/services/ai"
	"github.com/shafeequrrehman007/wagpt/internal/services/storage"
	"github.com/shafeequrrehman007/wagpt/pkg/markdown"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CommandHandler handles prefixed commands. Failures become replies; no
// error ever reaches the router.
type CommandHandler struct {
	*Deps
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(deps *Deps) *CommandHandler {
	return &CommandHandler{Deps: deps}
}

// Handle runs command with args on behalf of msg.
func (h *CommandHandler) Handle(ctx context.Context, log *logrus.Entry, msg messenger.Message, command, args string) {
	switch command {
	case "ai", "gemini":
		log.WithField("command", command).Debug("Ignoring explicit AI command")
		return
	}

	h.Metrics.RecordCommandExecuted(commandLabel(command))

	switch command {
	case "start":
		h.handleStart(ctx, log, msg)
	case "ping":
		h.handlePing(ctx, log, msg)
	case "clearchat", "clear":
		h.handleClearChat(ctx, log, msg)
	case "img", "image":
		h.handleImageSearch(ctx, log, msg, args)
	case "test":
		h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgTestDone, nil))
	case "history":
		h.handleHistory(ctx, log, msg)
	case "context":
		h.handleContext(ctx, log, msg)
	case "forget":
		h.handleForget(ctx, log, msg)
	case "remember":
		h.handleRemember(ctx, log, msg, args)
	case "help":
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgHelp, h.prefixData()))
	case "searchimg", "describe":
		h.handleImageAnalysis(ctx, log, msg, command)
	default:
		h.handleUnknown(ctx, log, msg, command)
	}
}

// commandLabels maps every accepted command name to its metric label.
var commandLabels = map[string]string{
	"start":     "start",
	"ping":      "ping",
	"clearchat": "clearchat",
	"clear":     "clearchat",
	"img":       "img",
	"image":     "img",
	"test":      "test",
	"history":   "history",
	"context":   "context",
	"forget":    "forget",
	"remember":  "remember",
	"help":      "help",
	"searchimg": "searchimg",
	"describe":  "describe",
}

// commandLabel keeps metric cardinality bounded: user-typed names outside
// the table share one label.
func commandLabel(command string) string {
	if label, ok := commandLabels[command]; ok {
		return label
	}
	return "unknown"
}

func (h *CommandHandler) prefixData() map[string]interface{} {
	return map[string]interface{}{"Prefix": h.Config.Bot.Prefix}
}

func (h *CommandHandler) handleStart(ctx context.Context, log *logrus.Entry, msg messenger.Message) {
	owner := h.Config.Bot.OwnerID
	if owner != "" && msg.Sender() == owner {
		h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgStartReady, nil))
		return
	}
	h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgStartUnauthorized, nil))
}

func (h *CommandHandler) handlePing(ctx context.Context, log *logrus.Entry, msg messenger.Message) {
	start := h.Clock.Now()
	h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgPingPong, nil))
	latency := h.Clock.Now().Sub(start)

	h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgPingLatency, map[string]interface{}{
		"Latency": latency.Milliseconds(),
	}))
}

func (h *CommandHandler) handleClearChat(ctx context.Context, log *logrus.Entry, msg messenger.Message) {
	existed, err := h.Storage.Clear(ctx, msg.Sender())
	if err != nil {
		log.WithError(err).Error("Failed to clear chat history")
		return
	}

	if existed {
		log.Info("Chat history cleared")
		h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgClearChatDone, nil))
		return
	}
	h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgClearChatEmpty, nil))
}

func (h *CommandHandler) handleImageSearch(ctx context.Context, log *logrus.Entry, msg messenger.Message, query string) {
	if query == "" {
		h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgImgUsage, h.prefixData()))
		return
	}

	h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgImgSearching, nil))

	results, err := h.Searcher.Search(ctx, query, h.Config.Search.Results)
	if err != nil {
		log.WithError(err).Error("Image search command failed")
		h.Metrics.RecordImageSearch("error")
		h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgImgError, map[string]interface{}{
			"Error": err.Error(),
		}))
		return
	}
	h.Metrics.RecordImageSearch("success")

	if len(results) == 0 {
		h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgImgNone, map[string]interface{}{
			"Query": query,
		}))
		return
	}

	caption := h.Localizer.T(i18n.MsgImgCaption, map[string]interface{}{
		"Title": results[0].Title,
		"Query": query,
	})
	h.sendImages(ctx, log, msg, results, caption)
}

func (h *CommandHandler) handleHistory(ctx context.Context, log *logrus.Entry, msg messenger.Message) {
	history := h.history(ctx, log, msg.Sender())

	h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgHistoryTitle, map[string]interface{}{
		"History": storage.FormatHistory(history, h.Config.History.MaxDisplay),
	}))
}

func (h *CommandHandler) handleContext(ctx context.Context, log *logrus.Entry, msg messenger.Message) {
	history := h.history(ctx, log, msg.Sender())
	if len(history) == 0 {
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgContextEmpty, nil))
		return
	}

	h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgContextSize, map[string]interface{}{
		"Count": len(history),
	}))
}

func (h *CommandHandler) handleForget(ctx context.Context, log *logrus.Entry, msg messenger.Message) {
	existed, err := h.Storage.Clear(ctx, msg.Sender())
	if err != nil {
		log.WithError(err).Error("Failed to clear chat history")
		return
	}

	if existed {
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgForgetDone, nil))
		return
	}
	h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgForgetEmpty, nil))
}

func (h *CommandHandler) handleRemember(ctx context.Context, log *logrus.Entry, msg messenger.Message, text string) {
	if text == "" {
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgRememberUsage, nil))
		return
	}

	if err := h.Storage.AppendMessage(ctx, msg.Sender(), models.RoleUser, text); err != nil {
		log.WithError(err).Error("Failed to update chat history")
	}
	h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgRememberDone, nil))
}

// handleImageAnalysis serves searchimg and describe. Every failure after
// the image is found yields the same generic reply.
func (h *CommandHandler) handleImageAnalysis(ctx context.Context, log *logrus.Entry, msg messenger.Message, command string) {
	data, err := imageFromMessage(ctx, msg)
	if err != nil {
		log.WithError(err).Error("Error downloading image")
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgImageError, nil))
		return
	}
	if data == nil {
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgImageRequired, nil))
		return
	}

	h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgImageProcessing, nil))

	processed, err := h.Processor.Process(data)
	if err != nil {
		log.WithError(err).Error("Error processing image")
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgImageError, nil))
		return
	}

	prompt := ai.DescribePrompt
	if command == "searchimg" {
		prompt = ai.SearchQueryPrompt
	}

	start := time.Now()
	description, err := h.AI.Describe(ctx, processed, prompt)
	if err != nil {
		h.Metrics.RecordAIRequest("describe", "error", time.Since(start))
		log.WithError(err).Error("Error getting image description")
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgImageError, nil))
		return
	}
	h.Metrics.RecordAIRequest("describe", "success", time.Since(start))

	analysis := map[string]interface{}{"Description": description}

	if command != "searchimg" {
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgDescribeResult, analysis))
		return
	}

	h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgSearchImgQuery, analysis))

	results, err := h.Searcher.Search(ctx, description, h.Config.Search.Results)
	if err != nil {
		h.Metrics.RecordImageSearch("error")
		log.WithError(err).Error("Similar image search failed")
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgImageError, nil))
		return
	}
	h.Metrics.RecordImageSearch("success")

	if len(results) == 0 {
		h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgSearchImgNone, nil))
		return
	}

	h.sendImages(ctx, log, msg, results, h.Localizer.T(i18n.MsgSearchImgCaption, analysis))
}

func (h *CommandHandler) handleUnknown(ctx context.Context, log *logrus.Entry, msg messenger.Message, command string) {
	data := h.prefixData()
	data["Command"] = command
	h.replyFormatted(ctx, log, msg, h.Localizer.T(i18n.MsgUnknownCommand, data))
}

// history loads the sender's log, treating storage failures as empty.
func (h *CommandHandler) history(ctx context.Context, log *logrus.Entry, userID string) []models.Turn {
	history, err := h.Storage.History(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to load chat history")
		return nil
	}
	return history
}

// imageFromMessage prefers an image in the quoted message over one attached
// to msg itself. It returns nil data when neither carries an image.
func imageFromMessage(ctx context.Context, msg messenger.Message) ([]byte, error) {
	if quoted := msg.Quoted(); quoted != nil && quoted.Kind() == messenger.KindImage {
		return quoted.Download(ctx)
	}
	if msg.Kind() == messenger.KindImage {
		return msg.Download(ctx)
	}
	return nil, nil
}

// sendImages sends results in order, paced by the configured interval.
// Only the first image carries caption.
func (h *CommandHandler) sendImages(ctx context.Context, log *logrus.Entry, msg messenger.Message, results []models.ImageResult, caption string) {
	limiter := rate.NewLimiter(rate.Every(h.Config.Images.SendInterval), 1)

	for i, result := range results {
		if err := limiter.Wait(ctx); err != nil {
			log.WithError(err).Warn("Stopped sending images")
			return
		}

		c := ""
		if i == 0 {
			c = caption
		}
		h.sendImage(ctx, log, msg, result.URL, c)
	}
}

// sendImage downloads url and replies with it. A failure is reported to the
// user once and never retried.
func (h *CommandHandler) sendImage(ctx context.Context, log *logrus.Entry, msg messenger.Message, url, caption string) {
	log = log.WithField("url", url)

	data, err := h.Fetcher.Fetch(ctx, url)
	if err == nil {
		err = h.Client.Reply(ctx, msg, messenger.Content{
			Image:   data,
			Caption: caption,
			Quote:   msg.Quoted(),
		})
	}

	if err != nil {
		log.WithError(err).Error("Error sending image")
		h.Metrics.RecordImageSent("error")
		h.reply(ctx, log, msg, h.Localizer.T(i18n.MsgImageSendFailed, map[string]interface{}{
			"Error": err.Error(),
		}))
		return
	}

	log.Debug("Image sent successfully")
	h.Metrics.RecordImageSent("success")
}

func (h *CommandHandler) reply(ctx context.Context, log *logrus.Entry, msg messenger.Message, text string) {
	if err := h.Client.Reply(ctx, msg, messenger.Content{Text: text}); err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}

func (h *CommandHandler) replyFormatted(ctx context.Context, log *logrus.Entry, msg messenger.Message, text string) {
	h.reply(ctx, log, msg, markdown.ToWhatsApp(text))
}
