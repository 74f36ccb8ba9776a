package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/i18n"
	"github.com/shafeequrrehman007/wagpt/internal/messenger"
	"github.com/shafeequrrehman007/wagpt/internal/middleware"
	"github.com/shafeequrrehman007/wagpt/internal/services/ai"
	"github.com/shafeequrrehman007/wagpt/internal/services/dedup"
	"github.com/shafeequrrehman007/wagpt/internal/services/images"
	"github.com/shafeequrrehman007/wagpt/internal/services/storage"
	"github.com/shafeequrrehman007/wagpt/pkg/clock"
	"github.com/shafeequrrehman007/wagpt/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Deps is everything the handlers need, built once at startup.
type Deps struct {
	Config        *config.Config
	Client        messenger.Client
	AI            ai.Service
	Searcher      images.Searcher
	Fetcher       images.Fetcher
	Processor     images.Processor
	Storage       *storage.Manager
	Dedup         *dedup.Store
	GlobalLimiter middleware.RateLimiter
	UserLimiter   middleware.RateLimiter
	Localizer     *i18n.Localizer
	Metrics       *middleware.Metrics
	Clock         clock.Clock
	// Prompt is sent as the first user turn of every AI conversation.
	Prompt string
	Logger *logrus.Logger
}

// Router is the entry point for every inbound message.
type Router struct {
	deps     *Deps
	commands *CommandHandler
	messages *MessageHandler
}

// NewRouter wires the command and AI handlers around deps.
func NewRouter(deps *Deps) *Router {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Metrics == nil {
		deps.Metrics = middleware.NewMetrics()
	}
	return &Router{
		deps:     deps,
		commands: NewCommandHandler(deps),
		messages: NewMessageHandler(deps),
	}
}

// Handle processes one inbound message. It never panics; failures are
// logged and, for commands, reported to the user.
func (r *Router) Handle(ctx context.Context, msg messenger.Message) {
	if msg == nil || msg.FromSelf() {
		return
	}

	d := r.deps
	log := logger.WithMessage(d.Logger, msg)

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("Unhandled error in message handler")
			d.Metrics.RecordMessageProcessed("panic")
		}
	}()

	d.Metrics.RecordMessageReceived(kindLabel(msg.Kind()))

	if d.Dedup.Seen(msg.ID()) {
		log.Debug("Duplicate message detected")
		d.Metrics.RecordDuplicate()
		return
	}

	if !d.UserLimiter.Allow(msg.Sender()) {
		log.Warn("Rate limit exceeded for user")
		d.Metrics.RecordRateLimitExceeded("user")
		notice := d.Localizer.T(i18n.MsgRateLimited, nil)
		if err := d.Client.Send(ctx, msg.Chat(), messenger.Content{Text: notice}); err != nil {
			log.WithError(err).Error("Failed to send rate limit notice")
		}
		return
	}

	if !d.Dedup.MarkIfNew(msg.ID()) {
		log.Debug("Duplicate message detected")
		d.Metrics.RecordDuplicate()
		return
	}

	text := msg.Text()
	if strings.TrimSpace(text) == "" {
		d.Metrics.RecordMessageProcessed("ignored")
		return
	}

	if command, args, ok := ParseCommand(text, d.Config.Bot.Prefix); ok {
		log.WithField("command", command).Info("Command received")
		r.commands.Handle(ctx, log, msg, command, args)
		d.Metrics.RecordMessageProcessed("command")
		return
	}

	r.messages.Handle(ctx, log, msg)
}

var spaceRun = regexp.MustCompile(` +`)

// ParseCommand splits prefixed text into a lower-cased command name and
// its arguments re-joined by single spaces.
func ParseCommand(text, prefix string) (command, args string, ok bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", "", false
	}

	rest := strings.TrimSpace(text[len(prefix):])
	parts := spaceRun.Split(rest, -1)

	return strings.ToLower(parts[0]), strings.Join(parts[1:], " "), true
}

func kindLabel(k messenger.Kind) string {
	switch k {
	case messenger.KindText:
		return "text"
	case messenger.KindImage:
		return "image"
	default:
		return "other"
	}
}
