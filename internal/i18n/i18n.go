package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/shafeequrrehman007/wagpt/internal/config"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer loads every embedded locale file.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, entry := range entries {
		file, err := bundle.LoadMessageFileFS(localeFS, "locales/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", entry.Name(), err)
		}
		lang := file.Tag.String()
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	defaultLanguage := cfg.DefaultLanguage
	if _, ok := localizers[defaultLanguage]; !ok {
		defaultLanguage = language.English.String()
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// T returns the message in the default language.
func (l *Localizer) T(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}

// Message IDs
const (
	MsgStartReady        = "start_ready"
	MsgStartUnauthorized = "start_unauthorized"
	MsgPingPong          = "ping_pong"
	MsgPingLatency       = "ping_latency"
	MsgClearChatDone     = "clearchat_done"
	MsgClearChatEmpty    = "clearchat_empty"
	MsgImgUsage          = "img_usage"
	MsgImgSearching      = "img_searching"
	MsgImgCaption        = "img_caption"
	MsgImgNone           = "img_none"
	MsgImgError          = "img_error"
	MsgImageSendFailed   = "image_send_failed"
	MsgTestDone          = "test_done"
	MsgHistoryTitle      = "history_title"
	MsgContextSize       = "context_size"
	MsgContextEmpty      = "context_empty"
	MsgForgetDone        = "forget_done"
	MsgForgetEmpty       = "forget_empty"
	MsgRememberUsage     = "remember_usage"
	MsgRememberDone      = "remember_done"
	MsgImageRequired     = "image_required"
	MsgImageProcessing   = "image_processing"
	MsgSearchImgQuery    = "searchimg_query"
	MsgSearchImgCaption  = "searchimg_caption"
	MsgSearchImgNone     = "searchimg_none"
	MsgDescribeResult    = "describe_result"
	MsgImageError        = "image_error"
	MsgUnknownCommand    = "unknown_command"
	MsgRateLimited       = "rate_limited"
	MsgHelp              = "help_text"
)
