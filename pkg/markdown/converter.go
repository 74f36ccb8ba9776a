package markdown

import (
	"regexp"
)

// maxPasses bounds the fixpoint loop in ToWhatsApp. Every pass either
// removes asterisks or only inserts spaces next to them, so real inputs
// settle in two or three passes.
const maxPasses = 8

type rule struct {
	pattern *regexp.Regexp
	replace string
}

var whatsAppRules = []rule{
	// **bold** -> *bold*
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "*$1*"},
	// leftover double asterisks
	{regexp.MustCompile(`\*\*`), "*"},
	// empty emphasis
	{regexp.MustCompile(`\*\s*\*`), ""},
	// spacing around emphasis boundaries
	{regexp.MustCompile(`(\w)\*(\w)`), "$1 *$2"},
	{regexp.MustCompile(`(\w)\*([^*\s])`), "$1 *$2"},
	{regexp.MustCompile(`([^*\s])\*(\w)`), "$1* $2"},
	// markdown list items -> bullets
	{regexp.MustCompile(`(?m)^\* `), "• "},
	{regexp.MustCompile(`•(\w)`), "• $1"},
}

// ToWhatsApp converts markdown emphasis and lists produced by the AI
// backend to WhatsApp-style markup. The result is stable: applying
// ToWhatsApp to its own output returns it unchanged.
func ToWhatsApp(text string) string {
	if text == "" {
		return ""
	}

	for i := 0; i < maxPasses; i++ {
		next := applyRules(text)
		if next == text {
			break
		}
		text = next
	}

	return text
}

func applyRules(text string) string {
	for _, r := range whatsAppRules {
		text = r.pattern.ReplaceAllString(text, r.replace)
	}
	return text
}
