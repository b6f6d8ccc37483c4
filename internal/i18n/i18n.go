// Package i18n holds the widget's UI strings and language negotiation.
//
// FAQ answers are pre-localised in the faq table and do not go through here.
package i18n

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/kpanalytix/kpa-assistant/internal"
)

// ErrMissingKey is returned for keys with no English string.
var ErrMissingKey = errors.New("missing translation key")

var (
	supported = []internal.Lang{internal.LangEN, internal.LangAR}
	matcher   = language.NewMatcher([]language.Tag{language.English, language.Arabic})
)

// ParseLang maps a language tag or Accept-Language value onto a supported
// language. Anything unrecognised is English.
func ParseLang(s string) internal.Lang {
	s = strings.TrimSpace(s)
	if s == "" {
		return internal.LangEN
	}
	_, idx := language.MatchStrings(matcher, s)
	if idx < 0 || idx >= len(supported) {
		return internal.LangEN
	}
	return supported[idx]
}

// Translator is the localisation collaborator used for widget chrome.
type Translator interface {
	Translate(key string, lang internal.Lang) (string, error)
}

// Catalog is a static Translator. Missing Arabic strings fall back to English.
type Catalog map[internal.Lang]map[string]string

func (c Catalog) Translate(key string, lang internal.Lang) (string, error) {
	if s, ok := c[lang][key]; ok {
		return s, nil
	}
	if s, ok := c[internal.LangEN][key]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrMissingKey, key)
}

// Suggestion keys are numbered so the starter prompts keep their order.
const suggestionCount = 3

func SuggestionKey(i int) string { return fmt.Sprintf("suggestion.%d", i) }

// Suggestions returns the starter prompts for lang.
func Suggestions(t Translator, lang internal.Lang) ([]string, error) {
	out := make([]string, 0, suggestionCount)
	for i := 1; i <= suggestionCount; i++ {
		s, err := t.Translate(SuggestionKey(i), lang)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Default is the catalog shipped with the site.
var Default = Catalog{
	internal.LangEN: {
		"greeting":     "Hello! I'm KPAnalytix's assistant. How can I help you today?",
		"placeholder":  "Type your message...",
		"typing":       "Typing...",
		"online":       "Online",
		"learn_more":   "Learn more →",
		"title_ai":     "KPAnalytix AI",
		"title_local":  "KPAnalytix Assistant",
		"powered_by":   "Powered by %s",
		"suggestion.1": "What services do you offer?",
		"suggestion.2": "Who is on your team?",
		"suggestion.3": "How can I contact you?",
	},
	internal.LangAR: {
		"greeting":     "مرحباً! أنا مساعد KPAnalytix. كيف يمكنني مساعدتك اليوم؟",
		"placeholder":  "اكتب رسالتك...",
		"typing":       "يكتب...",
		"learn_more":   "اعرف المزيد ←",
		"suggestion.1": "ما هي خدماتكم؟",
		"suggestion.2": "من هو فريق القيادة؟",
		"suggestion.3": "كيف أتواصل معكم؟",
	},
}

// Keys lists the chrome strings served to the widget.
var Keys = []string{"greeting", "placeholder", "typing", "online", "learn_more", "title_ai", "title_local", "powered_by"}
