package faq

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kpanalytix/kpa-assistant/internal"
)

const ContactPath = "/contact"

var defaultReplies = map[internal.Lang]string{
	internal.LangEN: "I'm not sure about that. Feel free to contact us directly for more information.",
	internal.LangAR: "عذراً، لم أفهم سؤالك. يمكنك التواصل معنا مباشرة للمزيد من المعلومات.",
}

// Resolver answers free text from a Table. It keeps no state and is safe
// for concurrent use.
type Resolver struct {
	table *Table
}

func NewResolver(t *Table) *Resolver {
	return &Resolver{table: t}
}

// Resolve returns the answer of the first entry, in table order, that has a
// keyword contained in the lowercased query. The first matching keyword
// ends the search. With no match it returns DefaultReply.
func (r *Resolver) Resolve(query string, lang internal.Lang) internal.BotReply {
	e, ok := r.Match(query)
	if !ok {
		return DefaultReply(lang)
	}
	return replyFrom(e.Response(lang))
}

// Match reports the entry that Resolve would answer from.
func (r *Resolver) Match(query string) (Entry, bool) {
	q := norm.NFC.String(strings.ToLower(query))
	if q == "" {
		return Entry{}, false
	}
	for _, e := range r.table.entries {
		for _, kw := range e.Keywords {
			if strings.Contains(q, kw) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// DefaultReply is the "contact us" answer for unmatched queries.
func DefaultReply(lang internal.Lang) internal.BotReply {
	text, ok := defaultReplies[lang]
	if !ok {
		text = defaultReplies[internal.LangEN]
	}
	return internal.BotReply{
		Text:   text,
		Action: &internal.Action{Type: internal.ActionNavigate, Path: ContactPath},
	}
}

func replyFrom(r Response) internal.BotReply {
	reply := internal.BotReply{Text: r.Text}
	if r.Link != nil && r.Link.Path != "" {
		reply.Action = &internal.Action{
			Type:  internal.ActionNavigate,
			Path:  r.Link.Path,
			Label: r.Link.Label,
		}
	}
	return reply
}
