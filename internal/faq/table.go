// Package faq holds the static FAQ table and the keyword resolver that
// answers from it without any network access.
package faq

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/kpanalytix/kpa-assistant/internal"
)

//go:embed faq.yaml
var defaultTable []byte

// ErrInvalidTable is wrapped by every table validation failure.
var ErrInvalidTable = errors.New("invalid faq table")

type Link struct {
	Path  string `yaml:"path" json:"path"`
	Label string `yaml:"label" json:"label"`
}

type Response struct {
	Text string `yaml:"text" json:"text"`
	Link *Link  `yaml:"link,omitempty" json:"link,omitempty"`
}

// Entry maps trigger keywords to a localised canned answer.
type Entry struct {
	Keywords  []string                   `yaml:"keywords" json:"keywords"`
	Responses map[internal.Lang]Response `yaml:"responses" json:"responses"`
}

// Response returns the answer for lang, or the English one when lang has none.
func (e Entry) Response(lang internal.Lang) Response {
	if r, ok := e.Responses[lang]; ok {
		return r
	}
	return e.Responses[internal.LangEN]
}

// Table is an ordered, read-only list of entries.
type Table struct {
	entries []Entry
}

// NewTable validates entries and returns a table over a private copy.
func NewTable(entries []Entry) (*Table, error) {
	cp := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Keywords) == 0 {
			return nil, fmt.Errorf("%w: entry %d has no keywords", ErrInvalidTable, i)
		}
		kws := make([]string, len(e.Keywords))
		for j, kw := range e.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("%w: entry %d keyword %d is empty", ErrInvalidTable, i, j)
			}
			if kw != strings.ToLower(kw) {
				return nil, fmt.Errorf("%w: entry %d keyword %q is not lowercase", ErrInvalidTable, i, kw)
			}
			kws[j] = norm.NFC.String(kw)
		}
		en, ok := e.Responses[internal.LangEN]
		if !ok || en.Text == "" {
			return nil, fmt.Errorf("%w: entry %d has no en response", ErrInvalidTable, i)
		}
		resp := make(map[internal.Lang]Response, len(e.Responses))
		for lang, r := range e.Responses {
			resp[lang] = r
		}
		cp[i] = Entry{Keywords: kws, Responses: resp}
	}
	return &Table{entries: cp}, nil
}

// Parse decodes a YAML table.
func Parse(data []byte) (*Table, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return NewTable(entries)
}

// Default returns the table shipped with the site.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// MustDefault is Default for program start-up.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	cp := make([]Entry, len(t.entries))
	copy(cp, t.entries)
	return cp
}
