// Package emojize expands emoji shortcodes (":smile:") into their unicode
// form before a message is stored or broadcast, so persisted history and
// live delivery always carry the same content.
package emojize

import (
	"sort"
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/kyokomi/emoji/v2"
)

// Expander finds every known shortcode in one pass with an Aho-Corasick
// automaton built over the emoji code map. Safe for concurrent use: the
// automaton is immutable after construction.
type Expander struct {
	matcher *goahocorasick.Machine
	codes   map[string]string
}

func NewExpander() (*Expander, error) {
	codes := emoji.CodeMap()
	patterns := make([][]rune, 0, len(codes))
	for code := range codes {
		patterns = append(patterns, []rune(code))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Expander{matcher: m, codes: codes}, nil
}

// Expand replaces every shortcode with its unicode emoji. Text without a
// known shortcode is returned unchanged. Overlapping candidates are
// resolved left-to-right: a match starting inside an accepted one is
// skipped.
func (e *Expander) Expand(original string) string {
	if !strings.ContainsRune(original, ':') {
		return original
	}

	runes := []rune(original)
	spans := e.matcher.MultiPatternSearch(runes, false)
	if len(spans) == 0 {
		return original
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Pos < spans[j].Pos })

	var b strings.Builder
	b.Grow(len(original))
	next := 0
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < next || end > len(runes) {
			continue
		}
		b.WriteString(string(runes[next:start]))
		b.WriteString(e.codes[string(span.Word)])
		next = end
	}
	b.WriteString(string(runes[next:]))
	return b.String()
}
