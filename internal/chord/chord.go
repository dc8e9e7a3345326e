// Package chord classifies key events against a configured hotkey chord.
// A chord string is modifier+key tokens joined by "+", e.g.
// "CommandOrControl+Shift+M". Matching is alias-expanded so a chord captured
// in a different modifier order, spelling, or left/right variant still
// matches.
package chord

import "strings"

// Match is the classification of one key event against a Matcher.
type Match int

const (
	MatchNone Match = iota
	// MatchFuzzy means every token of the event is an alias of some chord
	// token, but the token counts differ (a strict subset such as a bare
	// "Ctrl" press while the chord is "Ctrl+Shift+M").
	MatchFuzzy
	// MatchExact means the event carries the full chord: alias containment
	// plus equal token count.
	MatchExact
)

// aliasGroups maps a canonical token to every accepted spelling. Tokens not
// listed here (plain keys like "m" or "f8") alias only themselves.
var aliasGroups = map[string][]string{
	"control":          {"control", "ctrl"},
	"shift":            {"shift"},
	"alt":              {"alt", "option", "opt", "altgr"},
	"meta":             {"meta", "cmd", "command", "super", "win"},
	"commandorcontrol": {"commandorcontrol", "command", "cmd", "meta", "control", "ctrl"},
}

// aliasIndex maps every spelling back to its canonical token.
var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for canonical, aliases := range aliasGroups {
		for _, a := range aliases {
			// CommandOrControl deliberately shadows nothing: concrete
			// modifiers keep their own canonical group.
			if _, taken := idx[a]; !taken || canonical != "commandorcontrol" {
				idx[a] = canonical
			}
		}
	}
	idx["commandorcontrol"] = "commandorcontrol"
	return idx
}()

// Matcher is the alias-expanded form of one configured chord. It is cheap to
// build and never persisted.
type Matcher struct {
	chord   string
	tokens  []string
	aliases map[string]struct{}
}

// NewMatcher builds a matcher from a chord string. Returns nil for an empty
// chord.
func NewMatcher(chordStr string) *Matcher {
	tokens := Tokenize(chordStr)
	if len(tokens) == 0 {
		return nil
	}
	m := &Matcher{
		chord:   chordStr,
		tokens:  tokens,
		aliases: make(map[string]struct{}),
	}
	for _, tok := range tokens {
		m.aliases[tok] = struct{}{}
		canonical, ok := aliasIndex[tok]
		if !ok {
			continue
		}
		for _, a := range aliasGroups[canonical] {
			m.aliases[a] = struct{}{}
		}
		// A chord naming a concrete ctrl/meta modifier also accepts the
		// portable CommandOrControl spelling and vice versa.
		if canonical == "control" || canonical == "meta" {
			m.aliases[canonical] = struct{}{}
			m.aliases["commandorcontrol"] = struct{}{}
		}
	}
	return m
}

// Chord returns the original chord string the matcher was built from.
func (m *Matcher) Chord() string {
	if m == nil {
		return ""
	}
	return m.chord
}

// TokenCount returns the number of canonical tokens in the chord.
func (m *Matcher) TokenCount() int {
	if m == nil {
		return 0
	}
	return len(m.tokens)
}

// ClassifyLabel classifies a combo label such as "Ctrl+Shift+M".
func (m *Matcher) ClassifyLabel(label string) Match {
	if m == nil {
		return MatchNone
	}
	tokens := Tokenize(label)
	if len(tokens) == 0 {
		return MatchNone
	}
	for _, tok := range tokens {
		if _, ok := m.aliases[tok]; !ok {
			return MatchNone
		}
	}
	if len(tokens) == len(m.tokens) {
		return MatchExact
	}
	return MatchFuzzy
}

// Tokenize splits a chord or combo label into normalized tokens: split on
// "+", trimmed, lower-cased, left/right suffixes stripped.
func Tokenize(s string) []string {
	parts := strings.Split(s, "+")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tok := normalizeToken(p)
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func normalizeToken(raw string) string {
	tok := strings.ToLower(strings.TrimSpace(raw))
	for _, suffix := range []string{"left", "right"} {
		if base, ok := strings.CutSuffix(tok, suffix); ok && base != "" {
			if _, known := aliasIndex[base]; known {
				tok = base
			}
			break
		}
	}
	return tok
}
