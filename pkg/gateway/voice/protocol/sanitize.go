package protocol

import "strings"

// MaxContextRunes bounds the free-text lesson context a client may inject
// into the provider prompt.
const MaxContextRunes = 100

// SanitizeContext trims, strips control characters, collapses internal
// whitespace runs, and truncates to MaxContextRunes. It is idempotent:
// sanitizing already-sanitized text returns it unchanged.
func SanitizeContext(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := false
	for _, r := range raw {
		switch {
		case r == '\n' || r == '\r' || r == '\t' || r == ' ':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case r < 0x20 || r == 0x7f:
			// drop other control characters
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > MaxContextRunes {
		out = strings.TrimSpace(string(runes[:MaxContextRunes]))
	}
	return out
}

// ValidateInit checks an init frame against the language allow-list and
// context rules. languages holds lower-cased allowed names.
func ValidateInit(msg ClientInit, languages map[string]bool) (ClientInit, *DecodeError) {
	lang := strings.ToLower(strings.TrimSpace(msg.Language))
	if lang == "" {
		return msg, badRequest("language is required", "language")
	}
	if !languages[lang] {
		return msg, badRequest("unsupported language", "language")
	}
	ctx := SanitizeContext(msg.Context)
	if ctx == "" {
		return msg, badRequest("context must not be empty", "context")
	}
	msg.Language = lang
	msg.Context = ctx
	return msg, nil
}
