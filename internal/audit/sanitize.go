package audit

import (
	"strings"
	"unicode"
)

// Redacted replaces the value of any detail field whose name matches the
// sensitive denylist.
const Redacted = "[REDACTED]"

// sensitiveWords flags field names that must never reach storage or the event
// bus. Field names are split into words on separators and camelCase
// boundaries, so "apiKey", "refresh_token" and "Authorization" are all caught
// while "monkey" or "hotkey" pass through untouched.
var sensitiveWords = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"key":           {},
	"authorization": {},
}

func sensitiveField(name string) bool {
	for _, word := range fieldWords(name) {
		if _, ok := sensitiveWords[word]; ok {
			return true
		}
	}
	return false
}

// fieldWords splits a field name into lowercase words at non-alphanumeric
// separators and camelCase boundaries. An uppercase run followed by a
// lowercase rune splits before its last rune, so "APIKey" yields "api", "key".
func fieldWords(name string) []string {
	words := make([]string, 0, 4)
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for _, r := range name {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r):
			if len(cur) > 0 && !unicode.IsUpper(cur[len(cur)-1]) {
				flush()
			}
			cur = append(cur, r)
		default:
			if len(cur) > 1 && unicode.IsUpper(cur[len(cur)-1]) && unicode.IsUpper(cur[len(cur)-2]) {
				head := cur[len(cur)-1]
				cur = cur[:len(cur)-1]
				flush()
				cur = append(cur, head)
			}
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// Sanitize returns a deep copy of detail with every sensitive field replaced
// by the redaction marker. Nested maps and slices are walked; the input map is
// never mutated. A nil input yields nil.
func Sanitize(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}

	out := make(map[string]any, len(detail))
	for name, value := range detail {
		if sensitiveField(name) {
			out[name] = Redacted
			continue
		}
		out[name] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Sanitize(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}
