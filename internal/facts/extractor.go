// Package facts mines stable personal details — name, age, home city —
// from a conversation's user turns, in English and Russian, so the prompt
// composer can remind the model who it is talking to.
package facts

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mirralabs/mirra/internal/llm"
)

// Facts holds the personal details extracted from a conversation. Empty
// fields mean the conversation never mentioned them.
type Facts struct {
	Name string
	Age  string
	City string
}

// Empty reports whether no fact was found.
func (f Facts) Empty() bool {
	return f.Name == "" && f.Age == "" && f.City == ""
}

// Patterns are matched case-insensitively against user messages. Only the
// user's own turns count: the assistant restating a name must not become a
// fact. When a category matches more than once, the chronologically last
// match wins, so corrections ("actually, I'm Bob") overwrite earlier values.
var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is ([\p{L}-]+)`),
		regexp.MustCompile(`(?i)\bi am ([\p{L}-]+)\b`),
		regexp.MustCompile(`(?i)\bi'm ([\p{L}-]+)\b`),
		regexp.MustCompile(`(?i)меня зовут ([\p{L}-]+)`),
		regexp.MustCompile(`(?i)моё имя ([\p{L}-]+)`),
		regexp.MustCompile(`(?i)мое имя ([\p{L}-]+)`),
	}

	agePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi am (\d{1,3}) years? old\b`),
		regexp.MustCompile(`(?i)\bi'm (\d{1,3}) years? old\b`),
		// No trailing \b: RE2 word boundaries are ASCII-only and never
		// match after a Cyrillic letter.
		regexp.MustCompile(`(?i)мне (\d{1,3}) (?:лет|года|год)`),
	}

	cityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi live in ([\p{L}-]+)`),
		regexp.MustCompile(`(?i)\bi am from ([\p{L}-]+)\b`),
		regexp.MustCompile(`(?i)\bi'm from ([\p{L}-]+)\b`),
		regexp.MustCompile(`(?i)я живу в ([\p{L}-]+)`),
		regexp.MustCompile(`(?i)я из ([\p{L}-]+)`),
	}
)

// nameStopwords are words the loose "I am X" pattern captures that are
// never names ("I am from Moscow", "I am not sure").
var nameStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "not": {}, "so": {}, "very": {},
	"from": {}, "in": {}, "at": {}, "on": {}, "here": {}, "there": {},
	"sure": {}, "sorry": {}, "just": {}, "also": {}, "still": {},
	"really": {}, "going": {}, "looking": {}, "trying": {}, "back": {},
	"fine": {}, "good": {}, "okay": {}, "ok": {}, "happy": {}, "glad": {},
}

// Extract scans the user turns of messages in order and returns the facts
// they state. Assistant and system turns are ignored.
func Extract(messages []llm.Message) Facts {
	var f Facts
	for _, m := range messages {
		if m.Role != llm.RoleUser {
			continue
		}
		if v := lastMatch(namePatterns, m.Content, isLikelyName); v != "" {
			f.Name = capitalize(v)
		}
		if v := lastMatch(agePatterns, m.Content, nil); v != "" {
			f.Age = v
		}
		if v := lastMatch(cityPatterns, m.Content, nil); v != "" {
			f.City = capitalize(v)
		}
	}
	return f
}

// isLikelyName rejects stopword captures from the loose "I am X" pattern.
// Rejection happens during match selection, so in "My name is Alice and I
// am glad to chat" the later "glad" capture is a non-match and Alice wins.
func isLikelyName(v string) bool {
	_, stop := nameStopwords[strings.ToLower(v)]
	return !stop
}

// lastMatch returns the capture of the final occurrence across all patterns,
// by position in the text, so later statements in the same message win too.
// Captures rejected by accept are skipped entirely; they never shadow an
// earlier accepted capture. A nil accept admits everything.
func lastMatch(patterns []*regexp.Regexp, text string, accept func(string) bool) string {
	best := -1
	var value string
	for _, re := range patterns {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			// idx[2]:idx[3] is the first capture group.
			v := strings.TrimSpace(text[idx[2]:idx[3]])
			if accept != nil && !accept(v) {
				continue
			}
			if idx[2] > best {
				best = idx[2]
				value = v
			}
		}
	}
	return value
}

// capitalize upper-cases the first letter, leaving the rest as written.
func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
