package analyzer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TermMatch represents occurrences of a term within content.
type TermMatch struct {
	Term      string   `json:"term"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences"`
}

// FindTermMatches scans content for each term, case-insensitively, and
// returns one TermMatch per term found along with the sentences containing it.
func FindTermMatches(content string, terms []string) []TermMatch {
	if len(content) == 0 || len(terms) == 0 {
		return nil
	}

	results := make([]TermMatch, 0, len(terms))
	lowerContent := strings.ToLower(content)
	sentences := splitIntoSentences(content)

	for _, term := range terms {
		lowerTerm := strings.ToLower(term)
		if lowerTerm == "" {
			continue
		}
		count := strings.Count(lowerContent, lowerTerm)
		if count == 0 {
			continue
		}

		var matched []string
		for _, sd := range sentences {
			if strings.Contains(sd.lower, lowerTerm) {
				matched = append(matched, sd.original)
			}
		}
		results = append(results, TermMatch{Term: term, Count: count, Sentences: matched})
	}
	return results
}

// MentionsAny reports whether content contains any of terms, case-insensitively.
func MentionsAny(content string, terms []string) bool {
	lower := strings.ToLower(content)
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

type sentence struct {
	original string
	lower    string
}

// isTerminator covers ASCII and full-width CJK sentence punctuation.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// splitIntoSentences splits on sentence punctuation, keeping the delimiter at
// the end of each sentence.
func splitIntoSentences(text string) []sentence {
	estimated := len(text) / 50
	if estimated < 1 {
		estimated = 1
	}
	out := make([]sentence, 0, estimated)

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, sentence{original: s, lower: strings.ToLower(s)})
		}
	}

	start := 0
	for i, r := range text {
		if i < start || !isTerminator(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		for end < len(text) && unicode.IsSpace(rune(text[end])) {
			end++
		}
		add(text[start:end])
		start = end
	}
	if start < len(text) {
		add(text[start:])
	}
	return out
}
