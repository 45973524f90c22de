package metrics

import (
	"regexp"
	"strings"
	"unicode"
)

// stopWords are ignored when checking whether two lines share a topic.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "i": true, "you": true,
}

// entityRe matches runs of capitalized words, a cheap proxy for names and places.
var entityRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// words splits text into lowercase word tokens. Unlike the search tokenizer
// this keeps single-character words, since sentence length matters here.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// lines returns the non-blank, trimmed lines of a transcript.
func lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// sentences splits on terminal punctuation and drops empty fragments.
func sentences(text string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// questions returns the normalized text of every sentence ending in "?".
func questions(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		switch r {
		case '.', '!', '\n':
			start = i + 1
		case '?':
			q := strings.ToLower(strings.Join(strings.Fields(text[start:i]), " "))
			if q != "" {
				out = append(out, q)
			}
			start = i + 1
		}
	}
	return out
}

// entities returns the set of capitalized word runs in text.
func entities(text string) map[string]bool {
	set := make(map[string]bool)
	for _, m := range entityRe.FindAllString(text, -1) {
		set[m] = true
	}
	return set
}

// sharesTopic reports whether two adjacent lines have a content word in common.
func sharesTopic(prev, curr string) bool {
	seen := make(map[string]bool)
	for _, w := range words(prev) {
		if !stopWords[w] {
			seen[w] = true
		}
	}
	for _, w := range words(curr) {
		if seen[w] {
			return true
		}
	}
	return false
}

// uniqueRatio is the share of distinct tokens. Empty input yields 0.
func uniqueRatio(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return float64(len(set)) / float64(len(tokens))
}
