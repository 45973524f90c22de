package analyzer

import (
	"regexp"
	"strings"

	"github.com/mindmate/cognition/internal/patient"
)

const (
	maxFallbackMemories    = 5
	minMemorySentenceChars = 20
	maxDescriptionRunes    = 200
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// pastIndicators mark narrative sentences about past events.
var pastIndicators = map[string]bool{
	"was": true, "were": true, "went": true, "visited": true, "saw": true, "remember": true,
}

// ExtractMemories pulls up to five past-tense narrative sentences out of a
// transcript. It is used when no memories were extracted upstream.
func ExtractMemories(transcript string) []patient.ExtractedMemory {
	var out []patient.ExtractedMemory
	for _, s := range sentenceSplit.Split(transcript, -1) {
		s = strings.TrimSpace(s)
		if len(s) <= minMemorySentenceChars || !pastTense(s) {
			continue
		}
		out = append(out, patient.ExtractedMemory{
			Title:         "Past Event",
			Description:   truncateRunes(s, maxDescriptionRunes),
			EmotionalTone: "neutral",
			Tags:          []string{"conversation"},
			Significance:  2,
		})
		if len(out) == maxFallbackMemories {
			break
		}
	}
	return out
}

func pastTense(sentence string) bool {
	words := lowerWords(sentence)
	for i, w := range words {
		if pastIndicators[w] {
			return true
		}
		if w == "used" && i+1 < len(words) && words[i+1] == "to" {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
