package analyzer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

// Cognitive test names.
const (
	TestTemporal   = "temporal_orientation"
	TestRecall     = "personal_recall"
	TestVocabulary = "vocabulary_richness"
)

// TestMaxScore is the scale every cognitive test reports on.
const TestMaxScore = 10.0

// Weights of the year, month and weekday in temporal orientation.
const (
	yearWeight  = 0.33
	monthWeight = 0.33
	dayWeight   = 0.34
)

var wordRe = regexp.MustCompile(`\w+`)

func lowerWords(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// CognitiveTests runs the three rule-based tests against a transcript. The
// reference date for temporal orientation is the session time.
func CognitiveTests(transcript string, profile patient.Profile, at time.Time) []patient.TestResult {
	return []patient.TestResult{
		{
			Test:     TestTemporal,
			Score:    TemporalOrientation(transcript, at) * TestMaxScore,
			MaxScore: TestMaxScore,
			Details:  "Awareness of current date/time",
		},
		{
			Test:     TestRecall,
			Score:    PersonalRecall(transcript, profile.ExpectedInfo) * TestMaxScore,
			MaxScore: TestMaxScore,
			Details:  "Recall of personal information",
		},
		{
			Test:     TestVocabulary,
			Score:    VocabularyRichness(transcript) * TestMaxScore,
			MaxScore: TestMaxScore,
			Details:  "Language complexity and diversity",
		},
	}
}

// TemporalOrientation scores mentions of the current year, month name and
// weekday name. Month and weekday must appear as whole words.
func TemporalOrientation(transcript string, at time.Time) float64 {
	tokens := make(map[string]bool)
	for _, w := range lowerWords(transcript) {
		tokens[w] = true
	}

	score := 0.0
	if strings.Contains(transcript, strconv.Itoa(at.Year())) {
		score += yearWeight
	}
	if tokens[strings.ToLower(at.Month().String())] {
		score += monthWeight
	}
	if tokens[strings.ToLower(at.Weekday().String())] {
		score += dayWeight
	}
	return round2(score)
}

// PersonalRecall scores how many expected personal facts the transcript
// mentions. Family members count as one item scored by the fraction named;
// profession is a second item. No expected facts scores 0.
func PersonalRecall(transcript string, expected patient.ExpectedInfo) float64 {
	lower := strings.ToLower(transcript)
	var score float64
	items := 0

	if len(expected.FamilyMembers) > 0 {
		items++
		mentioned := 0
		for _, name := range expected.FamilyMembers {
			if name = strings.TrimSpace(name); name != "" && strings.Contains(lower, strings.ToLower(name)) {
				mentioned++
			}
		}
		score += float64(mentioned) / float64(len(expected.FamilyMembers))
	}
	if p := strings.TrimSpace(expected.Profession); p != "" {
		items++
		if strings.Contains(lower, strings.ToLower(p)) {
			score++
		}
	}
	if items == 0 {
		return 0
	}
	return round2(score / float64(items))
}

// VocabularyRichness is the share of distinct words in the transcript.
func VocabularyRichness(transcript string) float64 {
	words := lowerWords(transcript)
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]bool, len(words))
	for _, w := range words {
		unique[w] = true
	}
	return patient.Round3(float64(len(unique)) / float64(len(words)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
