// Package metrics derives five memory-capability scores from a session
// transcript and the patient's prior sessions.
//
// All scoring is closed-form. Absent inputs (empty transcript, no prior
// sessions, no extracted memories) degrade to documented neutral baselines
// rather than errors.
package metrics

import (
	"strings"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

// Baselines.
const (
	neutralBaseline  = 0.5
	episodicBaseline = 0.3
)

// Short-term recall.
const (
	questionUniquenessWeight = 0.3
	coherenceWeight          = 0.2
	maxCoherencePairs        = 9
)

// Long-term recall.
const (
	pastReferenceStep    = 0.1
	pastReferenceCap     = 0.3
	entityConsistencyMax = 0.2
	consistencyWindow    = 3
)

// Semantic memory.
const (
	temporalStep        = 0.05
	temporalCap         = 0.2
	diversityMinTokens  = 20
	diversityWeight     = 0.3
	shortDiversityBonus = 0.1
)

// Episodic memory.
const (
	richnessBonus          = 0.2
	richDescriptionMinChar = 50
)

// Working memory.
const (
	optimalSentenceMin = 10
	optimalSentenceMax = 20
	partialSentenceMin = 8
	optimalLengthBonus = 0.3
	partialLengthBonus = 0.2
	connectorMinLines  = 3
	connectorStep      = 0.05
	connectorCap       = 0.2
)

// pastReferences are phrases that point back to earlier conversations.
var pastReferences = []string{
	"remember", "last time", "yesterday", "last week",
	"you told me", "we talked about", "mentioned before",
}

// temporalTokens are day, month and relative-date literals that indicate
// orientation in time. Four-digit years are matched separately.
var temporalTokens = map[string]bool{
	"today": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// connectors signal logical flow between statements.
var connectors = map[string]bool{
	"and": true, "but": true, "so": true, "because": true, "then": true, "also": true,
}

// Engine computes memory metrics. The zero value is ready to use.
type Engine struct {
	// Now overrides the clock for windowed operations. Nil means time.Now.
	Now func() time.Time
}

// New creates a new Engine.
func New() *Engine {
	return &Engine{Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Score derives all five memory metrics for one session. previous holds the
// patient's earlier sessions, oldest first. Each score is rounded to three
// decimals and clamped to [0,1].
func (e *Engine) Score(transcript string, profile patient.Profile, memories []patient.ExtractedMemory, previous []patient.Session) patient.Scores {
	_ = profile // profile facts are scored by the analyzer's recall test
	return patient.Scores{
		ShortTermRecall: patient.Round3(ShortTermRecall(transcript)),
		LongTermRecall:  patient.Round3(LongTermRecall(transcript, previous)),
		SemanticMemory:  patient.Round3(SemanticMemory(transcript)),
		EpisodicMemory:  patient.Round3(EpisodicMemory(memories)),
		WorkingMemory:   patient.Round3(WorkingMemory(transcript)),
	}
}

// ShortTermRecall rewards unrepeated questions and topical continuity
// between consecutive lines.
func ShortTermRecall(transcript string) float64 {
	score := neutralBaseline

	qs := questions(transcript)
	if len(qs) > 1 {
		score += uniqueRatio(qs) * questionUniquenessWeight
	} else {
		score += questionUniquenessWeight
	}

	ls := lines(transcript)
	if len(ls) > 1 {
		// At most maxCoherencePairs are checked; the ratio is over all pairs.
		pairs := min(len(ls)-1, maxCoherencePairs)
		coherent := 0
		for i := 1; i <= pairs; i++ {
			if sharesTopic(ls[i-1], ls[i]) {
				coherent++
			}
		}
		score += float64(coherent) / float64(len(ls)-1) * coherenceWeight
	}

	return patient.Clamp01(score)
}

// LongTermRecall rewards references to past conversations and names that
// recur from the last three prior transcripts. Without history it is neutral.
func LongTermRecall(transcript string, previous []patient.Session) float64 {
	if len(previous) == 0 {
		return neutralBaseline
	}
	score := neutralBaseline

	lower := strings.ToLower(transcript)
	refs := 0
	for _, phrase := range pastReferences {
		if strings.Contains(lower, phrase) {
			refs++
		}
	}
	score += min(pastReferenceCap, float64(refs)*pastReferenceStep)

	window := previous
	if len(window) > consistencyWindow {
		window = window[len(window)-consistencyWindow:]
	}
	current := entities(transcript)
	consistent := 0
	for _, prev := range window {
		for ent := range entities(prev.Transcript) {
			if current[ent] {
				consistent++
				break
			}
		}
	}
	score += float64(consistent) / float64(len(window)) * entityConsistencyMax

	return patient.Clamp01(score)
}

// SemanticMemory rewards temporal orientation and vocabulary diversity.
func SemanticMemory(transcript string) float64 {
	score := neutralBaseline
	tokens := words(transcript)

	seen := make(map[string]bool)
	for _, w := range tokens {
		if temporalTokens[w] {
			seen[w] = true
		}
	}
	for _, y := range yearRe.FindAllString(transcript, -1) {
		seen[y] = true
	}
	score += min(temporalCap, float64(len(seen))*temporalStep)

	if len(tokens) > diversityMinTokens {
		score += uniqueRatio(tokens) * diversityWeight
	} else {
		score += shortDiversityBonus
	}

	return patient.Clamp01(score)
}

// EpisodicMemory averages the contextual richness of extracted memories on
// top of a low baseline.
func EpisodicMemory(memories []patient.ExtractedMemory) float64 {
	if len(memories) == 0 {
		return episodicBaseline
	}
	var total float64
	for _, m := range memories {
		total += richness(m)
	}
	return patient.Clamp01(episodicBaseline + total/float64(len(memories)))
}

// richness awards one bonus per contextual detail a memory carries.
func richness(m patient.ExtractedMemory) float64 {
	r := 0.0
	if strings.TrimSpace(m.DateApprox) != "" {
		r += richnessBonus
	}
	if strings.TrimSpace(m.Location) != "" {
		r += richnessBonus
	}
	if len(m.PeopleInvolved) > 0 {
		r += richnessBonus
	}
	if strings.TrimSpace(m.EmotionalTone) != "" {
		r += richnessBonus
	}
	if len(m.Description) > richDescriptionMinChar {
		r += richnessBonus
	}
	return r
}

// WorkingMemory rewards sentences of moderate length and connector words
// that link statements.
func WorkingMemory(transcript string) float64 {
	score := neutralBaseline
	score += sentenceLengthBonus(transcript)

	ls := lines(transcript)
	if len(ls) > connectorMinLines {
		// One hit per connector per line, however often it repeats.
		count := 0
		for _, l := range ls {
			found := make(map[string]bool)
			for _, w := range words(l) {
				if connectors[w] && !found[w] {
					found[w] = true
					count++
				}
			}
		}
		score += min(connectorCap, float64(count)*connectorStep)
	}

	return patient.Clamp01(score)
}

func sentenceLengthBonus(transcript string) float64 {
	ss := sentences(transcript)
	if len(ss) == 0 {
		return 0
	}
	total := 0
	for _, s := range ss {
		total += len(strings.Fields(s))
	}
	avg := float64(total) / float64(len(ss))
	switch {
	case avg >= optimalSentenceMin && avg <= optimalSentenceMax:
		return optimalLengthBonus
	case avg >= partialSentenceMin && avg < optimalSentenceMin:
		return partialLengthBonus
	default:
		return 0
	}
}
