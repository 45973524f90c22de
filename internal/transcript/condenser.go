package transcript

import (
	"strings"
)

// Condense reduces a conversation to the text the analyzer scores: every
// patient turn on its own line, in order. Companion prompts are dropped so
// their questions do not count against the patient's recall.
//
// If no turn is attributed to the patient, the whole conversation is kept.
func Condense(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	keep := RolePatient
	if CountPatientTurns(turns) == 0 {
		keep = ""
	}

	var b strings.Builder
	for _, t := range turns {
		if keep != "" && t.Role != keep {
			continue
		}
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
