package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Speaker roles.
const (
	RolePatient   = "patient"
	RoleCompanion = "companion"
)

// Turn is one utterance in a session conversation.
type Turn struct {
	Role string
	Text string
}

// line is a JSONL transcript record. Voice exports use speaker/text, chat
// exports use role/content where content is a string or a list of blocks.
type line struct {
	Speaker string          `json:"speaker"`
	Role    string          `json:"role"`
	Text    string          `json:"text"`
	Content json.RawMessage `json:"content"`
}

// contentItem is a single content block in chat exports.
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	// annotationRe matches transcriber notes such as [laughs] or [inaudible].
	annotationRe = regexp.MustCompile(`\[[^\]]*\]`)
	// speakerRe matches a "Name: text" prefix in plain-text transcripts.
	speakerRe = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{0,30}):\s*(.*)$`)
)

// ParseFile reads a transcript file. See Parse.
func ParseFile(path string) ([]Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a transcript as JSONL when its first non-empty line is a JSON
// object, otherwise as plain text with optional "Speaker:" prefixes. Lines
// without a speaker belong to the patient.
func Parse(r io.Reader) ([]Turn, error) {
	var turns []Turn
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	jsonl, decided := false, false
	for scanner.Scan() {
		raw := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if raw == "" {
			continue
		}
		if !decided {
			jsonl = strings.HasPrefix(raw, "{")
			decided = true
		}

		var (
			turn *Turn
			err  error
		)
		if jsonl {
			turn, err = parseJSONLine([]byte(raw))
			if err != nil {
				continue // skip malformed lines
			}
		} else {
			turn = parseTextLine(raw)
		}
		if turn != nil {
			turns = append(turns, *turn)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return turns, nil
}

// ParseString parses transcript content held in memory.
func ParseString(content string) ([]Turn, error) {
	return Parse(strings.NewReader(content))
}

func parseJSONLine(b []byte) (*Turn, error) {
	var l line
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	text := l.Text
	if text == "" {
		text = extractText(l.Content)
	}
	who := l.Speaker
	if who == "" {
		who = l.Role
	}
	return newTurn(who, text), nil
}

func parseTextLine(raw string) *Turn {
	if m := speakerRe.FindStringSubmatch(raw); m != nil {
		return newTurn(m[1], m[2])
	}
	return newTurn("", raw)
}

func newTurn(who, text string) *Turn {
	text = annotationRe.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	return &Turn{Role: normalizeRole(who), Text: text}
}

// normalizeRole maps exporter-specific speaker labels onto the two roles.
func normalizeRole(who string) string {
	switch strings.ToLower(strings.TrimSpace(who)) {
	case "", "patient", "user", "human", "senior", "client":
		return RolePatient
	default:
		return RoleCompanion
	}
}

// extractText handles the polymorphic content field.
// It may be a plain string or an array of content blocks.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// CountPatientTurns returns the number of patient turns.
func CountPatientTurns(turns []Turn) int {
	count := 0
	for _, t := range turns {
		if t.Role == RolePatient {
			count++
		}
	}
	return count
}
