package literal

import (
	"errors"
	"regexp"
	"strings"
)

// NoChange is the sentinel a model emits when a corrective step has nothing to do.
const NoChange = "[[END]]"

// ErrNoAnswer is returned when a response carries no delimited answer.
var ErrNoAnswer = errors.New("no answer wrapped in << >> found")

// A payload never contains "<<", so a stray opener in the reasoning
// ("<<LOQ") cannot swallow the real block that follows it.
var answerPattern = regexp.MustCompile(`<<((?:[^<]|<[^<])*?)>>`)

// ExtractAnswer returns the payload of the last <<...>> block. Later blocks
// win because models often restate a corrected answer at the end.
func ExtractAnswer(text string) (string, error) {
	matches := answerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", ErrNoAnswer
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), nil
}

// ParseAnswer extracts and parses the last delimited answer.
func ParseAnswer(text string) (any, error) {
	payload, err := ExtractAnswer(text)
	if err != nil {
		return nil, err
	}
	return Parse(payload)
}

// HasNoChange reports whether the model signalled that nothing needs doing,
// either bare or as the delimited answer.
func HasNoChange(text string) bool {
	if payload, err := ExtractAnswer(text); err == nil {
		return payload == NoChange
	}
	return strings.Contains(text, NoChange)
}

// CleanReasoning strips answer blocks and sentinels so only the model's
// reasoning text remains.
func CleanReasoning(text string) string {
	stripped := answerPattern.ReplaceAllString(text, "")
	stripped = strings.ReplaceAll(stripped, NoChange, "")
	lines := strings.Split(stripped, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" && len(kept) > 0 && kept[len(kept)-1] == "" {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
