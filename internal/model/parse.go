package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no JSON object can be found in a completion.
var ErrNoJSON = errors.New("no JSON object in model output")

// ExtractJSON pulls the first JSON object out of a completion and unmarshals
// it into v. Models wrap structured output in prose and code fences often
// enough that strict unmarshaling of the whole text is useless.
func ExtractJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if fenced := strings.Index(text, "```"); fenced >= 0 {
		rest := text[fenced+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
