package anthropic

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoJSON is returned when a response carries no JSON value of the wanted shape.
var ErrNoJSON = eris.New("anthropic: no JSON in response")

// Text concatenates the text blocks of a response.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" || b.Type == "" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ExtractJSONArray returns the outermost [...] span of text, tolerating
// prose or code fences around it.
func ExtractJSONArray(text string) (string, error) {
	return extractSpan(text, '[', ']')
}

// ExtractJSONObject returns the outermost {...} span of text.
func ExtractJSONObject(text string) (string, error) {
	return extractSpan(text, '{', '}')
}

func extractSpan(text string, open, close byte) (string, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}
