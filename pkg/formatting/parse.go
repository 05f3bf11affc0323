package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when a model reply holds no decodable JSON object.
var ErrParseFailed = errors.New("failed to parse response")

// maxQuoted bounds how much of a rejected reply is quoted in the error.
const maxQuoted = 200

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Parse decodes a model reply into T. It tries, in order, the whole reply,
// the first markdown code fence, and the span from the first '{' to the last
// '}' for replies that wrap bare JSON in prose.
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	for _, candidate := range candidates(content) {
		if json.Unmarshal([]byte(candidate), &result) == nil {
			return result, nil
		}
		result = *new(T)
	}

	return result, fmt.Errorf("%w: %s", ErrParseFailed, quote(content))
}

func candidates(content string) []string {
	found := []string{content}

	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		found = append(found, strings.TrimSpace(m[1]))
	}

	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		found = append(found, content[start:end+1])
	}

	return found
}

func quote(content string) string {
	if len(content) <= maxQuoted {
		return content
	}
	return content[:maxQuoted] + fmt.Sprintf("... (%d bytes)", len(content))
}
