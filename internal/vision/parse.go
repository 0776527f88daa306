package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vbonduro/mealsnap/internal/domain"
)

var ErrNoEstimate = errors.New("model response contains no JSON object")

// ParseEstimate extracts the estimate from a model response. The object may
// be wrapped in a code fence or surrounded by prose.
func ParseEstimate(raw string) (*Estimate, error) {
	obj, ok := extractObject(raw)
	if !ok {
		return nil, ErrNoEstimate
	}

	var est Estimate
	if err := json.Unmarshal([]byte(obj), &est); err != nil {
		return nil, fmt.Errorf("failed to decode estimate: %w", err)
	}
	est.Name = strings.TrimSpace(est.Name)
	if err := domain.ValidateNutrients(est); err != nil {
		return nil, err
	}
	return &est, nil
}

// extractObject returns the first balanced {...} in s, skipping braces that
// appear inside JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
