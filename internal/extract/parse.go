package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResult parses the inference step's raw response into a Result.
// Models wrap JSON in markdown code fences more often than not, so
// fences are stripped before unmarshaling.
func ParseResult(raw string) (*Result, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response from inference step")
	}

	var res Result
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, fmt.Errorf("invalid JSON from inference step: %w\nraw: %s", err, truncate(raw, 300))
	}
	return &res, nil
}

// stripCodeFences removes a surrounding ``` block, if present.
func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start == 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start > 0 && end > start {
		return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	}
	return cleaned
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
