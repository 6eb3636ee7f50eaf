package llm

import (
	"strings"
)

// StripCodeFences removes a leading/trailing markdown code fence from model
// output, so "```json\n{...}\n```" parses like plain JSON. Anything else is
// returned untouched.
func StripCodeFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	// drop the optional language tag on the fence line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "json" || first == "JSON" || first == "" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
