package advisory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var errMalformed = errors.New("malformed completion")

// stripFence removes a Markdown code fence around s, including an optional
// language tag on the opening line.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && isLanguageTag(s[:i]) {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// decodeObject decodes a JSON object from a completion into dst after checking
// that every required key is present.
func decodeObject(text string, required []string, dst interface{}) error {
	body := stripFence(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	var missing []string
	for _, key := range required {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing keys %s", errMalformed, strings.Join(missing, ", "))
	}

	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// indentJSON renders v for a prompt.
func indentJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
