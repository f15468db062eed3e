// Package sanitize cleans client-supplied strings before they are stored in
// the security event log and echoed back through /api/v1/me. Uses
// bluemonday's strict policy so no markup survives.
package sanitize

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLength caps stored free-text fields such as the user agent.
const MaxTextLength = 512

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text strips all HTML from input, trims surrounding whitespace and caps the
// result at MaxTextLength bytes without splitting a rune.
func Text(input string) string {
	if input == "" {
		return ""
	}
	out := strings.TrimSpace(getPolicy().Sanitize(input))
	if len(out) <= MaxTextLength {
		return out
	}
	cut := MaxTextLength
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return out[:cut]
}

// Details returns a copy of details with every string value passed through
// Text. Non-string values are kept as they are.
func Details(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if s, ok := v.(string); ok {
			out[k] = Text(s)
			continue
		}
		out[k] = v
	}
	return out
}
