package command

import (
	"strings"
	"time"
)

// WakePrefixes are the subject/message prefixes that mark a wake command,
// ordered most specific first so that "[CLCL-WAKE]" is never reported as a
// "[CLCL]" match.
var WakePrefixes = []string{"[CLCL-WAKE]", "[CLCL]", "[WAKE]"}

// Command is a wake command received from a channel, normalized so the task
// sink can treat every transport the same way.
type Command struct {
	Channel   string
	Sender    string
	Subject   string
	Body      string
	Timestamp time.Time
	Metadata  map[string]any
}

// Match reports whether text begins with a wake prefix after leading
// whitespace is trimmed. The comparison is case-insensitive and anchored:
// a prefix mentioned mid-text does not wake. The returned prefix is the
// canonical (upper-case) form of the longest matching prefix.
func Match(text string) (prefix string, ok bool) {
	t := strings.ToUpper(strings.TrimSpace(text))
	for _, p := range WakePrefixes {
		if strings.HasPrefix(t, p) {
			return p, true
		}
	}
	return "", false
}
