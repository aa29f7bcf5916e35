package channel

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// CommandSet holds the command names recognized in one workspace.
type CommandSet map[string]struct{}

// NewCommandSet builds a set from names, lowercased and without leading slashes.
func NewCommandSet(names ...string) CommandSet {
	set := make(CommandSet, len(names))
	for _, name := range names {
		if n := NormalizeCommand(name); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Recognizes reports whether token names a known command.
func (s CommandSet) Recognizes(token string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[NormalizeCommand(token)]
	return ok
}

// ExtractCommand splits text into a command name and argument text when the
// first whitespace-delimited word is a recognized command (case-insensitive).
// Otherwise name is empty and args is the whole trimmed text.
func ExtractCommand(text string, known CommandSet) (name, args string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ""
	}
	end := strings.IndexFunc(trimmed, unicode.IsSpace)
	first, rest := trimmed, ""
	if end >= 0 {
		first, rest = trimmed[:end], trimmed[end:]
	}
	if !known.Recognizes(first) {
		return "", trimmed
	}
	return NormalizeCommand(first), strings.TrimSpace(rest)
}

// IsHandshake reports whether body is the generic liveness probe {"type":"handshake"}.
func IsHandshake(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	return probe.Type == "handshake"
}

// NormalizeCommand lowercases a command name and strips a leading slash.
func NormalizeCommand(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}
