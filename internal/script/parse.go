package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"feedcaster/internal/services"
)

// speakerLine matches "ROLE: text" and the markdown variant "**ROLE:** text".
var speakerLine = regexp.MustCompile(`^(\*\*)?([A-Z][A-Z0-9_]*):(\*\*)?(.*)$`)

// ParseError describes why a generated script was rejected.
type ParseError struct {
	// Line is the 1-based line number in the raw reply, or 0 for
	// whole-script violations.
	Line    int
	Content string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return e.Reason
	}
	content := e.Content
	if len(content) > 80 {
		content = content[:80] + "..."
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, content)
}

// Unwrap ties every ParseError to the script parse error kind.
func (e *ParseError) Unwrap() error { return services.ErrScriptParse }

// Parse converts raw generated text into a Script. roles lists the speaker
// tokens the show allows; blank lines are ignored, any other line that does
// not match the grammar rejects the script.
func Parse(raw string, roles []string) (Script, error) {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	var lines []Line
	for i, rawLine := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(rawLine)
		if trimmed == "" {
			continue
		}
		m := speakerLine.FindStringSubmatch(trimmed)
		if m == nil || (m[1] == "") != (m[3] == "") {
			return Script{}, &ParseError{Line: i + 1, Content: trimmed, Reason: "missing speaker token"}
		}
		role := m[2]
		if _, ok := allowed[role]; !ok {
			return Script{}, &ParseError{Line: i + 1, Content: trimmed, Reason: fmt.Sprintf("unknown speaker %s", role)}
		}
		text := strings.TrimSpace(m[4])
		if text == "" && len(lines) > 0 && lines[len(lines)-1].Empty() {
			return Script{}, &ParseError{Line: i + 1, Content: trimmed, Reason: "two consecutive empty lines"}
		}
		lines = append(lines, Line{Index: len(lines), Role: role, Text: text})
	}
	if len(lines) == 0 {
		return Script{}, &ParseError{Reason: "script has no dialogue lines"}
	}
	if allEmpty(lines) {
		return Script{}, &ParseError{Reason: "script has no spoken text"}
	}
	return Script{Lines: lines}, nil
}

// IsParseError reports whether err came from Parse.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func allEmpty(lines []Line) bool {
	for _, line := range lines {
		if !line.Empty() {
			return false
		}
	}
	return true
}
