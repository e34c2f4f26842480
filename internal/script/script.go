package script

import (
	"strings"
)

// Line is one speaker-attributed utterance. Index is its zero-based position
// in the script and is carried through synthesis and stitching.
type Line struct {
	Index int
	Role  string
	Text  string
}

// Empty reports whether the line carries no speakable text.
func (l Line) Empty() bool { return strings.TrimSpace(l.Text) == "" }

// Script is an ordered dialogue.
type Script struct {
	Lines []Line
}

// Len returns the number of lines.
func (s Script) Len() int { return len(s.Lines) }

// Words counts the words across all lines.
func (s Script) Words() int {
	total := 0
	for _, line := range s.Lines {
		total += len(strings.Fields(line.Text))
	}
	return total
}

// Speakers returns how many lines each role speaks.
func (s Script) Speakers() map[string]int {
	counts := make(map[string]int)
	for _, line := range s.Lines {
		counts[line.Role]++
	}
	return counts
}

// String renders the script back into its ROLE: text form.
func (s Script) String() string {
	var b strings.Builder
	for i, line := range s.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line.Role)
		b.WriteString(": ")
		b.WriteString(line.Text)
	}
	return b.String()
}
