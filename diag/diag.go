// Package diag defines the structured errors shared by the compiler and
// the virtual machine, and renders them against source text.
package diag

import (
	"fmt"
	"strings"
)

// Category classifies a diagnostic by the pipeline stage that raised it.
type Category int

const (
	Lexical Category = iota
	Syntax
	Semantic
	Runtime
	Internal
)

var categoryNames = map[Category]string{
	Lexical:  "lexical error",
	Syntax:   "syntax error",
	Semantic: "semantic error",
	Runtime:  "runtime error",
	Internal: "internal error",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Diagnostic is a categorized, position-annotated failure. Line and
// Column are 1-based; zero means "no position" (used by VM traps and
// internal errors).
type Diagnostic struct {
	Category Category
	Message  string
	Line     int
	Column   int
	Hint     string // optional fix suggestion
}

// Errorf builds a Diagnostic at the given position.
func Errorf(cat Category, line, col int, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
		Line:     line,
		Column:   col,
	}
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%d:%d: %s: %s", d.Line, d.Column, d.Category, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Category, d.Message)
}

// WithHint attaches a fix suggestion and returns the diagnostic.
func (d *Diagnostic) WithHint(hint string) *Diagnostic {
	d.Hint = hint
	return d
}

// Render formats the diagnostic together with the offending source line
// and a caret under the column. Falls back to Error() when the position
// is unknown or out of range.
func (d *Diagnostic) Render(source string) string {
	if d.Line <= 0 {
		return d.Error()
	}

	lines := strings.Split(source, "\n")
	if d.Line > len(lines) {
		return d.Error()
	}
	srcLine := strings.TrimRight(lines[d.Line-1], "\r")

	var sb strings.Builder
	sb.WriteString(d.Error())
	sb.WriteByte('\n')

	prefix := fmt.Sprintf("  %d | ", d.Line)
	sb.WriteString(prefix)
	sb.WriteString(srcLine)
	sb.WriteByte('\n')

	sb.WriteString(strings.Repeat(" ", len(prefix)))
	if d.Column > 1 {
		col := d.Column - 1
		if col > len(srcLine) {
			col = len(srcLine)
		}
		for _, r := range srcLine[:col] {
			if r == '\t' {
				sb.WriteByte('\t')
			} else {
				sb.WriteByte(' ')
			}
		}
	}
	sb.WriteByte('^')

	if d.Hint != "" {
		sb.WriteString("\n  hint: ")
		sb.WriteString(d.Hint)
	}
	return sb.String()
}
