package ui

import (
	"fmt"
	"strings"
)

// ErrorMessage is a failure the user can act on: what went wrong, what
// likely caused it, and what to try next. Detail carries the underlying
// error for diagnosis.
type ErrorMessage struct {
	Problem string
	Detail  error
	Causes  []string
	Actions []string
}

// Format renders the message for a terminal. No ANSI codes when colors
// are disabled (NO_COLOR or dumb terminal).
func (e ErrorMessage) Format(c *ColorConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", c.Error("✗"), c.Header(e.Problem))
	if e.Detail != nil {
		fmt.Fprintf(&b, "  %s\n", c.Description(e.Detail.Error()))
	}
	writeBullets(&b, c, "Possible causes", "•", e.Causes)
	writeBullets(&b, c, "Try", "→", e.Actions)
	return b.String()
}

func writeBullets(b *strings.Builder, c *ColorConfig, label, bullet string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s:\n", c.Label(label))
	for _, it := range items {
		fmt.Fprintf(b, "   %s %s\n", bullet, it)
	}
}

// PrintError prints the structured error to stdout using the current theme.
func PrintError(e ErrorMessage) {
	fmt.Println(e.Format(NewColorConfigFromGlobal()))
}
