package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Printer centralizes output formatting for commands.
// - Respects --output (text|json|yaml)
// - Uses ColorConfig for styling when printing text
// - Provides helpers for common message types
type Printer struct {
	format string
	Colors *ColorConfig
}

func NewPrinter(format string) Printer {
	return Printer{format: format, Colors: NewColorConfig()}
}

// IsJSON reports whether the printer emits machine-readable output. Text
// helpers should stay quiet in that mode.
func (p Printer) IsJSON() bool { return p.format == "json" || p.format == "yaml" }

// Format returns the selected output format.
func (p Printer) Format() string { return p.format }

// Textf prints formatted text to stdout (always text path).
func (p Printer) Textf(format string, a ...any) { fmt.Printf(format, a...) }

// JSON pretty-prints a JSON value to stdout.
func (p Printer) JSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Success prints a success line with themed prefix.
func (p Printer) Success(msg string) {
	c := p.Colors
	space := " "
	if len(msg) > 0 && (msg[0] == ' ' || msg[0] == '\t') {
		space = ""
	}
	if c.EmojiEnabled {
		fmt.Printf("%s%s%s\n", c.Success("✓"), space, msg)
	} else {
		fmt.Printf("%s%s%s\n", c.Success("[OK]"), space, msg)
	}
}

// Info prints an informational line.
func (p Printer) Info(msg string) {
	c := p.Colors
	if c.EmojiEnabled {
		fmt.Println(c.Info("ℹ"), msg)
	} else {
		fmt.Println(c.Info("[INFO]"), msg)
	}
}

// Warn prints a warning line.
func (p Printer) Warn(msg string) {
	c := p.Colors
	if c.EmojiEnabled {
		fmt.Println(c.Warning("!"), msg)
	} else {
		fmt.Println(c.Warning("[WARN]"), msg)
	}
}

// Error prints an error line.
func (p Printer) Error(msg string) {
	c := p.Colors
	if c.EmojiEnabled {
		fmt.Println(c.Error("✗"), msg)
	} else {
		fmt.Println(c.Error("[ERR]"), msg)
	}
}

// Header prints a section header.
func (p Printer) Header(title string) {
	fmt.Println(p.Colors.Header(" " + title + " "))
}

// Section prints a section header with separator.
func (p Printer) Section(title string) {
	fmt.Println()
	fmt.Println(p.Colors.SubHeader(title))
	fmt.Println(p.Colors.Separator(40))
}

// KeyValueLine prints a key-value pair with proper formatting.
func (p Printer) KeyValueLine(key, value, colorType string) {
	var coloredValue string
	switch colorType {
	case "blue":
		coloredValue = p.Colors.Apply(p.Colors.Theme.Info, value)
	case "yellow":
		coloredValue = p.Colors.Apply(p.Colors.Theme.Warning, value)
	case "green":
		coloredValue = p.Colors.Apply(p.Colors.Theme.Success, value)
	case "dim":
		coloredValue = p.Colors.Apply(p.Colors.Theme.Description, value)
	default:
		coloredValue = p.Colors.Value(value)
	}
	fmt.Printf("%s %s\n", p.Colors.Label(key+":"), coloredValue)
}

// Confirm asks a yes/no question on the terminal. Returns true without
// prompting when --yes is set; returns false without prompting in
// non-interactive mode.
func (p Printer) Confirm(question string) bool {
	g := GetGlobal()
	if g.Yes {
		return true
	}
	if g.NonInteractive {
		return false
	}
	fmt.Printf("%s [y/N]: ", p.Colors.Apply(p.Colors.Theme.Prompt, question))
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
