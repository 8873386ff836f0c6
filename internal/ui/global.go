package ui

// Config holds the process-wide presentation and prompting settings,
// set once at startup from the root command's persistent flags. Only
// what the ui package itself consumes lives here; output verbosity is
// the commands' own business.
type Config struct {
	NoColor        bool
	NoEmoji        bool
	Yes            bool // answer every confirmation prompt with yes
	NonInteractive bool // never prompt; unconfirmed actions are refused
}

var globalConfig Config

// InitGlobal installs the process-wide UI settings (call once at startup).
func InitGlobal(cfg Config) {
	globalConfig = cfg
}

// GetGlobal returns the process-wide UI settings.
func GetGlobal() Config {
	return globalConfig
}

// NewColorConfigFromGlobal builds a ColorConfig honoring the global
// color and emoji switches on top of terminal detection.
func NewColorConfigFromGlobal() *ColorConfig {
	cfg := GetGlobal()
	c := NewColorConfig()
	c.Enabled = c.Enabled && !cfg.NoColor
	c.EmojiEnabled = c.EmojiEnabled && !cfg.NoEmoji
	return c
}

// NewPrinterFromGlobal creates a Printer for format ("text", "json" or
// "yaml") using the global settings.
func NewPrinterFromGlobal(format string) Printer {
	return Printer{format: format, Colors: NewColorConfigFromGlobal()}
}
