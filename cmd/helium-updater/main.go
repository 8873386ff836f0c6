package main

import "github.com/imputnet/helium-updater/internal/ui"

func main() {
	// Initialize terminal FIRST, before any charmbracelet imports are
	// used, so OSC 11 background color queries and focus events do not
	// pollute the output stream.
	ui.InitTerminal()

	Execute()
}
