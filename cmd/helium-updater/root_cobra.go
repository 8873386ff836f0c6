package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imputnet/helium-updater/internal/config"
	"github.com/imputnet/helium-updater/internal/debug"
	"github.com/imputnet/helium-updater/internal/exitcodes"
	ui "github.com/imputnet/helium-updater/internal/ui"
)

// Version information - set via -ldflags during build. The version
// manifest next to the executable takes precedence when present.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// TrustedKeyHex is the release signing public key (ed25519, hex).
	// Empty disables signature verification even when the policy asks
	// for it.
	TrustedKeyHex = ""
)

// silentErr wraps an error whose message was already printed by the
// command; Execute only maps it to an exit code.
type silentErr struct{ error }

func (s silentErr) Unwrap() error { return s.error }

// rootCmd wires the CLI surface using Cobra. Persistent flags are
// applied to the loaded policy in loadCfg(). Subcommands implement the
// actual operations (check, update, watch, logs).
var rootCmd = &cobra.Command{
	Use:           "helium-updater",
	Short:         "Helium Updater",
	Long:          "Keep a Helium browser install current: check the release catalog, download verified builds, and run the silent installer.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.InitGlobal(ui.Config{
			NoColor:        flagNoColor,
			NoEmoji:        flagNoEmoji,
			Yes:            flagYes,
			NonInteractive: flagNonInteractive,
		})

		// Set NO_COLOR so lipgloss and friends respect the flag too.
		if flagNoColor {
			os.Setenv("NO_COLOR", "1")
		}

		cfg := loadCfg()
		if err := debug.Init(cfg.HomeDir, flagDebug || flagVerbose); err != nil {
			fmt.Fprintf(os.Stderr, "warning: debug log unavailable: %v\n", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		debug.Close()
	},
}

var (
	flagHome           string
	flagOutput         string
	flagVerbose        bool
	flagQuiet          bool
	flagDebug          bool
	flagNoColor        bool
	flagNoEmoji        bool
	flagYes            bool
	flagNonInteractive bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "Updater home directory (overrides env)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format: json|yaml|text")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Quiet mode: minimal output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Debug output: extra diagnostic logs")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable ANSI colors")
	rootCmd.PersistentFlags().BoolVar(&flagNoEmoji, "no-emoji", false, "Disable emoji output")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "Assume yes for all prompts")
	rootCmd.PersistentFlags().BoolVar(&flagNonInteractive, "non-interactive", false, "Fail instead of prompting")

	// Replace root help to present grouped, example-rich output. Only
	// the root command gets the custom help; subcommands use cobra's
	// default.
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			fmt.Fprintln(os.Stdout, cmd.UsageString())
			return
		}
		// Help runs before PersistentPreRun, so configure colors by hand.
		c := ui.NewColorConfig()
		c.Enabled = c.Enabled && !flagNoColor
		c.EmojiEnabled = c.EmojiEnabled && !flagNoEmoji
		w := os.Stdout

		fmt.Fprintln(w, c.Header(" Helium Updater "))
		fmt.Fprintln(w, c.Description("Keep a Helium browser install current: check, download, install."))
		fmt.Fprintln(w, c.Separator(50))
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("USAGE"))
		fmt.Fprintln(w, "  helium-updater <command> [flags]")
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("Updates"))
		fmt.Fprintf(w, "  %-22s %s\n", c.Value("check"), c.Description("Query the release catalog for a newer version"))
		fmt.Fprintf(w, "  %-22s %s\n", c.Value("update"), c.Description("Check, download, and install the latest version"))
		fmt.Fprintf(w, "  %-22s %s\n", c.Value("watch"), c.Description("Run the periodic updater with a live status view"))
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("Utilities"))
		fmt.Fprintf(w, "  %-22s %s\n", c.Value("logs"), c.Description("Tail the updater debug log"))
		fmt.Fprintf(w, "  %-22s %s\n", c.Value("version"), c.Description("Show updater and browser versions"))
		fmt.Fprintf(w, "  %-22s %s\n", c.Value("completion"), c.Description("Generate shell completion"))
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("Examples"))
		fmt.Fprintln(w, c.Description("  helium-updater check -o json"))
		fmt.Fprintln(w, c.Description("  helium-updater update --download-only"))
		fmt.Fprintln(w, c.Description("  helium-updater update -y"))
		fmt.Fprintln(w)
	})
}

// Execute runs the root command and maps the error to an exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var se silentErr
		if !errors.As(err, &se) {
			fmt.Fprintln(os.Stderr, err)
		}
		debug.Close()
		os.Exit(exitcodes.CodeForError(err))
	}
}

// loadCfg reads defaults + <home>/update_config.yaml and applies the
// --home override. Malformed policy files are logged and the defaults
// used, matching the engine's behavior.
func loadCfg() config.Config {
	cfg, err := config.Load(flagHome)
	if err != nil {
		debug.Warnf("cli: %v, using defaults", err)
	}
	return cfg
}

// cfgProvider returns the policy source for long-running commands: the
// file is re-read at every session boundary so edits take effect without
// a restart.
func cfgProvider() config.Provider {
	home := flagHome
	if home == "" {
		home = loadCfg().HomeDir
	}
	return config.FileProvider(home)
}
