package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show updater and browser versions",
	Run: func(cmd *cobra.Command, args []string) {
		m := loadManifest()
		info := map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_date": BuildDate,
		}
		if m != nil {
			info["browser_version"] = m.Version
			info["chromium_version"] = m.ChromiumVersion
			info["target_arch"] = m.TargetArch
		}

		switch flagOutput {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(info)
		case "yaml":
			data, _ := yaml.Marshal(info)
			fmt.Println(string(data))
		default:
			fmt.Printf("helium-updater %s (%s) built %s\n", Version, Commit, BuildDate)
			if m != nil {
				fmt.Printf("browser %s (chromium %s, %s)\n", m.Version, m.ChromiumVersion, m.TargetArch)
			}
		}
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}
