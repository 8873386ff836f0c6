package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/config"
	"github.com/imputnet/helium-updater/internal/exitcodes"
	"github.com/imputnet/helium-updater/internal/updater"
	"github.com/imputnet/helium-updater/internal/version"
)

// checkResult is the machine-readable outcome of a catalog check.
type checkResult struct {
	CurrentVersion  string `json:"current_version" yaml:"current_version"`
	LatestVersion   string `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
	UpdateAvailable bool   `json:"update_available" yaml:"update_available"`
	Asset           string `json:"asset,omitempty" yaml:"asset,omitempty"`
	Cached          bool   `json:"cached,omitempty" yaml:"cached,omitempty"`
}

func init() {
	var (
		flagCurrent    string
		flagPrerelease bool
		flagFresh      bool
		flagStrict     bool
	)
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Query the release catalog for a newer version",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			return handleCheck(cmd.Context(), d, checkOptions{
				Current:    flagCurrent,
				Prerelease: flagPrerelease,
				Fresh:      flagFresh,
				Strict:     flagStrict,
			})
		},
	}
	checkCmd.Flags().StringVar(&flagCurrent, "current", "", "Treat this as the installed version (testing)")
	checkCmd.Flags().BoolVar(&flagPrerelease, "prerelease", false, "Consider prerelease versions")
	checkCmd.Flags().BoolVar(&flagFresh, "fresh", false, "Ignore the cached result, query the catalog")
	checkCmd.Flags().BoolVar(&flagStrict, "strict", false, "Exit non-zero when an update is available")
	rootCmd.AddCommand(checkCmd)
}

type checkOptions struct {
	Current    string
	Prerelease bool
	Fresh      bool
	Strict     bool
}

func handleCheck(ctx context.Context, d *Deps, opts checkOptions) error {
	var override *version.Version
	current := d.Current
	if opts.Current != "" {
		v, err := version.ParseTag(opts.Current)
		if err != nil {
			return exitcodes.InvalidArgsErrorf("--current %q: %v", opts.Current, err)
		}
		override = &v
		current = v
	}

	// A recent result answers the check without a network round trip,
	// unless the caller pinned a different version or asked for fresh.
	if !opts.Fresh && override == nil && !opts.Prerelease {
		if lc, err := updater.LoadLastCheck(d.Cfg.HomeDir); err == nil &&
			lc.Fresh() && lc.CurrentVersion == current.String() && lc.Category == "" {
			return printCheck(d, checkResult{
				CurrentVersion:  lc.CurrentVersion,
				LatestVersion:   lc.LatestVersion,
				UpdateAvailable: lc.UpdateAvailable,
				Cached:          true,
			}, opts.Strict)
		}
	}

	cfg := d.Cfg
	cfg.AutoDownload = false
	cfg.AutoInstall = false
	cfg.NotifyUser = false
	if opts.Prerelease {
		cfg.IncludePrereleases = true
	}

	coord, err := newCoordinator(d, config.Static(cfg))
	if err != nil {
		return err
	}
	if err := coord.CheckNow(ctx, override); err != nil {
		return checkErr(err)
	}

	last := coord.LastResult()
	res := checkResult{
		CurrentVersion:  current.String(),
		UpdateAvailable: last.State == updater.StateUpdateAvailable,
	}
	if res.UpdateAvailable {
		res.LatestVersion = last.Candidate.String()
		if last.Asset != nil {
			res.Asset = last.Asset.Name
		}
	}
	return printCheck(d, res, opts.Strict)
}

// checkErr maps catalog failures to exit codes for scripting.
func checkErr(err error) error {
	switch {
	case errors.Is(err, catalog.ErrUnreachable), errors.Is(err, catalog.ErrRateLimited):
		return exitcodes.NetworkErr("update check failed", err)
	case errors.Is(err, catalog.ErrInvalidResponse):
		return exitcodes.ValidationErr("update check failed", err)
	}
	return err
}

func printCheck(d *Deps, res checkResult, strict bool) error {
	switch flagOutput {
	case "json":
		d.Printer.JSON(res)
	case "yaml":
		data, err := yaml.Marshal(res)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	default:
		if res.UpdateAvailable {
			d.Printer.Warn(fmt.Sprintf("Update available: %s → %s", res.CurrentVersion, res.LatestVersion))
			if res.Asset != "" {
				d.Printer.KeyValueLine("Asset", res.Asset, "dim")
			}
			d.Printer.Info("Run: helium-updater update")
		} else {
			d.Printer.Success(fmt.Sprintf("Up to date (%s)", res.CurrentVersion))
		}
	}
	if strict && res.UpdateAvailable {
		return silentErr{exitcodes.NewErrorf(exitcodes.UpdatePending, "update available: %s", res.LatestVersion)}
	}
	return nil
}
