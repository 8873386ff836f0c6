package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imputnet/helium-updater/internal/config"
	"github.com/imputnet/helium-updater/internal/download"
	"github.com/imputnet/helium-updater/internal/exitcodes"
	"github.com/imputnet/helium-updater/internal/install"
	ui "github.com/imputnet/helium-updater/internal/ui"
	"github.com/imputnet/helium-updater/internal/updater"
	"github.com/imputnet/helium-updater/internal/version"
)

func init() {
	var (
		flagCurrent      string
		flagPrerelease   bool
		flagDownloadOnly bool
	)
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Check, download, and install the latest version",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			return handleUpdate(cmd.Context(), d, updateOptions{
				Current:      flagCurrent,
				Prerelease:   flagPrerelease,
				DownloadOnly: flagDownloadOnly,
			})
		},
	}
	updateCmd.Flags().StringVar(&flagCurrent, "current", "", "Treat this as the installed version (testing)")
	updateCmd.Flags().BoolVar(&flagPrerelease, "prerelease", false, "Consider prerelease versions")
	updateCmd.Flags().BoolVar(&flagDownloadOnly, "download-only", false, "Download and verify, do not run the installer")
	rootCmd.AddCommand(updateCmd)
}

type updateOptions struct {
	Current      string
	Prerelease   bool
	DownloadOnly bool
}

func handleUpdate(ctx context.Context, d *Deps, opts updateOptions) error {
	var override *version.Version
	if opts.Current != "" {
		v, err := version.ParseTag(opts.Current)
		if err != nil {
			return exitcodes.InvalidArgsErrorf("--current %q: %v", opts.Current, err)
		}
		override = &v
	}

	// Manual run: the policy's auto gates are replaced by the prompt
	// below, so the coordinator stops after each stage.
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

	p := d.Printer
	if !p.IsJSON() && !flagQuiet {
		p.Info("Checking for updates...")
	}
	if err := coord.CheckNow(ctx, override); err != nil {
		return checkErr(err)
	}

	last := coord.LastResult()
	if last.State != updater.StateUpdateAvailable {
		if p.IsJSON() {
			p.JSON(map[string]any{"ok": true, "update_available": false, "current_version": last.Current.String()})
		} else {
			p.Success(fmt.Sprintf("Already up to date (%s)", last.Current))
		}
		return nil
	}

	if !p.IsJSON() {
		p.Warn(fmt.Sprintf("Update available: %s → %s", last.Current, last.Candidate))
		if last.Asset != nil {
			p.KeyValueLine("Asset", fmt.Sprintf("%s (%s)", last.Asset.Name, ui.FormatBytes(last.Asset.Size)), "dim")
		}
	}

	action := "Download and install"
	if opts.DownloadOnly {
		action = "Download"
	}
	if !p.Confirm(fmt.Sprintf("%s Helium %s?", action, last.Candidate)) {
		if ui.GetGlobal().NonInteractive && !ui.GetGlobal().Yes {
			return exitcodes.PreconditionError("confirmation required; re-run with --yes")
		}
		p.Info("Update declined")
		return nil
	}

	stopProgress := consumeProgress(coord, p)
	err = coord.StartDownload(ctx)
	stopProgress()
	if err != nil {
		return downloadErr(err)
	}

	last = coord.LastResult()
	if opts.DownloadOnly {
		if p.IsJSON() {
			p.JSON(map[string]any{"ok": true, "downloaded": true, "path": last.DownloadedPath, "version": last.Candidate.String()})
		} else {
			p.Success("Downloaded and verified")
			p.KeyValueLine("Path", last.DownloadedPath, "dim")
			p.Info("Run: helium-updater update -y to install")
		}
		return nil
	}

	if !p.IsJSON() && !flagQuiet {
		if install.IsPackage(last.DownloadedPath) {
			p.Info("Extracting portable package...")
		} else {
			p.Info("Running installer (silent)...")
		}
	}
	if err := coord.StartInstall(ctx); err != nil {
		return installErr(err)
	}

	last = coord.LastResult()
	if last.StagedPath != "" {
		if p.IsJSON() {
			p.JSON(map[string]any{"ok": true, "staged": true, "path": last.StagedPath, "version": last.Candidate.String()})
		} else {
			p.Success(fmt.Sprintf("Helium %s extracted for manual installation", last.Candidate))
			p.KeyValueLine("Staged at", last.StagedPath, "dim")
			p.Info("Portable builds have no installer; replace your Helium directory with the staged files")
		}
		return nil
	}

	if p.IsJSON() {
		p.JSON(map[string]any{"ok": true, "installed": true, "version": last.Candidate.String()})
	} else {
		p.Success(fmt.Sprintf("Helium %s installed", last.Candidate))
		p.Info("The new version takes effect on the next browser launch")
	}
	return nil
}

// consumeProgress renders download progress from the engine's event
// stream until the returned stop function is called.
func consumeProgress(coord *updater.Coordinator, p ui.Printer) (stop func()) {
	if p.IsJSON() || flagQuiet {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var bar *ui.ProgressBar
		for {
			select {
			case ev := <-coord.Events():
				if ev.State != updater.StateDownloading || (ev.Total == 0 && ev.Downloaded == 0) {
					continue
				}
				if bar == nil {
					bar = ui.NewProgressBar(os.Stdout, ev.Total)
				}
				bar.Update(ev.Downloaded)
			case <-done:
				if bar != nil {
					bar.Finish()
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// downloadErr maps fetch failures to exit codes and a structured hint.
func downloadErr(err error) error {
	switch {
	case errors.Is(err, download.ErrIntegrityMismatch), errors.Is(err, download.ErrSignatureInvalid):
		ui.PrintError(ui.ErrorMessage{
			Problem: "The downloaded file failed verification",
			Detail:  err,
			Causes:  []string{"corrupted transfer", "tampered or stale release asset"},
			Actions: []string{"re-run the update", "check the release page for a republished build"},
		})
		return silentErr{exitcodes.ValidationErr("download verification failed", err)}
	case errors.Is(err, download.ErrInsufficientSpace):
		return exitcodes.PreconditionError("not enough disk space for the update")
	case errors.Is(err, download.ErrNotFound), errors.Is(err, download.ErrTransport):
		return exitcodes.NetworkErr("download failed", err)
	case errors.Is(err, context.Canceled):
		return exitcodes.NewError(exitcodes.GeneralError, "download cancelled")
	}
	return err
}

// installErr maps installer failures to exit codes.
func installErr(err error) error {
	var ife *install.InstallerFailedError
	if errors.As(err, &ife) {
		ui.PrintError(ui.ErrorMessage{
			Problem: fmt.Sprintf("The installer exited with code %d", ife.Code),
			Detail:  err,
			Causes:  []string{"the browser is still running", "insufficient permissions"},
			Actions: []string{"close Helium and retry", "run the downloaded installer by hand"},
		})
		return silentErr{exitcodes.InstallErr("install failed", err)}
	}
	if errors.Is(err, install.ErrUnsupportedArtifact) {
		return exitcodes.PreconditionError("downloaded file is not a runnable installer")
	}
	return err
}
