package main

import (
	"crypto/ed25519"
	"os"
	"path/filepath"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/config"
	"github.com/imputnet/helium-updater/internal/debug"
	"github.com/imputnet/helium-updater/internal/download"
	"github.com/imputnet/helium-updater/internal/install"
	"github.com/imputnet/helium-updater/internal/selector"
	ui "github.com/imputnet/helium-updater/internal/ui"
	"github.com/imputnet/helium-updater/internal/updater"
	"github.com/imputnet/helium-updater/internal/version"
)

// Deps holds the resolved inputs for command handlers: the policy, the
// running version, and the engine collaborators. Handlers take a *Deps
// so tests can substitute fakes.
type Deps struct {
	Cfg        config.Config
	Manifest   *version.Manifest
	Current    version.Version
	Arch       selector.Arch
	Catalog    updater.Catalog
	Downloader download.Service
	Installer  install.Service
	Stager     updater.Stager
	TrustedKey ed25519.PublicKey
	Printer    ui.Printer
}

// getPrinter returns a UI printer bound to the current --output flag.
func getPrinter() ui.Printer { return ui.NewPrinterFromGlobal(flagOutput) }

// loadManifest reads version_manifest.json from the directory of the
// running executable. Returns nil when absent (development builds).
func loadManifest() *version.Manifest {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	m, err := version.LoadManifestFromDir(filepath.Dir(exe))
	if err != nil {
		debug.Debugf("cli: no version manifest: %v", err)
		return nil
	}
	return m
}

// currentVersion resolves the installed version: the manifest wins, the
// ldflags Version is the fallback, and a dev build reports 0.0.0.0 so
// every published release looks newer.
func currentVersion(m *version.Manifest) version.Version {
	if m != nil {
		if v, err := m.Current(); err == nil {
			return v
		}
	}
	if v, err := version.ParseTag(Version); err == nil {
		return v
	}
	return version.Version{}
}

// newDeps creates production dependencies from the current flags,
// policy file, and version manifest.
func newDeps() *Deps {
	cfg := loadCfg()
	m := loadManifest()

	if m != nil {
		if m.UpdateServer.RepoOwner != "" {
			cfg.RepoOwner = m.UpdateServer.RepoOwner
		}
		if m.UpdateServer.RepoName != "" {
			cfg.RepoName = m.UpdateServer.RepoName
		}
	}

	arch := selector.Detect()
	if m != nil && m.TargetArch != "" {
		if a, ok := selector.ParseArch(m.TargetArch); ok {
			arch = a
		} else {
			debug.Warnf("cli: manifest target_arch %q unknown, using %s", m.TargetArch, arch)
		}
	}

	var key ed25519.PublicKey
	if TrustedKeyHex != "" {
		k, err := download.ParseTrustedKey(TrustedKeyHex)
		if err != nil {
			debug.Warnf("cli: bad trusted key: %v", err)
		} else {
			key = k
		}
	}

	cur := currentVersion(m)
	return &Deps{
		Cfg:        cfg,
		Manifest:   m,
		Current:    cur,
		Arch:       arch,
		Catalog:    catalog.NewWithTimeout(cfg.RepoOwner, cfg.RepoName, "Helium-Browser-Updater/"+cur.String(), cfg.Timeout),
		Downloader: download.New(),
		Installer:  install.New(),
		TrustedKey: key,
		Printer:    getPrinter(),
	}
}

// newCoordinator assembles the update engine from deps with the given
// policy source.
func newCoordinator(d *Deps, provider config.Provider) (*updater.Coordinator, error) {
	return updater.New(updater.Options{
		Config:     provider,
		Catalog:    d.Catalog,
		Downloader: d.Downloader,
		Installer:  d.Installer,
		Stager:     d.Stager,
		Current:    d.Current,
		Arch:       d.Arch,
		HomeDir:    d.Cfg.HomeDir,
		TrustedKey: d.TrustedKey,
	})
}
