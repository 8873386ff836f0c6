package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/config"
	"github.com/imputnet/helium-updater/internal/download"
	"github.com/imputnet/helium-updater/internal/install"
	"github.com/imputnet/helium-updater/internal/selector"
	ui "github.com/imputnet/helium-updater/internal/ui"
	"github.com/imputnet/helium-updater/internal/version"
)

// mockCatalog implements updater.Catalog for testing.
type mockCatalog struct {
	mu       sync.Mutex
	releases []catalog.Release
	err      error
	calls    int
}

func (m *mockCatalog) ListReleases(ctx context.Context, opts catalog.ListOptions) ([]catalog.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.releases, m.err
}

// mockDownloader implements download.Service for testing.
type mockDownloader struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockDownloader) Fetch(ctx context.Context, rel *catalog.Release, asset *catalog.Asset, opts download.Options) (*download.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &download.Result{Path: opts.DestDir + "/" + asset.Name, Size: asset.Size, ChecksumVerified: true}, nil
}

// mockInstaller implements install.Service for testing.
type mockInstaller struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockInstaller) Run(ctx context.Context, path string) (*install.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &install.Result{ExitCode: 0}, nil
}

func testVersion(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return v
}

// testRelease builds a release carrying the conventional installer
// asset for the x64 build.
func testRelease(t *testing.T, tag string) catalog.Release {
	t.Helper()
	v, err := version.ParseTag(tag)
	if err != nil {
		t.Fatalf("ParseTag(%q): %v", tag, err)
	}
	name := selector.AssetName(v, selector.ArchX64, selector.KindInstaller)
	return catalog.Release{
		TagName: tag,
		Assets: []catalog.Asset{
			{Name: name, BrowserDownloadURL: "https://example.com/" + name, Size: 4096},
		},
	}
}

// newTestDeps builds Deps around mocks and a temp home.
func newTestDeps(t *testing.T, current string, releases []catalog.Release) (*Deps, *mockCatalog, *mockDownloader, *mockInstaller) {
	t.Helper()
	cfg := config.Defaults()
	cfg.HomeDir = t.TempDir()

	cat := &mockCatalog{releases: releases}
	dl := &mockDownloader{}
	inst := &mockInstaller{}
	d := &Deps{
		Cfg:        cfg,
		Current:    testVersion(t, current),
		Arch:       selector.ArchX64,
		Catalog:    cat,
		Downloader: dl,
		Installer:  inst,
		Stager: func(path string) (string, int, error) {
			return strings.TrimSuffix(path, ".zip"), 1, nil
		},
		Printer: ui.NewPrinter("text"),
	}
	return d, cat, dl, inst
}

// setGlobalUI installs a UI config for the test and restores the
// defaults afterwards.
func setGlobalUI(t *testing.T, cfg ui.Config) {
	t.Helper()
	ui.InitGlobal(cfg)
	t.Cleanup(func() { ui.InitGlobal(ui.Config{}) })
}

// setQuiet silences progress rendering for the test.
func setQuiet(t *testing.T) {
	t.Helper()
	orig := flagQuiet
	flagQuiet = true
	t.Cleanup(func() { flagQuiet = orig })
}
