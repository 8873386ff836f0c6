// Package updater coordinates periodic update checks and drives one
// session at a time through check -> download -> install under the
// user's configuration policy.
package updater

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/config"
	"github.com/imputnet/helium-updater/internal/debug"
	"github.com/imputnet/helium-updater/internal/download"
	"github.com/imputnet/helium-updater/internal/install"
	"github.com/imputnet/helium-updater/internal/selector"
	"github.com/imputnet/helium-updater/internal/version"
)

const (
	eventBuffer      = 64
	progressInterval = 200 * time.Millisecond
	downloadsSubdir  = "downloads"
)

// Catalog lists releases. Satisfied by *catalog.Client.
type Catalog interface {
	ListReleases(ctx context.Context, opts catalog.ListOptions) ([]catalog.Release, error)
}

// Stager extracts a portable package for manual installation and
// returns the staging directory and file count. Satisfied by
// install.StagePackage.
type Stager func(archivePath string) (dir string, files int, err error)

// Options configures a Coordinator.
type Options struct {
	Config     config.Provider
	Catalog    Catalog
	Downloader download.Service
	Installer  install.Service
	Stager     Stager
	Current    version.Version
	Arch       selector.Arch
	HomeDir    string
	TrustedKey ed25519.PublicKey
}

// Coordinator is the update state machine. At most one session is
// active at any time; ticks and requests arriving while busy are
// suppressed, never queued.
type Coordinator struct {
	cfg     config.Provider
	catalog Catalog
	dl      download.Service
	inst    install.Service
	stage   Stager
	current version.Version
	arch    selector.Arch
	home    string
	key     ed25519.PublicKey

	mu             sync.Mutex
	state          State
	session        *Session
	last           *Session
	cancelDownload context.CancelFunc

	events chan Event
}

// New creates a Coordinator. Catalog, Downloader and Installer default
// to the production implementations when nil.
func New(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config provider required")
	}
	if opts.HomeDir == "" {
		return nil, fmt.Errorf("home directory required")
	}
	c := &Coordinator{
		cfg:     opts.Config,
		catalog: opts.Catalog,
		dl:      opts.Downloader,
		inst:    opts.Installer,
		stage:   opts.Stager,
		current: opts.Current,
		arch:    opts.Arch,
		home:    opts.HomeDir,
		key:     opts.TrustedKey,
		state:   StateIdle,
		events:  make(chan Event, eventBuffer),
	}
	if c.arch == "" {
		c.arch = selector.Detect()
	}
	if c.catalog == nil {
		cfg := opts.Config()
		c.catalog = catalog.NewWithTimeout(cfg.RepoOwner, cfg.RepoName, "Helium-Browser-Updater/"+opts.Current.String(), cfg.Timeout)
	}
	if c.dl == nil {
		c.dl = download.New()
	}
	if c.inst == nil {
		c.inst = install.New()
	}
	if c.stage == nil {
		c.stage = install.StagePackage
	}
	return c, nil
}

// Events returns the status stream. The channel is buffered; events are
// dropped rather than blocking the engine when the consumer lags.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// State returns the machine's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastResult returns a snapshot of the most recently finished session,
// or nil before the first one completes.
func (c *Coordinator) LastResult() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	snap := *c.last
	return &snap
}

// Run drives periodic checks until ctx is cancelled. Each wait interval
// re-reads check_interval so settings edits take effect on the next
// rearm. Intended to run in its own goroutine; sessions execute here,
// never on the host's UI thread.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		interval := c.cfg().CheckInterval
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !c.cfg().AutoCheck {
			debug.Debugf("updater: periodic tick skipped, auto_check disabled")
			continue
		}
		switch err := c.CheckNow(ctx, nil); {
		case err == nil:
		case errors.Is(err, ErrBusy):
			// Session still in flight; the timer rearms without
			// starting a second one.
			debug.Debugf("updater: periodic tick suppressed, session active")
		default:
			debug.Warnf("updater: periodic check failed: %v", err)
		}
	}
}

// CheckNow runs one full session synchronously: check, then download
// and install as far as the policy allows. override substitutes the
// running version for this session only (used for testing against an
// artificially old version). Returns ErrBusy, with a status event, when
// a session is already active.
func (c *Coordinator) CheckNow(ctx context.Context, override *version.Version) error {
	cur := c.current
	if override != nil {
		cur = *override
	}

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		c.emit(Event{State: state})
		return fmt.Errorf("%w (state %s)", ErrBusy, state)
	}
	c.session = &Session{Current: cur, State: StateChecking, StartedAt: time.Now()}
	c.state = StateChecking
	c.mu.Unlock()

	return c.runSession(ctx)
}

// StartDownload resumes the last session from UpdateAvailable when
// auto_download is off and the user asked for the download explicitly.
func (c *Coordinator) StartDownload(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrBusy, state)
	}
	if c.last == nil || c.last.State != StateUpdateAvailable || c.last.Asset == nil {
		c.mu.Unlock()
		return ErrNoPendingUpdate
	}
	snap := *c.last
	snap.State = StateDownloading
	snap.Err = nil
	snap.Category = ""
	c.session = &snap
	c.state = StateDownloading
	c.mu.Unlock()

	defer c.finish()
	cfg := c.cfg()
	if err := c.download(ctx, cfg); err != nil {
		return c.settle(err)
	}
	c.transition(StateDownloaded, cfg.NotifyUser)
	if c.cfg().AutoInstall {
		return c.settle(c.runInstall(ctx))
	}
	return c.settle(nil)
}

// StartInstall resumes the last session from Downloaded when
// auto_install is off. It refuses files that did not pass the enabled
// verification steps.
func (c *Coordinator) StartInstall(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrBusy, state)
	}
	if c.last == nil || c.last.State != StateDownloaded || c.last.DownloadedPath == "" || !c.last.Verified {
		c.mu.Unlock()
		return ErrNoPendingUpdate
	}
	snap := *c.last
	snap.State = StateInstalling
	snap.Err = nil
	snap.Category = ""
	c.session = &snap
	c.state = StateInstalling
	c.mu.Unlock()

	defer c.finish()
	return c.settle(c.runInstall(ctx))
}

// Cancel aborts an in-flight download, removing any partial file, and
// returns the machine to Idle. Cancellation is not permitted once
// installing has begun. Reports whether anything was cancelled.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDownloading || c.cancelDownload == nil {
		return false
	}
	c.session.Canceled = true
	c.cancelDownload()
	return true
}

// runSession executes the session already registered by CheckNow.
func (c *Coordinator) runSession(ctx context.Context) error {
	defer c.finish()

	cfg := c.cfg()
	c.transition(StateChecking, false)

	releases, err := c.catalog.ListReleases(ctx, catalog.ListOptions{IncludePrereleases: cfg.IncludePrereleases})
	if err != nil {
		return c.settle(err)
	}

	cur := c.snapshot().Current
	rel, candidate, found := pickLatest(releases, cur)
	if !found {
		debug.Debugf("updater: up to date at %s (%d releases considered)", cur, len(releases))
		c.transition(StateUpToDate, false)
		return c.settle(nil)
	}

	asset, err := selectAsset(rel, candidate, c.arch)
	if err != nil {
		return c.settle(err)
	}

	c.mu.Lock()
	c.session.Release = rel
	c.session.Candidate = candidate
	c.session.Asset = asset
	c.mu.Unlock()
	c.transition(StateUpdateAvailable, cfg.NotifyUser)
	debug.Debugf("updater: update available %s -> %s (%s)", cur, candidate, asset.Name)

	// Policy gates re-read the configuration: a settings edit during the
	// check takes effect immediately.
	if !c.cfg().AutoDownload {
		return c.settle(nil)
	}
	cfg = c.cfg()
	if err := c.download(ctx, cfg); err != nil {
		return c.settle(err)
	}
	c.transition(StateDownloaded, cfg.NotifyUser)

	if !c.cfg().AutoInstall {
		return c.settle(nil)
	}
	return c.settle(c.runInstall(ctx))
}

// selectAsset prefers the silent installer and falls back to the
// portable package when the release only ships the zip.
func selectAsset(rel *catalog.Release, v version.Version, arch selector.Arch) (*catalog.Asset, error) {
	asset, err := selector.Select(rel, v, arch, selector.KindInstaller)
	if errors.Is(err, selector.ErrNoMatchingAsset) {
		if pkg, pkgErr := selector.Select(rel, v, arch, selector.KindPackage); pkgErr == nil {
			return pkg, nil
		}
	}
	return asset, err
}

// pickLatest scans releases for the maximal version strictly newer than
// cur. Unparsable tags are skipped; they fail only their own
// comparison. When several releases carry the same maximal version the
// first listed wins.
func pickLatest(releases []catalog.Release, cur version.Version) (*catalog.Release, version.Version, bool) {
	var (
		best    *catalog.Release
		bestVer version.Version
	)
	for i := range releases {
		v, err := version.ParseTag(releases[i].TagName)
		if err != nil {
			debug.Debugf("updater: skipping release with unparsable tag %q: %v", releases[i].TagName, err)
			continue
		}
		if !version.IsNewer(v, cur) {
			continue
		}
		if best == nil || version.IsNewer(v, bestVer) {
			best = &releases[i]
			bestVer = v
		}
	}
	return best, bestVer, best != nil
}

func (c *Coordinator) download(ctx context.Context, cfg config.Config) error {
	snap := c.snapshot()

	dlCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancelDownload = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelDownload = nil
		c.mu.Unlock()
	}()

	c.transition(StateDownloading, false)

	var lastProgress time.Time
	res, err := c.dl.Fetch(dlCtx, snap.Release, snap.Asset, download.Options{
		DestDir:         filepath.Join(c.home, downloadsSubdir),
		MaxRetries:      cfg.MaxRetries,
		Timeout:         cfg.Timeout,
		VerifyChecksum:  cfg.VerifyChecksums,
		VerifySignature: cfg.VerifySignatures,
		TrustedKey:      c.key,
		Progress: func(downloaded, total int64) {
			now := time.Now()
			if now.Sub(lastProgress) < progressInterval && downloaded != total {
				return
			}
			lastProgress = now
			c.emit(Event{State: StateDownloading, Session: c.snapshot(), Downloaded: downloaded, Total: total})
		},
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session.DownloadedPath = res.Path
	c.session.Verified = true
	c.mu.Unlock()
	return nil
}

// runInstall launches the installer and waits. The run is shielded from
// outer cancellation: once installing begins the process finishes or
// fails on its own. Portable packages are not run: their contents are
// staged next to the download for the user to finish by hand.
func (c *Coordinator) runInstall(ctx context.Context) error {
	snap := c.snapshot()
	if snap.DownloadedPath == "" || !snap.Verified {
		return fmt.Errorf("refusing to install unverified file")
	}
	c.transition(StateInstalling, false)

	if install.IsPackage(snap.DownloadedPath) {
		dir, files, err := c.stage(snap.DownloadedPath)
		if err != nil {
			return err
		}
		debug.Debugf("updater: staged %d files to %s for manual installation", files, dir)
		c.mu.Lock()
		if c.session != nil {
			c.session.StagedPath = dir
		}
		c.mu.Unlock()
		c.transition(StateInstalled, c.cfg().NotifyUser)
		return nil
	}

	_, err := c.inst.Run(context.WithoutCancel(ctx), snap.DownloadedPath)
	if err != nil {
		return err
	}
	c.transition(StateInstalled, c.cfg().NotifyUser)
	return nil
}

// settle records a session outcome. Cancellation is not a failure: the
// session just returns to Idle. Any other error moves the machine to
// Failed with a user-facing category before finish() returns it to
// Idle.
func (c *Coordinator) settle(err error) error {
	if err == nil {
		c.persist()
		return nil
	}
	c.mu.Lock()
	canceled := c.session != nil && c.session.Canceled
	c.mu.Unlock()
	if canceled || errors.Is(err, context.Canceled) {
		c.mu.Lock()
		if c.session != nil {
			c.session.Canceled = true
		}
		c.mu.Unlock()
		debug.Debugf("updater: session cancelled")
		return err
	}

	category := Categorize(err)
	c.mu.Lock()
	if c.session != nil {
		c.session.Err = err
		c.session.Category = category
	}
	c.mu.Unlock()
	debug.Warnf("updater: session failed: %v (%s)", err, category)
	c.transition(StateFailed, c.cfg().NotifyUser)
	c.persist()
	return err
}

// finish returns the machine to Idle, retaining the session as the
// last-known-result.
func (c *Coordinator) finish() {
	c.mu.Lock()
	if c.session != nil {
		c.last = c.session
	}
	c.session = nil
	c.state = StateIdle
	c.mu.Unlock()
	c.emit(Event{State: StateIdle})
}

// transition moves the session to a new state and emits it.
func (c *Coordinator) transition(s State, notify bool) {
	c.mu.Lock()
	c.state = s
	if c.session != nil {
		c.session.State = s
	}
	snap := Session{}
	if c.session != nil {
		snap = *c.session
	}
	c.mu.Unlock()
	c.emit(Event{State: s, Session: snap, Notify: notify})
}

func (c *Coordinator) snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}
	}
	return *c.session
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		debug.Debugf("updater: event dropped, consumer lagging (state %s)", ev.State)
	}
}

func (c *Coordinator) persist() {
	snap := c.snapshot()
	lc := &LastCheck{
		CheckedAt:       time.Now(),
		CurrentVersion:  snap.Current.String(),
		UpdateAvailable: snap.State == StateUpdateAvailable || snap.State == StateDownloaded,
		State:           string(snap.State),
		Category:        snap.Category,
	}
	if snap.Release != nil {
		lc.LatestVersion = snap.Candidate.String()
	}
	if err := SaveLastCheck(c.home, lc); err != nil {
		debug.Warnf("updater: persist last check: %v", err)
	}
}
