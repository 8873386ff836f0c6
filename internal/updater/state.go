package updater

import (
	"time"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/version"
)

// State is the update machine's position in the
// check -> fetch -> install cycle.
type State string

const (
	StateIdle            State = "idle"
	StateChecking        State = "checking"
	StateUpToDate        State = "up_to_date"
	StateUpdateAvailable State = "update_available"
	StateDownloading     State = "downloading"
	StateDownloaded      State = "downloaded"
	StateInstalling      State = "installing"
	StateInstalled       State = "installed"
	StateFailed          State = "failed"
)

// Session is one check-to-install cycle. It is created when a check
// starts and retained as the last-known-result after the machine
// returns to Idle.
type Session struct {
	Current   version.Version
	Candidate version.Version
	Release   *catalog.Release
	Asset     *catalog.Asset

	DownloadedPath string
	Verified       bool // every enabled verification step passed

	// StagedPath is set instead of running an installer when the asset
	// was a portable package: its contents were extracted there and the
	// user completes the installation by hand.
	StagedPath string

	State     State
	Err       error
	Category  string
	Canceled  bool
	StartedAt time.Time
}

// Event is a status notification for the embedding host (the browser UI
// or the CLI). Session is a snapshot, safe to read without locks.
type Event struct {
	State   State
	Session Session

	// Notify asks the host to surface this to the user, per the
	// notify_user setting. Progress and bookkeeping events leave it off.
	Notify bool

	// Download progress, populated while State is StateDownloading.
	Downloaded int64
	Total      int64
}
