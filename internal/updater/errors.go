package updater

import (
	"errors"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/download"
	"github.com/imputnet/helium-updater/internal/install"
	"github.com/imputnet/helium-updater/internal/selector"
)

var (
	// ErrBusy rejects a request while a session is in flight. The
	// request is coalesced, not queued: the caller gets the current
	// state via the event stream.
	ErrBusy = errors.New("update session already in progress")

	// ErrNoPendingUpdate rejects a manual download/install trigger when
	// the last session left nothing to resume.
	ErrNoPendingUpdate = errors.New("no pending update")
)

// Categorize maps an error to the human-readable category shown to the
// user. Raw diagnostics stay in the debug log.
func Categorize(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, catalog.ErrRateLimited):
		return "update service busy, will retry later"
	case errors.Is(err, catalog.ErrUnreachable):
		return "update service unreachable"
	case errors.Is(err, catalog.ErrInvalidResponse):
		return "update service returned unexpected data"
	case errors.Is(err, selector.ErrNoMatchingAsset):
		return "update not available for this platform"
	case errors.Is(err, selector.ErrInsecureURL):
		return "update rejected: insecure download location"
	case errors.Is(err, download.ErrIntegrityMismatch):
		return "downloaded update failed integrity check"
	case errors.Is(err, download.ErrSignatureInvalid):
		return "downloaded update failed signature check"
	case errors.Is(err, download.ErrNotFound):
		return "update file missing from release"
	case errors.Is(err, download.ErrInsufficientSpace):
		return "not enough disk space for the update"
	case errors.Is(err, download.ErrTransport):
		return "download failed"
	default:
		var ife *install.InstallerFailedError
		if errors.As(err, &ife) {
			return "installer failed; user intervention required"
		}
		return "update failed"
	}
}
