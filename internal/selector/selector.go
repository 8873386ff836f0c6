// Package selector picks the release asset matching the running
// architecture under the fixed Helium asset naming convention.
package selector

import (
	"errors"
	"fmt"
	"net/url"
	"runtime"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/debug"
	"github.com/imputnet/helium-updater/internal/version"
)

// product is the fixed prefix of every release asset name.
const product = "helium"

// Arch is the running CPU target. Detected once per process; immutable
// for the process lifetime.
type Arch string

const (
	ArchX64   Arch = "x64"
	ArchARM64 Arch = "arm64"
)

// Kind distinguishes the two asset flavors a release may carry.
type Kind string

const (
	KindInstaller Kind = "installer" // helium_<version>_<arch>-installer.exe
	KindPackage   Kind = "package"   // helium_<version>_<arch>-windows.zip
)

var (
	// ErrNoMatchingAsset means the release has no asset for the running
	// architecture. User-visible "unavailable for your platform", not a
	// crash.
	ErrNoMatchingAsset = errors.New("no matching asset for architecture")

	// ErrInsecureURL rejects a non-HTTPS download URL at selection time.
	ErrInsecureURL = errors.New("asset download URL is not https")
)

// Detect maps the process architecture to a catalog architecture.
// Unknown architectures fall back to x64, matching the historical
// updater behavior.
func Detect() Arch {
	switch runtime.GOARCH {
	case "arm64":
		return ArchARM64
	case "amd64":
		return ArchX64
	default:
		return ArchX64
	}
}

// ParseArch validates an architecture string from configuration or the
// build manifest.
func ParseArch(s string) (Arch, bool) {
	switch Arch(s) {
	case ArchX64, ArchARM64:
		return Arch(s), true
	}
	return "", false
}

// AssetName renders the conventional asset file name for (version, arch,
// kind).
func AssetName(v version.Version, arch Arch, kind Kind) string {
	switch kind {
	case KindPackage:
		return fmt.Sprintf("%s_%s_%s-windows.zip", product, v, arch)
	default:
		return fmt.Sprintf("%s_%s_%s-installer.exe", product, v, arch)
	}
}

// Select returns the release asset for (arch, kind). The asset name must
// match the naming convention exactly, with <version> equal to the
// release's parsed version rendered back to four components. When several
// assets match, the first in the release's asset order wins and the
// ambiguity is logged.
func Select(rel *catalog.Release, v version.Version, arch Arch, kind Kind) (*catalog.Asset, error) {
	want := AssetName(v, arch, kind)

	var match *catalog.Asset
	matches := 0
	for i := range rel.Assets {
		if rel.Assets[i].Name != want {
			continue
		}
		matches++
		if match == nil {
			match = &rel.Assets[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: no %s asset for %s in release %s", ErrNoMatchingAsset, kind, arch, rel.TagName)
	}
	if matches > 1 {
		debug.Warnf("selector: %d assets named %q in release %s, using the first", matches, want, rel.TagName)
	}

	u, err := url.Parse(match.BrowserDownloadURL)
	if err != nil || u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrInsecureURL, match.BrowserDownloadURL)
	}

	debug.Debugf("selector: release %s arch %s kind %s -> %s", rel.TagName, arch, kind, match.Name)
	return match, nil
}
