package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a version string is not four dot-separated
// non-negative integers.
var ErrMalformed = errors.New("malformed version")

// Version is a Helium build version: major.minor.build.patch.
// Ordering is lexicographic over the 4-tuple. There is no pre-release or
// build-metadata grammar; the release naming convention never produces one.
type Version struct {
	Major uint64
	Minor uint64
	Build uint64
	Patch uint64
}

// Parse parses a version string of exactly four dot-separated
// non-negative integers, e.g. "1.2.3.4".
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return Version{}, fmt.Errorf("%w: %q has %d components, want 4", ErrMalformed, s, len(parts))
	}
	var n [4]uint64
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: component %q in %q is not a non-negative integer", ErrMalformed, p, s)
		}
		n[i] = v
	}
	return Version{Major: n[0], Minor: n[1], Build: n[2], Patch: n[3]}, nil
}

// ParseTag parses a release tag, tolerating a single leading "v"
// (catalog tags appear both as "1.2.3.4" and "v1.2.3.4").
func ParseTag(tag string) (Version, error) {
	return Parse(strings.TrimPrefix(tag, "v"))
}

// String renders the canonical four-component form used by the asset
// naming convention.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Patch)
}

// Compare returns -1, 0 or 1 comparing a against b component-wise,
// left to right.
func Compare(a, b Version) int {
	av := [4]uint64{a.Major, a.Minor, a.Build, a.Patch}
	bv := [4]uint64{b.Major, b.Minor, b.Build, b.Patch}
	for i := 0; i < 4; i++ {
		switch {
		case av[i] < bv[i]:
			return -1
		case av[i] > bv[i]:
			return 1
		}
	}
	return 0
}

// IsNewer reports whether candidate is strictly greater than current.
// Ties are never newer.
func IsNewer(candidate, current Version) bool {
	return Compare(candidate, current) > 0
}
