package updater

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	lastCheckFileName = ".update-check"
	lastCheckFreshFor = 10 * time.Minute
)

// LastCheck is the persisted outcome of the most recent session,
// consulted by status surfaces without touching the network.
type LastCheck struct {
	CheckedAt       time.Time `json:"checked_at"`
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	State           string    `json:"state"`
	Category        string    `json:"category,omitempty"`
}

// LastCheckPath returns the result file location under home.
func LastCheckPath(home string) string {
	return filepath.Join(home, lastCheckFileName)
}

// LoadLastCheck loads the persisted session outcome.
func LoadLastCheck(home string) (*LastCheck, error) {
	data, err := os.ReadFile(LastCheckPath(home))
	if err != nil {
		return nil, err
	}
	var lc LastCheck
	if err := json.Unmarshal(data, &lc); err != nil {
		return nil, err
	}
	return &lc, nil
}

// SaveLastCheck persists the session outcome.
func SaveLastCheck(home string, lc *LastCheck) error {
	data, err := json.MarshalIndent(lc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	return os.WriteFile(LastCheckPath(home), data, 0o644)
}

// Fresh reports whether the result is recent enough to reuse without a
// new catalog query.
func (lc *LastCheck) Fresh() bool {
	return time.Since(lc.CheckedAt) < lastCheckFreshFor
}
