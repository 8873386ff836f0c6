package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFileName is the version manifest emitted by the build pipeline
// next to the browser binary.
const ManifestFileName = "version_manifest.json"

// Manifest mirrors version_manifest.json: the running build's identity,
// read once at process start to seed the first update check.
type Manifest struct {
	Version         string       `json:"version"`
	BuildTime       int64        `json:"build_time"`
	ChromiumVersion string       `json:"chromium_version"`
	TargetArch      string       `json:"target_arch,omitempty"`
	UpdateServer    UpdateServer `json:"update_server"`
}

// UpdateServer identifies the release catalog the build was configured
// against.
type UpdateServer struct {
	Type      string `json:"type"`
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
}

// LoadManifest reads and validates a version manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read version manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse version manifest: %w", err)
	}
	if _, err := Parse(m.Version); err != nil {
		return nil, fmt.Errorf("version manifest: %w", err)
	}
	return &m, nil
}

// LoadManifestFromDir loads ManifestFileName from dir.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFileName))
}

// Current returns the manifest's version as a parsed Version.
func (m *Manifest) Current() (Version, error) {
	return Parse(m.Version)
}
