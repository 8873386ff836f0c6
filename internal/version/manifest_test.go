package version

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)
	content := `{
  "version": "1.0.0.1",
  "build_time": 1735689600,
  "chromium_version": "120.0.6099.129",
  "target_arch": "x64",
  "update_server": {
    "type": "github_releases",
    "repo_owner": "imputnet",
    "repo_name": "helium-windows"
  }
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestFromDir() error = %v", err)
	}
	if m.Version != "1.0.0.1" {
		t.Errorf("Version = %q", m.Version)
	}
	if m.UpdateServer.RepoOwner != "imputnet" || m.UpdateServer.RepoName != "helium-windows" {
		t.Errorf("UpdateServer = %+v", m.UpdateServer)
	}
	if m.TargetArch != "x64" {
		t.Errorf("TargetArch = %q", m.TargetArch)
	}
	cur, err := m.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if cur != (Version{1, 0, 0, 1}) {
		t.Errorf("Current() = %+v", cur)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadManifestFromDir(dir); err == nil {
		t.Error("expected error for missing manifest")
	}

	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("expected error for malformed JSON")
	}

	if err := os.WriteFile(path, []byte(`{"version":"1.2.3"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("expected error for three-component version")
	}
}
