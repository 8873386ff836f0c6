package install

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/imputnet/helium-updater/internal/debug"
)

// IsPackage reports whether path names a portable zip package rather
// than a runnable installer.
func IsPackage(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".zip")
}

// StagePackage extracts a portable package into a staging directory next
// to the archive (the archive path minus its extension) and returns the
// directory and the number of files written. The user completes the
// installation from there by hand.
func StagePackage(archivePath string) (string, int, error) {
	destDir := strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
	n, err := ExtractPackage(archivePath, destDir)
	if err != nil {
		return "", n, fmt.Errorf("stage package: %w", err)
	}
	return destDir, n, nil
}

// ExtractPackage unpacks a portable -windows.zip package into destDir
// for manual installation. It returns the number of files written.
// Entries that would escape destDir are rejected.
func ExtractPackage(archivePath, destDir string) (int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open package: %w", err)
	}
	defer func() { _ = r.Close() }()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("create extraction directory: %w", err)
	}

	written := 0
	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return written, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, fmt.Errorf("create %s: %w", f.Name, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return written, err
		}
		written++
	}
	debug.Debugf("install: extracted %d files from %s to %s", written, archivePath, destDir)
	return written, nil
}

// safeJoin resolves an archive entry name under destDir, rejecting
// absolute paths and parent traversal.
func safeJoin(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe path in package: %q", name)
	}
	return filepath.Join(destDir, clean), nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", f.Name, err)
	}
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s in package: %w", f.Name, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}
