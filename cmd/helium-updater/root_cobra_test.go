package main

import (
	"errors"
	"testing"

	"github.com/imputnet/helium-updater/internal/exitcodes"
	"github.com/imputnet/helium-updater/internal/version"
)

func TestCurrentVersionFromManifest(t *testing.T) {
	m := &version.Manifest{Version: "1.2.3.4"}
	if got := currentVersion(m); got.String() != "1.2.3.4" {
		t.Errorf("currentVersion = %s, want 1.2.3.4", got)
	}
}

func TestCurrentVersionFallsBackToLdflags(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "v2.0.0.1"
	if got := currentVersion(nil); got.String() != "2.0.0.1" {
		t.Errorf("currentVersion = %s, want 2.0.0.1", got)
	}

	Version = "dev"
	if got := currentVersion(nil); got.String() != "0.0.0.0" {
		t.Errorf("dev build current = %s, want 0.0.0.0", got)
	}
}

func TestSilentErrKeepsExitCode(t *testing.T) {
	err := silentErr{exitcodes.NewError(exitcodes.UpdatePending, "pending")}
	if got := exitcodes.CodeForError(err); got != exitcodes.UpdatePending {
		t.Errorf("code = %d, want %d", got, exitcodes.UpdatePending)
	}
	var se silentErr
	if !errors.As(error(err), &se) {
		t.Error("errors.As should match silentErr")
	}
}

func TestLoadCfgHomeFlag(t *testing.T) {
	orig := flagHome
	defer func() { flagHome = orig }()

	flagHome = t.TempDir()
	cfg := loadCfg()
	if cfg.HomeDir != flagHome {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, flagHome)
	}
}
