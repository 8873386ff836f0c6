package main

import (
	"context"
	"testing"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/download"
	"github.com/imputnet/helium-updater/internal/exitcodes"
	"github.com/imputnet/helium-updater/internal/install"
	"github.com/imputnet/helium-updater/internal/selector"
	ui "github.com/imputnet/helium-updater/internal/ui"
)

func TestHandleUpdateAlreadyCurrent(t *testing.T) {
	setQuiet(t)
	d, _, dl, inst := newTestDeps(t, "1.0.0.0", []catalog.Release{testRelease(t, "1.0.0.0")})

	if err := handleUpdate(context.Background(), d, updateOptions{}); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if dl.calls != 0 || inst.calls != 0 {
		t.Error("nothing should run when already current")
	}
}

func TestHandleUpdateFullFlow(t *testing.T) {
	setQuiet(t)
	setGlobalUI(t, ui.Config{Yes: true})
	d, _, dl, inst := newTestDeps(t, "0.1.0.0", []catalog.Release{testRelease(t, "1.0.0.1")})

	if err := handleUpdate(context.Background(), d, updateOptions{}); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if dl.calls != 1 {
		t.Errorf("downloader calls = %d, want 1", dl.calls)
	}
	if inst.calls != 1 {
		t.Errorf("installer calls = %d, want 1", inst.calls)
	}
}

func TestHandleUpdatePackageStagedForManualInstall(t *testing.T) {
	setQuiet(t)
	setGlobalUI(t, ui.Config{Yes: true})
	v := testVersion(t, "1.0.0.1")
	pkg := selector.AssetName(v, selector.ArchX64, selector.KindPackage)
	rel := catalog.Release{
		TagName: "1.0.0.1",
		Assets: []catalog.Asset{
			{Name: pkg, BrowserDownloadURL: "https://example.com/" + pkg, Size: 2048},
		},
	}
	d, _, dl, inst := newTestDeps(t, "0.1.0.0", []catalog.Release{rel})

	if err := handleUpdate(context.Background(), d, updateOptions{}); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if dl.calls != 1 {
		t.Errorf("downloader calls = %d, want 1", dl.calls)
	}
	if inst.calls != 0 {
		t.Error("installer must not run for a portable package")
	}
}

func TestHandleUpdateDownloadOnly(t *testing.T) {
	setQuiet(t)
	setGlobalUI(t, ui.Config{Yes: true})
	d, _, dl, inst := newTestDeps(t, "0.1.0.0", []catalog.Release{testRelease(t, "1.0.0.1")})

	if err := handleUpdate(context.Background(), d, updateOptions{DownloadOnly: true}); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if dl.calls != 1 {
		t.Errorf("downloader calls = %d, want 1", dl.calls)
	}
	if inst.calls != 0 {
		t.Error("installer must not run with --download-only")
	}
}

func TestHandleUpdateNonInteractiveNeedsYes(t *testing.T) {
	setQuiet(t)
	setGlobalUI(t, ui.Config{NonInteractive: true})
	d, _, dl, _ := newTestDeps(t, "0.1.0.0", []catalog.Release{testRelease(t, "1.0.0.1")})

	err := handleUpdate(context.Background(), d, updateOptions{})
	if got := exitcodes.CodeForError(err); got != exitcodes.PreconditionFailed {
		t.Errorf("exit code = %d, want %d", got, exitcodes.PreconditionFailed)
	}
	if dl.calls != 0 {
		t.Error("declined update must not download")
	}
}

func TestHandleUpdateVerificationFailure(t *testing.T) {
	setQuiet(t)
	setGlobalUI(t, ui.Config{Yes: true})
	d, _, dl, inst := newTestDeps(t, "0.1.0.0", []catalog.Release{testRelease(t, "1.0.0.1")})
	dl.err = download.ErrIntegrityMismatch

	err := handleUpdate(context.Background(), d, updateOptions{})
	if got := exitcodes.CodeForError(err); got != exitcodes.ValidationError {
		t.Errorf("exit code = %d, want %d", got, exitcodes.ValidationError)
	}
	if inst.calls != 0 {
		t.Error("installer must not run after failed verification")
	}
}

func TestHandleUpdateInstallerFailure(t *testing.T) {
	setQuiet(t)
	setGlobalUI(t, ui.Config{Yes: true})
	d, _, _, inst := newTestDeps(t, "0.1.0.0", []catalog.Release{testRelease(t, "1.0.0.1")})
	inst.err = &install.InstallerFailedError{Code: 3}

	err := handleUpdate(context.Background(), d, updateOptions{})
	if got := exitcodes.CodeForError(err); got != exitcodes.InstallError {
		t.Errorf("exit code = %d, want %d", got, exitcodes.InstallError)
	}
}

func TestHandleUpdateBadCurrentFlag(t *testing.T) {
	d, _, _, _ := newTestDeps(t, "1.0.0.0", nil)

	err := handleUpdate(context.Background(), d, updateOptions{Current: "1.2"})
	if got := exitcodes.CodeForError(err); got != exitcodes.InvalidArgs {
		t.Errorf("exit code = %d, want %d", got, exitcodes.InvalidArgs)
	}
}

func TestDownloadErrMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"integrity", download.ErrIntegrityMismatch, exitcodes.ValidationError},
		{"signature", download.ErrSignatureInvalid, exitcodes.ValidationError},
		{"space", download.ErrInsufficientSpace, exitcodes.PreconditionFailed},
		{"transport", download.ErrTransport, exitcodes.NetworkError},
		{"missing", download.ErrNotFound, exitcodes.NetworkError},
		{"cancelled", context.Canceled, exitcodes.GeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitcodes.CodeForError(downloadErr(tt.err)); got != tt.code {
				t.Errorf("code = %d, want %d", got, tt.code)
			}
		})
	}
}

func TestInstallErrMapping(t *testing.T) {
	if got := exitcodes.CodeForError(installErr(&install.InstallerFailedError{Code: 5})); got != exitcodes.InstallError {
		t.Errorf("installer failure code = %d, want %d", got, exitcodes.InstallError)
	}
	if got := exitcodes.CodeForError(installErr(install.ErrUnsupportedArtifact)); got != exitcodes.PreconditionFailed {
		t.Errorf("unsupported artifact code = %d, want %d", got, exitcodes.PreconditionFailed)
	}
}
