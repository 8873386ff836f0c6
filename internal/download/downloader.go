// Package download retrieves release assets with retries and integrity
// verification. Files are staged under a hidden partial name and renamed
// to the final path only on full, verified success; a partial file is
// never visible under the final name.
package download

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/imputnet/helium-updater/internal/catalog"
	"github.com/imputnet/helium-updater/internal/debug"
)

const (
	// copyBufSize matches the historical 8KiB download chunk size.
	copyBufSize = 8192

	// spaceSlack is required free space beyond the asset size, covering
	// filesystem overhead and the rename window.
	spaceSlack = 64 << 20

	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second
)

// ProgressFunc is called during download with bytes downloaded and total
// size (-1 if unknown).
type ProgressFunc func(downloaded, total int64)

// Options configures one fetch.
type Options struct {
	DestDir    string
	MaxRetries int // retry budget for transient transport failures
	// Timeout bounds the wait for response headers on each attempt.
	// The body transfer itself is unbounded; large assets may stream
	// for longer than any reasonable fixed deadline.
	Timeout  time.Duration
	Progress ProgressFunc

	VerifyChecksum  bool
	VerifySignature bool
	// TrustedKey verifies detached signatures. Required when
	// VerifySignature is set and the asset carries a signature.
	TrustedKey ed25519.PublicKey
}

// Result describes a completed, verified download.
type Result struct {
	Path              string
	Size              int64
	SHA256            string
	ChecksumVerified  bool
	SignatureVerified bool
}

// Service fetches release assets.
type Service interface {
	// Fetch downloads asset into opts.DestDir and returns the final path.
	// The release is consulted for the asset's detached-signature sidecar.
	Fetch(ctx context.Context, rel *catalog.Release, asset *catalog.Asset, opts Options) (*Result, error)
}

// HTTPDoer interface for HTTP requests (allows mocking in tests).
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type svc struct {
	http     HTTPDoer
	freeDisk func(path string) (uint64, error)
	sleep    func(ctx context.Context, attempt int) error
}

// New creates a downloader with a default HTTP client tuned for large
// transfers: no overall timeout, bounded header wait.
func New() Service {
	return &svc{
		http: &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		freeDisk: gopsutilFree,
		sleep:    sleepBackoff,
	}
}

// NewWith creates a downloader with a custom HTTP client (for testing).
func NewWith(h HTTPDoer) Service {
	s := New().(*svc)
	if h != nil {
		s.http = h
	}
	return s
}

func gopsutilFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

func (s *svc) Fetch(ctx context.Context, rel *catalog.Release, asset *catalog.Asset, opts Options) (*Result, error) {
	u, err := url.Parse(asset.BrowserDownloadURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: bad download URL %q", ErrNotFound, asset.BrowserDownloadURL)
	}
	if opts.DestDir == "" {
		return nil, fmt.Errorf("DestDir required")
	}
	if err := os.MkdirAll(opts.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	if asset.Size > 0 {
		free, ferr := s.freeDisk(opts.DestDir)
		if ferr != nil {
			debug.Warnf("download: disk preflight skipped: %v", ferr)
		} else if free < uint64(asset.Size)+spaceSlack {
			return nil, fmt.Errorf("%w: need %d bytes, %d free in %s", ErrInsufficientSpace, asset.Size, free, opts.DestDir)
		}
	}

	finalPath := filepath.Join(opts.DestDir, asset.Name)
	partialPath := filepath.Join(opts.DestDir, "."+asset.Name+".partial")

	size, err := s.fetchStaged(ctx, asset, partialPath, opts)
	if err != nil {
		_ = os.Remove(partialPath)
		return nil, err
	}

	res := &Result{Size: size}
	res.SHA256, err = fileSHA256(partialPath)
	if err != nil {
		_ = os.Remove(partialPath)
		return nil, fmt.Errorf("hash downloaded file: %w", err)
	}

	if opts.VerifyChecksum {
		if algo, want, ok := asset.Checksum(); ok {
			if err := checkDigest(algo, want, res.SHA256); err != nil {
				_ = os.Remove(partialPath)
				return nil, err
			}
			res.ChecksumVerified = true
			debug.Debugf("download: checksum verified for %s (%s)", asset.Name, res.SHA256)
		} else {
			debug.Debugf("download: %s carries no checksum, nothing to verify", asset.Name)
		}
	}

	if opts.VerifySignature {
		if sig := rel.SignatureFor(asset.Name); sig != nil {
			if err := s.verifySidecar(ctx, sig, res.SHA256, opts.TrustedKey); err != nil {
				_ = os.Remove(partialPath)
				return nil, err
			}
			res.SignatureVerified = true
			debug.Debugf("download: signature verified for %s", asset.Name)
		} else {
			debug.Debugf("download: %s carries no signature, nothing to verify", asset.Name)
		}
	}

	if err := os.Rename(partialPath, finalPath); err != nil {
		_ = os.Remove(partialPath)
		return nil, fmt.Errorf("finalize download: %w", err)
	}
	res.Path = finalPath
	return res, nil
}

// fetchStaged streams the asset to partialPath, retrying transient
// transport failures with exponential backoff.
func (s *svc) fetchStaged(ctx context.Context, asset *catalog.Asset, partialPath string, opts Options) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			debug.Debugf("download: retry %d/%d for %s after %v", attempt, opts.MaxRetries, asset.Name, lastErr)
			if err := s.sleep(ctx, attempt); err != nil {
				return 0, err
			}
		}

		size, err := s.downloadOnce(ctx, asset, partialPath, opts)
		if err == nil {
			return size, nil
		}
		if !retryable(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("%w: %d attempts: %v", ErrTransport, opts.MaxRetries+1, lastErr)
}

// transientError marks a failure worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (s *svc) downloadOnce(ctx context.Context, asset *catalog.Asset, partialPath string, opts Options) (int64, error) {
	reqCtx := ctx
	var cancelHeaderWait context.CancelFunc
	if opts.Timeout > 0 {
		reqCtx, cancelHeaderWait = context.WithCancel(ctx)
		defer cancelHeaderWait()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	// Watchdog on the header wait only: once headers arrive the timer is
	// stopped and the body may stream for as long as it needs.
	var headerTimer *time.Timer
	if cancelHeaderWait != nil {
		headerTimer = time.AfterFunc(opts.Timeout, cancelHeaderWait)
	}
	resp, err := s.http.Do(req)
	if headerTimer != nil {
		headerTimer.Stop()
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return 0, &transientError{fmt.Errorf("no response headers within %v: %v", opts.Timeout, err)}
		}
		return 0, &transientError{err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return 0, &transientError{fmt.Errorf("HTTP %d", resp.StatusCode)}
	default:
		return 0, fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	}

	out, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}

	total := resp.ContentLength
	if total <= 0 && asset.Size > 0 {
		total = asset.Size
	}
	var reader io.Reader = resp.Body
	if opts.Progress != nil {
		reader = &progressReader{reader: resp.Body, total: total, progress: opts.Progress}
	}

	n, err := io.CopyBuffer(out, reader, make([]byte, copyBufSize))
	if err != nil {
		_ = out.Close()
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &transientError{err}
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("sync staging file: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close staging file: %w", err)
	}
	return n, nil
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff {
		d = maxBackoff
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// progressReader wraps a reader to report download progress.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	progress   ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.downloaded += int64(n)
	if pr.progress != nil {
		pr.progress(pr.downloaded, pr.total)
	}
	return n, err
}
