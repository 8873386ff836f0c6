package download

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imputnet/helium-updater/internal/catalog"
)

// testSvc builds a downloader against a TLS test server with instant
// backoff and unlimited disk.
func testSvc(t *testing.T, handler http.Handler) (*svc, *httptest.Server) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	s := NewWith(srv.Client()).(*svc)
	s.freeDisk = func(string) (uint64, error) { return 1 << 40, nil }
	s.sleep = func(context.Context, int) error { return nil }
	return s, srv
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func asset(srv *httptest.Server, name string, content []byte, withDigest bool) (*catalog.Release, *catalog.Asset) {
	a := catalog.Asset{
		Name:               name,
		BrowserDownloadURL: srv.URL + "/" + name,
		Size:               int64(len(content)),
	}
	if withDigest {
		a.Digest = "sha256:" + sha256Hex(content)
	}
	rel := &catalog.Release{TagName: "1.0.0.1", Assets: []catalog.Asset{a}}
	return rel, &rel.Assets[0]
}

func TestFetchSuccess(t *testing.T) {
	content := []byte("installer bytes")
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", content, true)

	dest := t.TempDir()
	var calls atomic.Int64
	res, err := s.Fetch(context.Background(), rel, a, Options{
		DestDir:        dest,
		VerifyChecksum: true,
		Progress:       func(d, total int64) { calls.Add(1) },
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Path != filepath.Join(dest, a.Name) {
		t.Errorf("Path = %q", res.Path)
	}
	got, err := os.ReadFile(res.Path)
	if err != nil || string(got) != string(content) {
		t.Errorf("final file = %q, %v", got, err)
	}
	if !res.ChecksumVerified {
		t.Error("ChecksumVerified = false")
	}
	if res.SHA256 != sha256Hex(content) {
		t.Errorf("SHA256 = %s", res.SHA256)
	}
	if calls.Load() == 0 {
		t.Error("progress callback never invoked")
	}
	assertNoPartials(t, dest)
}

func TestFetchChecksumMismatch(t *testing.T) {
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered bytes"))
	}))
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", []byte("expected bytes"), true)

	dest := t.TempDir()
	_, err := s.Fetch(context.Background(), rel, a, Options{DestDir: dest, VerifyChecksum: true})
	if !errors.Is(err, ErrIntegrityMismatch) {
		t.Fatalf("Fetch() error = %v, want ErrIntegrityMismatch", err)
	}
	// Nothing visible at the final path, no partial left behind.
	if _, err := os.Stat(filepath.Join(dest, a.Name)); !os.IsNotExist(err) {
		t.Error("final path exists after mismatch")
	}
	assertNoPartials(t, dest)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	content := []byte("eventually fine")
	var hits atomic.Int64
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(content)
	}))
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", content, false)

	res, err := s.Fetch(context.Background(), rel, a, Options{DestDir: t.TempDir(), MaxRetries: 3})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
	if res.Size != int64(len(content)) {
		t.Errorf("Size = %d", res.Size)
	}
}

func TestFetchRetryBudgetExhausted(t *testing.T) {
	var hits atomic.Int64
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", []byte("x"), false)

	dest := t.TempDir()
	_, err := s.Fetch(context.Background(), rel, a, Options{DestDir: dest, MaxRetries: 2})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Fetch() error = %v, want ErrTransport", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3 (initial + 2 retries)", hits.Load())
	}
	assertNoPartials(t, dest)
}

func TestFetchNotFoundIsImmediate(t *testing.T) {
	var hits atomic.Int64
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", []byte("x"), false)

	_, err := s.Fetch(context.Background(), rel, a, Options{DestDir: t.TempDir(), MaxRetries: 5})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch() error = %v, want ErrNotFound", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1 (no retries on 404)", hits.Load())
	}
}

func TestFetchRejectsNonHTTPSURL(t *testing.T) {
	s := New().(*svc)
	rel := &catalog.Release{Assets: []catalog.Asset{{
		Name:               "helium_1.0.0.1_x64-installer.exe",
		BrowserDownloadURL: "http://example.com/x",
	}}}
	_, err := s.Fetch(context.Background(), rel, &rel.Assets[0], Options{DestDir: t.TempDir()})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch() error = %v, want ErrNotFound", err)
	}
}

func TestFetchInsufficientSpace(t *testing.T) {
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when preflight fails")
	}))
	s.freeDisk = func(string) (uint64, error) { return 1024, nil }
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", make([]byte, 2048), false)

	_, err := s.Fetch(context.Background(), rel, a, Options{DestDir: t.TempDir()})
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("Fetch() error = %v, want ErrInsufficientSpace", err)
	}
}

func TestFetchCancelCleansUp(t *testing.T) {
	block := make(chan struct{})
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(make([]byte, 16*1024))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	}))
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	dest := t.TempDir()
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", nil, false)
	a.Size = 0

	_, err := s.Fetch(ctx, rel, a, Options{
		DestDir: dest,
		Progress: func(downloaded, total int64) {
			if downloaded > 0 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(dest, a.Name)); !os.IsNotExist(err) {
		t.Error("final path exists after cancel")
	}
	assertNoPartials(t, dest)
}

func TestFetchSignatureVerified(t *testing.T) {
	content := []byte("signed installer")
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	digest := sha256.Sum256(content)
	sig := ed25519.Sign(priv, digest[:])

	mux := http.NewServeMux()
	mux.HandleFunc("/helium_1.0.0.1_x64-installer.exe", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})
	mux.HandleFunc("/helium_1.0.0.1_x64-installer.exe.sig", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s\n", hex.EncodeToString(sig))
	})
	s, srv := testSvc(t, mux)

	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", content, false)
	rel.Assets = append(rel.Assets, catalog.Asset{
		Name:               a.Name + ".sig",
		BrowserDownloadURL: srv.URL + "/" + a.Name + ".sig",
	})
	a = &rel.Assets[0]

	res, err := s.Fetch(context.Background(), rel, a, Options{
		DestDir:         t.TempDir(),
		VerifySignature: true,
		TrustedKey:      pub,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !res.SignatureVerified {
		t.Error("SignatureVerified = false")
	}
}

func TestFetchSignatureInvalid(t *testing.T) {
	content := []byte("signed installer")
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, otherPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	digest := sha256.Sum256(content)
	badSig := ed25519.Sign(otherPriv, digest[:])

	mux := http.NewServeMux()
	mux.HandleFunc("/helium_1.0.0.1_x64-installer.exe", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})
	mux.HandleFunc("/helium_1.0.0.1_x64-installer.exe.sig", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hex.EncodeToString(badSig))
	})
	s, srv := testSvc(t, mux)

	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", content, false)
	rel.Assets = append(rel.Assets, catalog.Asset{
		Name:               a.Name + ".sig",
		BrowserDownloadURL: srv.URL + "/" + a.Name + ".sig",
	})
	a = &rel.Assets[0]

	dest := t.TempDir()
	_, err = s.Fetch(context.Background(), rel, a, Options{
		DestDir:         dest,
		VerifySignature: true,
		TrustedKey:      pub,
	})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("Fetch() error = %v, want ErrSignatureInvalid", err)
	}
	if _, err := os.Stat(filepath.Join(dest, a.Name)); !os.IsNotExist(err) {
		t.Error("final path exists after signature failure")
	}
	assertNoPartials(t, dest)
}

func TestFetchSignatureMissingSidecarSkips(t *testing.T) {
	content := []byte("unsigned installer")
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", content, false)

	res, err := s.Fetch(context.Background(), rel, a, Options{
		DestDir:         t.TempDir(),
		VerifySignature: true,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.SignatureVerified {
		t.Error("SignatureVerified = true without a sidecar")
	}
}

func TestDecodeSignature(t *testing.T) {
	sig := make([]byte, ed25519.SignatureSize)
	for i := range sig {
		sig[i] = byte(i)
	}
	if got, err := decodeSignature(hex.EncodeToString(sig) + "\n"); err != nil || !equalBytes(got, sig) {
		t.Errorf("hex decode = %v, %v", got, err)
	}
	if _, err := decodeSignature("nonsense"); err == nil {
		t.Error("decodeSignature accepted garbage")
	}
	if _, err := decodeSignature(hex.EncodeToString(sig[:10])); err == nil {
		t.Error("decodeSignature accepted short signature")
	}
}

func TestParseTrustedKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseTrustedKey(hex.EncodeToString(pub))
	if err != nil || !equalBytes(got, pub) {
		t.Errorf("ParseTrustedKey() = %v, %v", got, err)
	}
	if _, err := ParseTrustedKey("abcd"); err == nil {
		t.Error("ParseTrustedKey accepted short key")
	}
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".partial" {
			t.Errorf("partial file left behind: %s", e.Name())
		}
	}
}

func TestSleepBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepBackoff(ctx, 3); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepBackoff() = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleepBackoff did not return promptly on cancel")
	}
}

func TestFetchHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(func() { close(release) })
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", []byte("late"), false)

	start := time.Now()
	_, err := s.Fetch(context.Background(), rel, a, Options{
		DestDir: t.TempDir(),
		Timeout: 50 * time.Millisecond,
	})
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Fetch() error = %v, want ErrTransport", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Fetch() took %v, header deadline not enforced", elapsed)
	}
}

func TestFetchTimeoutSparesSlowBody(t *testing.T) {
	content := []byte("first-half|second-half")
	s, srv := testSvc(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content[:11])
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write(content[11:])
	}))
	rel, a := asset(srv, "helium_1.0.0.1_x64-installer.exe", content, true)

	res, err := s.Fetch(context.Background(), rel, a, Options{
		DestDir:        t.TempDir(),
		Timeout:        50 * time.Millisecond,
		VerifyChecksum: true,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want slow body to outlive the header deadline", err)
	}
	if res.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", res.Size, len(content))
	}
}
