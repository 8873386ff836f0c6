package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

// mockHTTPDoer is a test helper for mocking HTTP calls.
type mockHTTPDoer struct {
	doFunc func(*http.Request) (*http.Response, error)
}

func (m *mockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

const releasesBody = `[
  {"tag_name": "1.0.0.1", "prerelease": false, "published_at": "2025-01-01T00:00:00Z",
   "assets": [{"name": "helium_1.0.0.1_x64-installer.exe",
               "browser_download_url": "https://example.com/helium_1.0.0.1_x64-installer.exe",
               "size": 1024, "digest": "sha256:abc"}]},
  {"tag_name": "2.0.0.0", "prerelease": true, "published_at": "2025-02-01T00:00:00Z", "assets": []},
  {"tag_name": "0.9.0.0", "prerelease": false, "draft": true, "assets": []}
]`

func TestListReleases(t *testing.T) {
	var gotReq *http.Request
	c := NewWith("imputnet", "helium-windows", "Helium-Browser-Updater/1.0.0.0", &mockHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			gotReq = req
			return jsonResponse(http.StatusOK, releasesBody), nil
		},
	})

	releases, err := c.ListReleases(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListReleases() error = %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("got %d releases, want 1 (prerelease and draft filtered)", len(releases))
	}
	if releases[0].TagName != "1.0.0.1" {
		t.Errorf("TagName = %q", releases[0].TagName)
	}

	if gotReq.URL.String() != "https://api.github.com/repos/imputnet/helium-windows/releases" {
		t.Errorf("URL = %q", gotReq.URL)
	}
	if gotReq.URL.Scheme != "https" {
		t.Errorf("scheme = %q, want https", gotReq.URL.Scheme)
	}
	if got := gotReq.Header.Get("User-Agent"); got != "Helium-Browser-Updater/1.0.0.0" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := gotReq.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
		t.Errorf("Accept = %q", got)
	}
}

func TestListReleasesIncludePrereleases(t *testing.T) {
	c := NewWith("", "", "ua", &mockHTTPDoer{
		doFunc: func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, releasesBody), nil
		},
	})

	releases, err := c.ListReleases(context.Background(), ListOptions{IncludePrereleases: true})
	if err != nil {
		t.Fatalf("ListReleases() error = %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("got %d releases, want 2 (draft still filtered)", len(releases))
	}
}

func TestListReleasesErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		doErr   error
		wantErr error
	}{
		{name: "rate limited 403", status: http.StatusForbidden, body: "{}", wantErr: ErrRateLimited},
		{name: "rate limited 429", status: http.StatusTooManyRequests, body: "{}", wantErr: ErrRateLimited},
		{name: "server error", status: http.StatusBadGateway, body: "", wantErr: ErrUnreachable},
		{name: "not found", status: http.StatusNotFound, body: "{}", wantErr: ErrInvalidResponse},
		{name: "malformed payload", status: http.StatusOK, body: "{not json", wantErr: ErrInvalidResponse},
		{name: "transport failure", doErr: fmt.Errorf("connection refused"), wantErr: ErrUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWith("", "", "ua", &mockHTTPDoer{
				doFunc: func(*http.Request) (*http.Response, error) {
					if tt.doErr != nil {
						return nil, tt.doErr
					}
					return jsonResponse(tt.status, tt.body), nil
				},
			})
			_, err := c.ListReleases(context.Background(), ListOptions{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ListReleases() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssetChecksum(t *testing.T) {
	tests := []struct {
		name   string
		digest string
		algo   string
		sum    string
		ok     bool
	}{
		{name: "sha256", digest: "sha256:ABCDEF", algo: "sha256", sum: "abcdef", ok: true},
		{name: "missing", digest: "", ok: false},
		{name: "no separator", digest: "abcdef", ok: false},
		{name: "empty digest part", digest: "sha256:", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Asset{Digest: tt.digest}
			algo, sum, ok := a.Checksum()
			if ok != tt.ok || algo != tt.algo || sum != tt.sum {
				t.Errorf("Checksum() = (%q, %q, %v), want (%q, %q, %v)", algo, sum, ok, tt.algo, tt.sum, tt.ok)
			}
		})
	}
}

func TestSignatureFor(t *testing.T) {
	r := Release{Assets: []Asset{
		{Name: "helium_1.0.0.1_x64-installer.exe"},
		{Name: "helium_1.0.0.1_x64-installer.exe.sig"},
	}}
	if got := r.SignatureFor("helium_1.0.0.1_x64-installer.exe"); got == nil || got.Name != "helium_1.0.0.1_x64-installer.exe.sig" {
		t.Errorf("SignatureFor() = %+v", got)
	}
	if got := r.SignatureFor("helium_1.0.0.1_arm64-installer.exe"); got != nil {
		t.Errorf("SignatureFor() = %+v, want nil", got)
	}
}

func TestListReleasesQueryDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	mock := &mockHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			deadline, ok = req.Context().Deadline()
			return jsonResponse(http.StatusOK, "[]"), nil
		},
	}

	c := NewWithTimeout("imputnet", "helium-windows", "ua", 5*time.Minute)
	c.http = mock
	if _, err := c.ListReleases(context.Background(), ListOptions{}); err != nil {
		t.Fatalf("ListReleases() error = %v", err)
	}
	if !ok {
		t.Fatal("request carried no deadline")
	}
	remaining := time.Until(deadline)
	if remaining < 4*time.Minute || remaining > 5*time.Minute {
		t.Errorf("deadline %v from now, want ~5m", remaining)
	}

	// Default clients still bound the query.
	c = NewWith("imputnet", "helium-windows", "ua", mock)
	ok = false
	if _, err := c.ListReleases(context.Background(), ListOptions{}); err != nil {
		t.Fatalf("ListReleases() error = %v", err)
	}
	if !ok {
		t.Fatal("default client request carried no deadline")
	}
	if remaining := time.Until(deadline); remaining > httpTimeout {
		t.Errorf("default deadline %v from now, want <= %v", remaining, httpTimeout)
	}
}
