package catalog

import (
	"strings"
	"time"
)

// Release is one tagged, published version record in the release catalog.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"` // changelog / release notes
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
	Assets      []Asset   `json:"assets"`
}

// Asset is a single downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
	ContentType        string `json:"content_type"`
	// Digest is the catalog-declared checksum in "<algorithm>:<hex>" form
	// when the hosting provider supplies one.
	Digest string `json:"digest,omitempty"`
}

// Checksum splits the asset's declared digest into algorithm and hex
// digest. ok is false when the asset carries no usable checksum.
func (a *Asset) Checksum() (algo, digest string, ok bool) {
	if a.Digest == "" {
		return "", "", false
	}
	algo, digest, found := strings.Cut(a.Digest, ":")
	if !found || algo == "" || digest == "" {
		return "", "", false
	}
	return algo, strings.ToLower(digest), true
}

// SignatureFor returns the detached-signature sidecar asset for name
// ("<name>.sig"), or nil when the release does not carry one.
func (r *Release) SignatureFor(name string) *Asset {
	want := name + ".sig"
	for i := range r.Assets {
		if r.Assets[i].Name == want {
			return &r.Assets[i]
		}
	}
	return nil
}
