package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/imputnet/helium-updater/internal/debug"
)

const (
	// DefaultOwner and DefaultRepo identify the Helium Windows release
	// catalog on GitHub.
	DefaultOwner = "imputnet"
	DefaultRepo  = "helium-windows"

	apiBase     = "https://api.github.com"
	httpTimeout = 30 * time.Second
)

// HTTPDoer interface for HTTP requests (allows mocking in tests).
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ListOptions controls a single catalog query.
type ListOptions struct {
	// IncludePrereleases keeps releases flagged as prereleases in the
	// result; they are filtered out otherwise. Draft releases are always
	// dropped.
	IncludePrereleases bool
}

// Client queries a GitHub-hosted release catalog over HTTPS. The result
// ordering from the remote service is not assumed reliable; callers
// determine the maximum version themselves.
type Client struct {
	owner     string
	repo      string
	userAgent string
	timeout   time.Duration
	http      HTTPDoer
}

// New creates a catalog client for owner/repo. userAgent identifies the
// updater build to the hosting provider.
func New(owner, repo, userAgent string) *Client {
	return NewWith(owner, repo, userAgent, nil)
}

// NewWithTimeout creates a catalog client whose queries are bounded by
// timeout rather than the built-in default. timeout <= 0 keeps the
// default.
func NewWithTimeout(owner, repo, userAgent string, timeout time.Duration) *Client {
	c := NewWith(owner, repo, userAgent, nil)
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// NewWith creates a catalog client with a custom HTTP client (for testing).
func NewWith(owner, repo, userAgent string, h HTTPDoer) *Client {
	if owner == "" {
		owner = DefaultOwner
	}
	if repo == "" {
		repo = DefaultRepo
	}
	if h == nil {
		h = &http.Client{}
	}
	return &Client{owner: owner, repo: repo, userAgent: userAgent, timeout: httpTimeout, http: h}
}

// ListReleases fetches the release index and returns published releases,
// filtered per opts. The query is bounded by the client's timeout.
// Rate limiting (403/429) maps to ErrRateLimited,
// transport failures to ErrUnreachable, bad payloads to ErrInvalidResponse.
func (c *Client) ListReleases(ctx context.Context, opts ListOptions) ([]Release, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/repos/%s/%s/releases", apiBase, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrInvalidResponse, resp.StatusCode)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	out := releases[:0]
	for _, r := range releases {
		if r.Draft {
			continue
		}
		if r.Prerelease && !opts.IncludePrereleases {
			debug.Debugf("catalog: skipping prerelease %s", r.TagName)
			continue
		}
		out = append(out, r)
	}
	debug.Debugf("catalog: %s/%s returned %d releases, %d after filtering", c.owner, c.repo, len(releases), len(out))
	return out, nil
}
