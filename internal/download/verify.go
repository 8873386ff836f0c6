package download

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/imputnet/helium-updater/internal/catalog"
)

// sidecar signatures are tiny; bound the fetch regardless of the main
// download's timeout policy.
const sidecarFetchTimeout = 30 * time.Second
const sidecarMaxBytes = 4096

// fileSHA256 computes the hex SHA-256 digest of the file at path.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checkDigest compares the declared digest against the computed SHA-256.
// Declared algorithms other than sha256 cannot be checked and fail as a
// mismatch rather than passing unverified.
func checkDigest(algo, want, gotSHA256 string) error {
	if algo != "sha256" {
		return fmt.Errorf("%w: unsupported checksum algorithm %q", ErrIntegrityMismatch, algo)
	}
	if !strings.EqualFold(want, gotSHA256) {
		return fmt.Errorf("%w: expected %s, got %s", ErrIntegrityMismatch, want, gotSHA256)
	}
	return nil
}

// verifySidecar fetches the detached-signature asset and verifies it
// against the trusted key. The signature is ed25519 over the SHA-256
// digest of the downloaded file, encoded hex or base64.
func (s *svc) verifySidecar(ctx context.Context, sig *catalog.Asset, fileDigestHex string, key ed25519.PublicKey) error {
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: no trusted key configured", ErrSignatureInvalid)
	}

	ctx, cancel := context.WithTimeout(ctx, sidecarFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sig.BrowserDownloadURL, nil)
	if err != nil {
		return fmt.Errorf("%w: bad signature URL: %v", ErrSignatureInvalid, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch signature: %v", ErrSignatureInvalid, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetch signature: HTTP %d", ErrSignatureInvalid, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, sidecarMaxBytes))
	if err != nil {
		return fmt.Errorf("%w: read signature: %v", ErrSignatureInvalid, err)
	}
	sigBytes, err := decodeSignature(string(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	digest, err := hex.DecodeString(fileDigestHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !ed25519.Verify(key, digest, sigBytes) {
		return fmt.Errorf("%w: signature does not match trusted key", ErrSignatureInvalid)
	}
	return nil
}

// decodeSignature accepts a 64-byte ed25519 signature as hex or base64
// text, tolerating surrounding whitespace.
func decodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == ed25519.SignatureSize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == ed25519.SignatureSize {
		return b, nil
	}
	return nil, fmt.Errorf("signature is not a 64-byte hex or base64 value")
}

// ParseTrustedKey decodes a hex-encoded ed25519 public key, as embedded
// in the build or supplied via configuration.
func ParseTrustedKey(hexKey string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("trusted key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("trusted key: got %d bytes, want %d", len(b), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(b), nil
}
