package download

import "errors"

var (
	// ErrNotFound is a non-retryable retrieval failure: the asset URL is
	// missing or malformed. Fails the session immediately.
	ErrNotFound = errors.New("asset not found")

	// ErrTransport is surfaced once the retry budget for transient
	// transport failures is exhausted.
	ErrTransport = errors.New("download transport failure")

	// ErrIntegrityMismatch means the downloaded bytes do not match the
	// asset's declared checksum. Terminal, never silently ignored.
	ErrIntegrityMismatch = errors.New("checksum mismatch")

	// ErrSignatureInvalid means signature verification against the
	// trusted key failed. Security relevant, terminal, non-retryable.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrInsufficientSpace fails the download before any bytes move when
	// the destination volume cannot hold the asset.
	ErrInsufficientSpace = errors.New("insufficient disk space")
)
