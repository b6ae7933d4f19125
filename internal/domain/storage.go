package domain

import "time"

// DefaultSignedURLTTL is how long minted download URLs stay valid unless
// configured otherwise.
const DefaultSignedURLTTL = time.Hour

// ObjectStore wraps an S3-compatible bucket. Implementations must be safe
// for concurrent use, propagate ctx to in-flight requests, and never log
// credentials.
type ObjectStore interface {
	// Put stores bytes under key with bounded retries on transient errors.
	Put(ctx Context, key string, body []byte, contentType string) error

	// SignedGet mints a presigned download URL valid for ttl.
	SignedGet(ctx Context, key string, ttl time.Duration) (string, error)

	// Delete removes the object; deleting a missing key is not an error.
	Delete(ctx Context, key string) error

	// Exists reports whether the key is present, distinguishing absence
	// from transport failure.
	Exists(ctx Context, key string) (bool, error)
}
