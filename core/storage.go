package core

import (
	"errors"
	"io"
	"time"
)

// Storage buckets. Thumbnails are publicly addressable; videos and materials
// are only reachable through signed URLs.
const (
	BucketThumbnails = "thumbnails"
	BucketVideos     = "videos"
	BucketMaterials  = "materials"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrInvalidSignedURL = errors.New("invalid or expired signed URL")
)

// FileStore stores uploaded blobs. Blobs are opaque; only the extension of the
// original filename is preserved.
type FileStore interface {
	// Save writes r under bucket using pathHint plus a unique suffix to avoid
	// collisions, and returns the stored path (relative to the bucket).
	Save(bucket, pathHint, ext string, r io.Reader) (string, error)
	// Open returns a reader over a previously stored blob.
	Open(bucket, path string) (io.ReadCloser, error)
	Delete(bucket, path string) error

	// PublicURL returns a non-expiring URL for blobs in public buckets.
	PublicURL(bucket, path string) string
	// SignedURL returns a URL granting time-limited access to a private blob.
	// download forces a content-disposition attachment on delivery.
	SignedURL(bucket, path string, ttl time.Duration, download bool) (string, error)
	// VerifySignedURL checks a signed URL's signature and expiry and returns
	// the bucket and path it grants access to.
	VerifySignedURL(rawurl string) (bucket, path string, download bool, err error)
}
