// Package store persists normalized image artifacts and resolves public
// URLs for them. Backend selection (filesystem vs object storage) is a
// configuration choice the rest of the pipeline never sees.
package store

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Params is one artifact write. Data is owned by the store once Persist
// returns; Metadata travels with the object where the backend supports it.
type Params struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Store persists a payload under a fresh collision-resistant name and
// returns an absolute, publicly fetchable URL. A call writes at most one
// object and never overwrites an existing one.
type Store interface {
	Persist(context.Context, Params) (string, error)
	Remove(context.Context, string) error

	// Owns reports whether a URL points at this backend. Remove is only
	// valid for owned URLs; provider-hosted short-circuit URLs are not ours
	// to delete.
	Owns(url string) bool
}

// Invalidator purges a CDN-cached path after its artifact is removed.
type Invalidator interface {
	Invalidate(context.Context, []string) error
}

// NoopInvalidator is used when no CDN fronts the artifacts.
type NoopInvalidator struct{}

func (NoopInvalidator) Invalidate(context.Context, []string) error { return nil }

func newObjectName(contentType string) string {
	return ulid.Make().String() + extensionFor(contentType)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		// The provider's model emits PNG unless told otherwise.
		return ".png"
	}
}
