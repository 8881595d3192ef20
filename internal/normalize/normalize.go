// Package normalize reduces the inference provider's polymorphic output to
// a single image artifact. It is the only place in the system that performs
// response shape-sniffing; everything downstream consumes a typed Result.
package normalize

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"ghiblify/internal/log"
)

// Artifact is a decoded image payload ready for persistence.
type Artifact struct {
	Bytes []byte
	MIME  string
}

// Result is either an already-hosted URL (the short-circuit path, no
// persistence needed) or a decoded artifact, never both.
type Result struct {
	URL      string
	Artifact *Artifact
}

// ShortCircuit reports whether the provider already hosts the image.
func (r Result) ShortCircuit() bool { return r.URL != "" }

// ShapeError reports a provider response no rule could handle. The shape
// fingerprint is for diagnostics and carries no payload content.
type ShapeError struct {
	Shape string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unrecognized provider response shape: %s", e.Shape)
}

// Sequences and mappings recurse into their contents; anything deeper than
// this is not a provider response we want to chase.
const maxDepth = 8

// Normalize applies the precedence rules over a raw provider response:
// hosted URL, data URL, raw string, binary stream, first element of a
// sequence, conventional output field of a mapping.
func Normalize(ctx context.Context, v any) (Result, error) {
	return normalize(ctx, v, 0)
}

func normalize(ctx context.Context, v any, depth int) (Result, error) {
	if depth > maxDepth {
		return Result{}, &ShapeError{Shape: Fingerprint(v) + " (nested too deeply)"}
	}

	switch t := v.(type) {
	case string:
		return normalizeString(ctx, t)
	case []byte:
		return artifactResult(ctx, t)
	case io.Reader:
		return drainStream(ctx, t)
	case []any:
		if len(t) == 0 {
			return Result{}, &ShapeError{Shape: "empty sequence"}
		}
		return normalize(ctx, t[0], depth+1)
	case []string:
		if len(t) == 0 {
			return Result{}, &ShapeError{Shape: "empty sequence"}
		}
		return normalize(ctx, t[0], depth+1)
	case map[string]any:
		if out, ok := t["output"]; ok {
			return normalize(ctx, out, depth+1)
		}
		return Result{}, &ShapeError{Shape: Fingerprint(v)}
	case nil:
		return Result{}, &ShapeError{Shape: "nil"}
	default:
		return Result{}, &ShapeError{Shape: Fingerprint(v)}
	}
}

func normalizeString(ctx context.Context, s string) (Result, error) {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return Result{URL: s}, nil
	}

	if strings.HasPrefix(s, "data:image") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return Result{}, &ShapeError{Shape: "data URL without payload separator"}
		}
		decoded, err := base64.StdEncoding.DecodeString(s[idx+1:])
		if err != nil {
			return Result{}, fmt.Errorf("decoding data URL payload: %w", err)
		}
		res, err := artifactResult(ctx, decoded)
		if err != nil {
			return res, err
		}
		if res.Artifact.MIME == "" {
			res.Artifact.MIME = dataURLMIME(s)
		}
		return res, nil
	}

	// Degraded path: reinterpret the raw character content as image bytes.
	log.FromContextOrDiscard(ctx).Warn("reinterpreting raw string response as binary",
		"length", len(s))
	return artifactResult(ctx, []byte(s))
}

func drainStream(ctx context.Context, r io.Reader) (Result, error) {
	// Full drain before returning; no partial results.
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("draining response stream: %w", err)
	}
	return artifactResult(ctx, data)
}

func artifactResult(ctx context.Context, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("provider returned an empty image payload")
	}

	mime := SniffMIME(data)
	if mime == "" {
		// Best effort only: forward the payload rather than fail.
		log.FromContextOrDiscard(ctx).Warn("payload does not match a known image signature",
			"length", len(data))
	}
	return Result{Artifact: &Artifact{Bytes: data, MIME: mime}}, nil
}

func dataURLMIME(s string) string {
	rest := strings.TrimPrefix(s, "data:")
	if idx := strings.IndexAny(rest, ";,"); idx > 0 {
		return rest[:idx]
	}
	return ""
}
