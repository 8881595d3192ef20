package provider

import "context"

// Params carries one generation request to the inference model. SourceImage
// is an http(s) URL or a data URL; Background optionally steers the scene.
type Params struct {
	SourceImage string
	Background  string
}

// Generator submits a generation job and returns the provider's raw
// response body. The shape of the returned value is deliberately untyped
// (string, decoded JSON, or an io.ReadCloser for binary bodies); the
// normalize package owns all shape handling. Callers close any returned
// ReadCloser once normalization is done.
type Generator interface {
	Generate(context.Context, Params) (any, error)
}
