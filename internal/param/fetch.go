package param

import "context"

// Fetcher resolves configuration secrets by name. Production runs use the
// Parameter Store implementation; local runs fall back to plain env vars.
type Fetcher interface {
	Fetch(context.Context, string) (string, error)
}
