package param

import (
	"context"
	"fmt"
	"os"
)

// EnvFetcher reads secrets straight from the environment. Used when no
// Parameter Store prefix is configured.
type EnvFetcher struct{}

func (EnvFetcher) Fetch(_ context.Context, name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return v, nil
}
