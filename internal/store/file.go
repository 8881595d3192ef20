package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/do"

	"ghiblify/internal/log"
)

// FileStore writes artifacts to a directory served statically under
// /generated/ and builds URLs from the service base URL.
type FileStore struct {
	Dir     string
	BaseURL string
}

func NewFileStore(i *do.Injector) (Store, error) {
	dir := do.MustInvokeNamed[string](i, "generated_dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FileStore{
		Dir:     dir,
		BaseURL: do.MustInvokeNamed[string](i, "base_url"),
	}, nil
}

func (s *FileStore) Persist(ctx context.Context, params Params) (string, error) {
	name := newObjectName(params.ContentType)
	logger := log.FromContextOrDiscard(ctx).WithGroup("file store").With("name", name)
	logger.Info("writing artifact", "bytes", len(params.Data))

	if err := os.WriteFile(filepath.Join(s.Dir, name), params.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact file: %w", err)
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/generated/" + name, nil
}

func (s *FileStore) Owns(url string) bool {
	return strings.HasPrefix(url, strings.TrimSuffix(s.BaseURL, "/")+"/generated/")
}

func (s *FileStore) Remove(ctx context.Context, url string) error {
	name := path.Base(url)
	// Never follow a name outside the artifact directory.
	if name == "." || name == "/" || strings.Contains(name, "..") {
		return fmt.Errorf("refusing to remove suspicious artifact name %q", name)
	}
	log.FromContextOrDiscard(ctx).WithGroup("file store").Info("removing artifact", "name", name)

	err := os.Remove(filepath.Join(s.Dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
