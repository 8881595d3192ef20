package handler

import (
	"fmt"
	"io"
	"net/url"
	"path"
)

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("artifact exceeds %d byte export limit", limit)
	}
	return data, nil
}

// pathOf extracts the object path of an artifact URL for CDN invalidation.
func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}
