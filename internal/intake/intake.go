// Package intake validates and downscales uploaded source images before
// they are submitted to the inference provider.
package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"ghiblify/internal/log"
	"ghiblify/internal/normalize"
)

const (
	// MaxUploadBytes bounds the decoded upload size.
	MaxUploadBytes = 5 << 20

	// MaxDimension is the longest edge submitted to the provider; larger
	// uploads are downscaled to keep inference time and cost flat.
	MaxDimension = 1024

	jpegQuality = 85
)

var (
	ErrTooLarge    = errors.New("image exceeds the 5 MB upload limit")
	ErrUnsupported = errors.New("unsupported image type: upload JPEG, PNG or WebP")
	ErrNotImage    = errors.New("source must be a data URL or an http(s) URL")
)

// Prepare turns a caller-supplied source into the form submitted to the
// provider. Hosted URLs pass through untouched; data URLs are validated,
// downscaled when oversized, and re-encoded as a JPEG data URL.
func Prepare(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return source, nil
	}
	if !strings.HasPrefix(source, "data:image") {
		return "", ErrNotImage
	}

	idx := strings.IndexByte(source, ',')
	if idx < 0 {
		return "", ErrNotImage
	}
	data, err := base64.StdEncoding.DecodeString(source[idx+1:])
	if err != nil {
		return "", fmt.Errorf("decoding upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return "", ErrTooLarge
	}

	img, err := decode(data)
	if err != nil {
		return "", err
	}

	bounds := img.Bounds()
	if bounds.Dx() <= MaxDimension && bounds.Dy() <= MaxDimension {
		return source, nil
	}

	log.FromContextOrDiscard(ctx).Info("downscaling oversized upload",
		"width", bounds.Dx(), "height", bounds.Dy())

	resized := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("re-encoding upload: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decode(data []byte) (image.Image, error) {
	switch normalize.SniffMIME(data) {
	case "image/jpeg":
		return jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		return png.Decode(bytes.NewReader(data))
	case "image/webp":
		return webp.Decode(bytes.NewReader(data))
	default:
		return nil, ErrUnsupported
	}
}
