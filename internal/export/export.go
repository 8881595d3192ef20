// Package export renders a generated image at the canvas dimensions each
// sharing platform expects.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"ghiblify/internal/normalize"
)

// Platform is a closed variant; dimensions come from the lookup table, not
// from string branching.
type Platform string

const (
	Instagram   Platform = "instagram"
	Pinterest   Platform = "pinterest"
	Xiaohongshu Platform = "xiaohongshu"
	Wechat      Platform = "wechat"
)

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

var dimensions = map[Platform]Dimensions{
	Instagram:   {Width: 1080, Height: 1920}, // 9:16
	Pinterest:   {Width: 1000, Height: 1500}, // 2:3
	Xiaohongshu: {Width: 1080, Height: 1440}, // 3:4
	Wechat:      {Width: 1080, Height: 1440}, // 3:4
}

var ErrUnknownPlatform = errors.New("unknown export platform")

const exportQuality = 90

// Lookup resolves a platform id, reporting whether it names a known variant.
func Lookup(p Platform) (Dimensions, bool) {
	d, ok := dimensions[p]
	return d, ok
}

// Render crops-to-cover the image onto the platform canvas and encodes it
// as JPEG for download.
func Render(data []byte, platform Platform) ([]byte, error) {
	dims, ok := Lookup(platform)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}

	img, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image for export: %w", err)
	}

	canvas := imaging.Fill(img, dims.Width, dims.Height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(exportQuality)); err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return buf.Bytes(), nil
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
		// Fall back to the registered decoders for anything else.
		img, _, err := image.Decode(bytes.NewReader(data))
		return img, err
	}
}
