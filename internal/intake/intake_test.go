package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngDataURL(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHostedURLPassesThrough(t *testing.T) {
	src := "https://example.com/photo.jpg"
	got, err := Prepare(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestSmallUploadUnchanged(t *testing.T) {
	src := pngDataURL(t, 640, 480)
	got, err := Prepare(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src, got, "fits the provider limit, no re-encode")
}

func TestOversizedUploadIsDownscaled(t *testing.T) {
	src := pngDataURL(t, 2048, 512)
	got, err := Prepare(context.Background(), src)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "data:image/jpeg;base64,"), "downscaled uploads re-encode as JPEG")

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, cfg.Width)
	assert.Equal(t, 256, cfg.Height, "aspect ratio preserved")
}

func TestRejectsNonImageSource(t *testing.T) {
	_, err := Prepare(context.Background(), "ftp://example.com/photo.jpg")
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = Prepare(context.Background(), "data:text/plain;base64,aGVsbG8=")
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestRejectsUnsupportedImageType(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("BM000-not-a-real-bitmap"))
	_, err := Prepare(context.Background(), "data:image/bmp;base64,"+payload)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, MaxUploadBytes+1)
	copy(big, "\x89PNG\r\n\x1a\n")
	_, err := Prepare(context.Background(), "data:image/png;base64,"+base64.StdEncoding.EncodeToString(big))
	assert.ErrorIs(t, err, ErrTooLarge)
}
