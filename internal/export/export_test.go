package export

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	for x := 0; x < 800; x += 10 {
		img.Set(x, x%600, color.RGBA{G: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLookupIsTotalOverKnownPlatforms(t *testing.T) {
	cases := map[Platform]Dimensions{
		Instagram:   {1080, 1920},
		Pinterest:   {1000, 1500},
		Xiaohongshu: {1080, 1440},
		Wechat:      {1080, 1440},
	}
	for platform, want := range cases {
		got, ok := Lookup(platform)
		require.True(t, ok, platform)
		assert.Equal(t, want, got)
	}
}

func TestLookupRejectsUnknownPlatform(t *testing.T) {
	_, ok := Lookup(Platform("myspace"))
	assert.False(t, ok)
}

func TestRenderMatchesPlatformCanvas(t *testing.T) {
	data := samplePNG(t)

	out, err := Render(data, Pinterest)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Width)
	assert.Equal(t, 1500, cfg.Height)
}

func TestRenderUnknownPlatformFails(t *testing.T) {
	_, err := Render(samplePNG(t), Platform("myspace"))
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestRenderGarbageInputFails(t *testing.T) {
	_, err := Render([]byte("not an image"), Instagram)
	assert.Error(t, err)
}
