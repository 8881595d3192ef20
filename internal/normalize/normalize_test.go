package normalize

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

func pngPayload(extra ...byte) []byte {
	return append(append([]byte{}, pngHeader...), extra...)
}

func TestHostedURLShortCircuits(t *testing.T) {
	for _, url := range []string{
		"https://replicate.delivery/pbxt/abc123/out.png",
		"http://example.com/image.png",
	} {
		res, err := Normalize(context.Background(), url)
		require.NoError(t, err)
		assert.True(t, res.ShortCircuit())
		assert.Equal(t, url, res.URL, "hosted URL must pass through unchanged")
		assert.Nil(t, res.Artifact)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	payload := pngPayload([]byte("hello-ghibli")...)
	input := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	res, err := Normalize(context.Background(), input)
	require.NoError(t, err)
	require.False(t, res.ShortCircuit())
	assert.Equal(t, payload, res.Artifact.Bytes)
	assert.Equal(t, "image/png", res.Artifact.MIME)
}

func TestDataURLWithoutSeparatorFails(t *testing.T) {
	_, err := Normalize(context.Background(), "data:image/png;base64")
	assert.Error(t, err)
}

func TestRawStringDegradedPath(t *testing.T) {
	res, err := Normalize(context.Background(), "definitely-not-a-url")
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, []byte("definitely-not-a-url"), res.Artifact.Bytes)
	assert.Empty(t, res.Artifact.MIME, "unknown signature carries no MIME")
}

// chunkedReader yields one chunk per Read call to exercise full draining.
type chunkedReader struct {
	chunks [][]byte
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestStreamDrainConcatenatesAllChunks(t *testing.T) {
	chunks := [][]byte{pngHeader, []byte("chunk-one"), []byte("chunk-two"), []byte("chunk-three")}
	var want []byte
	for _, c := range chunks {
		want = append(want, c...)
	}

	res, err := Normalize(context.Background(), &chunkedReader{chunks: [][]byte{
		append([]byte{}, chunks[0]...),
		append([]byte{}, chunks[1]...),
		append([]byte{}, chunks[2]...),
		append([]byte{}, chunks[3]...),
	}})
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, want, res.Artifact.Bytes)
	assert.Equal(t, "image/png", res.Artifact.MIME)
}

func TestEmptyStreamIsFailureNotSuccess(t *testing.T) {
	_, err := Normalize(context.Background(), bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestSequenceRecursesIntoFirstElement(t *testing.T) {
	res, err := Normalize(context.Background(), []any{"https://example.com/a.png", "https://example.com/b.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", res.URL)
}

func TestEmptySequenceFails(t *testing.T) {
	_, err := Normalize(context.Background(), []any{})
	assert.Error(t, err)
}

func TestMappingSequenceDataURLRecursion(t *testing.T) {
	payload := pngPayload([]byte("nested")...)
	response := map[string]any{
		"status": "succeeded",
		"output": []any{"data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)},
	}

	res, err := Normalize(context.Background(), response)
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, payload, res.Artifact.Bytes)
}

func TestMappingWithoutOutputFieldFails(t *testing.T) {
	_, err := Normalize(context.Background(), map[string]any{"status": "succeeded"})
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Contains(t, shapeErr.Shape, "status")
}

func TestUnrecognizedShapeNamesItself(t *testing.T) {
	_, err := Normalize(context.Background(), 42)
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "int", shapeErr.Shape)
}

func TestSignatureMismatchIsWarningNotFailure(t *testing.T) {
	input := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not-really-png"))
	res, err := Normalize(context.Background(), input)
	require.NoError(t, err, "forwarding possibly-wrong content beats failing")
	require.NotNil(t, res.Artifact)
	assert.Equal(t, "image/png", res.Artifact.MIME, "declared MIME used when sniffing fails")
}

func TestSniffMIME(t *testing.T) {
	cases := map[string]struct {
		data []byte
		want string
	}{
		"png":     {pngPayload(), "image/png"},
		"jpeg":    {[]byte("\xff\xd8\xff\xe0rest"), "image/jpeg"},
		"gif":     {[]byte("GIF89a..."), "image/gif"},
		"webp":    {[]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		"unknown": {[]byte("plain text"), ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SniffMIME(tc.data))
		})
	}
}
