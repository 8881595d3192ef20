package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghiblify/internal/pipeline"
)

func TestReadAllLimited(t *testing.T) {
	data, err := readAllLimited(strings.NewReader("hello"), 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = readAllLimited(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = readAllLimited(strings.NewReader("hello"), 4)
	require.Error(t, err)
}

func TestPathOf(t *testing.T) {
	assert.Equal(t, "01ABC.png", pathOf("https://cdn.example.com/generated/01ABC.png"))
	assert.Equal(t, "01ABC.png", pathOf("/generated/01ABC.png"))
	assert.Equal(t, "01ABC.png", pathOf("01ABC.png"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusPaymentRequired, statusFor(pipeline.KindQuotaExceeded))
	assert.Equal(t, http.StatusBadGateway, statusFor(pipeline.KindInference))
	assert.Equal(t, http.StatusBadGateway, statusFor(pipeline.KindNormalization))
	assert.Equal(t, http.StatusInternalServerError, statusFor(pipeline.KindStorage))
	assert.Equal(t, http.StatusBadRequest, statusFor(pipeline.KindInvalidInput))
	assert.Equal(t, http.StatusInternalServerError, statusFor(pipeline.KindInternal))
}

func TestPublicMessageNeverLeaksDetail(t *testing.T) {
	for _, kind := range []pipeline.Kind{
		pipeline.KindQuotaExceeded,
		pipeline.KindInference,
		pipeline.KindNormalization,
		pipeline.KindStorage,
		pipeline.KindInternal,
	} {
		msg := publicMessage(kind)
		assert.NotEmpty(t, msg)
		assert.NotContains(t, msg, "replicate")
		assert.NotContains(t, msg, "http")
	}
}
