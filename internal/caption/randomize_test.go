package caption

import (
	"context"
	"testing"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomizePicksFromPool(t *testing.T) {
	r, err := NewRandomizer(do.New())
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		assert.Contains(t, r.All(), r.Randomize(context.Background()))
	}
}

func TestAllReturnsCopy(t *testing.T) {
	r, err := NewRandomizer(do.New())
	require.NoError(t, err)

	all := r.All()
	require.NotEmpty(t, all)
	all[0] = "mutated"
	assert.NotEqual(t, "mutated", r.All()[0])
}
