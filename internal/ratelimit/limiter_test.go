package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBurstThenRefusal(t *testing.T) {
	p := NewPerVisitor(60, 2)

	assert.True(t, p.Allow("v1"))
	assert.True(t, p.Allow("v1"))
	assert.False(t, p.Allow("v1"), "burst exhausted")
}

func TestVisitorsAreIndependent(t *testing.T) {
	p := NewPerVisitor(60, 1)

	assert.True(t, p.Allow("v1"))
	assert.False(t, p.Allow("v1"))
	assert.True(t, p.Allow("v2"), "one visitor's burst never throttles another")
}
