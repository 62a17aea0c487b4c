package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixes(t *testing.T) {
	assert.True(t, IsSession(NewSession()))
	assert.True(t, IsCapture(NewCapture()))
	assert.True(t, IsAsset(NewAsset()))

	assert.False(t, IsSession(NewCapture()))
	assert.False(t, IsCapture(NewAsset()))
	assert.False(t, IsAsset(NewSession()))
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewCapture()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
