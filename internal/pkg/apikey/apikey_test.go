package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_IsPrefixedAndValid(t *testing.T) {
	k := New()
	assert.True(t, strings.HasPrefix(k, Prefix))
	assert.True(t, Valid(k))
	assert.NotEqual(t, k, New())
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"bz_3f1c2a34-9b7d-4e21-a9c3-0d5e6f7a8b9c":   true,
		"3f1c2a34-9b7d-4e21-a9c3-0d5e6f7a8b9c":      true,
		"bz_3F1C2A34-9B7D-4E21-A9C3-0D5E6F7A8B9C":   true,
		"bz_3f1c2a34-9b7d-1e21-a9c3-0d5e6f7a8b9c":   false, // v1
		"bz_3f1c2a34-9b7d-4e21-c9c3-0d5e6f7a8b9c":   false, // wrong variant
		"xx_3f1c2a34-9b7d-4e21-a9c3-0d5e6f7a8b9c":   false,
		"bz_{3f1c2a34-9b7d-4e21-a9c3-0d5e6f7a8b9c}": false,
		"":          false,
		"bz_":       false,
		"not-a-key": false,
	}
	for in, want := range cases {
		assert.Equal(t, want, Valid(in), in)
	}
}
