package cryptodisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDMatches(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab", "6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab", true},
		{"6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab", "6D2A1C3E8F4B4A5D9E7F0123456789AB", true},
		{"6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab", "6d2a1c3e-8f4b-4a5d-9e7f-0123456789ac", false},
		{"not-a-uuid", "NOTAUUID", true},
		{"not-a-uuid", "other", false},
		{"", "", false},
		{"6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, UUIDMatches(tt.a, tt.b))
		})
	}

	assert.Equal(t, "cryptouuid/abc", UUIDName("abc"))
}
