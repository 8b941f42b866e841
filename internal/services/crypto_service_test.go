package services

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/deploymenttheory/go-cryptodisk/internal/testutil"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6070 PBKDF2-HMAC-SHA1 test vectors
var pbkdf2Vectors = []struct {
	name       string
	password   string
	salt       string
	iterations int
	keyLen     int
	expected   string
}{
	{"one iteration", "password", "salt", 1, 20, "0c60c80f961f0e71f3a9b524af6012062fe037a6"},
	{"two iterations", "password", "salt", 2, 20, "ea6c014dc72d6f8ccd1ed92ace1d41f0d8de8957"},
	{"4096 iterations", "password", "salt", 4096, 20, "4b007901b765489abead49d926f721d065a429c1"},
	{"long password and salt", "passwordPASSWORDpassword", "saltSALTsaltSALTsaltSALTsaltSALTsalt", 4096, 25,
		"3d2eec4fe41c849b80c8d83662c0e44a8b291a964cf2f07038"},
}

func TestPbkdf2(t *testing.T) {
	cs := NewCryptoService()
	sha, err := cs.LookupHash("sha1")
	require.NoError(t, err)

	for _, tt := range pbkdf2Vectors {
		t.Run(tt.name, func(t *testing.T) {
			got := cs.Pbkdf2(sha, []byte(tt.password), []byte(tt.salt), tt.iterations, tt.keyLen)
			assert.Equal(t, tt.expected, hex.EncodeToString(got))
		})
	}
}

func TestReferencePbkdf2MatchesVectors(t *testing.T) {
	for _, tt := range pbkdf2Vectors {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.PBKDF2(sha1.New, []byte(tt.password), []byte(tt.salt), tt.iterations, tt.keyLen)
			assert.Equal(t, tt.expected, hex.EncodeToString(got))
		})
	}
}

func TestLookupCipher(t *testing.T) {
	cs := NewCryptoService()

	tests := []struct {
		name      string
		input     string
		canonical string
		blockSize int
	}{
		{"aes", "aes", "aes", 16},
		{"upper case", "AES", "aes", 16},
		{"serpent", "serpent", "serpent", 16},
		{"twofish", "twofish", "twofish", 16},
		{"cast5", "cast5", "cast5", 8},
		{"blowfish", "blowfish", "blowfish", 8},
		{"triple des alias", "3des", "des3_ede", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := cs.LookupCipher(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.canonical, c.Name())
			assert.Equal(t, tt.blockSize, c.BlockSize())
		})
	}
}

func TestLookupUnknownAlgorithm(t *testing.T) {
	cs := NewCryptoService()

	_, err := cs.LookupCipher("camellia")
	assert.ErrorIs(t, err, types.ErrUnknownAlgorithm)

	_, err = cs.LookupHash("whirlpool")
	assert.ErrorIs(t, err, types.ErrUnknownAlgorithm)
}

func TestLookupHash(t *testing.T) {
	cs := NewCryptoService()

	tests := map[string]int{
		"sha1":      20,
		"sha256":    32,
		"SHA512":    64,
		"ripemd160": 20,
		"rmd160":    20,
	}
	for name, size := range tests {
		h, err := cs.LookupHash(name)
		require.NoError(t, err, name)
		assert.Equal(t, size, h.Size(), name)
		assert.Equal(t, size, h.New().Size(), name)
	}
}

func TestHmacConcatenatesInput(t *testing.T) {
	cs := NewCryptoService()
	sha, err := cs.LookupHash("sha512")
	require.NoError(t, err)

	split := cs.Hmac(sha, []byte("key"), []byte("ek"), []byte("ey"))
	joined := cs.Hmac(sha, []byte("key"), []byte("ekey"))
	assert.Equal(t, joined, split)
	assert.Len(t, joined, 64)
}
