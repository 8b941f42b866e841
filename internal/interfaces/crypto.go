// File: internal/interfaces/crypto.go
package interfaces

import (
	"crypto/cipher"
	"hash"
)

// CipherAlgorithm is a named block cipher
type CipherAlgorithm interface {
	// Name returns the canonical lower-case cipher name
	Name() string

	// BlockSize returns the cipher block size in bytes
	BlockSize() int

	// NewCipher returns a block cipher keyed with key
	NewCipher(key []byte) (cipher.Block, error)
}

// HashAlgorithm is a named hash function
type HashAlgorithm interface {
	// Name returns the canonical lower-case hash name
	Name() string

	// Size returns the digest size in bytes
	Size() int

	// New returns a fresh hash state
	New() hash.Hash
}

// CryptoProvider resolves cipher and hash names
type CryptoProvider interface {
	// LookupCipher resolves a cipher name, case-insensitively
	LookupCipher(name string) (CipherAlgorithm, error)

	// LookupHash resolves a hash name, case-insensitively
	LookupHash(name string) (HashAlgorithm, error)
}
