package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"github.com/aead/serpent"
	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/twofish"
)

// blockCipher describes a registered block cipher
type blockCipher struct {
	name      string
	blockSize int
	newFunc   func(key []byte) (cipher.Block, error)
}

func (c *blockCipher) Name() string { return c.name }

func (c *blockCipher) BlockSize() int { return c.blockSize }

func (c *blockCipher) NewCipher(key []byte) (cipher.Block, error) {
	block, err := c.newFunc(key)
	if err != nil {
		return nil, fmt.Errorf("failed to key %s with %d-byte key: %w", c.name, len(key), err)
	}
	return block, nil
}

// hashFunction describes a registered hash
type hashFunction struct {
	name    string
	size    int
	newFunc func() hash.Hash
}

func (h *hashFunction) Name() string { return h.name }

func (h *hashFunction) Size() int { return h.size }

func (h *hashFunction) New() hash.Hash { return h.newFunc() }

// CryptoService resolves cipher and hash names and provides key derivation
type CryptoService struct {
	ciphers map[string]*blockCipher
	hashes  map[string]*hashFunction
}

// NewCryptoService creates a crypto service with every supported algorithm registered
func NewCryptoService() *CryptoService {
	cs := &CryptoService{
		ciphers: make(map[string]*blockCipher),
		hashes:  make(map[string]*hashFunction),
	}

	cs.registerCipher("aes", aes.BlockSize, aes.NewCipher)
	cs.registerCipher("serpent", serpent.BlockSize, serpent.NewCipher)
	cs.registerCipher("twofish", twofish.BlockSize, func(key []byte) (cipher.Block, error) {
		return twofish.NewCipher(key)
	})
	cs.registerCipher("cast5", cast5.BlockSize, func(key []byte) (cipher.Block, error) {
		return cast5.NewCipher(key)
	})
	cs.registerCipher("blowfish", blowfish.BlockSize, func(key []byte) (cipher.Block, error) {
		return blowfish.NewCipher(key)
	})
	cs.registerCipher("des3_ede", des.BlockSize, des.NewTripleDESCipher)

	cs.registerHash("sha1", sha1.Size, sha1.New)
	cs.registerHash("sha224", sha256.Size224, sha256.New224)
	cs.registerHash("sha256", sha256.Size, sha256.New)
	cs.registerHash("sha384", sha512.Size384, sha512.New384)
	cs.registerHash("sha512", sha512.Size, sha512.New)
	cs.registerHash("ripemd160", ripemd160.Size, ripemd160.New)
	cs.registerHash("md5", md5.Size, md5.New)

	cs.alias("3des", "des3_ede")
	cs.alias("rmd160", "ripemd160")
	return cs
}

func (cs *CryptoService) registerCipher(name string, blockSize int, newFunc func([]byte) (cipher.Block, error)) {
	cs.ciphers[name] = &blockCipher{name: name, blockSize: blockSize, newFunc: newFunc}
}

func (cs *CryptoService) registerHash(name string, size int, newFunc func() hash.Hash) {
	cs.hashes[name] = &hashFunction{name: name, size: size, newFunc: newFunc}
}

func (cs *CryptoService) alias(alias, name string) {
	if c, ok := cs.ciphers[name]; ok {
		cs.ciphers[alias] = c
	}
	if h, ok := cs.hashes[name]; ok {
		cs.hashes[alias] = h
	}
}

// LookupCipher resolves a cipher name
func (cs *CryptoService) LookupCipher(name string) (interfaces.CipherAlgorithm, error) {
	if c, ok := cs.ciphers[strings.ToLower(name)]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: cipher %q", types.ErrUnknownAlgorithm, name)
}

// LookupHash resolves a hash name
func (cs *CryptoService) LookupHash(name string) (interfaces.HashAlgorithm, error) {
	if h, ok := cs.hashes[strings.ToLower(name)]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: hash %q", types.ErrUnknownAlgorithm, name)
}

// Pbkdf2 derives a key from a password using PBKDF2 with the given hash
func (cs *CryptoService) Pbkdf2(h interfaces.HashAlgorithm, password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, h.New)
}

// Hmac computes HMAC over the concatenation of data
func (cs *CryptoService) Hmac(h interfaces.HashAlgorithm, key []byte, data ...[]byte) []byte {
	mac := hmac.New(h.New, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil)
}

// Digest hashes the concatenation of data
func (cs *CryptoService) Digest(h interfaces.HashAlgorithm, data ...[]byte) []byte {
	state := h.New()
	for _, d := range data {
		state.Write(d)
	}
	return state.Sum(nil)
}

var _ interfaces.CryptoProvider = (*CryptoService)(nil)
