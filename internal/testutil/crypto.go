// Package testutil builds encrypted container images for tests.
//
// Fixture crypto is implemented here from the primitives directly so that the
// production recovery path is checked against an independent encoder.
package testutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"

	"github.com/aead/serpent"
	"golang.org/x/crypto/twofish"
	"golang.org/x/crypto/xts"
)

// HashFunc returns the constructor for a fixture hash name
func HashFunc(name string) (func() hash.Hash, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return sha1.New, nil
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	}
	return nil, fmt.Errorf("testutil: unsupported hash %q", name)
}

// CipherFunc returns the constructor for a fixture cipher name
func CipherFunc(name string) (func([]byte) (cipher.Block, error), error) {
	switch strings.ToLower(name) {
	case "aes":
		return aes.NewCipher, nil
	case "serpent":
		return serpent.NewCipher, nil
	case "twofish":
		return func(key []byte) (cipher.Block, error) { return twofish.NewCipher(key) }, nil
	}
	return nil, fmt.Errorf("testutil: unsupported cipher %q", name)
}

// PBKDF2 is a reference PBKDF2 per RFC 2898
func PBKDF2(newHash func() hash.Hash, password, salt []byte, iterations, keyLen int) []byte {
	hashLen := newHash().Size()
	result := make([]byte, 0, keyLen)
	blockCount := (keyLen + hashLen - 1) / hashLen

	for block := 1; block <= blockCount; block++ {
		h := hmac.New(newHash, password)
		h.Write(salt)

		// Write block number (4 bytes, big-endian)
		var blockBytes [4]byte
		binary.BigEndian.PutUint32(blockBytes[:], uint32(block))
		h.Write(blockBytes[:])

		u := h.Sum(nil)
		t := append([]byte(nil), u...)
		for i := 1; i < iterations; i++ {
			h = hmac.New(newHash, password)
			h.Write(u)
			u = h.Sum(nil)
			for j := range t {
				t[j] ^= u[j]
			}
		}
		result = append(result, t...)
	}
	return result[:keyLen]
}

// HMAC computes HMAC over the concatenation of data
func HMAC(newHash func() hash.Hash, key []byte, data ...[]byte) []byte {
	mac := hmac.New(newHash, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil)
}

// DeterministicBytes expands seed into n reproducible bytes
func DeterministicBytes(seed string, n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	var counter [8]byte
	for i := uint64(0); len(out) < n; i++ {
		binary.BigEndian.PutUint64(counter[:], i)
		h := sha256.New()
		h.Write([]byte(seed))
		h.Write(counter[:])
		out = h.Sum(out)
	}
	return out[:n]
}

// AFSplit splits key into stripes so that the cryptsetup merge recovers it.
// Random stripes are drawn from DeterministicBytes(seed).
func AFSplit(newHash func() hash.Hash, key []byte, stripes int, seed string) []byte {
	keySize := len(key)
	split := make([]byte, keySize*stripes)
	random := DeterministicBytes(seed, keySize*(stripes-1))
	copy(split, random)

	acc := make([]byte, keySize)
	for i := 0; i < stripes-1; i++ {
		for j := range acc {
			acc[j] ^= split[i*keySize+j]
		}
		acc = referenceDiffuse(newHash, acc)
	}
	last := split[(stripes-1)*keySize:]
	for j := range last {
		last[j] = key[j] ^ acc[j]
	}
	return split
}

func referenceDiffuse(newHash func() hash.Hash, src []byte) []byte {
	digestSize := newHash().Size()
	dst := make([]byte, 0, len(src))
	for i := 0; i*digestSize < len(src); i++ {
		end := min((i+1)*digestSize, len(src))
		h := newHash()
		var iv [4]byte
		binary.BigEndian.PutUint32(iv[:], uint32(i))
		h.Write(iv[:])
		h.Write(src[i*digestSize : end])
		dst = append(dst, h.Sum(nil)[:end-i*digestSize]...)
	}
	return dst
}

// EncryptLUKSSectors encrypts buf in place with a dm-crypt style mode string
// such as "cbc-essiv:sha256", starting at sector with 512-byte sectors.
func EncryptLUKSSectors(cipherName, mode string, key, buf []byte, sector uint64) error {
	newCipher, err := CipherFunc(cipherName)
	if err != nil {
		return err
	}
	if len(buf)%512 != 0 {
		return fmt.Errorf("testutil: buffer of %d bytes is not sector aligned", len(buf))
	}

	chain, ivSpec, _ := strings.Cut(strings.ToLower(mode), "-")
	if chain == "xts" {
		x, err := xts.NewCipher(newCipher, key)
		if err != nil {
			return err
		}
		for off := 0; off < len(buf); off += 512 {
			s := sector + uint64(off/512)
			if ivSpec == "plain" {
				s &= 0xffffffff
			}
			x.Encrypt(buf[off:off+512], buf[off:off+512], s)
		}
		return nil
	}

	block, err := newCipher(key)
	if err != nil {
		return err
	}
	bs := block.BlockSize()

	var essiv cipher.Block
	if hashName, ok := strings.CutPrefix(ivSpec, "essiv:"); ok {
		newHash, err := HashFunc(hashName)
		if err != nil {
			return err
		}
		h := newHash()
		h.Write(key)
		if essiv, err = newCipher(h.Sum(nil)); err != nil {
			return err
		}
	}

	for off := 0; off < len(buf); off += 512 {
		s := sector + uint64(off/512)
		chunk := buf[off : off+512]
		iv := make([]byte, bs)
		switch {
		case chain == "ecb":
			for i := 0; i < len(chunk); i += bs {
				block.Encrypt(chunk[i:i+bs], chunk[i:i+bs])
			}
			continue
		case ivSpec == "plain":
			binary.LittleEndian.PutUint32(iv, uint32(s))
		case ivSpec == "plain64":
			binary.LittleEndian.PutUint64(iv, s)
		case essiv != nil:
			binary.LittleEndian.PutUint64(iv, s)
			essiv.Encrypt(iv, iv)
		default:
			return fmt.Errorf("testutil: unsupported mode %q", mode)
		}
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(chunk, chunk)
	}
	return nil
}
