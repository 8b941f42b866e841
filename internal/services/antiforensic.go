package services

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/deploymenttheory/go-cryptodisk/internal/helpers"
	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
)

// diffuse replaces each digest-sized chunk j of buf with H(be32(j) || chunk).
// The final chunk may be short and is truncated.
func diffuse(h hash.Hash, buf []byte) {
	size := h.Size()
	var index [4]byte
	sum := make([]byte, 0, size)
	defer func() { helpers.Wipe(sum[:cap(sum)]) }()

	for j, off := 0, 0; off < len(buf); j, off = j+1, off+size {
		end := min(off+size, len(buf))
		binary.BigEndian.PutUint32(index[:], uint32(j))
		h.Reset()
		h.Write(index[:])
		h.Write(buf[off:end])
		sum = h.Sum(sum[:0])
		copy(buf[off:end], sum)
	}
}

// AFMerge reassembles a key from its anti-forensic split
func AFMerge(h interfaces.HashAlgorithm, split []byte, keySize, stripes int) ([]byte, error) {
	if keySize <= 0 || stripes <= 0 {
		return nil, fmt.Errorf("invalid anti-forensic geometry: key size %d, stripes %d", keySize, stripes)
	}
	if len(split) != keySize*stripes {
		return nil, fmt.Errorf("anti-forensic material is %d bytes, expected %d", len(split), keySize*stripes)
	}

	acc := make([]byte, keySize)
	defer helpers.Wipe(acc)

	hs := h.New()
	for i := 0; i < stripes-1; i++ {
		subtle.XORBytes(acc, acc, split[i*keySize:(i+1)*keySize])
		diffuse(hs, acc)
	}

	key := make([]byte, keySize)
	subtle.XORBytes(key, acc, split[(stripes-1)*keySize:])
	return key, nil
}
