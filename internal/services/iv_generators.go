package services

import (
	"crypto/cipher"
	"encoding/binary"
	"hash"

	"github.com/deploymenttheory/go-cryptodisk/internal/helpers"
)

// IVGenerator fills the IV for a sector
type IVGenerator interface {
	Calculate(iv []byte, sector uint64)
}

// PlainIVGen yields le32(sector) zero-extended
type PlainIVGen struct{}

// Plain64IVGen yields le64(sector) zero-extended
type Plain64IVGen struct{}

// ESSIVGen yields E_salt(le64(sector)) where the salt is hash(key)
type ESSIVGen struct {
	cipher cipher.Block
}

// Bytecount64HashIVGen yields hash(prefix || le64(sector << logSectorSize))
type Bytecount64HashIVGen struct {
	hash          hash.Hash
	prefix        []byte
	logSectorSize uint
}

// Calculate generates a plain IV
func (p *PlainIVGen) Calculate(iv []byte, sector uint64) {
	clear(iv)
	var sectorBytes [4]byte
	binary.LittleEndian.PutUint32(sectorBytes[:], uint32(sector&0xffffffff))
	copy(iv, sectorBytes[:])
}

// Calculate generates a plain64 IV
func (p *Plain64IVGen) Calculate(iv []byte, sector uint64) {
	clear(iv)
	var sectorBytes [8]byte
	binary.LittleEndian.PutUint64(sectorBytes[:], sector)
	copy(iv, sectorBytes[:])
}

// Calculate generates an ESSIV IV
func (e *ESSIVGen) Calculate(iv []byte, sector uint64) {
	data := make([]byte, e.cipher.BlockSize())
	var sectorBytes [8]byte
	binary.LittleEndian.PutUint64(sectorBytes[:], sector)
	copy(data, sectorBytes[:])
	e.cipher.Encrypt(data, data)
	clear(iv)
	copy(iv, data)
}

// Calculate generates a bytecount64 hash IV
func (b *Bytecount64HashIVGen) Calculate(iv []byte, sector uint64) {
	var offset [8]byte
	binary.LittleEndian.PutUint64(offset[:], sector<<b.logSectorSize)
	b.hash.Reset()
	b.hash.Write(b.prefix)
	b.hash.Write(offset[:])
	sum := b.hash.Sum(nil)
	clear(iv)
	copy(iv, sum)
	helpers.Wipe(sum)
}
