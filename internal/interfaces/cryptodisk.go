// File: internal/interfaces/cryptodisk.go
package interfaces

import "github.com/deploymenttheory/go-cryptodisk/internal/types"

// SectorTransformer encrypts and decrypts whole sectors in place
type SectorTransformer interface {
	// DecryptSectors decrypts buf, whose first sector is numbered sector
	DecryptSectors(buf []byte, sector uint64) error

	// EncryptSectors encrypts buf, whose first sector is numbered sector
	EncryptSectors(buf []byte, sector uint64) error

	// LogSectorSize returns log2 of the sector size
	LogSectorSize() uint

	// Mode returns the cipher mode
	Mode() types.CipherMode

	// Wipe discards all key material
	Wipe()
}

// UnlockedVolume is a container whose master key has been recovered
type UnlockedVolume struct {
	// Keyslot that verified
	Slot int

	// Transformer keyed with the master key
	Transformer SectorTransformer

	// Byte offset of sector 0 on the backing device
	PayloadOffset uint64

	// Number of decrypted sectors
	TotalSectors uint64

	// Description such as "aes-cbc-essiv:sha256"
	Cipher string
}

// ContainerHeader is a parsed header of a recognised container
type ContainerHeader interface {
	// Format returns the container format
	Format() types.ContainerFormat

	// UUID returns the container UUID, empty when none is recorded
	UUID() string

	// Summary describes the header without touching key material
	Summary() types.ContainerSummary

	// Unlock recovers the master key and returns a keyed volume
	Unlock(dev BlockDevice, passphrase []byte) (*UnlockedVolume, error)
}

// ContainerProbe recognises one container format on a device
type ContainerProbe interface {
	// Format returns the format this probe recognises
	Format() types.ContainerFormat

	// Probe parses the header, returning types.ErrNotThisFormat when the magic does not match
	Probe(dev BlockDevice) (ContainerHeader, error)
}

// PassphraseReader obtains passphrases interactively
type PassphraseReader interface {
	// ReadPassphrase displays prompt and returns the entered passphrase
	ReadPassphrase(prompt string) ([]byte, error)
}
