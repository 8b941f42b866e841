package types

import "fmt"

// ContainerFormat names an encrypted container format.
type ContainerFormat string

const (
	FormatLUKS ContainerFormat = "luks"
	FormatGELI ContainerFormat = "geli"
)

// ParseContainerFormat resolves a format name.
func ParseContainerFormat(name string) (ContainerFormat, error) {
	switch ContainerFormat(name) {
	case FormatLUKS, FormatGELI:
		return ContainerFormat(name), nil
	}
	return "", fmt.Errorf("unknown container format %q", name)
}

// RecoveredKey is key material recovered from a keyslot.
type RecoveredKey struct {
	Slot      int
	MasterKey []byte

	// Per-sector IV key, GELI only.
	IVKey []byte
}

// Wipe zeroes the key material.
func (k *RecoveredKey) Wipe() {
	if k == nil {
		return
	}
	clear(k.MasterKey)
	clear(k.IVKey)
}

// ContainerSummary is the passphrase-free description of a container header.
type ContainerSummary struct {
	Format        ContainerFormat `json:"format" yaml:"format"`
	Version       uint32          `json:"version" yaml:"version"`
	Cipher        string          `json:"cipher" yaml:"cipher"`
	Mode          string          `json:"mode" yaml:"mode"`
	Hash          string          `json:"hash" yaml:"hash"`
	KeyBits       int             `json:"key_bits" yaml:"key_bits"`
	UUID          string          `json:"uuid" yaml:"uuid"`
	EnabledSlots  []int           `json:"enabled_slots" yaml:"enabled_slots"`
	PayloadOffset uint64          `json:"payload_offset" yaml:"payload_offset"`
	SectorSize    uint32          `json:"sector_size" yaml:"sector_size"`
}
