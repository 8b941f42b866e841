package luks

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

// ReadHeader reads and parses the LUKS1 header at the start of dev
func ReadHeader(dev interfaces.BlockDevice, provider interfaces.CryptoProvider) (*types.LUKSHeader, error) {
	if dev.Size() < types.LUKSHeaderSize {
		return nil, fmt.Errorf("%w: device %s is %d bytes, LUKS header needs %d",
			types.ErrOutOfRange, dev.Name(), dev.Size(), types.LUKSHeaderSize)
	}

	data := make([]byte, types.LUKSHeaderSize)
	if _, err := dev.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: failed to read LUKS header from %s: %v", types.ErrIO, dev.Name(), err)
	}

	return ParseHeader(data, provider)
}

// ParseHeader parses raw bytes into a LUKSHeader and resolves its algorithms
func ParseHeader(data []byte, provider interfaces.CryptoProvider) (*types.LUKSHeader, error) {
	if len(data) < types.LUKSHeaderSize {
		return nil, fmt.Errorf("%w: insufficient data for LUKS header: need %d bytes, got %d",
			types.ErrOutOfRange, types.LUKSHeaderSize, len(data))
	}
	if string(data[:types.LUKSMagicLength]) != types.LUKSMagic {
		return nil, types.ErrNotThisFormat
	}

	endian := binary.BigEndian
	header := &types.LUKSHeader{}
	offset := types.LUKSMagicLength

	header.Version = endian.Uint16(data[offset : offset+2])
	offset += 2
	if header.Version != types.LUKSVersion1 {
		return nil, fmt.Errorf("%w: unsupported LUKS version %d", types.ErrMalformed, header.Version)
	}

	header.CipherName = fixedString(data[offset : offset+types.LUKSNameLength])
	offset += types.LUKSNameLength
	header.CipherMode = fixedString(data[offset : offset+types.LUKSNameLength])
	offset += types.LUKSNameLength
	header.HashSpec = fixedString(data[offset : offset+types.LUKSNameLength])
	offset += types.LUKSNameLength

	header.PayloadOffset = endian.Uint32(data[offset : offset+4])
	offset += 4
	header.KeyBytes = endian.Uint32(data[offset : offset+4])
	offset += 4

	copy(header.MKDigest[:], data[offset:offset+types.LUKSDigestSize])
	offset += types.LUKSDigestSize
	copy(header.MKDigestSalt[:], data[offset:offset+types.LUKSSaltSize])
	offset += types.LUKSSaltSize
	header.MKDigestIterations = endian.Uint32(data[offset : offset+4])
	offset += 4

	header.UUID = fixedString(data[offset : offset+types.LUKSUUIDLength])
	offset += types.LUKSUUIDLength

	for i := range header.Keyslots {
		slot, err := parseKeyslot(data[offset:offset+types.LUKSKeyslotSize], endian)
		if err != nil {
			return nil, fmt.Errorf("failed to parse keyslot %d: %w", i, err)
		}
		header.Keyslots[i] = slot
		offset += types.LUKSKeyslotSize
	}

	if err := validateHeader(header, provider); err != nil {
		return nil, err
	}
	return header, nil
}

// parseKeyslot decodes one 48-byte keyslot descriptor
func parseKeyslot(data []byte, endian binary.ByteOrder) (types.LUKSKeyslot, error) {
	if endian.Uint32(data[0:4]) != types.LUKSKeyEnabled {
		return types.LUKSKeyslot{State: types.LUKSKeyslotDisabled}, nil
	}

	slot := types.LUKSKeyslot{State: types.LUKSKeyslotEnabled}
	slot.Iterations = endian.Uint32(data[4:8])
	copy(slot.Salt[:], data[8:8+types.LUKSSaltSize])
	slot.KeyMaterialOffset = endian.Uint32(data[40:44])
	slot.Stripes = endian.Uint32(data[44:48])

	if slot.Iterations == 0 {
		return slot, fmt.Errorf("%w: enabled keyslot has zero iterations", types.ErrMalformed)
	}
	if slot.Stripes == 0 {
		return slot, fmt.Errorf("%w: enabled keyslot has zero stripes", types.ErrMalformed)
	}
	return slot, nil
}

func validateHeader(header *types.LUKSHeader, provider interfaces.CryptoProvider) error {
	if header.KeyBytes == 0 || header.KeyBytes > types.LUKSMaxKeyBytes {
		return fmt.Errorf("%w: key size %d bytes out of range", types.ErrMalformed, header.KeyBytes)
	}
	if header.MKDigestIterations == 0 {
		return fmt.Errorf("%w: master key digest has zero iterations", types.ErrMalformed)
	}

	if _, err := provider.LookupCipher(header.CipherName); err != nil {
		return fmt.Errorf("%w: %w", types.ErrMalformed, err)
	}
	if _, err := provider.LookupHash(header.HashSpec); err != nil {
		return fmt.Errorf("%w: %w", types.ErrMalformed, err)
	}

	mode, err := ParseCipherMode(header.CipherMode)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrMalformed, err)
	}
	if mode.IVHash != "" {
		if _, err := provider.LookupHash(mode.IVHash); err != nil {
			return fmt.Errorf("%w: ESSIV %w", types.ErrMalformed, err)
		}
	}
	header.Mode = mode
	return nil
}

// fixedString returns the bytes of a NUL-padded field up to the first NUL
func fixedString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
