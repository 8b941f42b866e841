package geli

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/google/uuid"
)

// checksumOffset is where md_hash starts
const checksumOffset = types.GELIMetadataSize - md5.Size

// ReadMetadata reads and parses the GELI metadata in the last sector of dev
func ReadMetadata(dev interfaces.BlockDevice, provider interfaces.CryptoProvider) (*types.GELIMetadata, error) {
	if dev.Size() < types.GELIDeviceSectorSize {
		return nil, fmt.Errorf("%w: device %s is %d bytes, GELI metadata needs %d",
			types.ErrOutOfRange, dev.Name(), dev.Size(), types.GELIDeviceSectorSize)
	}

	data := make([]byte, types.GELIDeviceSectorSize)
	if _, err := dev.ReadAt(data, dev.Size()-types.GELIDeviceSectorSize); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: failed to read GELI metadata from %s: %v", types.ErrIO, dev.Name(), err)
	}

	return ParseMetadata(data, provider)
}

// ParseMetadata parses raw bytes into GELIMetadata and resolves its cipher
func ParseMetadata(data []byte, provider interfaces.CryptoProvider) (*types.GELIMetadata, error) {
	if len(data) < types.GELIMetadataSize {
		return nil, fmt.Errorf("%w: insufficient data for GELI metadata: need %d bytes, got %d",
			types.ErrOutOfRange, types.GELIMetadataSize, len(data))
	}
	magic := data[:types.GELIMagicLength]
	if i := bytes.IndexByte(magic, 0); i < 0 || string(magic[:i]) != types.GELIMagic {
		return nil, types.ErrNotThisFormat
	}

	endian := binary.LittleEndian
	md := &types.GELIMetadata{}
	offset := types.GELIMagicLength

	md.Version = endian.Uint32(data[offset : offset+4])
	offset += 4
	md.Flags = endian.Uint32(data[offset : offset+4])
	offset += 4
	md.EncryptionAlgorithm = endian.Uint16(data[offset : offset+2])
	offset += 2
	md.KeyLength = endian.Uint16(data[offset : offset+2])
	offset += 2
	md.AuthAlgorithm = endian.Uint16(data[offset : offset+2])
	offset += 2
	md.ProviderSize = endian.Uint64(data[offset : offset+8])
	offset += 8
	md.SectorSize = endian.Uint32(data[offset : offset+4])
	offset += 4
	md.KeysUsed = data[offset]
	offset++
	md.Iterations = int32(endian.Uint32(data[offset : offset+4]))
	offset += 4

	copy(md.Salt[:], data[offset:offset+types.GELISaltLength])
	offset += types.GELISaltLength

	for i := range md.Keyslots {
		md.Keyslots[i].Enabled = md.KeysUsed&(1<<i) != 0
		copy(md.Keyslots[i].Encrypted[:], data[offset:offset+types.GELIMasterKeyLength])
		offset += types.GELIMasterKeyLength
	}

	copy(md.Checksum[:], data[offset:offset+md5.Size])

	sum := md5.Sum(data[:checksumOffset])
	if !bytes.Equal(sum[:], md.Checksum[:]) {
		return nil, fmt.Errorf("%w: GELI metadata checksum mismatch", types.ErrMalformed)
	}

	if err := validateMetadata(md, provider); err != nil {
		return nil, err
	}

	id, err := deriveUUID(md.Salt[:], provider)
	if err != nil {
		return nil, err
	}
	md.UUID = id
	return md, nil
}

func validateMetadata(md *types.GELIMetadata, provider interfaces.CryptoProvider) error {
	if md.Version < types.GELIMinVersion || md.Version > types.GELIMaxVersion {
		return fmt.Errorf("%w: unsupported GELI version %d", types.ErrMalformed, md.Version)
	}
	if md.Flags&types.GELIFlagAuth != 0 {
		return fmt.Errorf("%w: GELI data authentication is not supported", types.ErrMalformed)
	}
	if md.SectorSize == 0 || md.SectorSize&(md.SectorSize-1) != 0 {
		return fmt.Errorf("%w: sector size %d is not a power of two", types.ErrMalformed, md.SectorSize)
	}
	if md.SectorSize < types.GELIDeviceSectorSize {
		return fmt.Errorf("%w: sector size %d is smaller than %d", types.ErrMalformed, md.SectorSize, types.GELIDeviceSectorSize)
	}
	if md.KeyLength == 0 || md.KeyLength%8 != 0 || md.KeyLength > types.GELIMaxKeyBits {
		return fmt.Errorf("%w: key length %d bits out of range", types.ErrMalformed, md.KeyLength)
	}

	name, ok := types.GELIAlgorithmNames[md.EncryptionAlgorithm]
	if !ok {
		return fmt.Errorf("%w: %w: GELI algorithm %#x", types.ErrMalformed, types.ErrUnknownAlgorithm, md.EncryptionAlgorithm)
	}
	if _, err := provider.LookupCipher(name); err != nil {
		return fmt.Errorf("%w: %w", types.ErrMalformed, err)
	}
	md.CipherName = name

	switch {
	case md.EncryptionAlgorithm == types.GELIAlgoAESXTS:
		md.Mode = types.CipherModeXTSBytecount64
	case md.Version >= types.GELIRekeyVersion:
		md.Mode = types.CipherModeRekeyedBytecount64Hash
	default:
		md.Mode = types.CipherModeBytecount64Hash
	}

	for _, name := range []string{"sha256", "sha512"} {
		if _, err := provider.LookupHash(name); err != nil {
			return fmt.Errorf("%w: %w", types.ErrMalformed, err)
		}
	}
	return nil
}

// deriveUUID names the provider by HMAC-SHA256(salt, "uuid")
func deriveUUID(salt []byte, provider interfaces.CryptoProvider) (string, error) {
	sha, err := provider.LookupHash("sha256")
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrMalformed, err)
	}
	mac := hmac.New(sha.New, salt)
	mac.Write([]byte("uuid"))
	id, err := uuid.FromBytes(mac.Sum(nil)[:16])
	if err != nil {
		return "", fmt.Errorf("failed to derive GELI uuid: %w", err)
	}
	return id.String(), nil
}
