package recovery

import (
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-cryptodisk/internal/helpers"
	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/parsers/luks"
	"github.com/deploymenttheory/go-cryptodisk/internal/services"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/sirupsen/logrus"
)

// LUKSFormat recognises LUKS1 containers
type LUKSFormat struct {
	base
}

var _ interfaces.ContainerProbe = (*LUKSFormat)(nil)

// NewLUKSFormat creates a LUKS1 probe
func NewLUKSFormat(crypto *services.CryptoService, options Options, log *logrus.Entry) *LUKSFormat {
	return &LUKSFormat{base: newBase(crypto, options, log)}
}

// Format returns types.FormatLUKS
func (f *LUKSFormat) Format() types.ContainerFormat {
	return types.FormatLUKS
}

// Probe parses the LUKS1 header of dev
func (f *LUKSFormat) Probe(dev interfaces.BlockDevice) (interfaces.ContainerHeader, error) {
	header, err := luks.ReadHeader(dev, f.crypto)
	if err != nil {
		return nil, err
	}
	return &LUKSContainer{header: header, base: f.base}, nil
}

// LUKSContainer is a parsed LUKS1 header bound to the crypto provider
type LUKSContainer struct {
	base
	header *types.LUKSHeader
}

var _ interfaces.ContainerHeader = (*LUKSContainer)(nil)

// Header returns the decoded header
func (c *LUKSContainer) Header() *types.LUKSHeader {
	return c.header
}

func (c *LUKSContainer) Format() types.ContainerFormat {
	return types.FormatLUKS
}

func (c *LUKSContainer) UUID() string {
	return c.header.UUID
}

func (c *LUKSContainer) Summary() types.ContainerSummary {
	return types.ContainerSummary{
		Format:        types.FormatLUKS,
		Version:       uint32(c.header.Version),
		Cipher:        c.header.CipherName,
		Mode:          c.header.CipherMode,
		Hash:          c.header.HashSpec,
		KeyBits:       int(c.header.KeyBytes) * 8,
		UUID:          c.header.UUID,
		EnabledSlots:  c.header.EnabledKeyslots(),
		PayloadOffset: uint64(c.header.PayloadOffset) * types.LUKSSectorSize,
		SectorSize:    types.LUKSSectorSize,
	}
}

// newSectorCipher builds an unkeyed cipher of the header's mode
func (c *LUKSContainer) newSectorCipher() (*services.SectorCipher, error) {
	alg, err := c.crypto.LookupCipher(c.header.CipherName)
	if err != nil {
		return nil, err
	}
	opts := services.SectorCipherOptions{
		Algorithm:     alg,
		Mode:          c.header.Mode.Mode,
		LogSectorSize: types.LUKSLogSectorSize,
	}
	if c.header.Mode.IVHash != "" {
		if opts.IVHash, err = c.crypto.LookupHash(c.header.Mode.IVHash); err != nil {
			return nil, err
		}
	}
	return services.NewSectorCipher(opts)
}

// Recover tries every enabled keyslot in table order
func (c *LUKSContainer) Recover(dev interfaces.BlockDevice, passphrase []byte) (*types.RecoveredKey, error) {
	hash, err := c.crypto.LookupHash(c.header.HashSpec)
	if err != nil {
		return nil, err
	}

	for i, slot := range c.header.Keyslots {
		if !slot.Enabled() {
			continue
		}
		log := c.log.WithFields(logrus.Fields{"format": types.FormatLUKS, "disk": dev.Name(), "slot": i})
		if c.tooExpensive(slot.Iterations) {
			log.Warnf("Skipping keyslot with %d iterations", slot.Iterations)
			continue
		}

		log.Debug("Trying keyslot")
		masterKey, err := c.trySlot(dev, hash, slot, passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to try keyslot %d: %w", i, err)
		}
		if masterKey != nil {
			return &types.RecoveredKey{Slot: i, MasterKey: masterKey}, nil
		}
	}
	return nil, types.ErrAccessDenied
}

// trySlot returns the master key when the slot verifies, nil when it does not
func (c *LUKSContainer) trySlot(dev interfaces.BlockDevice, hash interfaces.HashAlgorithm, slot types.LUKSKeyslot, passphrase []byte) ([]byte, error) {
	keyBytes := int(c.header.KeyBytes)
	length := keyBytes * int(slot.Stripes)
	sectors := (length + types.LUKSSectorSize - 1) / types.LUKSSectorSize
	offset := int64(slot.KeyMaterialOffset) * types.LUKSSectorSize
	readLen := int64(sectors) * types.LUKSSectorSize

	if offset+readLen > dev.Size() {
		return nil, fmt.Errorf("%w: key material at %d+%d exceeds device size %d",
			types.ErrOutOfRange, offset, readLen, dev.Size())
	}

	derived := c.crypto.Pbkdf2(hash, passphrase, slot.Salt[:], int(slot.Iterations), keyBytes)
	defer helpers.Wipe(derived)

	material := make([]byte, readLen)
	defer helpers.Wipe(material)
	if _, err := dev.ReadAt(material, offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: failed to read key material: %v", types.ErrIO, err)
	}

	sc, err := c.newSectorCipher()
	if err != nil {
		return nil, err
	}
	defer sc.Wipe()
	if err := sc.SetKey(derived); err != nil {
		return nil, err
	}
	if err := sc.DecryptSectors(material, 0); err != nil {
		return nil, err
	}

	candidate, err := services.AFMerge(hash, material[:length], keyBytes, int(slot.Stripes))
	if err != nil {
		return nil, err
	}

	digest := c.crypto.Pbkdf2(hash, candidate, c.header.MKDigestSalt[:], int(c.header.MKDigestIterations), types.LUKSDigestSize)
	defer helpers.Wipe(digest)

	if subtle.ConstantTimeCompare(digest, c.header.MKDigest[:]) != 1 {
		helpers.Wipe(candidate)
		return nil, nil
	}
	return candidate, nil
}

// Unlock recovers the master key and returns a keyed payload transformer
func (c *LUKSContainer) Unlock(dev interfaces.BlockDevice, passphrase []byte) (*interfaces.UnlockedVolume, error) {
	payloadOffset := uint64(c.header.PayloadOffset) * types.LUKSSectorSize
	if payloadOffset > uint64(dev.Size()) {
		return nil, fmt.Errorf("%w: payload offset %d exceeds device size %d", types.ErrOutOfRange, payloadOffset, dev.Size())
	}

	key, err := c.Recover(dev, passphrase)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	sc, err := c.newSectorCipher()
	if err != nil {
		return nil, err
	}
	if err := sc.SetKey(key.MasterKey); err != nil {
		return nil, err
	}

	return &interfaces.UnlockedVolume{
		Slot:          key.Slot,
		Transformer:   sc,
		PayloadOffset: payloadOffset,
		TotalSectors:  (uint64(dev.Size()) - payloadOffset) >> types.LUKSLogSectorSize,
		Cipher:        c.header.CipherName + "-" + c.header.CipherMode,
	}, nil
}
