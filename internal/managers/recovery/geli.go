package recovery

import (
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"github.com/deploymenttheory/go-cryptodisk/internal/helpers"
	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/parsers/geli"
	"github.com/deploymenttheory/go-cryptodisk/internal/services"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/sirupsen/logrus"
)

var (
	// labels for the encryption and verification keys derived from the user key
	geliEncryptionLabel   = []byte{0x01}
	geliVerificationLabel = []byte{0x00}
)

// GELIFormat recognises FreeBSD GELI providers
type GELIFormat struct {
	base
}

var _ interfaces.ContainerProbe = (*GELIFormat)(nil)

// NewGELIFormat creates a GELI probe
func NewGELIFormat(crypto *services.CryptoService, options Options, log *logrus.Entry) *GELIFormat {
	return &GELIFormat{base: newBase(crypto, options, log)}
}

// Format returns types.FormatGELI
func (f *GELIFormat) Format() types.ContainerFormat {
	return types.FormatGELI
}

// Probe parses the GELI metadata in the last sector of dev
func (f *GELIFormat) Probe(dev interfaces.BlockDevice) (interfaces.ContainerHeader, error) {
	md, err := geli.ReadMetadata(dev, f.crypto)
	if err != nil {
		return nil, err
	}
	return &GELIContainer{metadata: md, base: f.base}, nil
}

// GELIContainer is parsed GELI metadata bound to the crypto provider
type GELIContainer struct {
	base
	metadata *types.GELIMetadata
}

var _ interfaces.ContainerHeader = (*GELIContainer)(nil)

// Metadata returns the decoded metadata
func (c *GELIContainer) Metadata() *types.GELIMetadata {
	return c.metadata
}

func (c *GELIContainer) Format() types.ContainerFormat {
	return types.FormatGELI
}

func (c *GELIContainer) UUID() string {
	return c.metadata.UUID
}

func (c *GELIContainer) Summary() types.ContainerSummary {
	return types.ContainerSummary{
		Format:       types.FormatGELI,
		Version:      c.metadata.Version,
		Cipher:       c.metadata.CipherName,
		Mode:         c.metadata.Mode.String(),
		Hash:         "sha512",
		KeyBits:      int(c.metadata.KeyLength),
		UUID:         c.metadata.UUID,
		EnabledSlots: c.metadata.EnabledKeyslots(),
		SectorSize:   c.metadata.SectorSize,
	}
}

// userKey derives the GELI user key from a passphrase
func (c *GELIContainer) userKey(sha512 interfaces.HashAlgorithm, passphrase []byte) []byte {
	md := c.metadata
	if md.Iterations == 0 {
		return c.crypto.Hmac(sha512, nil, md.Salt[:], passphrase)
	}
	derived := c.crypto.Pbkdf2(sha512, passphrase, md.Salt[:], int(md.Iterations), types.GELIUserKeyLength)
	defer helpers.Wipe(derived)
	return c.crypto.Hmac(sha512, nil, derived)
}

// Recover tries both master key slots
func (c *GELIContainer) Recover(passphrase []byte) (*types.RecoveredKey, error) {
	md := c.metadata
	if md.Iterations < 0 {
		return nil, fmt.Errorf("%w: provider has no passphrase configured", types.ErrAccessDenied)
	}
	if c.tooExpensive(uint32(md.Iterations)) {
		c.log.WithField("format", types.FormatGELI).Warnf("Skipping provider with %d iterations", md.Iterations)
		return nil, types.ErrAccessDenied
	}

	sha512, err := c.crypto.LookupHash("sha512")
	if err != nil {
		return nil, err
	}
	alg, err := c.crypto.LookupCipher(md.CipherName)
	if err != nil {
		return nil, err
	}

	userKey := c.userKey(sha512, passphrase)
	defer helpers.Wipe(userKey)
	encKey := c.crypto.Hmac(sha512, userKey, geliEncryptionLabel)
	defer helpers.Wipe(encKey)
	verifyKey := c.crypto.Hmac(sha512, userKey, geliVerificationLabel)
	defer helpers.Wipe(verifyKey)

	block, err := alg.NewCipher(encKey[:md.KeyBytes()])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformed, err)
	}

	for i, slot := range md.Keyslots {
		if !slot.Enabled {
			continue
		}
		c.log.WithFields(logrus.Fields{"format": types.FormatGELI, "slot": i}).Debug("Trying keyslot")
		if key := c.trySlot(sha512, block, verifyKey, slot); key != nil {
			key.Slot = i
			return key, nil
		}
	}
	return nil, types.ErrAccessDenied
}

// trySlot decrypts one master key and checks its HMAC
func (c *GELIContainer) trySlot(sha512 interfaces.HashAlgorithm, block cipher.Block, verifyKey []byte, slot types.GELIKeyslot) *types.RecoveredKey {
	candidate := make([]byte, types.GELIMasterKeyLength)
	defer helpers.Wipe(candidate)
	copy(candidate, slot.Encrypted[:])

	iv := make([]byte, block.BlockSize())
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(candidate, candidate)

	keys := candidate[:types.GELIMasterKeyHMACOffset]
	mac := c.crypto.Hmac(sha512, verifyKey, keys)
	defer helpers.Wipe(mac)
	if subtle.ConstantTimeCompare(mac, candidate[types.GELIMasterKeyHMACOffset:]) != 1 {
		return nil
	}

	return &types.RecoveredKey{
		IVKey:     append([]byte(nil), keys[:types.GELIDataIVKeyLength]...),
		MasterKey: append([]byte(nil), keys[types.GELIDataIVKeyLength:]...),
	}
}

// Unlock recovers the master key and returns a keyed provider transformer
func (c *GELIContainer) Unlock(dev interfaces.BlockDevice, passphrase []byte) (*interfaces.UnlockedVolume, error) {
	md := c.metadata
	if dev.Size() < types.GELIDeviceSectorSize {
		return nil, fmt.Errorf("%w: device %s is smaller than one sector", types.ErrOutOfRange, dev.Name())
	}
	providerSize := uint64(dev.Size()) - types.GELIDeviceSectorSize
	if md.ProviderSize != 0 && md.ProviderSize != uint64(dev.Size()) {
		c.log.WithFields(logrus.Fields{"disk": dev.Name(), "recorded": md.ProviderSize, "actual": dev.Size()}).
			Warn("Provider size mismatch")
	}

	key, err := c.Recover(passphrase)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	sc, err := c.newSectorCipher(key)
	if err != nil {
		return nil, err
	}

	return &interfaces.UnlockedVolume{
		Slot:          key.Slot,
		Transformer:   sc,
		PayloadOffset: 0,
		TotalSectors:  providerSize >> md.LogSectorSize(),
		Cipher:        md.CipherName + "-" + md.Mode.String(),
	}, nil
}

// newSectorCipher keys a transformer with the recovered master key
func (c *GELIContainer) newSectorCipher(key *types.RecoveredKey) (*services.SectorCipher, error) {
	md := c.metadata
	alg, err := c.crypto.LookupCipher(md.CipherName)
	if err != nil {
		return nil, err
	}
	sha256, err := c.crypto.LookupHash("sha256")
	if err != nil {
		return nil, err
	}
	sha512, err := c.crypto.LookupHash("sha512")
	if err != nil {
		return nil, err
	}

	sc, err := services.NewSectorCipher(services.SectorCipherOptions{
		Algorithm:     alg,
		Mode:          md.Mode,
		IVHash:        sha256,
		LogSectorSize: md.LogSectorSize(),
	})
	if err != nil {
		return nil, err
	}

	if !md.Mode.IsXTS() {
		if err := sc.SetIVPrefix(key.IVKey); err != nil {
			return nil, err
		}
	}

	dataKeyBytes := md.DataKeyBytes()
	if dataKeyBytes > len(key.MasterKey) {
		return nil, fmt.Errorf("%w: data key of %d bytes exceeds master key", types.ErrMalformed, dataKeyBytes)
	}
	switch {
	case md.Version >= types.GELIDataKeyRekeyVersion:
		err = sc.EnableRekey(key.MasterKey, types.GELIKeyShift, dataKeyBytes, sha512)
	case md.Version >= types.GELIRekeyVersion:
		err = sc.EnableRekey(key.IVKey, types.GELIKeyShift, dataKeyBytes, sha512)
	default:
		err = sc.SetKey(key.MasterKey[:dataKeyBytes])
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}
