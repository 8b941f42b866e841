package types

// FreeBSD GEOM ELI metadata (sys/geom/eli/g_eli.h, struct g_eli_metadata)
// All integer fields are stored little-endian.

const (
	// GELIMagic identifies GELI metadata. The field is NUL padded to 16 bytes.
	GELIMagic = "GEOM::ELI"

	// GELIMagicLength is the size of the magic field.
	GELIMagicLength = 16

	// GELIMetadataSize is the encoded size of struct g_eli_metadata.
	GELIMetadataSize = 511

	// GELIDeviceSectorSize is the provider sector holding the metadata.
	GELIDeviceSectorSize = 512

	// GELIMinVersion and GELIMaxVersion bound the accepted metadata versions.
	GELIMinVersion = 1
	GELIMaxVersion = 7

	// GELIRekeyVersion is the first version that rotates data keys per zone.
	GELIRekeyVersion = 5

	// GELIDataKeyRekeyVersion is the first version deriving zone keys from
	// the data key. Versions 5 and 6 derive them from the IV key.
	GELIDataKeyRekeyVersion = 7

	// GELISaltLength is the size of md_salt.
	GELISaltLength = 64

	// GELIDataIVKeyLength is the size of the IV key and the data key.
	GELIDataIVKeyLength = 64

	// GELIUserKeyLength is the size of an HMAC-SHA512 output.
	GELIUserKeyLength = 64

	// GELIMasterKeyLength is the size of an encrypted master key: IV key, data key and HMAC.
	GELIMasterKeyLength = 192

	// GELIMasterKeyHMACOffset is where the HMAC starts inside a master key.
	GELIMasterKeyHMACOffset = 128

	// GELINumKeys is the number of master key slots.
	GELINumKeys = 2

	// GELIKeyShift is log2 of the number of sectors sharing one data key.
	GELIKeyShift = 20

	// GELIMaxKeyBits bounds md_keylen.
	GELIMaxKeyBits = 512
)

// Metadata flags (md_flags).
const (
	GELIFlagOnetime         uint32 = 0x00000001
	GELIFlagBoot            uint32 = 0x00000002
	GELIFlagWODetach        uint32 = 0x00000004
	GELIFlagRWDetach        uint32 = 0x00000008
	GELIFlagAuth            uint32 = 0x00000010
	GELIFlagRO              uint32 = 0x00000020
	GELIFlagNoDelete        uint32 = 0x00000040
	GELIFlagGELIBoot        uint32 = 0x00000080
	GELIFlagGELIDisplayPass uint32 = 0x00000100
	GELIFlagAutoResize      uint32 = 0x00000200
)

// Encryption algorithm identifiers (md_ealgo, opencrypto CRYPTO_* values).
const (
	GELIAlgo3DESCBC     uint16 = 0x02
	GELIAlgoBlowfishCBC uint16 = 0x03
	GELIAlgoCAST5CBC    uint16 = 0x04
	GELIAlgoAESCBC      uint16 = 0x0b
	GELIAlgoCamelliaCBC uint16 = 0x15
	GELIAlgoAESXTS      uint16 = 0x16
)

// GELIAlgorithmNames maps md_ealgo to provider cipher names.
var GELIAlgorithmNames = map[uint16]string{
	GELIAlgo3DESCBC:     "des3_ede",
	GELIAlgoBlowfishCBC: "blowfish",
	GELIAlgoCAST5CBC:    "cast5",
	GELIAlgoAESCBC:      "aes",
	GELIAlgoCamelliaCBC: "camellia",
	GELIAlgoAESXTS:      "aes",
}

// GELIKeyslot is one master key slot.
type GELIKeyslot struct {
	// Set when the matching bit of md_keys is set.
	Enabled bool

	// Master key encrypted under the user key.
	Encrypted [GELIMasterKeyLength]byte
}

// GELIMetadata is decoded GELI metadata.
type GELIMetadata struct {
	Version             uint32
	Flags               uint32
	EncryptionAlgorithm uint16

	// Key length in bits.
	KeyLength uint16

	AuthAlgorithm uint16

	// Provider size in bytes recorded at init time.
	ProviderSize uint64

	// Sector size of the decrypted provider.
	SectorSize uint32

	// Bitmask of valid keyslots.
	KeysUsed uint8

	// PBKDF2 iterations; 0 selects the plain HMAC derivation, -1 means no passphrase.
	Iterations int32

	Salt     [GELISaltLength]byte
	Keyslots [GELINumKeys]GELIKeyslot

	// MD5 of the preceding metadata bytes.
	Checksum [16]byte

	// Resolved from EncryptionAlgorithm.
	CipherName string
	Mode       CipherMode

	// Derived from the salt.
	UUID string
}

// KeyBytes returns the user key length in bytes.
func (m *GELIMetadata) KeyBytes() int {
	return int(m.KeyLength) / 8
}

// DataKeyBytes returns the length of the key installed into the data cipher.
// AES-XTS takes a double-length key.
func (m *GELIMetadata) DataKeyBytes() int {
	if m.Mode.IsXTS() {
		return 2 * m.KeyBytes()
	}
	return m.KeyBytes()
}

// LogSectorSize returns log2 of SectorSize.
func (m *GELIMetadata) LogSectorSize() uint {
	var log uint
	for size := m.SectorSize; size > 1; size >>= 1 {
		log++
	}
	return log
}

// EnabledKeyslots returns the indices of enabled keyslots.
func (m *GELIMetadata) EnabledKeyslots() []int {
	var slots []int
	for i, slot := range m.Keyslots {
		if slot.Enabled {
			slots = append(slots, i)
		}
	}
	return slots
}
