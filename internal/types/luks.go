package types

// LUKS1 on-disk format (LUKS On-Disk Format Specification, version 1.2.3)
// All integer fields are stored big-endian.

const (
	// LUKSMagic identifies a LUKS partition header. (section 2.4)
	LUKSMagic = "LUKS\xba\xbe"

	// LUKSMagicLength is the length of the magic field.
	LUKSMagicLength = 6

	// LUKSVersion1 is the only header version this package reads.
	LUKSVersion1 = 1

	// LUKSHeaderSize is the size of the partition header including the keyslot table.
	LUKSHeaderSize = 592

	// LUKSNameLength is the size of the cipher-name, cipher-mode and hash-spec fields.
	LUKSNameLength = 32

	// LUKSDigestSize is the size of the master key digest.
	LUKSDigestSize = 20

	// LUKSSaltSize is the size of the digest and keyslot salts.
	LUKSSaltSize = 32

	// LUKSUUIDLength is the size of the UUID field.
	LUKSUUIDLength = 40

	// LUKSNumKeys is the number of keyslots in the header.
	LUKSNumKeys = 8

	// LUKSKeyslotOffset is the byte offset of the first keyslot descriptor.
	LUKSKeyslotOffset = 208

	// LUKSKeyslotSize is the size of one keyslot descriptor.
	LUKSKeyslotSize = 48

	// LUKSStripes is the anti-forensic stripe count written by cryptsetup.
	LUKSStripes = 4000

	// LUKSSectorSize is the unit of payloadOffset and keyMaterialOffset.
	LUKSSectorSize = 512

	// LUKSLogSectorSize is log2 of LUKSSectorSize.
	LUKSLogSectorSize = 9

	// LUKSMaxKeyBytes bounds the master key size (1024 bits).
	LUKSMaxKeyBytes = 128
)

// Keyslot activity sentinels. (section 2.4)
const (
	LUKSKeyEnabled  uint32 = 0x00AC71F3
	LUKSKeyDisabled uint32 = 0x0000DEAD
)

// LUKSKeyslotState tags a decoded keyslot.
type LUKSKeyslotState uint8

const (
	// LUKSKeyslotDisabled covers the disabled sentinel and any unknown value.
	LUKSKeyslotDisabled LUKSKeyslotState = iota
	// LUKSKeyslotEnabled marks a slot carrying an encrypted copy of the master key.
	LUKSKeyslotEnabled
)

func (s LUKSKeyslotState) String() string {
	if s == LUKSKeyslotEnabled {
		return "enabled"
	}
	return "disabled"
}

// LUKSKeyslot is a decoded keyslot descriptor.
// The remaining fields are only meaningful when State is LUKSKeyslotEnabled.
type LUKSKeyslot struct {
	// Activity of the slot, decoded from the raw active field.
	State LUKSKeyslotState

	// PBKDF2 iteration count for the passphrase.
	Iterations uint32

	// PBKDF2 salt for the passphrase.
	Salt [LUKSSaltSize]byte

	// Start of the anti-forensic key material, in 512-byte sectors.
	KeyMaterialOffset uint32

	// Number of anti-forensic stripes.
	Stripes uint32
}

// Enabled reports whether the slot holds key material.
func (k LUKSKeyslot) Enabled() bool {
	return k.State == LUKSKeyslotEnabled
}

// LUKSHeader is a decoded LUKS1 partition header.
type LUKSHeader struct {
	// Header version, always 1.
	Version uint16

	// Cipher name such as "aes" or "serpent".
	CipherName string

	// Cipher mode such as "cbc-essiv:sha256" or "xts-plain64".
	CipherMode string

	// Hash used for PBKDF2 and the AF diffusion, such as "sha256".
	HashSpec string

	// Start of the bulk data, in 512-byte sectors.
	PayloadOffset uint32

	// Master key length in bytes.
	KeyBytes uint32

	// PBKDF2 digest of the master key.
	MKDigest [LUKSDigestSize]byte

	// Salt for the master key digest.
	MKDigestSalt [LUKSSaltSize]byte

	// Iteration count for the master key digest.
	MKDigestIterations uint32

	// Partition UUID as stored, NUL padding removed.
	UUID string

	// Keyslot table.
	Keyslots [LUKSNumKeys]LUKSKeyslot

	// Parsed form of CipherMode.
	Mode CipherModeSpec
}

// EnabledKeyslots returns the indices of enabled keyslots in table order.
func (h *LUKSHeader) EnabledKeyslots() []int {
	var slots []int
	for i, slot := range h.Keyslots {
		if slot.Enabled() {
			slots = append(slots, i)
		}
	}
	return slots
}
