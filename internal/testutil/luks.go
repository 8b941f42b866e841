package testutil

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

// LUKSSlot describes a keyslot to populate
type LUKSSlot struct {
	Index      int
	Passphrase string
	Iterations uint32

	// Zero selects types.LUKSStripes
	Stripes uint32

	// Raw active field; zero selects the enabled sentinel
	Active uint32
}

// LUKSOptions describes a LUKS1 image; zero fields take defaults
type LUKSOptions struct {
	CipherName         string
	CipherMode         string
	HashSpec           string
	KeyBytes           int
	MasterKey          []byte
	MKDigestSalt       []byte
	MKDigestIterations uint32
	UUID               string
	Slots              []LUKSSlot

	// Plaintext payload, a multiple of 512 bytes
	Payload []byte

	Seed string
}

// LUKSImage is a built LUKS1 image
type LUKSImage struct {
	Data               []byte
	MasterKey          []byte
	MKDigest           []byte
	MKDigestSalt       []byte
	PayloadOffset      uint32
	KeyMaterialOffsets [types.LUKSNumKeys]uint32
}

func (o *LUKSOptions) defaults() {
	if o.CipherName == "" {
		o.CipherName = "aes"
	}
	if o.CipherMode == "" {
		o.CipherMode = "cbc-essiv:sha256"
	}
	if o.HashSpec == "" {
		o.HashSpec = "sha256"
	}
	if o.KeyBytes == 0 {
		o.KeyBytes = 32
	}
	if o.MKDigestIterations == 0 {
		o.MKDigestIterations = 10
	}
	if o.UUID == "" {
		o.UUID = "6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab"
	}
	if o.Seed == "" {
		o.Seed = "luks"
	}
	if o.MasterKey == nil {
		o.MasterKey = DeterministicBytes(o.Seed+"/master-key", o.KeyBytes)
	}
}

// BuildLUKS lays out a LUKS1 header, key material and encrypted payload
func BuildLUKS(opts LUKSOptions) (*LUKSImage, error) {
	opts.defaults()
	if len(opts.MasterKey) != opts.KeyBytes {
		return nil, fmt.Errorf("testutil: master key is %d bytes, want %d", len(opts.MasterKey), opts.KeyBytes)
	}
	if len(opts.Payload)%types.LUKSSectorSize != 0 {
		return nil, fmt.Errorf("testutil: payload of %d bytes is not sector aligned", len(opts.Payload))
	}
	newHash, err := HashFunc(opts.HashSpec)
	if err != nil {
		return nil, err
	}

	maxStripes := uint32(1)
	for i := range opts.Slots {
		if opts.Slots[i].Stripes == 0 {
			opts.Slots[i].Stripes = types.LUKSStripes
		}
		maxStripes = max(maxStripes, opts.Slots[i].Stripes)
	}
	areaSectors := alignUp(sectorsFor(opts.KeyBytes*int(maxStripes)), 8)

	img := &LUKSImage{MasterKey: opts.MasterKey}
	for i := range img.KeyMaterialOffsets {
		img.KeyMaterialOffsets[i] = uint32(8 + i*areaSectors)
	}
	img.PayloadOffset = uint32(8 + types.LUKSNumKeys*areaSectors)

	data := make([]byte, int(img.PayloadOffset)*types.LUKSSectorSize+len(opts.Payload))
	be := binary.BigEndian

	copy(data[0:6], types.LUKSMagic)
	be.PutUint16(data[6:8], types.LUKSVersion1)
	copy(data[8:40], opts.CipherName)
	copy(data[40:72], opts.CipherMode)
	copy(data[72:104], opts.HashSpec)
	be.PutUint32(data[104:108], img.PayloadOffset)
	be.PutUint32(data[108:112], uint32(opts.KeyBytes))

	img.MKDigestSalt = opts.MKDigestSalt
	if img.MKDigestSalt == nil {
		img.MKDigestSalt = DeterministicBytes(opts.Seed+"/mk-salt", types.LUKSSaltSize)
	}
	if len(img.MKDigestSalt) != types.LUKSSaltSize {
		return nil, fmt.Errorf("testutil: master key digest salt is %d bytes, want %d", len(img.MKDigestSalt), types.LUKSSaltSize)
	}
	img.MKDigest = PBKDF2(newHash, opts.MasterKey, img.MKDigestSalt, int(opts.MKDigestIterations), types.LUKSDigestSize)
	copy(data[112:132], img.MKDigest)
	copy(data[132:164], img.MKDigestSalt)
	be.PutUint32(data[164:168], opts.MKDigestIterations)
	copy(data[168:208], opts.UUID)

	for i := 0; i < types.LUKSNumKeys; i++ {
		off := types.LUKSKeyslotOffset + i*types.LUKSKeyslotSize
		be.PutUint32(data[off:off+4], types.LUKSKeyDisabled)
		be.PutUint32(data[off+40:off+44], img.KeyMaterialOffsets[i])
		be.PutUint32(data[off+44:off+48], types.LUKSStripes)
	}

	for _, slot := range opts.Slots {
		if slot.Index < 0 || slot.Index >= types.LUKSNumKeys {
			return nil, fmt.Errorf("testutil: keyslot index %d out of range", slot.Index)
		}
		if slot.Iterations == 0 {
			slot.Iterations = 10
		}
		active := slot.Active
		if active == 0 {
			active = types.LUKSKeyEnabled
		}
		salt := DeterministicBytes(fmt.Sprintf("%s/slot-salt/%d", opts.Seed, slot.Index), types.LUKSSaltSize)

		off := types.LUKSKeyslotOffset + slot.Index*types.LUKSKeyslotSize
		be.PutUint32(data[off:off+4], active)
		be.PutUint32(data[off+4:off+8], slot.Iterations)
		copy(data[off+8:off+40], salt)
		be.PutUint32(data[off+44:off+48], slot.Stripes)

		derived := PBKDF2(newHash, []byte(slot.Passphrase), salt, int(slot.Iterations), opts.KeyBytes)
		split := AFSplit(newHash, opts.MasterKey, int(slot.Stripes), fmt.Sprintf("%s/af/%d", opts.Seed, slot.Index))
		material := make([]byte, sectorsFor(len(split))*types.LUKSSectorSize)
		copy(material, split)
		if err := EncryptLUKSSectors(opts.CipherName, opts.CipherMode, derived, material, 0); err != nil {
			return nil, fmt.Errorf("testutil: failed to encrypt keyslot %d: %w", slot.Index, err)
		}
		copy(data[int(img.KeyMaterialOffsets[slot.Index])*types.LUKSSectorSize:], material)
	}

	if len(opts.Payload) > 0 {
		payload := data[int(img.PayloadOffset)*types.LUKSSectorSize:]
		copy(payload, opts.Payload)
		if err := EncryptLUKSSectors(opts.CipherName, opts.CipherMode, opts.MasterKey, payload, 0); err != nil {
			return nil, fmt.Errorf("testutil: failed to encrypt payload: %w", err)
		}
	}

	img.Data = data
	return img, nil
}

func sectorsFor(n int) int {
	return (n + types.LUKSSectorSize - 1) / types.LUKSSectorSize
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
