package testutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"golang.org/x/crypto/xts"
)

// GELISlot describes a master key slot to populate
type GELISlot struct {
	Index      int
	Passphrase string
}

// GELIOptions describes a GELI image; zero fields take defaults
type GELIOptions struct {
	Version    uint32
	Algorithm  uint16
	KeyLength  uint16
	SectorSize uint32
	Iterations int32
	Flags      uint32
	Slots      []GELISlot

	// Plaintext payload, a multiple of SectorSize
	Payload []byte

	Seed string
}

// GELIImage is a built GELI image
type GELIImage struct {
	Data    []byte
	IVKey   []byte
	DataKey []byte
	Salt    []byte
}

func (o *GELIOptions) defaults() {
	if o.Version == 0 {
		o.Version = types.GELIMaxVersion
	}
	if o.Algorithm == 0 {
		o.Algorithm = types.GELIAlgoAESCBC
	}
	if o.KeyLength == 0 {
		o.KeyLength = 128
	}
	if o.SectorSize == 0 {
		o.SectorSize = 512
	}
	if o.Seed == "" {
		o.Seed = "geli"
	}
}

// GELIUserKey derives the user key from a passphrase
func GELIUserKey(passphrase string, salt []byte, iterations int32) []byte {
	if iterations == 0 {
		return HMAC(sha512.New, nil, salt, []byte(passphrase))
	}
	derived := PBKDF2(sha512.New, []byte(passphrase), salt, int(iterations), types.GELIUserKeyLength)
	return HMAC(sha512.New, nil, derived)
}

// BuildGELI lays out an encrypted payload followed by the metadata sector
func BuildGELI(opts GELIOptions) (*GELIImage, error) {
	opts.defaults()
	if opts.Algorithm != types.GELIAlgoAESCBC && opts.Algorithm != types.GELIAlgoAESXTS {
		return nil, fmt.Errorf("testutil: unsupported GELI algorithm %#x", opts.Algorithm)
	}
	if len(opts.Payload)%int(opts.SectorSize) != 0 {
		return nil, fmt.Errorf("testutil: payload of %d bytes is not sector aligned", len(opts.Payload))
	}

	img := &GELIImage{
		IVKey:   DeterministicBytes(opts.Seed+"/iv-key", types.GELIDataIVKeyLength),
		DataKey: DeterministicBytes(opts.Seed+"/data-key", types.GELIDataIVKeyLength),
		Salt:    DeterministicBytes(opts.Seed+"/salt", types.GELISaltLength),
	}
	keyBytes := int(opts.KeyLength) / 8

	data := make([]byte, len(opts.Payload)+types.GELIDeviceSectorSize)
	payload := data[:len(opts.Payload)]
	copy(payload, opts.Payload)
	if err := img.encryptPayload(opts, payload, keyBytes); err != nil {
		return nil, err
	}

	md := data[len(opts.Payload):]
	le := binary.LittleEndian
	copy(md[0:16], types.GELIMagic)
	le.PutUint32(md[16:20], opts.Version)
	le.PutUint32(md[20:24], opts.Flags)
	le.PutUint16(md[24:26], opts.Algorithm)
	le.PutUint16(md[26:28], opts.KeyLength)
	le.PutUint64(md[30:38], uint64(len(data)))
	le.PutUint32(md[38:42], opts.SectorSize)
	le.PutUint32(md[43:47], uint32(opts.Iterations))
	copy(md[47:111], img.Salt)

	var keys uint8
	for _, slot := range opts.Slots {
		if slot.Index < 0 || slot.Index >= types.GELINumKeys {
			return nil, fmt.Errorf("testutil: keyslot index %d out of range", slot.Index)
		}
		keys |= 1 << slot.Index
		mkey, err := img.encryptMasterKey(slot.Passphrase, opts.Iterations, keyBytes)
		if err != nil {
			return nil, err
		}
		off := 111 + slot.Index*types.GELIMasterKeyLength
		copy(md[off:off+types.GELIMasterKeyLength], mkey)
	}
	md[42] = keys

	sum := md5.Sum(md[:495])
	copy(md[495:511], sum[:])

	img.Data = data
	return img, nil
}

func (img *GELIImage) encryptMasterKey(passphrase string, iterations int32, keyBytes int) ([]byte, error) {
	userKey := GELIUserKey(passphrase, img.Salt, iterations)
	encKey := HMAC(sha512.New, userKey, []byte{0x01})
	hmacKey := HMAC(sha512.New, userKey, []byte{0x00})

	mkey := make([]byte, 0, types.GELIMasterKeyLength)
	mkey = append(mkey, img.IVKey...)
	mkey = append(mkey, img.DataKey...)
	mkey = append(mkey, HMAC(sha512.New, hmacKey, mkey)...)

	block, err := aes.NewCipher(encKey[:keyBytes])
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(mkey, mkey)
	return mkey, nil
}

// dataKey returns the key protecting sector
func (img *GELIImage) dataKey(opts GELIOptions, sector uint64, size int) []byte {
	if opts.Version < types.GELIRekeyVersion {
		return img.DataKey[:size]
	}
	base := img.DataKey
	if opts.Version < types.GELIDataKeyRekeyVersion {
		base = img.IVKey
	}
	var zone [8]byte
	binary.LittleEndian.PutUint64(zone[:], sector>>types.GELIKeyShift)
	return HMAC(sha512.New, base, []byte("ekey"), zone[:])[:size]
}

func (img *GELIImage) encryptPayload(opts GELIOptions, payload []byte, keyBytes int) error {
	sectorSize := int(opts.SectorSize)
	for off := 0; off < len(payload); off += sectorSize {
		sector := uint64(off / sectorSize)
		chunk := payload[off : off+sectorSize]
		byteOffset := sector * uint64(opts.SectorSize)

		if opts.Algorithm == types.GELIAlgoAESXTS {
			x, err := xts.NewCipher(aes.NewCipher, img.dataKey(opts, sector, 2*keyBytes))
			if err != nil {
				return err
			}
			x.Encrypt(chunk, chunk, byteOffset)
			continue
		}

		logSectorSize := uint(bits.TrailingZeros32(opts.SectorSize))
		if err := EncryptGELISector(img.dataKey(opts, sector, keyBytes), img.IVKey, chunk, sector, logSectorSize); err != nil {
			return err
		}
	}
	return nil
}

// EncryptGELISector encrypts one CBC sector the way GELI does, for engine cross-checks
func EncryptGELISector(dataKey, ivKey, chunk []byte, sector uint64, logSectorSize uint) error {
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return err
	}
	var offset [8]byte
	binary.LittleEndian.PutUint64(offset[:], sector<<logSectorSize)
	h := sha256.New()
	h.Write(ivKey)
	h.Write(offset[:])
	iv := h.Sum(nil)[:aes.BlockSize]
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(chunk, chunk)
	return nil
}
