package services

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-cryptodisk/internal/helpers"
	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"golang.org/x/crypto/xts"
)

var errNoKey = errors.New("sector cipher has no key installed")

// rekeyLabel prefixes the zone number when deriving a zone key
var rekeyLabel = []byte("ekey")

// SectorCipherOptions configures a SectorCipher
type SectorCipherOptions struct {
	Algorithm interfaces.CipherAlgorithm
	Mode      types.CipherMode

	// Hash for ESSIV salts and bytecount64 IVs
	IVHash interfaces.HashAlgorithm

	LogSectorSize uint
}

// rekeyState tracks the zone key currently installed
type rekeyState struct {
	key      []byte
	shift    uint
	keySize  int
	hash     interfaces.HashAlgorithm
	lastZone uint64
	keyed    bool
}

// SectorCipher encrypts and decrypts sectors in place under one of the supported modes
type SectorCipher struct {
	mu sync.Mutex

	algorithm     interfaces.CipherAlgorithm
	mode          types.CipherMode
	ivHash        interfaces.HashAlgorithm
	logSectorSize uint

	block    cipher.Block
	xts      *xts.Cipher
	ivGen    IVGenerator
	ivPrefix []byte

	rekey *rekeyState
}

// NewSectorCipher validates the geometry and returns an unkeyed cipher
func NewSectorCipher(opts SectorCipherOptions) (*SectorCipher, error) {
	if opts.Algorithm == nil {
		return nil, errors.New("sector cipher requires a cipher algorithm")
	}
	if opts.LogSectorSize > 30 {
		return nil, fmt.Errorf("sector size 2^%d is not supported", opts.LogSectorSize)
	}
	sectorSize := 1 << opts.LogSectorSize
	blockSize := opts.Algorithm.BlockSize()
	if blockSize <= 0 || sectorSize < blockSize || sectorSize%blockSize != 0 {
		return nil, fmt.Errorf("cipher block size %d does not divide sector size %d", blockSize, sectorSize)
	}
	if opts.Mode.IsXTS() && blockSize != 16 {
		return nil, fmt.Errorf("%s-xts requires a 16-byte block cipher", opts.Algorithm.Name())
	}
	if opts.Mode.NeedsIVHash() && opts.IVHash == nil {
		return nil, fmt.Errorf("mode %s requires an IV hash", opts.Mode)
	}
	if _, ok := cipherModeSupported[opts.Mode]; !ok {
		return nil, fmt.Errorf("unsupported cipher mode %d", opts.Mode)
	}

	c := &SectorCipher{
		algorithm:     opts.Algorithm,
		mode:          opts.Mode,
		ivHash:        opts.IVHash,
		logSectorSize: opts.LogSectorSize,
	}
	switch opts.Mode {
	case types.CipherModeCBCPlain:
		c.ivGen = &PlainIVGen{}
	case types.CipherModeCBCPlain64:
		c.ivGen = &Plain64IVGen{}
	case types.CipherModeBytecount64Hash, types.CipherModeRekeyedBytecount64Hash:
		c.ivGen = &Bytecount64HashIVGen{hash: opts.IVHash.New(), logSectorSize: opts.LogSectorSize}
	}
	return c, nil
}

var cipherModeSupported = map[types.CipherMode]struct{}{
	types.CipherModeECB:                    {},
	types.CipherModeCBCPlain:               {},
	types.CipherModeCBCPlain64:             {},
	types.CipherModeCBCESSIV:               {},
	types.CipherModeXTSPlain:               {},
	types.CipherModeXTSPlain64:             {},
	types.CipherModeBytecount64Hash:        {},
	types.CipherModeRekeyedBytecount64Hash: {},
	types.CipherModeXTSBytecount64:         {},
}

// SetKey installs the data key. In ESSIV mode the IV cipher is keyed with hash(key).
func (c *SectorCipher) SetKey(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installKey(key)
}

func (c *SectorCipher) installKey(key []byte) error {
	if c.mode.IsXTS() {
		x, err := xts.NewCipher(c.algorithm.NewCipher, key)
		if err != nil {
			return fmt.Errorf("failed to key %s-xts: %w", c.algorithm.Name(), err)
		}
		c.xts = x
		return nil
	}

	block, err := c.algorithm.NewCipher(key)
	if err != nil {
		return err
	}

	if c.mode == types.CipherModeCBCESSIV {
		h := c.ivHash.New()
		h.Write(key)
		salt := h.Sum(nil)
		defer helpers.Wipe(salt)

		essiv, err := c.algorithm.NewCipher(salt)
		if err != nil {
			return fmt.Errorf("failed to create ESSIV cipher: %w", err)
		}
		c.ivGen = &ESSIVGen{cipher: essiv}
	}
	c.block = block
	return nil
}

// SetIVPrefix sets the bytecount64 hash prefix
func (c *SectorCipher) SetIVPrefix(prefix []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen, ok := c.ivGen.(*Bytecount64HashIVGen)
	if !ok {
		return fmt.Errorf("mode %s does not take an IV prefix", c.mode)
	}
	helpers.Wipe(c.ivPrefix)
	c.ivPrefix = append([]byte(nil), prefix...)
	gen.prefix = c.ivPrefix
	return nil
}

// EnableRekey derives the data key per zone of 2^shift sectors from baseKey
func (c *SectorCipher) EnableRekey(baseKey []byte, shift uint, keySize int, h interfaces.HashAlgorithm) error {
	if h == nil {
		return errors.New("rekeying requires a hash")
	}
	if shift >= 64 {
		return fmt.Errorf("rekey shift %d out of range", shift)
	}
	if keySize <= 0 || keySize > h.Size() {
		return fmt.Errorf("rekey key size %d exceeds %s output", keySize, h.Name())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipeRekey()
	c.rekey = &rekeyState{
		key:     append([]byte(nil), baseKey...),
		shift:   shift,
		keySize: keySize,
		hash:    h,
	}
	return nil
}

// ZoneKey returns the data key for the zone containing sector
func (c *SectorCipher) ZoneKey(sector uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rekey == nil {
		return nil, errors.New("rekeying is not enabled")
	}
	return c.zoneKey(sector >> c.rekey.shift), nil
}

func (c *SectorCipher) zoneKey(zone uint64) []byte {
	var zoneBytes [8]byte
	binary.LittleEndian.PutUint64(zoneBytes[:], zone)

	mac := hmac.New(c.rekey.hash.New, c.rekey.key)
	mac.Write(rekeyLabel)
	mac.Write(zoneBytes[:])
	sum := mac.Sum(nil)

	key := append([]byte(nil), sum[:c.rekey.keySize]...)
	helpers.Wipe(sum)
	return key
}

// rekeyFor installs the zone key for sector when the zone changed
func (c *SectorCipher) rekeyFor(sector uint64) error {
	zone := sector >> c.rekey.shift
	if c.rekey.keyed && c.rekey.lastZone == zone {
		return nil
	}

	key := c.zoneKey(zone)
	defer helpers.Wipe(key)
	if err := c.installKey(key); err != nil {
		c.rekey.keyed = false
		return err
	}
	c.rekey.lastZone = zone
	c.rekey.keyed = true
	return nil
}

// ESSIVIV returns the IV used for sector in ESSIV mode
func (c *SectorCipher) ESSIVIV(sector uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen, ok := c.ivGen.(*ESSIVGen)
	if !ok {
		return nil, fmt.Errorf("mode %s has no ESSIV generator keyed", c.mode)
	}
	iv := make([]byte, c.algorithm.BlockSize())
	gen.Calculate(iv, sector)
	return iv, nil
}

// DecryptSectors decrypts buf in place
func (c *SectorCipher) DecryptSectors(buf []byte, sector uint64) error {
	return c.transform(buf, sector, false)
}

// EncryptSectors encrypts buf in place
func (c *SectorCipher) EncryptSectors(buf []byte, sector uint64) error {
	return c.transform(buf, sector, true)
}

// transform wipes buf on failure
func (c *SectorCipher) transform(buf []byte, sector uint64, encrypt bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sectorSize := 1 << c.logSectorSize
	if len(buf)%sectorSize != 0 {
		helpers.Wipe(buf)
		return fmt.Errorf("%w: %d bytes is not a whole number of %d-byte sectors", types.ErrIO, len(buf), sectorSize)
	}
	if err := c.transformSectors(buf, sector, sectorSize, encrypt); err != nil {
		helpers.Wipe(buf)
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	return nil
}

func (c *SectorCipher) transformSectors(buf []byte, sector uint64, sectorSize int, encrypt bool) error {
	if c.rekey == nil && c.block == nil && c.xts == nil {
		return errNoKey
	}

	var iv []byte
	if c.mode.IsCBC() {
		iv = make([]byte, c.algorithm.BlockSize())
	}

	for off := 0; off < len(buf); off += sectorSize {
		s := sector + uint64(off/sectorSize)
		if c.rekey != nil {
			if err := c.rekeyFor(s); err != nil {
				return err
			}
		}
		chunk := buf[off : off+sectorSize]

		switch {
		case c.mode == types.CipherModeECB:
			c.ecb(chunk, encrypt)
		case c.mode.IsXTS():
			if encrypt {
				c.xts.Encrypt(chunk, chunk, c.tweak(s))
			} else {
				c.xts.Decrypt(chunk, chunk, c.tweak(s))
			}
		default:
			if c.ivGen == nil {
				return errNoKey
			}
			c.ivGen.Calculate(iv, s)
			if encrypt {
				cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(chunk, chunk)
			} else {
				cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(chunk, chunk)
			}
		}
	}
	return nil
}

func (c *SectorCipher) ecb(chunk []byte, encrypt bool) {
	bs := c.block.BlockSize()
	for i := 0; i < len(chunk); i += bs {
		if encrypt {
			c.block.Encrypt(chunk[i:i+bs], chunk[i:i+bs])
		} else {
			c.block.Decrypt(chunk[i:i+bs], chunk[i:i+bs])
		}
	}
}

// tweak returns the XTS sector number for s
func (c *SectorCipher) tweak(s uint64) uint64 {
	switch c.mode {
	case types.CipherModeXTSPlain:
		return s & 0xffffffff
	case types.CipherModeXTSBytecount64:
		return s << c.logSectorSize
	}
	return s
}

// LogSectorSize returns log2 of the sector size
func (c *SectorCipher) LogSectorSize() uint {
	return c.logSectorSize
}

// Mode returns the cipher mode
func (c *SectorCipher) Mode() types.CipherMode {
	return c.mode
}

// Wipe drops every key and zeroes the copies this cipher owns
func (c *SectorCipher) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.block = nil
	c.xts = nil
	if _, ok := c.ivGen.(*ESSIVGen); ok {
		c.ivGen = nil
	}
	if gen, ok := c.ivGen.(*Bytecount64HashIVGen); ok {
		gen.prefix = nil
	}
	helpers.Wipe(c.ivPrefix)
	c.ivPrefix = nil
	c.wipeRekey()
}

func (c *SectorCipher) wipeRekey() {
	if c.rekey == nil {
		return
	}
	helpers.Wipe(c.rekey.key)
	c.rekey = nil
}

var _ interfaces.SectorTransformer = (*SectorCipher)(nil)
