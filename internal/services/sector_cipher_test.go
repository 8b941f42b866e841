package services

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/testutil"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T, cipherName string, mode types.CipherMode, ivHash string, logSectorSize uint) *SectorCipher {
	t.Helper()
	cs := NewCryptoService()
	alg, err := cs.LookupCipher(cipherName)
	require.NoError(t, err)

	opts := SectorCipherOptions{Algorithm: alg, Mode: mode, LogSectorSize: logSectorSize}
	if ivHash != "" {
		opts.IVHash, err = cs.LookupHash(ivHash)
		require.NoError(t, err)
	}
	sc, err := NewSectorCipher(opts)
	require.NoError(t, err)
	return sc
}

func TestSectorCipherMatchesReferenceEncoder(t *testing.T) {
	tests := []struct {
		cipher  string
		modeStr string
		mode    types.CipherMode
		ivHash  string
		keySize int
	}{
		{"aes", "ecb", types.CipherModeECB, "", 16},
		{"aes", "cbc-plain", types.CipherModeCBCPlain, "", 16},
		{"aes", "cbc-plain64", types.CipherModeCBCPlain64, "", 32},
		{"aes", "cbc-essiv:sha256", types.CipherModeCBCESSIV, "sha256", 32},
		{"aes", "xts-plain", types.CipherModeXTSPlain, "", 32},
		{"aes", "xts-plain64", types.CipherModeXTSPlain64, "", 64},
		{"serpent", "cbc-essiv:sha256", types.CipherModeCBCESSIV, "sha256", 32},
		{"serpent", "xts-plain64", types.CipherModeXTSPlain64, "", 64},
		{"twofish", "cbc-plain", types.CipherModeCBCPlain, "", 32},
		{"twofish", "xts-plain64", types.CipherModeXTSPlain64, "", 64},
	}
	sectors := []uint64{0, 1, 1<<32 - 2}

	for _, tt := range tests {
		for _, sector := range sectors {
			t.Run(fmt.Sprintf("%s-%s/sector-%d", tt.cipher, tt.modeStr, sector), func(t *testing.T) {
				key := testutil.DeterministicBytes("key/"+tt.modeStr, tt.keySize)
				plain := testutil.DeterministicBytes("plain", 3*512)

				expected := bytes.Clone(plain)
				require.NoError(t, testutil.EncryptLUKSSectors(tt.cipher, tt.modeStr, key, expected, sector))

				sc := newTestCipher(t, tt.cipher, tt.mode, tt.ivHash, 9)
				require.NoError(t, sc.SetKey(key))

				buf := bytes.Clone(plain)
				require.NoError(t, sc.EncryptSectors(buf, sector))
				assert.Equal(t, expected, buf, "encrypt at sector %d", sector)

				require.NoError(t, sc.DecryptSectors(buf, sector))
				assert.Equal(t, plain, buf, "decrypt at sector %d", sector)
			})
		}
	}
}

func TestSectorRoundTripAllModes(t *testing.T) {
	modes := []struct {
		mode    types.CipherMode
		ivHash  string
		keySize int
	}{
		{types.CipherModeECB, "", 16},
		{types.CipherModeCBCPlain, "", 16},
		{types.CipherModeCBCPlain64, "", 16},
		{types.CipherModeCBCESSIV, "sha256", 16},
		{types.CipherModeXTSPlain, "", 32},
		{types.CipherModeXTSPlain64, "", 32},
		{types.CipherModeBytecount64Hash, "sha256", 16},
		{types.CipherModeRekeyedBytecount64Hash, "sha256", 16},
		{types.CipherModeXTSBytecount64, "sha256", 32},
	}

	for _, m := range modes {
		t.Run(m.mode.String(), func(t *testing.T) {
			for _, logSectorSize := range []uint{9, 12} {
				sc := newTestCipher(t, "aes", m.mode, m.ivHash, logSectorSize)
				key := testutil.DeterministicBytes("round-trip", m.keySize)
				if m.mode == types.CipherModeRekeyedBytecount64Hash {
					require.NoError(t, sc.EnableRekey(key, types.GELIKeyShift, m.keySize, sha512Hash(t)))
				} else {
					require.NoError(t, sc.SetKey(key))
				}
				if m.mode == types.CipherModeBytecount64Hash || m.mode == types.CipherModeRekeyedBytecount64Hash {
					require.NoError(t, sc.SetIVPrefix(testutil.DeterministicBytes("prefix", 64)))
				}

				for _, sector := range []uint64{0, 1, 1<<32 - 2} {
					plain := testutil.DeterministicBytes("payload", 2<<logSectorSize)
					buf := bytes.Clone(plain)
					require.NoError(t, sc.EncryptSectors(buf, sector))
					assert.NotEqual(t, plain, buf)
					require.NoError(t, sc.DecryptSectors(buf, sector))
					assert.Equal(t, plain, buf, "sector %d, log sector size %d", sector, logSectorSize)
				}
			}
		})
	}
}

func sha512Hash(t *testing.T) interfaces.HashAlgorithm {
	t.Helper()
	h, err := NewCryptoService().LookupHash("sha512")
	require.NoError(t, err)
	return h
}

func TestESSIVDeterministicAndDistinct(t *testing.T) {
	key := testutil.DeterministicBytes("essiv", 32)
	sc := newTestCipher(t, "aes", types.CipherModeCBCESSIV, "sha256", 9)
	require.NoError(t, sc.SetKey(key))

	salt := sha256.Sum256(key)
	essiv, err := aes.NewCipher(salt[:])
	require.NoError(t, err)

	seen := make(map[string]uint64)
	for _, sector := range []uint64{0, 1, 2, 255, 1 << 31, 1<<32 - 2} {
		iv, err := sc.ESSIVIV(sector)
		require.NoError(t, err)

		again, err := sc.ESSIVIV(sector)
		require.NoError(t, err)
		assert.Equal(t, iv, again)

		expected := make([]byte, aes.BlockSize)
		binary.LittleEndian.PutUint32(expected, uint32(sector))
		essiv.Encrypt(expected, expected)
		assert.Equal(t, expected, iv, "sector %d", sector)

		if prev, ok := seen[string(iv)]; ok {
			t.Errorf("sectors %d and %d share an ESSIV IV", prev, sector)
		}
		seen[string(iv)] = sector
	}
}

func TestESSIVRequiresESSIVMode(t *testing.T) {
	sc := newTestCipher(t, "aes", types.CipherModeCBCPlain, "", 9)
	require.NoError(t, sc.SetKey(make([]byte, 16)))
	_, err := sc.ESSIVIV(0)
	assert.Error(t, err)
}

func TestRekeyZones(t *testing.T) {
	base := testutil.DeterministicBytes("rekey-base", 64)
	prefix := testutil.DeterministicBytes("rekey-prefix", 64)
	const shift = 4

	sc := newTestCipher(t, "aes", types.CipherModeRekeyedBytecount64Hash, "sha256", 9)
	require.NoError(t, sc.EnableRekey(base, shift, 16, sha512Hash(t)))
	require.NoError(t, sc.SetIVPrefix(prefix))

	zone0, err := sc.ZoneKey(0)
	require.NoError(t, err)
	zone0End, err := sc.ZoneKey(15)
	require.NoError(t, err)
	zone1, err := sc.ZoneKey(16)
	require.NoError(t, err)
	assert.Equal(t, zone0, zone0End)
	assert.NotEqual(t, zone0, zone1)

	var zone [8]byte
	binary.LittleEndian.PutUint64(zone[:], 1)
	assert.Equal(t, testutil.HMAC(sha512.New, base, []byte("ekey"), zone[:])[:16], zone1)

	// Encrypt sectors 14..17 in one call and check each against an independent encoder
	plain := testutil.DeterministicBytes("zones", 4*512)
	buf := bytes.Clone(plain)
	require.NoError(t, sc.EncryptSectors(buf, 14))

	for i := 0; i < 4; i++ {
		sector := uint64(14 + i)
		binary.LittleEndian.PutUint64(zone[:], sector>>shift)
		key := testutil.HMAC(sha512.New, base, []byte("ekey"), zone[:])[:16]

		expected := bytes.Clone(plain[i*512 : (i+1)*512])
		require.NoError(t, testutil.EncryptGELISector(key, prefix, expected, sector, 9))
		assert.Equal(t, expected, buf[i*512:(i+1)*512], "sector %d", sector)
	}

	// Decrypting out of order re-derives zone keys as needed
	require.NoError(t, sc.DecryptSectors(buf[3*512:], 17))
	require.NoError(t, sc.DecryptSectors(buf[:3*512], 14))
	assert.Equal(t, plain, buf)
}

func TestBytecount64HashMatchesReferenceEncoder(t *testing.T) {
	key := testutil.DeterministicBytes("bytecount-key", 16)
	prefix := testutil.DeterministicBytes("bytecount-prefix", 64)

	for _, logSectorSize := range []uint{9, 12} {
		sc := newTestCipher(t, "aes", types.CipherModeBytecount64Hash, "sha256", logSectorSize)
		require.NoError(t, sc.SetKey(key))
		require.NoError(t, sc.SetIVPrefix(prefix))

		for _, sector := range []uint64{0, 1, 1<<32 - 2} {
			plain := testutil.DeterministicBytes("bytecount", 1<<logSectorSize)
			expected := bytes.Clone(plain)
			require.NoError(t, testutil.EncryptGELISector(key, prefix, expected, sector, logSectorSize))

			buf := bytes.Clone(expected)
			require.NoError(t, sc.DecryptSectors(buf, sector))
			assert.Equal(t, plain, buf)
		}
	}
}

func TestSectorCipherRejectsUnalignedBuffer(t *testing.T) {
	sc := newTestCipher(t, "aes", types.CipherModeCBCPlain, "", 9)
	require.NoError(t, sc.SetKey(make([]byte, 16)))

	buf := bytes.Repeat([]byte{0xAA}, 700)
	err := sc.DecryptSectors(buf, 0)
	assert.ErrorIs(t, err, types.ErrIO)
	assert.Equal(t, make([]byte, 700), buf, "buffer must be wiped on failure")
}

func TestSectorCipherWithoutKey(t *testing.T) {
	sc := newTestCipher(t, "aes", types.CipherModeCBCESSIV, "sha256", 9)
	buf := make([]byte, 512)
	assert.ErrorIs(t, sc.DecryptSectors(buf, 0), types.ErrIO)
}

func TestSectorCipherWipe(t *testing.T) {
	sc := newTestCipher(t, "aes", types.CipherModeXTSPlain64, "", 9)
	require.NoError(t, sc.SetKey(make([]byte, 32)))
	require.NoError(t, sc.DecryptSectors(make([]byte, 512), 0))

	sc.Wipe()
	assert.ErrorIs(t, sc.DecryptSectors(make([]byte, 512), 0), types.ErrIO)
}

func TestNewSectorCipherValidation(t *testing.T) {
	cs := NewCryptoService()
	aesAlg, err := cs.LookupCipher("aes")
	require.NoError(t, err)
	blowfish, err := cs.LookupCipher("blowfish")
	require.NoError(t, err)

	tests := []struct {
		name string
		opts SectorCipherOptions
	}{
		{"no algorithm", SectorCipherOptions{Mode: types.CipherModeECB, LogSectorSize: 9}},
		{"sector smaller than block", SectorCipherOptions{Algorithm: aesAlg, Mode: types.CipherModeECB, LogSectorSize: 3}},
		{"xts with 8-byte block", SectorCipherOptions{Algorithm: blowfish, Mode: types.CipherModeXTSPlain64, LogSectorSize: 9}},
		{"essiv without hash", SectorCipherOptions{Algorithm: aesAlg, Mode: types.CipherModeCBCESSIV, LogSectorSize: 9}},
		{"unknown mode", SectorCipherOptions{Algorithm: aesAlg, Mode: types.CipherMode(99), LogSectorSize: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSectorCipher(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestSetKeyPropagatesCipherErrors(t *testing.T) {
	sc := newTestCipher(t, "aes", types.CipherModeCBCPlain, "", 9)
	assert.Error(t, sc.SetKey(make([]byte, 7)))

	// A 20-byte SHA-1 salt cannot key AES
	essiv := newTestCipher(t, "aes", types.CipherModeCBCESSIV, "sha1", 9)
	assert.Error(t, essiv.SetKey(make([]byte, 16)))
}
