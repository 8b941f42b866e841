package luks

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/deploymenttheory/go-cryptodisk/internal/services"
	"github.com/deploymenttheory/go-cryptodisk/internal/testutil"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHeader(t *testing.T) []byte {
	t.Helper()
	img, err := testutil.BuildLUKS(testutil.LUKSOptions{
		CipherName: "aes",
		CipherMode: "cbc-essiv:sha256",
		HashSpec:   "sha256",
		KeyBytes:   32,
		UUID:       "0d9b4c1e-5b6a-4f2e-8c3d-112233445566",
		Slots: []testutil.LUKSSlot{
			{Index: 0, Passphrase: "first", Iterations: 5, Stripes: 2},
			{Index: 3, Passphrase: "second", Iterations: 7, Stripes: 2},
		},
	})
	require.NoError(t, err)
	return bytes.Clone(img.Data[:types.LUKSHeaderSize])
}

func TestParseHeader(t *testing.T) {
	data := buildHeader(t)

	header, err := ParseHeader(data, services.NewCryptoService())
	require.NoError(t, err)

	assert.Equal(t, uint16(1), header.Version)
	assert.Equal(t, "aes", header.CipherName)
	assert.Equal(t, "cbc-essiv:sha256", header.CipherMode)
	assert.Equal(t, "sha256", header.HashSpec)
	assert.Equal(t, uint32(32), header.KeyBytes)
	assert.Equal(t, uint32(10), header.MKDigestIterations)
	assert.Equal(t, "0d9b4c1e-5b6a-4f2e-8c3d-112233445566", header.UUID)
	assert.Equal(t, types.CipherModeSpec{Mode: types.CipherModeCBCESSIV, IVHash: "sha256"}, header.Mode)
	assert.Equal(t, []int{0, 3}, header.EnabledKeyslots())

	slot := header.Keyslots[3]
	assert.True(t, slot.Enabled())
	assert.Equal(t, uint32(7), slot.Iterations)
	assert.Equal(t, uint32(2), slot.Stripes)
	assert.NotZero(t, slot.KeyMaterialOffset)
	assert.False(t, header.Keyslots[1].Enabled())
	assert.Equal(t, types.LUKSKeyslotDisabled, header.Keyslots[1].State)
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(data []byte) []byte
		wantErr error
	}{
		{
			name:    "flipped magic",
			mutate:  func(d []byte) []byte { d[0] ^= 0x01; return d },
			wantErr: types.ErrNotThisFormat,
		},
		{
			name:    "truncated",
			mutate:  func(d []byte) []byte { return d[:types.LUKSHeaderSize-1] },
			wantErr: types.ErrOutOfRange,
		},
		{
			name:    "version 2",
			mutate:  func(d []byte) []byte { binary.BigEndian.PutUint16(d[6:8], 2); return d },
			wantErr: types.ErrMalformed,
		},
		{
			name:    "unknown cipher",
			mutate:  func(d []byte) []byte { setField(d[8:40], "camellia"); return d },
			wantErr: types.ErrUnknownAlgorithm,
		},
		{
			name:    "unknown hash",
			mutate:  func(d []byte) []byte { setField(d[72:104], "whirlpool"); return d },
			wantErr: types.ErrUnknownAlgorithm,
		},
		{
			name:    "unknown mode",
			mutate:  func(d []byte) []byte { setField(d[40:72], "ctr-plain"); return d },
			wantErr: types.ErrMalformed,
		},
		{
			name:    "unknown essiv hash",
			mutate:  func(d []byte) []byte { setField(d[40:72], "cbc-essiv:tiger"); return d },
			wantErr: types.ErrUnknownAlgorithm,
		},
		{
			name:    "zero key bytes",
			mutate:  func(d []byte) []byte { binary.BigEndian.PutUint32(d[108:112], 0); return d },
			wantErr: types.ErrMalformed,
		},
		{
			name:    "oversized key",
			mutate:  func(d []byte) []byte { binary.BigEndian.PutUint32(d[108:112], 129); return d },
			wantErr: types.ErrMalformed,
		},
		{
			name:    "zero digest iterations",
			mutate:  func(d []byte) []byte { binary.BigEndian.PutUint32(d[164:168], 0); return d },
			wantErr: types.ErrMalformed,
		},
		{
			name: "enabled slot without stripes",
			mutate: func(d []byte) []byte {
				binary.BigEndian.PutUint32(d[types.LUKSKeyslotOffset+44:types.LUKSKeyslotOffset+48], 0)
				return d
			},
			wantErr: types.ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(buildHeader(t))
			_, err := ParseHeader(data, services.NewCryptoService())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseHeaderUnknownSentinelIsDisabled(t *testing.T) {
	data := buildHeader(t)
	off := types.LUKSKeyslotOffset
	binary.BigEndian.PutUint32(data[off:off+4], types.LUKSKeyEnabled-1)

	header, err := ParseHeader(data, services.NewCryptoService())
	require.NoError(t, err)
	assert.False(t, header.Keyslots[0].Enabled())
	assert.Equal(t, []int{3}, header.EnabledKeyslots())
}

func TestParseHeaderFullWidthNames(t *testing.T) {
	data := buildHeader(t)
	setField(data[168:208], strings.Repeat("u", types.LUKSUUIDLength))

	header, err := ParseHeader(data, services.NewCryptoService())
	require.NoError(t, err)
	assert.Len(t, header.UUID, types.LUKSUUIDLength)
}

func TestReadHeader(t *testing.T) {
	data := buildHeader(t)
	provider := services.NewCryptoService()

	header, err := ReadHeader(testutil.NewMemoryDevice("disk0", data), provider)
	require.NoError(t, err)
	assert.Equal(t, "aes", header.CipherName)

	_, err = ReadHeader(testutil.NewMemoryDevice("tiny", data[:100]), provider)
	assert.ErrorIs(t, err, types.ErrOutOfRange)
}

func setField(field []byte, value string) {
	clear(field)
	copy(field, value)
}
