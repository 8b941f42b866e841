package luks

import (
	"testing"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCipherMode(t *testing.T) {
	tests := []struct {
		input    string
		expected types.CipherModeSpec
	}{
		{"ecb", types.CipherModeSpec{Mode: types.CipherModeECB}},
		{"cbc-plain", types.CipherModeSpec{Mode: types.CipherModeCBCPlain}},
		{"cbc-plain64", types.CipherModeSpec{Mode: types.CipherModeCBCPlain64}},
		{"cbc-essiv:sha256", types.CipherModeSpec{Mode: types.CipherModeCBCESSIV, IVHash: "sha256"}},
		{"CBC-ESSIV:SHA1", types.CipherModeSpec{Mode: types.CipherModeCBCESSIV, IVHash: "sha1"}},
		{"xts-plain", types.CipherModeSpec{Mode: types.CipherModeXTSPlain}},
		{"xts-plain64", types.CipherModeSpec{Mode: types.CipherModeXTSPlain64}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := ParseCipherMode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, spec)
		})
	}
}

func TestParseCipherModeRejects(t *testing.T) {
	for _, input := range []string{"", "cbc", "cbc-essiv:", "cbc-benbi", "ctr-plain", "xts-essiv:sha256", "lrw-plain64"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseCipherMode(input)
			assert.ErrorIs(t, err, types.ErrUnknownAlgorithm)
		})
	}
}
