package luks

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

// ParseCipherMode parses a dm-crypt mode string such as "cbc-essiv:sha256".
// It checks only the syntax; the ESSIV hash is resolved by the caller.
func ParseCipherMode(mode string) (types.CipherModeSpec, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "ecb" {
		return types.CipherModeSpec{Mode: types.CipherModeECB}, nil
	}

	chain, ivGen, ok := strings.Cut(normalized, "-")
	if !ok {
		return types.CipherModeSpec{}, fmt.Errorf("%w: cipher mode %q has no IV generator", types.ErrUnknownAlgorithm, mode)
	}

	switch chain {
	case "cbc":
		switch {
		case ivGen == "plain":
			return types.CipherModeSpec{Mode: types.CipherModeCBCPlain}, nil
		case ivGen == "plain64":
			return types.CipherModeSpec{Mode: types.CipherModeCBCPlain64}, nil
		case strings.HasPrefix(ivGen, "essiv:"):
			hash := strings.TrimPrefix(ivGen, "essiv:")
			if hash == "" {
				return types.CipherModeSpec{}, fmt.Errorf("%w: cipher mode %q has no ESSIV hash", types.ErrUnknownAlgorithm, mode)
			}
			return types.CipherModeSpec{Mode: types.CipherModeCBCESSIV, IVHash: hash}, nil
		}
	case "xts":
		switch ivGen {
		case "plain":
			return types.CipherModeSpec{Mode: types.CipherModeXTSPlain}, nil
		case "plain64":
			return types.CipherModeSpec{Mode: types.CipherModeXTSPlain64}, nil
		}
	}
	return types.CipherModeSpec{}, fmt.Errorf("%w: cipher mode %q", types.ErrUnknownAlgorithm, mode)
}
