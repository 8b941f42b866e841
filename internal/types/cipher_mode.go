package types

// CipherMode selects how a sector cipher chains blocks and derives IVs.
type CipherMode int

const (
	// CipherModeECB encrypts each block independently.
	CipherModeECB CipherMode = iota
	// CipherModeCBCPlain uses CBC with IV = le32(sector) zero-extended.
	CipherModeCBCPlain
	// CipherModeCBCPlain64 uses CBC with IV = le64(sector) zero-extended.
	CipherModeCBCPlain64
	// CipherModeCBCESSIV uses CBC with IV = E_salt(le64(sector)), salt = hash(key).
	CipherModeCBCESSIV
	// CipherModeXTSPlain uses XTS with a 32-bit sector tweak.
	CipherModeXTSPlain
	// CipherModeXTSPlain64 uses XTS with a 64-bit sector tweak.
	CipherModeXTSPlain64
	// CipherModeBytecount64Hash uses CBC with IV = SHA256(prefix || le64(byte offset)).
	CipherModeBytecount64Hash
	// CipherModeRekeyedBytecount64Hash is CipherModeBytecount64Hash with per-zone keys.
	CipherModeRekeyedBytecount64Hash
	// CipherModeXTSBytecount64 uses XTS with the byte offset as tweak.
	CipherModeXTSBytecount64
)

var cipherModeNames = map[CipherMode]string{
	CipherModeECB:                    "ecb",
	CipherModeCBCPlain:               "cbc-plain",
	CipherModeCBCPlain64:             "cbc-plain64",
	CipherModeCBCESSIV:               "cbc-essiv",
	CipherModeXTSPlain:               "xts-plain",
	CipherModeXTSPlain64:             "xts-plain64",
	CipherModeBytecount64Hash:        "cbc-bytecount64-hash",
	CipherModeRekeyedBytecount64Hash: "cbc-bytecount64-hash-rekeyed",
	CipherModeXTSBytecount64:         "xts-bytecount64",
}

func (m CipherMode) String() string {
	if name, ok := cipherModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// IsXTS reports whether the mode uses the XTS construction.
func (m CipherMode) IsXTS() bool {
	return m == CipherModeXTSPlain || m == CipherModeXTSPlain64 || m == CipherModeXTSBytecount64
}

// IsCBC reports whether the mode chains blocks with CBC inside a sector.
func (m CipherMode) IsCBC() bool {
	switch m {
	case CipherModeCBCPlain, CipherModeCBCPlain64, CipherModeCBCESSIV,
		CipherModeBytecount64Hash, CipherModeRekeyedBytecount64Hash:
		return true
	}
	return false
}

// NeedsIVHash reports whether the mode requires a hash for IV generation.
func (m CipherMode) NeedsIVHash() bool {
	return m == CipherModeCBCESSIV || m == CipherModeBytecount64Hash || m == CipherModeRekeyedBytecount64Hash
}

// CipherModeSpec is a parsed cipher mode with its optional IV hash.
type CipherModeSpec struct {
	Mode   CipherMode
	IVHash string
}

func (s CipherModeSpec) String() string {
	if s.Mode == CipherModeCBCESSIV && s.IVHash != "" {
		return "cbc-essiv:" + s.IVHash
	}
	return s.Mode.String()
}
