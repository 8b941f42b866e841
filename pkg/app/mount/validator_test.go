package mount

import (
	"errors"
	"strings"
	"testing"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		request Request
		wantErr bool
	}{
		{"luks source", Request{Format: types.FormatLUKS, Target: app.MountTarget{Source: "disk.img"}}, false},
		{"luks uuid", Request{Format: types.FormatLUKS, Target: app.MountTarget{UUID: "6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab"}}, false},
		{"geli all", Request{Format: types.FormatGELI, Target: app.MountTarget{All: true}}, false},
		{"luks all", Request{Format: types.FormatLUKS, Target: app.MountTarget{All: true}}, true},
		{"unknown format", Request{Format: "bitlocker", Target: app.MountTarget{Source: "disk.img"}}, true},
		{"no target", Request{Format: types.FormatGELI}, true},
		{"source and uuid", Request{Format: types.FormatGELI, Target: app.MountTarget{Source: "a", UUID: "b"}}, true},
		{"uuid with space", Request{Format: types.FormatLUKS, Target: app.MountTarget{UUID: "6d2a 1c3e"}}, true},
		{"uuid too long", Request{Format: types.FormatLUKS, Target: app.MountTarget{UUID: strings.Repeat("a", 41)}}, true},
		{"dump", Request{Format: types.FormatLUKS, Target: app.MountTarget{Source: "a"}, DumpCount: 4, OutPath: "out.bin"}, false},
		{"dump without file", Request{Format: types.FormatLUKS, Target: app.MountTarget{Source: "a"}, DumpCount: 4}, true},
		{"file without dump", Request{Format: types.FormatLUKS, Target: app.MountTarget{Source: "a"}, OutPath: "out.bin"}, true},
		{"dump too large", Request{Format: types.FormatLUKS, Target: app.MountTarget{Source: "a"}, DumpCount: maxDumpSectors + 1, OutPath: "out.bin"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var common *app.CommonError
			require.True(t, errors.As(err, &common))
			assert.Equal(t, app.ErrCodeInvalidInput, common.Code)
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{8 * 512, "4.0 KB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.size))
	}
}
