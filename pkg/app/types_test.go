package app

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  MountTarget
		wantErr bool
		str     string
	}{
		{"source", MountTarget{Source: "disk.img"}, false, "Disk: disk.img"},
		{"uuid", MountTarget{UUID: "abcd"}, false, "UUID: abcd"},
		{"all", MountTarget{All: true}, false, "All disks"},
		{"empty", MountTarget{}, true, "No target"},
		{"source and uuid", MountTarget{Source: "disk.img", UUID: "abcd"}, true, "Disk: disk.img"},
		{"uuid and all", MountTarget{UUID: "abcd", All: true}, true, "UUID: abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.str, tt.target.String())
		})
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("unlock: %w", types.ErrAccessDenied), ErrCodeAccessDenied},
		{types.ErrNotFound, ErrCodeNotFound},
		{fmt.Errorf("%w: %w", types.ErrMalformed, types.ErrUnknownAlgorithm), ErrCodeMalformed},
		{types.ErrUnknownAlgorithm, ErrCodeMalformed},
		{types.ErrOutOfRange, ErrCodeOutOfRange},
		{types.ErrUnknownDevice, ErrCodeUnknownDevice},
		{types.ErrNotImplemented, ErrCodeNotImplemented},
		{errors.New("disk on fire"), ErrCodeContainerAccess},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			common := FromError(tt.err)
			require.NotNil(t, common)
			assert.Equal(t, tt.code, common.Code)
			assert.ErrorIs(t, common, tt.err)
		})
	}

	assert.Nil(t, FromError(nil))

	original := NewError(ErrCodeInvalidInput, "bad flag", nil)
	assert.Same(t, original, FromError(fmt.Errorf("wrapped: %w", original)))
	assert.Equal(t, "bad flag", original.Error())
}

func TestDiagnostic(t *testing.T) {
	err := errors.Join(types.ErrAccessDenied, errors.New("second"))
	assert.Equal(t, "no matching keyslot: access denied; second", Diagnostic(err))
}

func TestContextOutput(t *testing.T) {
	var stderr bytes.Buffer
	ctx := NewContext()
	ctx.Stderr = &stderr

	ctx.Log("hidden")
	ctx.Verbose = true
	ctx.Log("shown")
	ctx.Error("broken")
	ctx.Quiet = true
	ctx.Error("silenced")
	assert.Equal(t, "shown\nError: broken\n", stderr.String())

	var progress []int
	ctx.SetProgress(func(_ string, percent int) { progress = append(progress, percent) })
	ctx.Progress("half", 50)
	assert.Equal(t, []int{50}, progress)

	child, cancel := ctx.WithCancel()
	cancel()
	assert.Error(t, child.Err())
	assert.NoError(t, ctx.Err())
}
