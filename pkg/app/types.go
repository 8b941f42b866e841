package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

// MountTarget selects which containers a mount request unlocks
type MountTarget struct {
	Source string
	UUID   string
	All    bool
}

// Validate ensures exactly one selector is set
func (mt *MountTarget) Validate() error {
	set := 0
	if mt.Source != "" {
		set++
	}
	if mt.UUID != "" {
		set++
	}
	if mt.All {
		set++
	}
	switch set {
	case 0:
		return errors.New("specify a source disk, a UUID or all")
	case 1:
		return nil
	default:
		return errors.New("source, uuid and all are mutually exclusive")
	}
}

// String returns a string representation of the mount target
func (mt *MountTarget) String() string {
	switch {
	case mt.Source != "":
		return "Disk: " + mt.Source
	case mt.UUID != "":
		return "UUID: " + mt.UUID
	case mt.All:
		return "All disks"
	}
	return "No target"
}

// CommonError represents application-level errors
type CommonError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CommonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommonError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAccessDenied    = "ACCESS_DENIED"
	ErrCodeMalformed       = "MALFORMED"
	ErrCodeOutOfRange      = "OUT_OF_RANGE"
	ErrCodeUnknownDevice   = "UNKNOWN_DEVICE"
	ErrCodeNotImplemented  = "NOT_IMPLEMENTED"
	ErrCodeContainerAccess = "CONTAINER_ACCESS"
)

// NewError creates a new CommonError
func NewError(code, message string, cause error) *CommonError {
	return &CommonError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// FromError classifies err into a CommonError. Errors that already are one pass through.
func FromError(err error) *CommonError {
	if err == nil {
		return nil
	}
	var common *CommonError
	if errors.As(err, &common) {
		return common
	}

	switch {
	case errors.Is(err, types.ErrAccessDenied):
		return NewError(ErrCodeAccessDenied, "no matching keyslot", err)
	case errors.Is(err, types.ErrNotFound):
		return NewError(ErrCodeNotFound, "no such cryptodisk found", err)
	case errors.Is(err, types.ErrMalformed), errors.Is(err, types.ErrUnknownAlgorithm):
		return NewError(ErrCodeMalformed, "invalid container header", err)
	case errors.Is(err, types.ErrOutOfRange):
		return NewError(ErrCodeOutOfRange, "attempt to read outside of disk", err)
	case errors.Is(err, types.ErrUnknownDevice):
		return NewError(ErrCodeUnknownDevice, "no such cryptodisk", err)
	case errors.Is(err, types.ErrNotImplemented):
		return NewError(ErrCodeNotImplemented, "operation not supported", err)
	}
	return NewError(ErrCodeContainerAccess, "container access failed", err)
}

// Diagnostic renders err as a single line
func Diagnostic(err error) string {
	return strings.ReplaceAll(FromError(err).Error(), "\n", "; ")
}
