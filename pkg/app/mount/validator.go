package mount

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app"
)

// maxDumpSectors bounds a single dump request
const maxDumpSectors = 1 << 24

// Validate validates a mount request
func (r *Request) Validate() error {
	if r.Format != types.FormatLUKS && r.Format != types.FormatGELI {
		return app.NewError(app.ErrCodeInvalidInput, fmt.Sprintf("unsupported container format %q", r.Format), nil)
	}

	if err := r.Target.Validate(); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid mount target", err)
	}

	// Only GELI supports mounting every disk
	if r.Target.All && r.Format != types.FormatGELI {
		return app.NewError(app.ErrCodeInvalidInput, fmt.Sprintf("%s does not support mounting all disks", r.Format), nil)
	}

	if r.Target.UUID != "" && strings.ContainsAny(r.Target.UUID, " \t\n") {
		return app.NewError(app.ErrCodeInvalidInput, "uuid must not contain whitespace", nil)
	}
	if len(r.Target.UUID) > types.LUKSUUIDLength {
		return app.NewError(app.ErrCodeInvalidInput, fmt.Sprintf("uuid longer than %d characters", types.LUKSUUIDLength), nil)
	}

	if r.DumpCount > maxDumpSectors {
		return app.NewError(app.ErrCodeInvalidInput, fmt.Sprintf("dump count must be at most %d sectors", maxDumpSectors), nil)
	}
	if r.WantsDump() && r.OutPath == "" {
		return app.NewError(app.ErrCodeInvalidInput, "dump requires an output file", nil)
	}
	if !r.WantsDump() && r.OutPath != "" {
		return app.NewError(app.ErrCodeInvalidInput, "output file given without a dump count", nil)
	}

	return nil
}
