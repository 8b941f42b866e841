package cryptodisk

import (
	"context"
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

// ScanAll scans every disk the opener lists. Failures on one disk are
// logged and scanning moves on. With a UUID filter, scanning stops at the
// first match and types.ErrNotFound is returned when nothing matched.
func (r *Registry) ScanAll(ctx context.Context, sc *ScanContext) error {
	if sc == nil {
		sc = &ScanContext{}
	}

	names, err := r.opener.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list disks: %w", err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sc.UUIDFilter != "" && sc.Found {
			break
		}

		err := r.Scan(name, sc)
		switch {
		case err == nil:
		case errors.Is(err, types.ErrNotFound):
			r.log.WithField("disk", name).Debug(err)
		default:
			r.log.WithField("disk", name).Warnf("Scan failed: %v", err)
		}
	}

	if sc.UUIDFilter != "" && !sc.Found {
		return fmt.Errorf("%w: uuid %s", types.ErrNotFound, sc.UUIDFilter)
	}
	return nil
}
