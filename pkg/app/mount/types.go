package mount

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app"
	"github.com/deploymenttheory/go-cryptodisk/pkg/services"
)

// Request represents a mount request for one container format
type Request struct {
	Format types.ContainerFormat
	Target app.MountTarget

	// Decrypted sector dump after mounting
	DumpSector uint64
	DumpCount  uint64
	OutPath    string
}

// Response represents the unlocked cryptodisks
type Response struct {
	Devices []services.DeviceInfo `json:"devices" yaml:"devices"`
	Dump    *DumpResult           `json:"dump,omitempty" yaml:"dump,omitempty"`
	Elapsed time.Duration         `json:"elapsed" yaml:"elapsed"`
}

// DumpResult describes sectors written to a file
type DumpResult struct {
	Device string `json:"device" yaml:"device"`
	Sector uint64 `json:"sector" yaml:"sector"`
	Count  uint64 `json:"count" yaml:"count"`
	Bytes  int64  `json:"bytes" yaml:"bytes"`
	Path   string `json:"path" yaml:"path"`
}

// WantsDump reports whether sectors should be written after mounting
func (r *Request) WantsDump() bool {
	return r.DumpCount > 0
}

// FormatSize returns a human-readable size string
func FormatSize(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
