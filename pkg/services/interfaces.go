package services

import (
	"context"
	"io"

	"github.com/deploymenttheory/go-cryptodisk/internal/managers/cryptodisk"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

// DeviceInfo describes an unlocked cryptodisk
type DeviceInfo = cryptodisk.DeviceInfo

// ContainerSummary describes a container header without unlocking it
type ContainerSummary = types.ContainerSummary

// MountOptions selects the containers one mount request unlocks
type MountOptions struct {
	Format types.ContainerFormat
	Source string
	UUID   string
	All    bool
}

// Mounter unlocks containers and reads their decrypted sectors
type Mounter interface {
	// Mount scans the selected disks and returns the cryptodisks that match
	Mount(ctx context.Context, opts MountOptions) ([]DeviceInfo, error)

	// Dump writes count decrypted sectors of cryptodisk name starting at sector
	Dump(name string, sector, count uint64, w io.Writer) (int64, error)

	// List returns every unlocked cryptodisk
	List() []DeviceInfo
}

// Prober parses container headers without a passphrase
type Prober interface {
	// Probe returns a summary per recognised container on source
	Probe(source string) ([]ContainerSummary, error)
}
