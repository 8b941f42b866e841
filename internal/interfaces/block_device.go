// File: internal/interfaces/block_device.go
package interfaces

import "io"

// BlockDevice is a readable disk or partition
type BlockDevice interface {
	io.ReaderAt
	io.Closer

	// Name returns the name the device was opened by
	Name() string

	// Size returns the device size in bytes
	Size() int64
}

// DiskOpener resolves disk names to block devices
type DiskOpener interface {
	// OpenDevice opens a disk or partition by name
	OpenDevice(name string) (BlockDevice, error)

	// ListDevices returns every disk and partition name available for scanning
	ListDevices() ([]string, error)
}

// BlockCacheStats contains cache performance statistics
type BlockCacheStats struct {
	// Total number of cache hits
	Hits uint64

	// Total number of cache misses
	Misses uint64

	// Current number of blocks in cache
	BlocksInCache uint32

	// Cache hit ratio as a percentage
	HitRatio float64

	// Total bytes currently cached
	BytesCached uint64
}
