package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
)

// cacheBlockSize is the granularity of the read cache
const cacheBlockSize = 4096

// DiskConfig holds configuration for disk access
type DiskConfig struct {
	Disks          []string `mapstructure:"disks"`
	ScanPartitions bool     `mapstructure:"scan_partitions"`
	CacheEnabled   bool     `mapstructure:"cache_enabled"`
	CacheSize      int      `mapstructure:"cache_size"`
}

// DefaultDiskConfig returns the configuration used when none is loaded
func DefaultDiskConfig() *DiskConfig {
	return &DiskConfig{ScanPartitions: true, CacheEnabled: true, CacheSize: 16}
}

// ImageDevice provides read access to a disk image file or a byte range of it
type ImageDevice struct {
	file             *os.File
	name             string
	size             int64
	offset           int64 // Start of the range within the file
	blockCache       map[int64][]byte
	cacheMutex       sync.RWMutex
	maxCacheSize     int64
	currentCacheSize int64
	stats            imageStatistics
}

// imageStatistics tracks image access statistics
type imageStatistics struct {
	blocksRead  int64
	bytesRead   int64
	cacheHits   int64
	cacheMisses int64
	mu          sync.Mutex
}

var _ interfaces.BlockDevice = (*ImageDevice)(nil)

// OpenImage opens a whole disk image
func OpenImage(path string, config *DiskConfig) (*ImageDevice, error) {
	return OpenImageRange(path, path, 0, -1, config)
}

// OpenImageRange opens size bytes of an image starting at offset. A negative size extends to the end of the file.
func OpenImageRange(path, name string, offset, size int64, config *DiskConfig) (*ImageDevice, error) {
	if config == nil {
		config = DefaultDiskConfig()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat disk image: %w", err)
	}

	if offset < 0 || offset > stat.Size() {
		file.Close()
		return nil, fmt.Errorf("range offset %d outside image of %d bytes", offset, stat.Size())
	}
	if size < 0 || offset+size > stat.Size() {
		size = stat.Size() - offset
	}

	device := &ImageDevice{
		file:       file,
		name:       name,
		size:       size,
		offset:     offset,
		blockCache: make(map[int64][]byte),
	}
	if config.CacheEnabled {
		device.maxCacheSize = int64(config.CacheSize) * 1024 * 1024
	}
	return device, nil
}

// Name returns the device name
func (d *ImageDevice) Name() string {
	return d.name
}

// Size returns the size of the range in bytes
func (d *ImageDevice) Size() int64 {
	return d.size
}

// ReadAt implements io.ReaderAt over the range, served through the block cache
func (d *ImageDevice) ReadAt(p []byte, off int64) (int, error) {
	if d.file == nil {
		return 0, errors.New("read from closed disk image")
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= d.size {
		return 0, io.EOF
	}

	want := len(p)
	var tailErr error
	if int64(want) > d.size-off {
		want = int(d.size - off)
		tailErr = io.EOF
	}

	if d.maxCacheSize == 0 {
		n, err := d.file.ReadAt(p[:want], d.offset+off)
		d.recordRead(n, false)
		if err != nil && err != io.EOF {
			return n, err
		}
		if n < want {
			return n, io.ErrUnexpectedEOF
		}
		return n, tailErr
	}

	n := 0
	for n < want {
		pos := off + int64(n)
		index := pos / cacheBlockSize
		block, err := d.block(index)
		if err != nil {
			return n, err
		}
		n += copy(p[n:want], block[pos-index*cacheBlockSize:])
	}
	return n, tailErr
}

// block returns cache block index, reading it on a miss
func (d *ImageDevice) block(index int64) ([]byte, error) {
	d.cacheMutex.RLock()
	cached, exists := d.blockCache[index]
	d.cacheMutex.RUnlock()
	if exists {
		d.recordRead(0, true)
		return cached, nil
	}

	start := index * cacheBlockSize
	length := min(int64(cacheBlockSize), d.size-start)
	data := make([]byte, length)
	n, err := d.file.ReadAt(data, d.offset+start)
	d.recordRead(n, false)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if int64(n) < length {
		return nil, io.ErrUnexpectedEOF
	}

	d.cacheMutex.Lock()
	if d.currentCacheSize+length <= d.maxCacheSize {
		d.blockCache[index] = data
		d.currentCacheSize += length
	}
	d.cacheMutex.Unlock()
	return data, nil
}

func (d *ImageDevice) recordRead(n int, hit bool) {
	d.stats.mu.Lock()
	defer d.stats.mu.Unlock()
	if hit {
		d.stats.cacheHits++
		return
	}
	d.stats.blocksRead++
	d.stats.bytesRead += int64(n)
	d.stats.cacheMisses++
}

// Close closes the image file and drops the cache
func (d *ImageDevice) Close() error {
	d.ClearCache()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// ClearCache clears the block cache
func (d *ImageDevice) ClearCache() {
	d.cacheMutex.Lock()
	defer d.cacheMutex.Unlock()
	d.blockCache = make(map[int64][]byte)
	d.currentCacheSize = 0
}

// CacheStatistics returns current cache statistics
func (d *ImageDevice) CacheStatistics() interfaces.BlockCacheStats {
	d.stats.mu.Lock()
	hits, misses := d.stats.cacheHits, d.stats.cacheMisses
	d.stats.mu.Unlock()

	d.cacheMutex.RLock()
	defer d.cacheMutex.RUnlock()

	stats := interfaces.BlockCacheStats{
		Hits:          uint64(hits),
		Misses:        uint64(misses),
		BlocksInCache: uint32(len(d.blockCache)),
		BytesCached:   uint64(d.currentCacheSize),
	}
	if total := hits + misses; total > 0 {
		stats.HitRatio = float64(hits) / float64(total) * 100.0
	}
	return stats
}

// BytesRead returns the number of bytes read from the file
func (d *ImageDevice) BytesRead() int64 {
	d.stats.mu.Lock()
	defer d.stats.mu.Unlock()
	return d.stats.bytesRead
}
