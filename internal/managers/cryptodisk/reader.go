package cryptodisk

import (
	"fmt"
	"io"

	"github.com/deploymenttheory/go-cryptodisk/internal/helpers"
)

// VolumeReader reads decrypted bytes at arbitrary offsets of an open cryptodisk
type VolumeReader struct {
	registry *Registry
	handle   *Handle
}

var _ io.ReaderAt = (*VolumeReader)(nil)

// ReaderAt returns a byte-addressed reader over h. The reader is valid until h is closed.
func (r *Registry) ReaderAt(h *Handle) *VolumeReader {
	return &VolumeReader{registry: r, handle: h}
}

// Size returns the decrypted volume size in bytes
func (v *VolumeReader) Size() int64 {
	return int64(v.handle.TotalSectors()) * int64(v.handle.SectorSize())
}

// ReadAt reads whole sectors covering [off, off+len(p)) and copies out the requested range
func (v *VolumeReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	size := v.Size()
	if off >= size {
		return 0, io.EOF
	}

	want := len(p)
	var tailErr error
	if int64(want) > size-off {
		want = int(size - off)
		tailErr = io.EOF
	}
	if want == 0 {
		return 0, tailErr
	}

	sectorSize := int64(v.handle.SectorSize())
	first := off / sectorSize
	last := (off + int64(want) - 1) / sectorSize
	buf := make([]byte, (last-first+1)*sectorSize)
	defer helpers.Wipe(buf)

	if err := v.registry.Read(v.handle, uint64(first), buf); err != nil {
		return 0, err
	}
	n := copy(p[:want], buf[off-first*sectorSize:])
	return n, tailErr
}
