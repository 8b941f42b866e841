package disk

import (
	"fmt"
	"strconv"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
)

// PartitionInfo locates a partition inside a disk image
type PartitionInfo struct {
	Index int
	Start int64
	Size  int64
}

// Partitions returns the non-empty partitions of an image in table order.
// An image without a recognised partition table has none.
func Partitions(path string) ([]PartitionInfo, error) {
	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image %s: %w", path, err)
	}
	defer d.Close()

	table, err := d.GetPartitionTable()
	if err != nil {
		return nil, nil
	}

	var parts []PartitionInfo
	for i, p := range table.GetPartitions() {
		if p == nil || p.GetSize() <= 0 {
			continue
		}
		parts = append(parts, PartitionInfo{Index: i + 1, Start: p.GetStart(), Size: p.GetSize()})
	}
	return parts, nil
}

// PartitionName names partition index of the image at path
func PartitionName(path string, index int) string {
	return fmt.Sprintf("%s:%d", path, index)
}

// SplitPartitionName splits "path:N" into path and N. Names without a numeric suffix are whole disks.
func SplitPartitionName(name string) (string, int, bool) {
	i := strings.LastIndexByte(name, ':')
	if i <= 0 || i == len(name)-1 {
		return name, 0, false
	}
	index, err := strconv.Atoi(name[i+1:])
	if err != nil || index <= 0 {
		return name, 0, false
	}
	return name[:i], index, true
}
