package disk

import (
	"fmt"
	"os"

	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/sirupsen/logrus"
)

// ImageOpener opens configured disk images and their partitions
type ImageOpener struct {
	config *DiskConfig
	log    *logrus.Entry
}

var _ interfaces.DiskOpener = (*ImageOpener)(nil)

// NewImageOpener creates an opener over config.Disks
func NewImageOpener(config *DiskConfig, log *logrus.Entry) *ImageOpener {
	if config == nil {
		config = DefaultDiskConfig()
	}
	return &ImageOpener{config: config, log: log}
}

// OpenDevice opens a whole image by path or a partition as "path:N"
func (o *ImageOpener) OpenDevice(name string) (interfaces.BlockDevice, error) {
	if _, err := os.Stat(name); err == nil {
		return OpenImage(name, o.config)
	}

	path, index, ok := SplitPartitionName(name)
	if !ok {
		return OpenImage(name, o.config)
	}

	parts, err := Partitions(path)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		if p.Index == index {
			return OpenImageRange(path, name, p.Start, p.Size, o.config)
		}
	}
	return nil, fmt.Errorf("disk image %s has no partition %d", path, index)
}

// ListDevices returns each configured disk followed by its partitions
func (o *ImageOpener) ListDevices() ([]string, error) {
	var names []string
	for _, path := range o.config.Disks {
		names = append(names, path)
		if !o.config.ScanPartitions {
			continue
		}

		parts, err := Partitions(path)
		if err != nil {
			if o.log != nil {
				o.log.WithField("disk", path).Warnf("Failed to read partition table: %v", err)
			}
			continue
		}
		for _, p := range parts {
			names = append(names, PartitionName(path, p.Index))
		}
	}
	return names, nil
}
