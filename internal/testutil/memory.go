package testutil

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
)

// MemoryDevice is an in-memory block device
type MemoryDevice struct {
	name    string
	data    []byte
	closed  bool
	onClose func()
}

// NewMemoryDevice wraps data as a block device
func NewMemoryDevice(name string, data []byte) *MemoryDevice {
	return &MemoryDevice{name: name, data: data}
}

func (m *MemoryDevice) Name() string { return m.name }

func (m *MemoryDevice) Size() int64 { return int64(len(m.data)) }

func (m *MemoryDevice) ReadAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, errors.New("testutil: read from closed device")
	}
	if off < 0 {
		return 0, fmt.Errorf("testutil: negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemoryDevice) Close() error {
	if m.closed {
		return errors.New("testutil: device already closed")
	}
	m.closed = true
	if m.onClose != nil {
		m.onClose()
	}
	return nil
}

// MemoryOpener serves named in-memory disks and counts open handles
type MemoryOpener struct {
	mu      sync.Mutex
	disks   map[string][]byte
	open    map[string]int
	opens   map[string]int
	failing map[string]error
}

// NewMemoryOpener creates an empty opener
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{
		disks:   make(map[string][]byte),
		open:    make(map[string]int),
		opens:   make(map[string]int),
		failing: make(map[string]error),
	}
}

// Add registers a disk image under name
func (o *MemoryOpener) Add(name string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disks[name] = data
}

// FailOpen makes OpenDevice return err for name
func (o *MemoryOpener) FailOpen(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failing[name] = err
}

// OpenDevice opens a registered disk
func (o *MemoryOpener) OpenDevice(name string) (interfaces.BlockDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failing[name]; err != nil {
		return nil, err
	}
	data, ok := o.disks[name]
	if !ok {
		return nil, fmt.Errorf("testutil: no disk named %q", name)
	}
	o.open[name]++
	o.opens[name]++
	dev := NewMemoryDevice(name, data)
	dev.onClose = func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.open[name]--
	}
	return dev, nil
}

// ListDevices returns the registered disk names in sorted order
func (o *MemoryOpener) ListDevices() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.disks))
	for name := range o.disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// OpenHandles returns the number of currently open devices for name
func (o *MemoryOpener) OpenHandles(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open[name]
}

// TotalOpens returns how many times name was opened
func (o *MemoryOpener) TotalOpens(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[name]
}
