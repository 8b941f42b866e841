// Package cryptodisk turns unlocked containers into sector-addressable virtual disks.
package cryptodisk

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/deploymenttheory/go-cryptodisk/internal/helpers"
	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/sirupsen/logrus"
)

// Options tunes registry behaviour
type Options struct {
	// PassphraseAttempts is how many passphrases are read per container before giving up
	PassphraseAttempts int
}

// ScanContext carries the search state of one scan or mount request
type ScanContext struct {
	// UUIDFilter restricts matches to the container with this UUID
	UUIDFilter string

	// Formats restricts probing to these formats. Empty probes all.
	Formats []types.ContainerFormat

	// Found is set once a matching container is registered or already present
	Found bool

	// Mounted lists names registered by this request
	Mounted []string
}

// CryptoDisk is a registered, unlocked container
type CryptoDisk struct {
	name          string
	uuid          string
	format        types.ContainerFormat
	source        string
	cipher        string
	transformer   interfaces.SectorTransformer
	logSectorSize uint
	payloadOffset uint64
	totalSectors  uint64
	slot          int
	backing       interfaces.BlockDevice
	refcount      int
}

// DeviceInfo describes a registered cryptodisk
type DeviceInfo struct {
	Name          string                `json:"name" yaml:"name"`
	UUID          string                `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Format        types.ContainerFormat `json:"format" yaml:"format"`
	Source        string                `json:"source" yaml:"source"`
	Cipher        string                `json:"cipher" yaml:"cipher"`
	Slot          int                   `json:"slot" yaml:"slot"`
	SectorSize    uint64                `json:"sector_size" yaml:"sector_size"`
	TotalSectors  uint64                `json:"total_sectors" yaml:"total_sectors"`
	PayloadOffset uint64                `json:"payload_offset" yaml:"payload_offset"`
	OpenCount     int                   `json:"open_count" yaml:"open_count"`
}

func (d *CryptoDisk) info() DeviceInfo {
	return DeviceInfo{
		Name:          d.name,
		UUID:          d.uuid,
		Format:        d.format,
		Source:        d.source,
		Cipher:        d.cipher,
		Slot:          d.slot,
		SectorSize:    1 << d.logSectorSize,
		TotalSectors:  d.totalSectors,
		PayloadOffset: d.payloadOffset,
		OpenCount:     d.refcount,
	}
}

// Handle is one open reference to a cryptodisk
type Handle struct {
	disk   *CryptoDisk
	closed bool
}

// Name returns the name of the cryptodisk behind the handle
func (h *Handle) Name() string {
	return h.disk.name
}

// SectorSize returns the sector size in bytes
func (h *Handle) SectorSize() int {
	return 1 << h.disk.logSectorSize
}

// TotalSectors returns the number of readable sectors
func (h *Handle) TotalSectors() uint64 {
	return h.disk.totalSectors
}

// Registry holds the cryptodisks unlocked in this session
type Registry struct {
	mu          sync.Mutex
	opener      interfaces.DiskOpener
	probes      []interfaces.ContainerProbe
	passphrases interfaces.PassphraseReader
	log         *logrus.Entry
	options     Options
	disks       []*CryptoDisk
	nextID      int
}

// NewRegistry creates an empty registry probing containers with probes in order
func NewRegistry(opener interfaces.DiskOpener, probes []interfaces.ContainerProbe, passphrases interfaces.PassphraseReader, log *logrus.Entry, options Options) *Registry {
	if log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(logger)
	}
	if options.PassphraseAttempts < 1 {
		options.PassphraseAttempts = 1
	}
	return &Registry{
		opener:      opener,
		probes:      probes,
		passphrases: passphrases,
		log:         log,
		options:     options,
	}
}

// bySource returns the cryptodisk backed by source. Caller holds r.mu.
func (r *Registry) bySource(source string) *CryptoDisk {
	for _, d := range r.disks {
		if d.source == source {
			return d
		}
	}
	return nil
}

// lookup resolves crypto<N> and cryptouuid/<uuid> names. Caller holds r.mu.
func (r *Registry) lookup(name string) (*CryptoDisk, error) {
	id, byUUID := strings.CutPrefix(name, uuidPrefix)
	for _, d := range r.disks {
		if d.name == name || (byUUID && UUIDMatches(d.uuid, id)) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrUnknownDevice, name)
}

func (sc *ScanContext) wants(format types.ContainerFormat) bool {
	return len(sc.Formats) == 0 || slices.Contains(sc.Formats, format)
}

// Scan probes source for a container and unlocks it. A source that is
// already registered succeeds without prompting. A source holding no
// recognised container is not an error; sc.Found stays false.
func (r *Registry) Scan(source string, sc *ScanContext) error {
	if sc == nil {
		sc = &ScanContext{}
	}

	r.mu.Lock()
	if existing := r.bySource(source); existing != nil {
		if sc.UUIDFilter == "" || UUIDMatches(existing.uuid, sc.UUIDFilter) {
			sc.Found = true
		}
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	dev, err := r.opener.OpenDevice(source)
	if err != nil {
		return fmt.Errorf("failed to open disk %s: %w", source, err)
	}
	defer dev.Close()

	var probed int
	var tooSmall []error
	for _, probe := range r.probes {
		if !sc.wants(probe.Format()) {
			continue
		}
		probed++

		log := r.log.WithFields(logrus.Fields{"disk": source, "format": probe.Format()})
		header, err := probe.Probe(dev)
		if errors.Is(err, types.ErrNotThisFormat) {
			continue
		}
		if errors.Is(err, types.ErrOutOfRange) {
			tooSmall = append(tooSmall, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s header on %s: %w", probe.Format(), source, err)
		}

		if sc.UUIDFilter != "" && !UUIDMatches(header.UUID(), sc.UUIDFilter) {
			log.WithField("uuid", header.UUID()).Debug("UUID does not match filter")
			return fmt.Errorf("%w: %s has uuid %q", types.ErrNotFound, source, header.UUID())
		}

		log.WithField("uuid", header.UUID()).Info("Found encrypted container")
		vol, err := r.unlock(dev, header)
		if err != nil {
			return err
		}
		return r.insert(source, header, vol, sc)
	}

	if probed > 0 && len(tooSmall) == probed {
		return fmt.Errorf("disk %s is too small for any container header: %w", source, errors.Join(tooSmall...))
	}
	r.log.WithField("disk", source).Debug("No encrypted container")
	return nil
}

// unlock prompts for passphrases until one unlocks header
func (r *Registry) unlock(dev interfaces.BlockDevice, header interfaces.ContainerHeader) (*interfaces.UnlockedVolume, error) {
	if r.passphrases == nil {
		return nil, fmt.Errorf("%w: no passphrase source", types.ErrAccessDenied)
	}

	prompt := fmt.Sprintf("Enter passphrase for %s (%s): ", dev.Name(), header.UUID())
	var lastErr error
	for attempt := 1; attempt <= r.options.PassphraseAttempts; attempt++ {
		passphrase, err := r.passphrases.ReadPassphrase(prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}

		vol, err := header.Unlock(dev, passphrase)
		helpers.Wipe(passphrase)
		if err == nil {
			return vol, nil
		}
		if !errors.Is(err, types.ErrAccessDenied) {
			return nil, err
		}

		r.log.WithFields(logrus.Fields{"disk": dev.Name(), "attempt": attempt}).Warn("Invalid passphrase")
		lastErr = err
	}
	return nil, fmt.Errorf("failed to unlock %s: %w", dev.Name(), lastErr)
}

// insert registers an unlocked volume under the next crypto<N> name
func (r *Registry) insert(source string, header interfaces.ContainerHeader, vol *interfaces.UnlockedVolume, sc *ScanContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bySource(source) != nil {
		vol.Transformer.Wipe()
		sc.Found = true
		return nil
	}

	d := &CryptoDisk{
		name:          fmt.Sprintf("crypto%d", r.nextID),
		uuid:          header.UUID(),
		format:        header.Format(),
		source:        source,
		cipher:        vol.Cipher,
		transformer:   vol.Transformer,
		logSectorSize: vol.Transformer.LogSectorSize(),
		payloadOffset: vol.PayloadOffset,
		totalSectors:  vol.TotalSectors,
		slot:          vol.Slot,
	}
	r.nextID++
	r.disks = append(r.disks, d)

	sc.Found = true
	sc.Mounted = append(sc.Mounted, d.name)
	r.log.WithFields(logrus.Fields{"name": d.name, "disk": source, "format": d.format, "slot": d.slot}).Info("Slot opened")
	return nil
}

// Open returns a handle on a registered cryptodisk, opening its backing disk on first use
func (r *Registry) Open(name string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if d.refcount == 0 {
		backing, err := r.opener.OpenDevice(d.source)
		if err != nil {
			return nil, fmt.Errorf("failed to open backing disk %s: %w", d.source, err)
		}
		d.backing = backing
	}
	d.refcount++
	return &Handle{disk: d}, nil
}

// Close releases h, closing the backing disk with the last handle.
// Closing a handle twice returns types.ErrHandleClosed.
func (r *Registry) Close(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil || h.closed {
		return types.ErrHandleClosed
	}
	h.closed = true

	return h.disk.release()
}

// release drops one reference, closing the backing disk with the last.
// The registry lock must be held.
func (d *CryptoDisk) release() error {
	d.refcount--
	if d.refcount > 0 {
		return nil
	}
	backing := d.backing
	d.backing = nil
	if err := backing.Close(); err != nil {
		return fmt.Errorf("failed to close backing disk %s: %w", d.source, err)
	}
	return nil
}

// Read fills buf with decrypted sectors starting at sector. buf must be a
// whole number of sectors.
func (r *Registry) Read(h *Handle, sector uint64, buf []byte) error {
	r.mu.Lock()
	if h == nil || h.closed {
		r.mu.Unlock()
		return types.ErrHandleClosed
	}
	d := h.disk
	backing := d.backing
	// The reference keeps backing open if h is closed mid-read
	d.refcount++
	r.mu.Unlock()
	defer r.unpin(d)

	if len(buf)&(1<<d.logSectorSize-1) != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %d-byte sectors", types.ErrIO, len(buf), 1<<d.logSectorSize)
	}
	count := uint64(len(buf)) >> d.logSectorSize
	if sector > d.totalSectors || count > d.totalSectors-sector {
		return fmt.Errorf("%w: sectors %d+%d past end of %s (%d sectors)", types.ErrOutOfRange, sector, count, d.name, d.totalSectors)
	}

	offset := d.payloadOffset + sector<<d.logSectorSize
	n, err := backing.ReadAt(buf, int64(offset))
	if n < len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		helpers.Wipe(buf)
		return fmt.Errorf("%w: failed to read %s at %d: %w", types.ErrIO, d.source, offset, err)
	}

	if err := d.transformer.DecryptSectors(buf, sector); err != nil {
		return fmt.Errorf("failed to decrypt %s sector %d: %w", d.name, sector, err)
	}
	return nil
}

func (r *Registry) unpin(d *CryptoDisk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := d.release(); err != nil {
		r.log.WithField("name", d.name).WithError(err).Warn("Failed to release backing disk")
	}
}

// Write always fails; cryptodisks are read-only.
func (r *Registry) Write(h *Handle, sector uint64, buf []byte) error {
	return fmt.Errorf("%w: write to cryptodisk", types.ErrNotImplemented)
}

// List returns every registered cryptodisk in registration order
func (r *Registry) List() []DeviceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]DeviceInfo, 0, len(r.disks))
	for _, d := range r.disks {
		infos = append(infos, d.info())
	}
	return infos
}

// Lookup describes the cryptodisk named name
func (r *Registry) Lookup(name string) (DeviceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.lookup(name)
	if err != nil {
		return DeviceInfo{}, err
	}
	return d.info(), nil
}

// Unload removes an idle cryptodisk and wipes its keys
func (r *Registry) Unload(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.unload(d)
}

// unload removes d. Caller holds r.mu.
func (r *Registry) unload(d *CryptoDisk) error {
	if d.refcount > 0 {
		return fmt.Errorf("%w: %s has %d open handles", types.ErrDeviceBusy, d.name, d.refcount)
	}
	d.transformer.Wipe()
	r.disks = slices.DeleteFunc(r.disks, func(other *CryptoDisk) bool { return other == d })
	r.log.WithField("name", d.name).Debug("Unloaded cryptodisk")
	return nil
}

// UnloadAll removes every idle cryptodisk, reporting the busy ones
func (r *Registry) UnloadAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, d := range slices.Clone(r.disks) {
		if err := r.unload(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
