package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-cryptodisk/internal/config"
	"github.com/deploymenttheory/go-cryptodisk/internal/disk"
	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"github.com/deploymenttheory/go-cryptodisk/internal/managers/cryptodisk"
	"github.com/deploymenttheory/go-cryptodisk/internal/managers/recovery"
	internalservices "github.com/deploymenttheory/go-cryptodisk/internal/services"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/sirupsen/logrus"
)

// dumpChunkSectors bounds the buffer used by Dump
const dumpChunkSectors = 64

// CryptodiskService wires configuration, disks, key recovery and the registry together
type CryptodiskService struct {
	config   *config.Config
	log      *logrus.Entry
	opener   interfaces.DiskOpener
	probes   []interfaces.ContainerProbe
	registry *cryptodisk.Registry
}

var (
	_ Mounter = (*CryptodiskService)(nil)
	_ Prober  = (*CryptodiskService)(nil)
)

// NewCryptodiskService creates the service. A nil opener reads the disk images named in cfg.
func NewCryptodiskService(cfg *config.Config, log *logrus.Entry, passphrases interfaces.PassphraseReader, opener interfaces.DiskOpener) *CryptodiskService {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}
	if opener == nil {
		opener = disk.NewImageOpener(&cfg.DiskConfig, log)
	}

	crypto := internalservices.NewCryptoService()
	options := recovery.Options{MaxIterations: cfg.MaxPBKDF2Iterations}
	probes := []interfaces.ContainerProbe{
		recovery.NewLUKSFormat(crypto, options, log),
		recovery.NewGELIFormat(crypto, options, log),
	}

	return &CryptodiskService{
		config:   cfg,
		log:      log,
		opener:   opener,
		probes:   probes,
		registry: cryptodisk.NewRegistry(opener, probes, passphrases, log, cryptodisk.Options{PassphraseAttempts: cfg.PassphraseAttempts}),
	}
}

// Registry returns the underlying cryptodisk registry
func (s *CryptodiskService) Registry() *cryptodisk.Registry {
	return s.registry
}

// Mount unlocks the containers selected by opts
func (s *CryptodiskService) Mount(ctx context.Context, opts MountOptions) ([]DeviceInfo, error) {
	sc := &cryptodisk.ScanContext{UUIDFilter: opts.UUID}
	if opts.Format != "" {
		sc.Formats = []types.ContainerFormat{opts.Format}
	}

	var err error
	switch {
	case opts.Source != "":
		err = s.registry.Scan(opts.Source, sc)
	case opts.UUID != "" || opts.All:
		err = s.registry.ScanAll(ctx, sc)
	default:
		return nil, errors.New("no mount target given")
	}
	if err != nil {
		return nil, err
	}
	if !sc.Found {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, describe(opts))
	}

	var mounted []DeviceInfo
	for _, info := range s.registry.List() {
		switch {
		case opts.Source != "" && info.Source == opts.Source,
			opts.UUID != "" && cryptodisk.UUIDMatches(info.UUID, opts.UUID):
			mounted = append(mounted, info)
		case opts.All:
			for _, name := range sc.Mounted {
				if info.Name == name {
					mounted = append(mounted, info)
				}
			}
		}
	}
	return mounted, nil
}

func describe(opts MountOptions) string {
	switch {
	case opts.Source != "":
		return opts.Source
	case opts.UUID != "":
		return "uuid " + opts.UUID
	}
	return "any disk"
}

// Dump writes count decrypted sectors of cryptodisk name, starting at sector, to w
func (s *CryptodiskService) Dump(name string, sector, count uint64, w io.Writer) (int64, error) {
	h, err := s.registry.Open(name)
	if err != nil {
		return 0, err
	}
	defer s.registry.Close(h)

	var written int64
	buf := make([]byte, min(count, dumpChunkSectors)*uint64(h.SectorSize()))
	for count > 0 {
		n := min(count, dumpChunkSectors)
		chunk := buf[:n*uint64(h.SectorSize())]
		if err := s.registry.Read(h, sector, chunk); err != nil {
			return written, err
		}
		m, err := w.Write(chunk)
		written += int64(m)
		if err != nil {
			return written, fmt.Errorf("failed to write decrypted sectors: %w", err)
		}
		sector += n
		count -= n
	}
	return written, nil
}

// List returns every unlocked cryptodisk
func (s *CryptodiskService) List() []DeviceInfo {
	return s.registry.List()
}

// Probe parses every known header format on source
func (s *CryptodiskService) Probe(source string) ([]ContainerSummary, error) {
	dev, err := s.opener.OpenDevice(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk %s: %w", source, err)
	}
	defer dev.Close()

	var summaries []ContainerSummary
	for _, probe := range s.probes {
		header, err := probe.Probe(dev)
		if errors.Is(err, types.ErrNotThisFormat) || errors.Is(err, types.ErrOutOfRange) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, header.Summary())
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: no encrypted container on %s", types.ErrNotFound, source)
	}
	return summaries, nil
}

// Disks returns every disk and partition available for scanning
func (s *CryptodiskService) Disks() ([]string, error) {
	return s.opener.ListDevices()
}

// Close unloads every idle cryptodisk, wiping its keys
func (s *CryptodiskService) Close() error {
	return s.registry.UnloadAll()
}
