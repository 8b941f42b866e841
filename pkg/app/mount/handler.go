package mount

import (
	"fmt"
	"os"
	"time"

	"github.com/deploymenttheory/go-cryptodisk/pkg/app"
	"github.com/deploymenttheory/go-cryptodisk/pkg/services"
)

// Handle processes a mount request
func Handle(ctx *app.Context, svc services.Mounter, req *Request) (*Response, error) {
	startTime := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx.Log(fmt.Sprintf("Mounting %s container (%s)", req.Format, req.Target.String()))
	ctx.Progress("Scanning disks...", 10)

	devices, err := svc.Mount(ctx, services.MountOptions{
		Format: req.Format,
		Source: req.Target.Source,
		UUID:   req.Target.UUID,
		All:    req.Target.All,
	})
	if err != nil {
		return nil, app.FromError(err)
	}

	response := &Response{Devices: devices}
	for _, device := range devices {
		ctx.Log(fmt.Sprintf("Mounted %s from %s (slot %d)", device.Name, device.Source, device.Slot))
	}

	if req.WantsDump() {
		ctx.Progress("Reading decrypted sectors...", 60)
		dump, err := dumpSectors(svc, devices[0].Name, req)
		if err != nil {
			return nil, app.FromError(err)
		}
		response.Dump = dump
	}

	ctx.Progress("Complete", 100)
	response.Elapsed = time.Since(startTime)
	return response, nil
}

// dumpSectors writes the requested sectors of device to req.OutPath
func dumpSectors(svc services.Mounter, device string, req *Request) (*DumpResult, error) {
	out, err := os.OpenFile(req.OutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := svc.Dump(device, req.DumpSector, req.DumpCount, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}

	return &DumpResult{
		Device: device,
		Sector: req.DumpSector,
		Count:  req.DumpCount,
		Bytes:  written,
		Path:   req.OutPath,
	}, nil
}
