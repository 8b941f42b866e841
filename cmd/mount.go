package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app/mount"
)

// mountFlags are shared by the mount commands
type mountFlags struct {
	uuid       string
	all        bool
	dumpSector uint64
	dumpCount  uint64
	out        string
}

func (f *mountFlags) register(cmd *cobra.Command, allowAll bool) {
	cmd.Flags().StringVarP(&f.uuid, "uuid", "u", "", "mount the container with this UUID")
	if allowAll {
		cmd.Flags().BoolVarP(&f.all, "all", "a", false, "mount every container found")
		cmd.MarkFlagsMutuallyExclusive("uuid", "all")
	}
	cmd.Flags().Uint64Var(&f.dumpSector, "dump-sector", 0, "first decrypted sector to write after mounting")
	cmd.Flags().Uint64Var(&f.dumpCount, "dump-count", 0, "number of decrypted sectors to write")
	cmd.Flags().StringVar(&f.out, "out", "", "file receiving the dumped sectors")
	cmd.MarkFlagsRequiredTogether("dump-count", "out")
}

func runMount(cmd *cobra.Command, format types.ContainerFormat, flags *mountFlags, args []string) error {
	ctx, svc, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	request := &mount.Request{
		Format: format,
		Target: app.MountTarget{
			UUID: flags.uuid,
			All:  flags.all,
		},
		DumpSector: flags.dumpSector,
		DumpCount:  flags.dumpCount,
		OutPath:    flags.out,
	}
	if len(args) > 0 {
		request.Target.Source = args[0]
	}

	response, err := mount.Handle(ctx, svc, request)
	if err != nil {
		return err
	}
	if ctx.Quiet {
		return nil
	}
	return mount.FormatOutput(ctx.Stdout, response, ctx.OutputFormat)
}
