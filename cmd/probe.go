package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-cryptodisk/pkg/app/probe"
)

var probeCmd = &cobra.Command{
	Use:   "probe source...",
	Short: "Show container headers without a passphrase",
	Long: `Parse LUKS1 and GELI headers and print the format, cipher, mode, hash,
UUID and enabled keyslots. Nothing is decrypted.

Examples:
  cryptodisk probe disk.img disk.img:1
  cryptodisk probe -o json freebsd.img`,

	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd, args)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show configured disks and the containers on them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd, nil)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd, listCmd)
}

// runProbe probes sources, or every configured disk when sources is empty
func runProbe(cmd *cobra.Command, sources []string) error {
	ctx, svc, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if len(sources) == 0 {
		sources, err = svc.Disks()
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Fprintln(ctx.Stderr, "No disks configured; add them under disks in cryptodisk-config.yaml or with --disk")
			return nil
		}
	}

	response, err := probe.Handle(ctx, svc, &probe.Request{Sources: sources})
	if err != nil {
		return err
	}
	if ctx.Quiet {
		return nil
	}
	return probe.FormatOutput(ctx.Stdout, response, ctx.OutputFormat)
}
