package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

var geliFlags mountFlags

var gelimountCmd = &cobra.Command{
	Use:   "gelimount [source]",
	Short: "Unlock a GELI provider",
	Long: `Unlock a FreeBSD GELI provider whose metadata is stored in the last sector
of a disk image or partition.

Examples:
  # Unlock one provider
  cryptodisk gelimount freebsd.img:3

  # Unlock every provider on the configured disks
  cryptodisk gelimount -a --disk freebsd.img`,

	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(cmd, types.FormatGELI, &geliFlags, args)
	},
}

func init() {
	rootCmd.AddCommand(gelimountCmd)
	geliFlags.register(gelimountCmd, true)
}
