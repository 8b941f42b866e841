package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
)

var luksFlags mountFlags

var luksmountCmd = &cobra.Command{
	Use:   "luksmount [source]",
	Short: "Unlock a LUKS1 container",
	Long: `Unlock a LUKS1 container on a disk image or partition. The passphrase is
read from the terminal, or one line per attempt from standard input.

Examples:
  # Unlock the container on a partition
  cryptodisk luksmount disk.img:2

  # Search the configured disks for a container by UUID
  cryptodisk luksmount -u 6d2a1c3e-8f4b-4a5d-9e7f-0123456789ab --disk disk.img

  # Write the first 8 decrypted sectors to a file
  cryptodisk luksmount disk.img --dump-count 8 --out head.bin`,

	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(cmd, types.FormatLUKS, &luksFlags, args)
	},
}

func init() {
	rootCmd.AddCommand(luksmountCmd)
	luksFlags.register(luksmountCmd, false)
}
