package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-cryptodisk/internal/config"
	applog "github.com/deploymenttheory/go-cryptodisk/internal/log"
	"github.com/deploymenttheory/go-cryptodisk/internal/terminal"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app"
	"github.com/deploymenttheory/go-cryptodisk/pkg/services"
)

// version is overridden at build time
var version = "0.1.0-dev"

var (
	// Global flags
	verbose      bool
	quiet        bool
	outputFormat string
	configFile   string
	extraDisks   []string
)

var rootCmd = &cobra.Command{
	Use:   "cryptodisk",
	Short: "Unlock LUKS1 and GELI encrypted disks and read their decrypted sectors",
	Long: `cryptodisk discovers LUKS1 and FreeBSD GELI encrypted containers on disk
images and partitions, recovers the master key from a passphrase and serves
the decrypted volume sector by sector. Access is read-only.

Commands:
  luksmount   Unlock a LUKS1 container
  gelimount   Unlock a GELI provider
  probe       Show container headers without a passphrase
  list        Show configured disks and the containers on them`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", app.Diagnostic(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default searches for cryptodisk-config.yaml)")
	rootCmd.PersistentFlags().StringArrayVar(&extraDisks, "disk", nil, "disk image to scan in addition to the configured disks (repeatable)")
}

// newRuntime loads configuration and builds the application context and service for one command
func newRuntime(cmd *cobra.Command) (*app.Context, *services.CryptodiskService, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, app.NewError(app.ErrCodeInvalidInput, "failed to load configuration", err)
	}
	cfg.Disks = append(cfg.Disks, extraDisks...)
	switch {
	case quiet:
		cfg.LogLevel = "error"
	case verbose:
		cfg.LogLevel = "debug"
	}

	ctx := app.NewContext()
	if cmd.Context() != nil {
		ctx.Context = cmd.Context()
	}
	ctx.OutputFormat = outputFormat
	ctx.Verbose = verbose
	ctx.Quiet = quiet
	ctx.Stdout = cmd.OutOrStdout()
	ctx.Stderr = cmd.ErrOrStderr()
	ctx.Logger = applog.NewLogger(cfg, version)

	prompt := terminal.NewPrompt(os.Stdin, ctx.Stderr)
	return ctx, services.NewCryptodiskService(cfg, ctx.Logger, prompt, nil), nil
}
