package terminal

import (
	"context"
	"io"
	"os"

	"github.com/genesis-labs/genesis-api/pkg/runtime/bootstrap"
	"github.com/genesis-labs/genesis-api/pkg/runtime/terminal/commands"
	"github.com/genesis-labs/genesis-api/pkg/runtime/terminal/export"
	"github.com/genesis-labs/genesis-api/pkg/services/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CLI represents the command-line interface
type CLI struct {
	output   io.Writer
	reporter *export.Reporter
	catalog  *Reporter
	open     commands.Opener
	logger   zerolog.Logger
	cfgPath  string
	rootCmd  *cobra.Command
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// Logs receives diagnostics; it defaults to stderr.
	Logs io.Writer
	// Open overrides how services are assembled from settings.
	Open commands.Opener
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logs == nil {
		opts.Logs = os.Stderr
	}

	cli := &CLI{
		output:   opts.Output,
		reporter: export.NewReporter(opts.Output),
		catalog:  NewReporter(opts.Output),
		open:     opts.Open,
		logger:   zerolog.New(zerolog.ConsoleWriter{Out: opts.Logs}).With().Timestamp().Logger(),
	}
	if cli.open == nil {
		cli.open = cli.openFromSettings
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

func (cli *CLI) ExecuteContext(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(cli.logger.WithContext(ctx))
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "genesis",
		Short:         "Genesis report tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(cli.output)
	cmd.PersistentFlags().StringVarP(&cli.cfgPath, "config", "c", "",
		"Path to a settings file; GENESIS_* variables override it")

	cmd.AddCommand(commands.NewReportCmd(cli.open, cli.reporter))
	cmd.AddCommand(commands.NewReportsCmd(cli.catalog))
	cmd.AddCommand(commands.NewMigrateCmd(cli.open))
	cmd.AddCommand(commands.NewSeedCmd(cli.open))

	return cmd
}

func (cli *CLI) openFromSettings(ctx context.Context, opts bootstrap.Options) (*bootstrap.App, error) {
	settings, err := config.Load(cli.cfgPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.Open(ctx, settings, opts)
}
