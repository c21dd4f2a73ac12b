package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/safetydb/internal/config"
	"github.com/roach88/safetydb/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose        bool
	Format         string // "json" | "text"
	ConfigPath     string
	DBPath         string
	RecoverCorrupt bool

	// Getenv overrides environment lookup (for testing).
	// If nil, defaults to os.Getenv.
	Getenv func(string) string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the safetydb CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safetydb",
		Short: "safetydb - workplace safety data store",
		Long: `Manage the embedded relational store behind the workplace safety app.

The store is a single file holding a complete database image. Every write
is made durable before it is acknowledged.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the store file (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.RecoverCorrupt, "recover-corrupt", false, "move an unreadable store aside and start empty")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadConfig resolves the effective configuration: file and environment,
// then command-line flags.
func (opts *RootOptions) loadConfig() (config.Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg, err := config.Load(opts.ConfigPath, getenv)
	if err != nil {
		return config.Config{}, err
	}
	if opts.DBPath != "" {
		cfg.Database.Path = opts.DBPath
	}
	if opts.RecoverCorrupt {
		cfg.Database.RecoverCorrupt = true
	}
	return cfg, nil
}

// openSession loads configuration, installs the logger and initializes a
// session. The caller must Close the session.
func (opts *RootOptions) openSession(cmd *cobra.Command, f *OutputFormatter) (*session.Session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, f.Fail("invalid configuration", err)
	}
	slog.SetDefault(cfg.NewLogger(cmd.ErrOrStderr(), opts.Verbose))

	f.VerboseLog("Opening store %s", cfg.Database.Path)
	sess := session.New(cfg.StoreOptions())
	if err := sess.Initialize(cmd.Context()); err != nil {
		exitErr := f.Fail("failed to open store", err)
		exitErr.Code = ExitCommandError
		return nil, exitErr
	}
	return sess, nil
}

// closeSession closes sess, reporting a failed final flush unless the
// command already failed.
func closeSession(sess *session.Session, f *OutputFormatter, err *error) {
	closeErr := sess.Close()
	if closeErr == nil {
		return
	}
	slog.Error("error closing store", "error", closeErr)
	if *err == nil {
		*err = f.Fail("failed to close store", closeErr)
	}
}
