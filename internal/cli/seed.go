package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/safetydb/internal/seed"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	BcryptCost int
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo data set",
		Long: `Insert the demo users, training modules, incidents and documents.

Rows that already exist (matched on email or title) are left untouched, so
seed can be run repeatedly.

Example:
  safetydb seed --db ./data/safety.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.BcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for demo passwords")

	return cmd
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) (err error) {
	f := opts.formatter(cmd)
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		_ = f.Error(ErrCodeGeneric, fmt.Sprintf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost), nil)
		return NewExitError(ExitCommandError, "invalid bcrypt cost")
	}

	fixtures, err := seed.Demo()
	if err != nil {
		_ = f.Error(ErrCodeSeedFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to parse demo data", err)
	}

	sess, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer closeSession(sess, f, &err)

	report, err := seed.Run(cmd.Context(), sess, fixtures, seed.Options{BcryptCost: opts.BcryptCost})
	if err != nil {
		return f.Fail("failed to seed", err)
	}

	var b strings.Builder
	for _, line := range []struct {
		table  string
		counts seed.Counts
	}{
		{"users", report.Users},
		{"training_modules", report.Modules},
		{"incidents", report.Incidents},
		{"documents", report.Documents},
	} {
		fmt.Fprintf(&b, "%-18s created=%d skipped=%d\n", line.table, line.counts.Created, line.counts.Skipped)
	}
	return f.Success(report, b.String())
}
