package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify store integrity and foreign keys",
		Long: `Run the engine's integrity check and foreign key check against the store.
Exits with status 1 if either reports a problem.

Example:
  safetydb check --db ./data/safety.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command) (err error) {
	f := opts.formatter(cmd)
	sess, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer closeSession(sess, f, &err)

	st, err := sess.Store()
	if err != nil {
		return f.Fail("store unavailable", err)
	}
	report, err := st.Check(cmd.Context())
	if err != nil {
		return f.Fail("check failed to run", err)
	}

	if !report.OK() {
		_ = f.Error(ErrCodeCheckFailed, "store check found problems", report)
		if f.Format != "json" {
			var b strings.Builder
			for _, line := range report.Integrity {
				fmt.Fprintf(&b, "integrity: %s\n", line)
			}
			for _, ref := range report.ForeignKeyFailures {
				fmt.Fprintf(&b, "foreign key: %s rowid %d references missing %s row\n", ref.Table, ref.RowID, ref.Parent)
			}
			fmt.Fprint(f.GetErrWriter(), b.String())
		}
		return NewExitError(ExitFailure, "store check failed")
	}

	return f.Success(report, fmt.Sprintf("ok (schema version %d)\n", report.SchemaVersion))
}
