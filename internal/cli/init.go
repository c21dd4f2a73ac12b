package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Location      string `json:"location"`
	SchemaVersion int64  `json:"schema_version"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store or bring its schema up to date",
		Long: `Open the store, creating it if it does not exist, and apply any pending
schema migrations. Running init against an up-to-date store changes nothing.

Example:
  safetydb init --db ./data/safety.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) (err error) {
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
		return f.Fail("failed to read schema version", err)
	}

	result := InitResult{Location: st.Location(), SchemaVersion: report.SchemaVersion}
	return f.Success(result, fmt.Sprintf("Store ready at %s (schema version %d)\n", result.Location, result.SchemaVersion))
}
