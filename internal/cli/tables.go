package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/safetydb/internal/session"
	"github.com/roach88/safetydb/internal/store"
)

// TableCount is one line of the tables command.
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the application tables with row counts",
		Long: `List every application table in dependency order with its row count.
Migration bookkeeping and engine-internal tables are not shown.

Example:
  safetydb tables --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(rootOpts, cmd)
		},
	}
}

func runTables(opts *RootOptions, cmd *cobra.Command) (err error) {
	f := opts.formatter(cmd)
	sess, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer closeSession(sess, f, &err)

	counts, err := countTables(cmd, sess)
	if err != nil {
		return f.Fail("failed to count rows", err)
	}

	var b strings.Builder
	for _, c := range counts {
		fmt.Fprintf(&b, "%-18s %d\n", c.Table, c.Rows)
	}
	return f.Success(counts, b.String())
}

func countTables(cmd *cobra.Command, sess *session.Session) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(store.Tables))
	for _, table := range store.Tables {
		// Table names come from store.Tables, never from input.
		row, _, err := sess.QueryOne(cmd.Context(), "SELECT COUNT(*) AS n FROM "+table)
		if err != nil {
			return nil, err
		}
		n, _ := row.Int64("n")
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}
