package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/safetydb/internal/safety"
	"github.com/roach88/safetydb/internal/store"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run a read statement and print the rows",
		Long: `Run a single read statement. Positional arguments after the statement are
bound to its ? placeholders as text; the engine converts them where the
column type requires it.

Text output prints one row per line as JSON with sorted keys.

Example:
  safetydb query "SELECT id, title FROM incidents WHERE status = ?" reported`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd, args[0], bindArgs(args[1:]))
		},
	}
}

// ExecResult is the JSON payload of the exec command.
type ExecResult struct {
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run a mutating statement and persist the store",
		Long: `Run a single mutating statement. The store file is rewritten before the
command reports success; if that fails the change is rolled back.

Example:
  safetydb exec "UPDATE incidents SET status = ? WHERE id = ?" resolved 3`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(rootOpts, cmd, args[0], bindArgs(args[1:]))
		},
	}
}

func bindArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

func runQuery(opts *RootOptions, cmd *cobra.Command, query string, args []any) (err error) {
	f := opts.formatter(cmd)
	sess, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer closeSession(sess, f, &err)

	rows, err := sess.QueryAll(cmd.Context(), query, args...)
	if err != nil {
		return f.Fail("query failed", err)
	}
	f.VerboseLog("%d row(s)", len(rows))

	text, err := rowsText(rows)
	if err != nil {
		return f.Fail("failed to format rows", err)
	}
	return f.Success(rows, text)
}

func rowsText(rows []store.Row) (string, error) {
	var b strings.Builder
	for _, row := range rows {
		line, err := safety.MarshalCanonical(row)
		if err != nil {
			return "", err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func runExec(opts *RootOptions, cmd *cobra.Command, query string, args []any) (err error) {
	f := opts.formatter(cmd)
	sess, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer closeSession(sess, f, &err)

	res, err := sess.Execute(cmd.Context(), query, args...)
	if err != nil {
		return f.Fail("statement failed", err)
	}

	result := ExecResult{LastInsertID: res.LastInsertID, RowsAffected: res.RowsAffected}
	return f.Success(result, fmt.Sprintf("rows_affected=%d last_insert_id=%d\n", result.RowsAffected, result.LastInsertID))
}
