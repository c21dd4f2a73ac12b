package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/safetydb/internal/config"
	"github.com/roach88/safetydb/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"rows": 3}, "ignored in json\n")
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"rows": float64(3)}, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeQueryFailed, "query failed", map[string]string{"statement": "SELEC 1"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "query failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(struct{}{}, "Store ready\n")
	require.NoError(t, err)
	assert.Equal(t, "Store ready\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   true,
	}

	err := formatter.Error("E001", "something broke", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [E001]: something broke")
	assert.Contains(t, errOut.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Opening store %s", "safety.db")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Opening store safety.db")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{"config", &config.Error{Source: "x.yaml", Message: "bad"}, ErrCodeConfig, ExitCommandError},
		{"corrupt", &store.LoadCorruptionError{Location: "x.db", Err: errors.New("not a database")}, ErrCodeCorrupt, ExitCommandError},
		{"persist", &store.PersistenceError{Location: "x.db", RolledBack: true, Err: errors.New("disk full")}, ErrCodePersist, ExitFailure},
		{"not read only", &store.QueryError{Statement: "DELETE FROM users", Err: store.ErrNotReadOnly}, ErrCodeNotReadOnly, ExitFailure},
		{"constraint", &store.QueryError{Statement: "INSERT", Constraint: store.ConstraintUnique, Err: errors.New("UNIQUE")}, ErrCodeConstraint, ExitFailure},
		{"query", &store.QueryError{Statement: "SELEC", Err: errors.New("syntax error")}, ErrCodeQueryFailed, ExitFailure},
		{"schema", &store.SchemaError{Err: errors.New("migration 2")}, ErrCodeOpenFailed, ExitCommandError},
		{"wrapped", fmt.Errorf("seed user: %w", &store.QueryError{Statement: "INSERT", Constraint: store.ConstraintCheck, Err: errors.New("CHECK")}), ErrCodeConstraint, ExitFailure},
		{"other", errors.New("boom"), ErrCodeGeneric, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestFail_JSONDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := &store.QueryError{Statement: "INSERT INTO users", Constraint: store.ConstraintNotNull, Err: errors.New("NOT NULL")}
	exitErr := formatter.Fail("statement failed", cause)
	assert.Equal(t, ExitFailure, exitErr.Code)
	assert.ErrorIs(t, exitErr, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConstraint, resp.Error.Code)
	assert.Equal(t, map[string]any{"statement": "INSERT INTO users", "constraint": "not_null"}, resp.Error.Details)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner"))))
}
