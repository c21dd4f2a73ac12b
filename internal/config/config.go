// Package config loads safetydb settings.
//
// Sources, lowest precedence first: schema defaults, an optional YAML
// file, then environment variables. The merged document is checked
// against an embedded CUE schema before it is decoded, so a Config
// returned by Load is always complete and valid.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/safetydb/internal/store"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override file settings.
const (
	EnvDBPath         = "SAFETY_DB_PATH"
	EnvRecoverCorrupt = "SAFETY_DB_RECOVER_CORRUPT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// Config is the validated configuration.
type Config struct {
	Database Database `json:"database"`
	Log      Log      `json:"log"`
}

type Database struct {
	Path           string `json:"path"`
	RecoverCorrupt bool   `json:"recover_corrupt"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Error reports an invalid configuration source.
type Error struct {
	Source  string // file path, env var, or "schema"
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Source, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsConfigError returns true if err is, or wraps, a config Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Load reads path (skipped when empty), applies overrides from getenv and
// validates the result. A nil getenv means os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	doc := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Source: path, Message: "cannot read file", Err: err}
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Config{}, &Error{Source: path, Message: "invalid YAML", Err: err}
		}
		if doc == nil {
			doc = map[string]any{}
		}
	}

	if err := applyEnv(doc, getenv); err != nil {
		return Config{}, err
	}
	return validate(doc)
}

// Default returns the configuration with every field at its default.
func Default() Config {
	cfg, err := validate(map[string]any{})
	if err != nil {
		panic(fmt.Sprintf("config schema defaults: %v", err))
	}
	return cfg
}

func applyEnv(doc map[string]any, getenv func(string) string) error {
	if v := getenv(EnvDBPath); v != "" {
		section(doc, "database")["path"] = v
	}
	if v := getenv(EnvRecoverCorrupt); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Source: EnvRecoverCorrupt, Message: fmt.Sprintf("not a boolean: %q", v), Err: err}
		}
		section(doc, "database")["recover_corrupt"] = b
	}
	if v := getenv(EnvLogLevel); v != "" {
		section(doc, "log")["level"] = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		section(doc, "log")["format"] = v
	}
	return nil
}

// section returns doc[name] as a map, replacing anything that is not one.
// A non-map value left in place would fail schema validation anyway.
func section(doc map[string]any, name string) map[string]any {
	if m, ok := doc[name].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	doc[name] = m
	return m
}

func validate(doc map[string]any) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, &Error{Source: "schema", Message: "invalid schema", Err: err}
	}

	merged := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return Config{}, &Error{Source: "schema", Message: firstCUEError(err), Err: err}
	}

	var cfg Config
	if err := merged.Decode(&cfg); err != nil {
		return Config{}, &Error{Source: "schema", Message: "decode", Err: err}
	}
	return cfg, nil
}

// firstCUEError returns the first message of a CUE error list.
func firstCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}

// StoreOptions maps the database section onto store options.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Path:           c.Database.Path,
		RecoverCorrupt: c.Database.RecoverCorrupt,
	}
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
// verbose forces debug level.
func (c Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := c.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
