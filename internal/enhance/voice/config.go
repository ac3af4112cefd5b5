package voice

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/citytrain/internal/synth"
)

//go:embed schema.cue
var schemaSource []byte

// Settings is the validated service configuration for one enhancement call.
type Settings struct {
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	Table        string `json:"table"`
	Voice        string `json:"voice"`
	Engine       string `json:"engine"`
	LanguageCode string `json:"languageCode"`
	OutputFormat string `json:"outputFormat"`
	SampleRate   string `json:"sampleRate"`
	TextType     string `json:"textType"`
	Concurrency  int    `json:"concurrency"`
}

// SynthConfig returns the voice parameters sent with each task.
func (s Settings) SynthConfig() synth.Config {
	return synth.Config{
		OutputFormat: s.OutputFormat,
		Engine:       s.Engine,
		LanguageCode: s.LanguageCode,
		SampleRate:   s.SampleRate,
		TextType:     s.TextType,
		VoiceID:      s.Voice,
	}
}

// Namespace is the breadcrumb key prefix for these settings.
func (s Settings) Namespace() string {
	return Namespace(s.Table, s.Prefix)
}

// Namespace joins a table name and key prefix into the breadcrumb prefix.
// Lookups outside the enhancement (CLI, server) must use the same value.
func Namespace(table, prefix string) string {
	return table + "/" + prefix
}

// Defaults returns the built-in values for every optional key.
func Defaults() map[string]any {
	return map[string]any{
		"prefix":       "",
		"voice":        "Matthew",
		"engine":       "neural",
		"languageCode": "en-US",
		"outputFormat": "mp3",
		"sampleRate":   "24000",
		"textType":     "text",
		"concurrency":  4,
	}
}

// ConfigError reports an invalid merged service configuration. It rejects
// the whole enhancement call.
type ConfigError struct {
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("voice config: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile voice schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("compile voice schema: #Config not found")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// ResolveSettings layers defaults, then base, then params, and validates
// the result against the schema. Unknown keys, wrong types and missing
// required keys all yield a *ConfigError.
func ResolveSettings(base, params map[string]any) (Settings, error) {
	merged := Defaults()
	maps.Copy(merged, base)
	maps.Copy(merged, params)

	// A bare number is the natural way to write a sample rate in a
	// composition string.
	switch rate := merged["sampleRate"].(type) {
	case int:
		merged["sampleRate"] = strconv.Itoa(rate)
	case int64:
		merged["sampleRate"] = strconv.FormatInt(rate, 10)
	}

	cctx, schema, err := loadSchema()
	if err != nil {
		return Settings{}, err
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := cctx.Encode(merged)
	if err := v.Err(); err != nil {
		return Settings{}, &ConfigError{Message: formatCUEError(err), Cause: err}
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Settings{}, &ConfigError{Message: formatCUEError(err), Cause: err}
	}

	var s Settings
	if err := unified.Decode(&s); err != nil {
		return Settings{}, &ConfigError{Message: formatCUEError(err), Cause: err}
	}
	return s, nil
}

// formatCUEError flattens CUE's error list into one line.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
