package config

import (
	"errors"
	"fmt"
	"strings"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
)

var sslModes = []string{"disable", "require", "verify-ca", "verify-full"}

// FieldError is one failed check.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator collects field errors so that one pass reports every problem.
type Validator struct {
	section string
	errs    []FieldError
}

// NewValidator starts a validator; section prefixes every field name when set.
func NewValidator(section string) *Validator {
	return &Validator{section: section}
}

func (v *Validator) fail(field, format string, args ...any) *Validator {
	if v.section != "" {
		field = v.section + "." + field
	}
	v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.fail(field, "must not be empty")
	}
	return v
}

func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		return v.fail(field, "must be positive, got %d", value)
	}
	return v
}

// ValidateRange checks min <= value <= max.
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.fail(field, "must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange checks min <= value <= max.
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.fail(field, "must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidateSimilarity checks a cosine similarity threshold.
func (v *Validator) ValidateSimilarity(field string, value float64) *Validator {
	return v.ValidateFloatRange(field, value, 0, 1)
}

func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateOneOf compares case-insensitively.
func (v *Validator) ValidateOneOf(field, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return v
		}
	}
	return v.fail(field, "must be one of %s, got %q", strings.Join(allowed, "|"), value)
}

// Errors returns the collected field errors.
func (v *Validator) Errors() []FieldError {
	return v.errs
}

// Err returns nil when every check passed, otherwise one error wrapping ErrInvalidInput
// that lists all failed fields.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	errs := make([]error, 0, len(v.errs))
	for _, e := range v.errs {
		errs = append(errs, e)
	}
	return fmt.Errorf("%w: invalid configuration: %w", errorskg.ErrInvalidInput, errors.Join(errs...))
}

// Validate checks the connection settings.
func (p PostgresConfig) Validate() error {
	return NewValidator("postgres").
		RequireNonEmpty("host", p.Host).
		ValidatePort("port", p.Port).
		RequireNonEmpty("user", p.User).
		RequireNonEmpty("dbname", p.DBName).
		ValidateOneOf("sslmode", p.SSLMode, sslModes...).
		Err()
}

// Validate checks an enabled Redis section; a disabled one is always valid.
func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	return NewValidator("redis").
		ValidateRange("db", r.DB, 0, 15).
		RequireNonEmpty("prefix", r.Prefix).
		Err()
}

// Validate checks thresholds and limits of the retrieval pipeline.
func (r RetrievalConfig) Validate() error {
	return NewValidator("retrieval").
		ValidateSimilarity("fiberThreshold", r.FiberThreshold).
		ValidateSimilarity("documentThreshold", r.DocumentThreshold).
		ValidateSimilarity("fallbackScore", r.FallbackScore).
		RequirePositive("searchLimit", r.SearchLimit).
		RequirePositive("sparseThreshold", r.SparseThreshold).
		RequirePositive("historyWindow", r.HistoryWindow).
		RequirePositive("knowledgeLimit", r.KnowledgeLimit).
		RequirePositive("contextTokenBudget", r.ContextTokenBudget).
		Err()
}
