package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldError is a single invalid setting.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found while loading.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):", len(e.Fields))
	for i, f := range e.Fields {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, f.Error())
	}
	return sb.String()
}

// Validator reads environment variables and accumulates problems so that
// startup reports all of them at once.
type Validator struct {
	errors []FieldError
	lookup func(string) string
}

func NewValidator() *Validator {
	return &Validator{lookup: os.Getenv}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

// Err returns a *ValidationError, or nil if nothing failed.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return &ValidationError{Fields: slices.Clone(v.errors)}
}

// Required returns the value of key, recording an error when it is unset.
func (v *Validator) Required(key string) string {
	value := strings.TrimSpace(v.lookup(key))
	if value == "" {
		v.AddError(key, "required environment variable not set")
	}
	return value
}

// String returns the value of key or def.
func (v *Validator) String(key, def string) string {
	if value := strings.TrimSpace(v.lookup(key)); value != "" {
		return value
	}
	return def
}

// PositiveInt parses key as an integer greater than zero.
func (v *Validator) PositiveInt(key string, def int) int {
	n := v.PositiveInt64(key, int64(def))
	return int(n)
}

func (v *Validator) PositiveInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(v.lookup(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return def
	}
	if n <= 0 {
		v.AddError(key, "must be a positive integer")
		return def
	}
	return n
}

// Duration parses key with time.ParseDuration.
func (v *Validator) Duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.lookup(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		v.AddError(key, "must be a positive duration (e.g. 10s, 1m)")
		return def
	}
	return d
}

// URL checks that a non-empty value is an absolute http(s) URL.
func (v *Validator) URL(key, value string) {
	if value == "" {
		return
	}
	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
		return
	}
	if parsed.Host == "" {
		v.AddError(key, "URL must include a host")
	}
}

// Addr checks a listen address of the form host:port or :port.
func (v *Validator) Addr(key, value string) {
	if value == "" {
		return
	}
	i := strings.LastIndex(value, ":")
	if i < 0 {
		v.AddError(key, "must be host:port or :port")
		return
	}
	port, err := strconv.Atoi(value[i+1:])
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}
	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
	}
}

// Enum checks that value is one of allowed.
func (v *Validator) Enum(key, value string, allowed []string) {
	if slices.Contains(allowed, value) {
		return
	}
	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// MinLength checks a non-empty value is at least minLen bytes.
func (v *Validator) MinLength(key, value string, minLen int) {
	if value == "" {
		return
	}
	if len(value) < minLen {
		v.AddError(key, fmt.Sprintf("must be at least %d characters long (got %d)", minLen, len(value)))
	}
}
