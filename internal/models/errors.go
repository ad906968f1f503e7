package models

import (
	"errors"
	"fmt"
)

// InvalidCriteriaError reports search criteria rejected before any request is made.
type InvalidCriteriaError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidCriteriaError) Error() string {
	return fmt.Sprintf("invalid search criteria: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// SourceSchemaError means a page no longer has the structure the scraper
// relies on. Retrying does not help.
type SourceSchemaError struct {
	URL  string
	What string
	Err  error
}

func (e *SourceSchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source schema mismatch at %s: %s: %v", e.URL, e.What, e.Err)
	}
	return fmt.Sprintf("source schema mismatch at %s: %s", e.URL, e.What)
}

func (e *SourceSchemaError) Unwrap() error { return e.Err }

// FetchError is a failed HTTP fetch, after any retries.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether another attempt could succeed: transport
// failures, throttling and server errors.
func (e *FetchError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// MissingFieldError is a structurally required field absent from a listing page.
type MissingFieldError struct {
	URL   string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("listing %s: missing field %q", e.URL, e.Field)
}

// FieldParseError is a present but unparseable value in a row-fatal field.
type FieldParseError struct {
	URL   string
	Field string
	Value string
	Err   error
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("listing %s: cannot parse %s from %q: %v", e.URL, e.Field, e.Value, e.Err)
}

func (e *FieldParseError) Unwrap() error { return e.Err }

// ErrorKind buckets per-listing failures for run statistics.
func ErrorKind(err error) string {
	var (
		schemaErr  *SourceSchemaError
		fetchErr   *FetchError
		missingErr *MissingFieldError
		parseErr   *FieldParseError
	)
	switch {
	case errors.As(err, &schemaErr):
		return "source_schema"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &missingErr):
		return "missing_field"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "other"
	}
}
