package models

import (
	"errors"
	"fmt"
)

// SchemaError reports a malformed or incomplete input record. It is fatal:
// no partial pipeline output is produced from malformed input.
type SchemaError struct {
	Source string // input name, e.g. "addressFeatures.json"
	Record string // address, line number or array index of the offending record
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema error in %s record %s", e.Source, e.Record)
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	return msg + ": " + e.Reason
}

// DuplicateKeyError reports two feature records that fold to the same
// address but disagree on at least one field.
type DuplicateKeyError struct {
	Address string `json:"address"`
	First   string `json:"first"`  // raw key of the first record
	Second  string `json:"second"` // raw key of the conflicting record
	Field   string `json:"field"`
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate address %s: records %q and %q disagree on %s",
		e.Address, e.First, e.Second, e.Field)
}

// ConflictError reports one address that two derivations assign to
// different values. Conflicts are collected, never tie-broken.
type ConflictError struct {
	Address string `json:"address"`
	First   string `json:"first"`
	Second  string `json:"second"`
	Source  string `json:"source"` // which derivation detected it
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s (%s): %s vs %s", e.Address, e.Source, e.First, e.Second)
}

// ConvergenceError is returned when a clustering strategy cannot produce a
// labeling for the given input and parameters.
type ConvergenceError struct {
	Strategy string
	Reason   string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: cannot produce a labeling: %s", e.Strategy, e.Reason)
}

// InsufficientLabelsError is returned when an agreement metric is requested
// on a partition with fewer than two distinct labels.
type InsufficientLabelsError struct {
	TrueClasses int
	PredClasses int
}

func (e *InsufficientLabelsError) Error() string {
	return fmt.Sprintf("agreement metrics undefined: %d true and %d predicted classes (need at least 2 each)",
		e.TrueClasses, e.PredClasses)
}

// StageError tags a failure with the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsInsufficientLabels reports whether err (or anything it wraps) is an
// InsufficientLabelsError.
func IsInsufficientLabels(err error) bool {
	var target *InsufficientLabelsError
	return errors.As(err, &target)
}
