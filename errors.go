// Package rowset maps hierarchical in-memory data sets onto relational SQL.
//
// This root package holds the error vocabulary shared by every layer:
// schema construction, expression translation, SQL generation and the
// hierarchical insert engine. Errors carry a stable Code so callers can
// react to a diagnostic without matching on message text.
package rowset

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a diagnostic in the externally observable failure vocabulary.
type Code string

// Diagnostic codes.
const (
	ColumnTypeNotSupported     Code = "ColumnTypeNotSupported"
	FunctionNotSupported       Code = "FunctionNotSupported"
	ConstraintTypeNotSupported Code = "ConstraintTypeNotSupported"
	VersionNotSupported        Code = "VersionNotSupported"
	TypeMismatch               Code = "TypeMismatch"
	CyclicDependency           Code = "CyclicDependency"
	InvalidSchema              Code = "InvalidSchema"
	AmbiguousKey               Code = "AmbiguousKey"
	ValidationFailed           Code = "ValidationFailed"
	ExecutionFailed            Code = "ExecutionFailed"
)

// messages holds the parameterized message of every code.
var messages = map[Code]string{
	ColumnTypeNotSupported:     "column type %s is not supported by %s",
	FunctionNotSupported:       "function %s is not supported by %s",
	ConstraintTypeNotSupported: "constraint %s is not supported by %s: %s",
	VersionNotSupported:        "version %s is not supported, minimum supported version is %s",
	TypeMismatch:               "type mismatch in %s: %s and %s",
	CyclicDependency:           "cyclic dependency between %s",
	InvalidSchema:              "%s",
	AmbiguousKey:               "key value %v of %s matches more than one row",
	ValidationFailed:           "%s",
	ExecutionFailed:            "%s",
}

// Message formats the message registered for code with args.
func Message(code Code, args ...any) string {
	format, ok := messages[code]
	if !ok {
		return string(code)
	}
	return fmt.Sprintf(format, args...)
}

// Sentinel errors, one per error class. Typed errors below match them with errors.Is.
var (
	// ErrSchema is matched by configuration-time schema errors.
	ErrSchema = errors.New("rowset: schema error")
	// ErrTranslation is matched by expression translation errors.
	ErrTranslation = errors.New("rowset: translation error")
	// ErrVersion is matched by unsupported server version errors.
	ErrVersion = errors.New("rowset: version not supported")
	// ErrExecution is matched by errors returned from the database.
	ErrExecution = errors.New("rowset: execution failed")
	// ErrTypeMismatch is matched by expression construction errors.
	ErrTypeMismatch = errors.New("rowset: type mismatch")
	// ErrValidation is matched by data set validation errors.
	ErrValidation = errors.New("rowset: validation failed")
)

// coded is implemented by every typed error of this package.
type coded interface {
	ErrorCode() Code
}

// CodeOf returns the diagnostic code carried by err or any error it wraps.
func CodeOf(err error) (Code, bool) {
	var c coded
	if errors.As(err, &c) {
		return c.ErrorCode(), true
	}
	return "", false
}

// SchemaError reports an unsupported or invalid schema construct. Schema errors
// are detected before any statement is sent and are never retryable.
type SchemaError struct {
	Code  Code
	Model string // Model name, if known.
	Args  []any
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	msg := Message(e.Code, e.Args...)
	if e.Model != "" {
		return fmt.Sprintf("rowset: %s: %s", e.Model, msg)
	}
	return "rowset: " + msg
}

// Is reports whether the target error matches SchemaError.
func (e *SchemaError) Is(err error) bool {
	return err == ErrSchema
}

// ErrorCode returns the diagnostic code.
func (e *SchemaError) ErrorCode() Code { return e.Code }

// NewSchemaError returns an InvalidSchema error for model.
func NewSchemaError(model, format string, args ...any) *SchemaError {
	return &SchemaError{Code: InvalidSchema, Model: model, Args: []any{fmt.Sprintf(format, args...)}}
}

// NewColumnTypeNotSupported returns the error raised when a dialect has no
// storage type for typ.
func NewColumnTypeNotSupported(dialect, typ string) *SchemaError {
	return &SchemaError{Code: ColumnTypeNotSupported, Args: []any{typ, dialect}}
}

// NewConstraintTypeNotSupported returns the error raised when a dialect cannot
// express a constraint.
func NewConstraintTypeNotSupported(dialect, constraint, reason string) *SchemaError {
	return &SchemaError{Code: ConstraintTypeNotSupported, Args: []any{constraint, dialect, reason}}
}

// NewAmbiguousKey returns the error raised when a placeholder key value of
// foreign key fk matches more than one staged row of the referenced model.
func NewAmbiguousKey(model, fk string, value any) *SchemaError {
	return &SchemaError{Code: AmbiguousKey, Model: model, Args: []any{value, fk}}
}

// IsSchemaError returns true if the error is a schema error.
func IsSchemaError(err error) bool {
	return err != nil && errors.Is(err, ErrSchema)
}

// CyclicDependencyError reports a foreign-key cycle between models that is
// not a single-table self reference.
type CyclicDependencyError struct {
	Models []string
}

// Error returns the error string.
func (e *CyclicDependencyError) Error() string {
	return "rowset: " + Message(CyclicDependency, strings.Join(e.Models, " -> "))
}

// Is reports whether the target error matches CyclicDependencyError.
func (e *CyclicDependencyError) Is(err error) bool {
	return err == ErrSchema
}

// ErrorCode returns the diagnostic code.
func (e *CyclicDependencyError) ErrorCode() Code { return CyclicDependency }

// TranslationError reports an expression that cannot be translated for a dialect.
type TranslationError struct {
	Code    Code
	Name    string
	Dialect string
}

// Error returns the error string.
func (e *TranslationError) Error() string {
	return "rowset: " + Message(e.Code, e.Name, e.Dialect)
}

// Is reports whether the target error matches TranslationError.
func (e *TranslationError) Is(err error) bool {
	return err == ErrTranslation
}

// ErrorCode returns the diagnostic code.
func (e *TranslationError) ErrorCode() Code { return e.Code }

// NewFunctionNotSupported returns the error raised when dialect has no mapping for a function.
func NewFunctionNotSupported(dialect, name string) *TranslationError {
	return &TranslationError{Code: FunctionNotSupported, Name: name, Dialect: dialect}
}

// IsTranslationError returns true if the error is a translation error.
func IsTranslationError(err error) bool {
	return err != nil && errors.Is(err, ErrTranslation)
}

// VersionError reports a server version below the minimum supported one.
type VersionError struct {
	Dialect string
	Version string
	Minimum string
}

// Error returns the error string.
func (e *VersionError) Error() string {
	return fmt.Sprintf("rowset: %s: %s", e.Dialect, Message(VersionNotSupported, e.Version, e.Minimum))
}

// Is reports whether the target error matches VersionError.
func (e *VersionError) Is(err error) bool {
	return err == ErrVersion
}

// ErrorCode returns the diagnostic code.
func (e *VersionError) ErrorCode() Code { return VersionNotSupported }

// IsVersionError returns true if the error is a version error.
func IsVersionError(err error) bool {
	return err != nil && errors.Is(err, ErrVersion)
}

// TypeMismatchError reports operands or arguments of incompatible types.
type TypeMismatchError struct {
	Op    string
	Left  string
	Right string
}

// Error returns the error string.
func (e *TypeMismatchError) Error() string {
	return "rowset: " + Message(TypeMismatch, e.Op, e.Left, e.Right)
}

// Is reports whether the target error matches TypeMismatchError.
func (e *TypeMismatchError) Is(err error) bool {
	return err == ErrTypeMismatch
}

// ErrorCode returns the diagnostic code.
func (e *TypeMismatchError) ErrorCode() Code { return TypeMismatch }

// NewTypeMismatchError returns a new TypeMismatchError.
func NewTypeMismatchError(op string, left, right fmt.Stringer) *TypeMismatchError {
	return &TypeMismatchError{Op: op, Left: left.String(), Right: right.String()}
}

// ValidationError reports a data set row that violates its model.
type ValidationError struct {
	Code   Code
	Model  string
	Column string
	Row    int // Ordinal of the offending row, -1 if not row specific.
	Err    error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("rowset: ")
	b.WriteString(e.Model)
	if e.Column != "" {
		b.WriteString(".")
		b.WriteString(e.Column)
	}
	if e.Row >= 0 {
		fmt.Fprintf(&b, " (row %d)", e.Row)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ValidationError.
func (e *ValidationError) Is(err error) bool {
	return err == ErrValidation
}

// ErrorCode returns the diagnostic code.
func (e *ValidationError) ErrorCode() Code {
	if e.Code == "" {
		return ValidationFailed
	}
	return e.Code
}

// NewValidationError returns a new ValidationError for a row column.
func NewValidationError(model, column string, row int, err error) *ValidationError {
	return &ValidationError{Code: ValidationFailed, Model: model, Column: column, Row: row, Err: err}
}

// IsValidationError returns true if the error is a validation error.
func IsValidationError(err error) bool {
	return err != nil && errors.Is(err, ErrValidation)
}

// ExecutionError wraps an error returned by the database while executing
// one step of an operation. The driver error is kept verbatim.
type ExecutionError struct {
	Step      string // Step that failed, e.g. "insert ProductCategory".
	Statement string // Statement text, if any.
	Err       error
}

// Error returns the error string.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rowset: %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ExecutionError.
func (e *ExecutionError) Is(err error) bool {
	return err == ErrExecution
}

// ErrorCode returns the diagnostic code.
func (e *ExecutionError) ErrorCode() Code { return ExecutionFailed }

// NewExecutionError returns a new ExecutionError.
func NewExecutionError(step, statement string, err error) *ExecutionError {
	return &ExecutionError{Step: step, Statement: statement, Err: err}
}

// IsExecutionError returns true if the error is an execution error.
func IsExecutionError(err error) bool {
	return err != nil && errors.Is(err, ErrExecution)
}
