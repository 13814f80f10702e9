package schema

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// ValidateFunc validates the values of the validator columns of one row, in
// column order. NULL values are passed as nil.
type ValidateFunc func(values []any) error

// Validator is a named row check over a set of columns.
type Validator struct {
	name    string
	columns []*Column
	fn      ValidateFunc
}

// Name returns the validator name.
func (v *Validator) Name() string { return v.name }

// Columns returns the validated columns.
func (v *Validator) Columns() []*Column { return v.columns }

// Validate runs the validator.
func (v *Validator) Validate(values []any) error { return v.fn(values) }

// NotEmpty rejects empty strings and binaries. NULL values pass.
func NotEmpty() ValidateFunc {
	return func(values []any) error {
		for _, v := range values {
			switch v := v.(type) {
			case string:
				if v == "" {
					return errors.New("value must not be empty")
				}
			case []byte:
				if len(v) == 0 {
					return errors.New("value must not be empty")
				}
			}
		}
		return nil
	}
}

// MaxLen rejects strings longer than n characters and binaries longer than n bytes.
func MaxLen(n int) ValidateFunc {
	return func(values []any) error {
		for _, v := range values {
			switch v := v.(type) {
			case string:
				if l := utf8.RuneCountInString(v); l > n {
					return fmt.Errorf("value length %d exceeds %d", l, n)
				}
			case []byte:
				if len(v) > n {
					return fmt.Errorf("value length %d exceeds %d", len(v), n)
				}
			}
		}
		return nil
	}
}

// Match rejects strings not matching re.
func Match(re *regexp.Regexp) ValidateFunc {
	return func(values []any) error {
		for _, v := range values {
			if s, ok := v.(string); ok && !re.MatchString(s) {
				return fmt.Errorf("value %q does not match %s", s, re)
			}
		}
		return nil
	}
}
