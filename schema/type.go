package schema

import (
	"fmt"
	"strings"
)

// Type is the logical type of a column or expression.
type Type uint8

// Supported column types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeByte
	TypeInt16
	TypeInt32
	TypeInt64
	TypeDecimal
	TypeSingle
	TypeDouble
	TypeString
	TypeGuid
	TypeDateTime
	TypeDateTimeOffset
	TypeBinary
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:        "Invalid",
	TypeBool:           "Boolean",
	TypeByte:           "Byte",
	TypeInt16:          "Int16",
	TypeInt32:          "Int32",
	TypeInt64:          "Int64",
	TypeDecimal:        "Decimal",
	TypeSingle:         "Single",
	TypeDouble:         "Double",
	TypeString:         "String",
	TypeGuid:           "Guid",
	TypeDateTime:       "DateTime",
	TypeDateTimeOffset: "DateTimeOffset",
	TypeBinary:         "Binary",
}

// String returns the type name.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// Valid reports if the type is a known, non-invalid type.
func (t Type) Valid() bool { return t > TypeInvalid && t < endTypes }

// Integer reports if the type is an integer type.
func (t Type) Integer() bool { return t >= TypeByte && t <= TypeInt64 }

// Numeric reports if the type supports arithmetic.
func (t Type) Numeric() bool { return t >= TypeByte && t <= TypeDouble }

// Temporal reports if the type holds a point in time.
func (t Type) Temporal() bool { return t == TypeDateTime || t == TypeDateTimeOffset }

// Sized reports if the type accepts a maximum length.
func (t Type) Sized() bool { return t == TypeString || t == TypeBinary }

// ParseType returns the type with the given name. Matching is case-insensitive
// and accepts the common aliases used in descriptor files.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bool", "boolean":
		return TypeBool, nil
	case "byte", "uint8":
		return TypeByte, nil
	case "int16", "short":
		return TypeInt16, nil
	case "int32", "int":
		return TypeInt32, nil
	case "int64", "long":
		return TypeInt64, nil
	case "decimal":
		return TypeDecimal, nil
	case "single", "float32", "float":
		return TypeSingle, nil
	case "double", "float64":
		return TypeDouble, nil
	case "string":
		return TypeString, nil
	case "guid", "uuid":
		return TypeGuid, nil
	case "datetime":
		return TypeDateTime, nil
	case "datetimeoffset":
		return TypeDateTimeOffset, nil
	case "binary", "bytes":
		return TypeBinary, nil
	}
	return TypeInvalid, fmt.Errorf("schema: unknown type %q", name)
}
