package schema

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Go representation of each type:
//
//	TypeBool            bool
//	TypeByte            uint8
//	TypeInt16           int16
//	TypeInt32           int32
//	TypeInt64           int64
//	TypeDecimal         decimal.Decimal
//	TypeSingle          float32
//	TypeDouble          float64
//	TypeString          string
//	TypeGuid            uuid.UUID
//	TypeDateTime        time.Time (UTC location, wall clock kept, microseconds)
//	TypeDateTimeOffset  time.Time (offset kept, microseconds)
//	TypeBinary          []byte
//
// NULL is represented by a nil interface value.

// dateTimeLayouts are accepted when converting strings to temporal values.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Convert coerces v to the Go representation of t. A nil value, or a nil
// []byte, converts to nil.
func Convert(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeBool:
		return toBool(v)
	case TypeByte:
		n, err := toInt(v, 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		return uint8(n), nil
	case TypeInt16:
		n, err := toInt(v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return int16(n), nil
	case TypeInt32:
		n, err := toInt(v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case TypeInt64:
		return toInt(v, math.MinInt64, math.MaxInt64)
	case TypeDecimal:
		return toDecimal(v)
	case TypeSingle:
		f, err := toFloat(v, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case TypeDouble:
		return toFloat(v, 64)
	case TypeString:
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case TypeGuid:
		return toGuid(v)
	case TypeDateTime:
		tm, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return NormalizeDateTime(tm), nil
	case TypeDateTimeOffset:
		tm, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return tm.Truncate(time.Microsecond), nil
	case TypeBinary:
		switch v := v.(type) {
		case []byte:
			if v == nil {
				return nil, nil
			}
			return bytes.Clone(v), nil
		case string:
			return []byte(v), nil
		}
	default:
		return nil, fmt.Errorf("schema: cannot convert to %s", t)
	}
	return nil, fmt.Errorf("schema: cannot convert %T to %s", v, t)
}

// NormalizeDateTime keeps the wall clock of tm, drops its location and
// truncates it to microsecond precision.
func NormalizeDateTime(tm time.Time) time.Time {
	return time.Date(tm.Year(), tm.Month(), tm.Day(), tm.Hour(), tm.Minute(), tm.Second(),
		tm.Nanosecond()/int(time.Microsecond)*int(time.Microsecond), time.UTC)
}

// Equal reports whether a and b hold the same value of type t.
func Equal(t Type, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, errA := Convert(t, a)
	b, errB := Convert(t, b)
	if errA != nil || errB != nil {
		return false
	}
	switch t {
	case TypeDecimal:
		return a.(decimal.Decimal).Equal(b.(decimal.Decimal))
	case TypeDateTime:
		return a.(time.Time).Equal(b.(time.Time))
	case TypeDateTimeOffset:
		ta, tb := a.(time.Time), b.(time.Time)
		_, oa := ta.Zone()
		_, ob := tb.Zone()
		return ta.Equal(tb) && oa == ob
	case TypeBinary:
		return bytes.Equal(a.([]byte), b.([]byte))
	default:
		return a == b
	}
}

func toBool(v any) (any, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return strconv.ParseBool(string(v))
	}
	n, err := toInt(v, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("schema: cannot convert %T to %s", v, TypeBool)
	}
	return n == 1, nil
}

func toInt(v any, lo, hi int64) (int64, error) {
	var n int64
	switch v := v.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, fmt.Errorf("schema: value %d out of range", v)
		}
		n = int64(v)
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("schema: value %d out of range", v)
		}
		n = int64(v)
	case float32:
		return toInt(float64(v), lo, hi)
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("schema: value %v is not an integer", v)
		}
		n = int64(v)
	case decimal.Decimal:
		if !v.IsInteger() {
			return 0, fmt.Errorf("schema: value %s is not an integer", v)
		}
		n = v.IntPart()
	case string:
		var err error
		if n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
			return 0, fmt.Errorf("schema: parse integer: %w", err)
		}
	case []byte:
		return toInt(string(v), lo, hi)
	default:
		return 0, fmt.Errorf("schema: cannot convert %T to an integer", v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("schema: value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func toFloat(v any, bits int) (float64, error) {
	var f float64
	switch v := v.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := toInt(v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return 0, err
		}
		f = float64(n)
	case decimal.Decimal:
		f = v.InexactFloat64()
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(v), bits); err != nil {
			return 0, fmt.Errorf("schema: parse float: %w", err)
		}
	case []byte:
		return toFloat(string(v), bits)
	default:
		return 0, fmt.Errorf("schema: cannot convert %T to a float", v)
	}
	if bits == 32 && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("schema: value %v out of range for %s", f, TypeSingle)
	}
	return f, nil
}

func toDecimal(v any) (any, error) {
	switch v := v.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("schema: parse decimal: %w", err)
		}
		return d, nil
	case []byte:
		return toDecimal(string(v))
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("schema: %v is not a decimal", v)
		}
		return decimal.NewFromFloat32(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("schema: %v is not a decimal", v)
		}
		return decimal.NewFromFloat(v), nil
	}
	n, err := toInt(v, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	return decimal.NewFromInt(n), nil
}

func toGuid(v any) (any, error) {
	switch v := v.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case string:
		return uuid.Parse(v)
	}
	return nil, fmt.Errorf("schema: cannot convert %T to %s", v, TypeGuid)
}

func toTime(v any) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case []byte:
		return toTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateTimeLayouts {
			if tm, err := time.Parse(layout, s); err == nil {
				return tm, nil
			}
		}
		return time.Time{}, fmt.Errorf("schema: cannot parse time %q", v)
	}
	return time.Time{}, fmt.Errorf("schema: cannot convert %T to a time", v)
}
