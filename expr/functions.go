package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/rowset"
	"github.com/syssam/rowset/schema"
)

// Function describes a function callable from expressions. Dialects decide
// how, or whether, a function is rendered.
type Function struct {
	Name      string
	Aggregate bool
	resolve   func(args []Expr) (schema.Type, error)
}

var functions = map[string]*Function{}

func register(name string, aggregate bool, resolve func(string, []Expr) (schema.Type, error)) {
	functions[name] = &Function{
		Name:      name,
		Aggregate: aggregate,
		resolve:   func(args []Expr) (schema.Type, error) { return resolve(name, args) },
	}
}

func init() {
	register("GETDATE", false, returns(schema.TypeDateTime))
	register("NEWID", false, returns(schema.TypeGuid))
	register("NEWSEQUENTIALID", false, returns(schema.TypeGuid))
	register("LEN", false, returns(schema.TypeInt32, schema.TypeString))
	register("UPPER", false, returns(schema.TypeString, schema.TypeString))
	register("LOWER", false, returns(schema.TypeString, schema.TypeString))
	register("TRIM", false, returns(schema.TypeString, schema.TypeString))
	register("SUBSTRING", false, returns(schema.TypeString, schema.TypeString, schema.TypeInt32, schema.TypeInt32))
	register("ISNULL", false, same(2, 2, anyType))
	register("COALESCE", false, same(1, -1, anyType))
	register("ABS", false, same(1, 1, schema.Type.Numeric))
	register("ROUND", false, round)
	register("COUNT", true, count(schema.TypeInt32))
	register("COUNT_BIG", true, count(schema.TypeInt64))
	register("SUM", true, same(1, 1, schema.Type.Numeric))
	register("AVG", true, same(1, 1, schema.Type.Numeric))
	register("MIN", true, same(1, 1, ordered))
	register("MAX", true, same(1, 1, ordered))
}

// Lookup returns the function registered under name, case-insensitively.
func Lookup(name string) (*Function, bool) {
	fn, ok := functions[strings.ToUpper(name)]
	return fn, ok
}

// Functions returns the names of all registered functions, sorted.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func anyType(schema.Type) bool { return true }

func ordered(t schema.Type) bool { return t != schema.TypeBool && t != schema.TypeBinary }

func arity(name string, args []Expr, lo, hi int) error {
	if len(args) < lo || (hi >= 0 && len(args) > hi) {
		return &rowset.TypeMismatchError{Op: name, Left: fmt.Sprintf("%d arguments", len(args)), Right: arityString(lo, hi)}
	}
	return nil
}

func arityString(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("at least %d arguments", lo)
	case lo == hi:
		return fmt.Sprintf("%d arguments", lo)
	default:
		return fmt.Sprintf("%d to %d arguments", lo, hi)
	}
}

// returns resolves to result for exactly the given argument types.
func returns(result schema.Type, params ...schema.Type) func(string, []Expr) (schema.Type, error) {
	return func(name string, args []Expr) (schema.Type, error) {
		if err := arity(name, args, len(params), len(params)); err != nil {
			return schema.TypeInvalid, err
		}
		for i, p := range params {
			if args[i].Type() != p {
				return schema.TypeInvalid, rowset.NewTypeMismatchError(name, p, args[i].Type())
			}
		}
		return result, nil
	}
}

// same resolves to the type shared by all arguments, which must satisfy accept.
func same(lo, hi int, accept func(schema.Type) bool) func(string, []Expr) (schema.Type, error) {
	return func(name string, args []Expr) (schema.Type, error) {
		if err := arity(name, args, lo, hi); err != nil {
			return schema.TypeInvalid, err
		}
		t := args[0].Type()
		if !accept(t) {
			return schema.TypeInvalid, &rowset.TypeMismatchError{Op: name, Left: t.String(), Right: "supported argument type"}
		}
		for _, a := range args[1:] {
			if a.Type() != t {
				return schema.TypeInvalid, rowset.NewTypeMismatchError(name, t, a.Type())
			}
		}
		return t, nil
	}
}

func round(name string, args []Expr) (schema.Type, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return schema.TypeInvalid, err
	}
	t := args[0].Type()
	if !t.Numeric() {
		return schema.TypeInvalid, &rowset.TypeMismatchError{Op: name, Left: t.String(), Right: "numeric"}
	}
	if args[1].Type() != schema.TypeInt32 {
		return schema.TypeInvalid, rowset.NewTypeMismatchError(name, schema.TypeInt32, args[1].Type())
	}
	return t, nil
}

// count accepts zero arguments, rendered as COUNT(*), or one argument.
func count(result schema.Type) func(string, []Expr) (schema.Type, error) {
	return func(name string, args []Expr) (schema.Type, error) {
		if err := arity(name, args, 0, 1); err != nil {
			return schema.TypeInvalid, err
		}
		return result, nil
	}
}
