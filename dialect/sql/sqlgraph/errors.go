package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ConstraintKind classifies a constraint violation reported by the server.
type ConstraintKind int

const (
	NoConstraint ConstraintKind = iota
	UniqueConstraint
	ForeignKeyConstraint
	CheckConstraint
)

func (k ConstraintKind) String() string {
	switch k {
	case UniqueConstraint:
		return "unique"
	case ForeignKeyConstraint:
		return "foreign key"
	case CheckConstraint:
		return "check"
	default:
		return "none"
	}
}

// Server error numbers.
const (
	// SQL Server. 547 covers foreign key and check conflicts; the message
	// names the constraint type.
	mssqlDuplicateKey   = 2627
	mssqlDuplicateIndex = 2601
	mssqlConflict       = 547

	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlCheckViolated   = 3819
)

// numbered is implemented by mssql.Error.
type numbered interface {
	SQLErrorNumber() int32
}

// messages are matched when the driver error was flattened to text, e.g. by
// a proxy.
var messages = []struct {
	kind ConstraintKind
	text string
}{
	{UniqueConstraint, "Error 1062"},
	{UniqueConstraint, "Violation of PRIMARY KEY constraint"},
	{UniqueConstraint, "Violation of UNIQUE KEY constraint"},
	{UniqueConstraint, "Cannot insert duplicate key row"},
	{ForeignKeyConstraint, "Error 1451"},
	{ForeignKeyConstraint, "Error 1452"},
	{ForeignKeyConstraint, "conflicted with the FOREIGN KEY constraint"},
	{ForeignKeyConstraint, "conflicted with the REFERENCE constraint"},
	{CheckConstraint, "Error 3819"},
	{CheckConstraint, "conflicted with the CHECK constraint"},
}

// Constraint returns the kind of constraint whose violation caused err.
func Constraint(err error) ConstraintKind {
	if err == nil {
		return NoConstraint
	}
	var my *mysql.MySQLError
	if errors.As(err, &my) {
		switch my.Number {
		case mysqlDuplicateEntry:
			return UniqueConstraint
		case mysqlRowIsReferenced, mysqlNoReferencedRow:
			return ForeignKeyConstraint
		case mysqlCheckViolated:
			return CheckConstraint
		}
		return NoConstraint
	}
	var ms numbered
	if errors.As(err, &ms) {
		switch ms.SQLErrorNumber() {
		case mssqlDuplicateKey, mssqlDuplicateIndex:
			return UniqueConstraint
		case mssqlConflict:
			msg := err.Error()
			if strings.Contains(msg, "FOREIGN KEY") || strings.Contains(msg, "REFERENCE") {
				return ForeignKeyConstraint
			}
			if strings.Contains(msg, "CHECK") {
				return CheckConstraint
			}
		}
		return NoConstraint
	}
	msg := err.Error()
	for _, m := range messages {
		if strings.Contains(msg, m.text) {
			return m.kind
		}
	}
	return NoConstraint
}

// IsConstraintError reports whether err is a constraint violation of any kind.
func IsConstraintError(err error) bool { return Constraint(err) != NoConstraint }

// IsUniqueConstraintError reports whether err is a duplicate key.
func IsUniqueConstraintError(err error) bool { return Constraint(err) == UniqueConstraint }

// IsForeignKeyConstraintError reports whether err is a missing parent or a
// referenced row.
func IsForeignKeyConstraintError(err error) bool { return Constraint(err) == ForeignKeyConstraint }

// IsCheckConstraintError reports whether err is a failed check constraint.
func IsCheckConstraintError(err error) bool { return Constraint(err) == CheckConstraint }
