package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a database server version. Only the major and minor parts take
// part in feature checks; the build part is kept for display.
type Version struct {
	Major, Minor, Build int
}

// Minimum server versions accepted by the SQL generators.
var (
	MinSQLServer = Version{Major: 13}
	MinMySQL     = Version{Major: 8}
)

// ParseVersion parses versions such as "13.0", "15.0.2000.5" or "8.0.36-log".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "-+ "); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) == 0 || parts[0] == "" {
		return Version{}, fmt.Errorf("dialect: invalid version %q", s)
	}
	var v Version
	for i, dst := range []*int{&v.Major, &v.Minor, &v.Build} {
		if i >= len(parts) {
			break
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("dialect: invalid version %q", s)
		}
		*dst = n
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or +1 depending on whether v is older than, equal to
// or newer than o.
func (v Version) Compare(o Version) int {
	for _, d := range [...]int{v.Major - o.Major, v.Minor - o.Minor, v.Build - o.Build} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool { return v.Compare(o) >= 0 }

// String returns "major.minor", followed by ".build" when set.
func (v Version) String() string {
	if v.Build > 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Minimum returns the minimum supported version of the named dialect.
func Minimum(name string) (Version, bool) {
	switch name {
	case SQLServer:
		return MinSQLServer, true
	case MySQL:
		return MinMySQL, true
	}
	return Version{}, false
}
