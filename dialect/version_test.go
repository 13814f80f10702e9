package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "13", want: Version{Major: 13}},
		{in: "15.0.2000.5", want: Version{Major: 15, Minor: 0, Build: 2000}},
		{in: "8.0.36-log", want: Version{Major: 8, Minor: 0, Build: 36}},
		{in: " 8.0.16+maria ", want: Version{Major: 8, Minor: 0, Build: 16}},
		{in: "", wantErr: true},
		{in: "v8", wantErr: true},
		{in: "8.x", wantErr: true},
		{in: "8.-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVersion(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Panics(t, func() { MustParseVersion(tt.in) })
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestVersion_Compare(t *testing.T) {
	v := MustParseVersion("8.0.16")
	assert.Zero(t, v.Compare(Version{8, 0, 16}))
	assert.Equal(t, -1, MustParseVersion("8.0.15").Compare(v))
	assert.Equal(t, 1, MustParseVersion("8.1").Compare(v))
	assert.Equal(t, -1, MustParseVersion("5.7.44").Compare(MinMySQL))

	assert.True(t, MustParseVersion("16.0").AtLeast(MinSQLServer))
	assert.True(t, MinSQLServer.AtLeast(MinSQLServer))
	assert.False(t, MustParseVersion("12.0.6024").AtLeast(MinSQLServer))
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "13.0", MinSQLServer.String())
	assert.Equal(t, "8.0.36", MustParseVersion("8.0.36-log").String())
	assert.Equal(t, "15.0.2000", MustParseVersion("15.0.2000.5").String())
}

func TestMinimum(t *testing.T) {
	v, ok := Minimum(SQLServer)
	assert.True(t, ok)
	assert.Equal(t, MinSQLServer, v)
	v, ok = Minimum(MySQL)
	assert.True(t, ok)
	assert.Equal(t, MinMySQL, v)
	_, ok = Minimum("postgres")
	assert.False(t, ok)
}
