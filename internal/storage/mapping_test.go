package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveJoinsUnderRoot(t *testing.T) {
	t.Parallel()
	got, err := Resolve("/user/work", "logs/2015/app.log")
	require.NoError(t, err)
	require.Equal(t, "/user/work/logs/2015/app.log", got)

	got, err = Resolve("", "/a//b/./c.txt")
	require.NoError(t, err)
	require.Equal(t, "/a/b/c.txt", got)
}

func TestResolveRejectsEscapes(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "/", "../etc/passwd", "a/../../b", "a/..", "a\x00b"} {
		_, err := Resolve("/data", name)
		require.ErrorIs(t, err, ErrInvalidPath, "name %q", name)
	}
}

func TestNewDescriptorDerivesValidator(t *testing.T) {
	t.Parallel()
	mod := time.UnixMilli(0x150e3a4b2c8)
	d := NewDescriptor("/user/work/app.log", 1000, mod)
	require.Equal(t, "app.log", d.Name)
	require.Equal(t, int64(1000), d.Size)
	require.Equal(t, "150e3a4b2c8-3e8", d.Validator)
	require.Equal(t, d.Validator, NewDescriptor("/elsewhere/app.log", 1000, mod).Validator)
	require.NotEqual(t, d.Validator, NewDescriptor("/user/work/app.log", 1001, mod).Validator)
	require.NotEqual(t, d.Validator, NewDescriptor("/user/work/app.log", 1000, mod.Add(time.Millisecond)).Validator)
}
