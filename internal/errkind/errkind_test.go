package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("permission denied")
	err := New(Access, "restore.CreateSnapshot", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "access")
	require.Contains(t, err.Error(), "restore.CreateSnapshot")
}

func TestIsKindMatchesWrappedKind(t *testing.T) {
	err := New(RestoreConflict, "restore.Restore", errors.New("identical"))
	require.True(t, IsKind(err, RestoreConflict))
	require.False(t, IsKind(err, Access))
	require.False(t, IsKind(errors.New("plain"), Access))
}

func TestOnlyConfigurationIsFatal(t *testing.T) {
	require.True(t, Configuration.Fatal())
	for _, k := range []Kind{Access, NotFound, TransientIO, RestoreConflict, Cancelled} {
		require.False(t, k.Fatal(), "%s must not be fatal", k)
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "not-found", NotFound.String())
	require.Equal(t, "transient-io", TransientIO.String())
}
