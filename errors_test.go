package d1

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorHierarchy(t *testing.T) {
	err := operationalError("boom")
	require.ErrorIs(t, err, ErrOperational)
	require.ErrorIs(t, err, ErrDatabase)
	require.ErrorIs(t, err, Err)
	require.NotErrorIs(t, err, ErrInterface)
	require.NotErrorIs(t, err, ErrIntegrity)

	err = interfaceError("bad dsn")
	require.ErrorIs(t, err, ErrInterface)
	require.ErrorIs(t, err, Err)
	require.NotErrorIs(t, err, ErrDatabase)

	err = notSupportedError("nope")
	require.ErrorIs(t, err, ErrNotSupported)
	require.ErrorIs(t, err, ErrDatabase)

	err = newError(ErrData, "bad value")
	require.ErrorIs(t, err, ErrData)
	require.ErrorIs(t, err, ErrDatabase)
	require.ErrorIs(t, err, Err)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := wrapOperational(cause, "query")
	require.ErrorIs(t, err, ErrOperational)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection reset by peer")
}

func TestEnsureTaxonomy(t *testing.T) {
	require.NoError(t, ensureTaxonomy(nil))

	// Foreign errors become operational.
	foreign := errors.New("tcp timeout")
	err := ensureTaxonomy(foreign)
	require.ErrorIs(t, err, ErrOperational)
	require.ErrorIs(t, err, foreign)

	// Errors already in the taxonomy pass through untouched.
	tagged := programmingError("misuse")
	require.Same(t, tagged, ensureTaxonomy(tagged))
	require.NotErrorIs(t, ensureTaxonomy(tagged), ErrOperational)
}
