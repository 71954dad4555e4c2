package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	require.False(t, (*Error)(nil).Truthy())
	require.False(t, New(Success, "ok").Truthy())
	require.True(t, New(Timeout, "slow").Truthy())
}

func TestIsComparesKindOnly(t *testing.T) {
	e := New(Timeout, "connect timeout")
	require.True(t, errors.Is(e, ErrTimeout))
	require.False(t, errors.Is(e, ErrRefused))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("econnrefused")
	e := Wrap(Refused, cause, "connect")
	require.ErrorIs(t, e, cause)
	require.Contains(t, e.Error(), "refused")
}

func TestWrapNilCauseFallsBackToNew(t *testing.T) {
	e := Wrap(Other, nil, "boom")
	require.NotNil(t, e)
	require.Equal(t, Other, e.Kind)
}
