package xlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseIsASingleton(t *testing.T) {
	require.Same(t, Base(), Base())
}

func TestScopedLoggersAreNonNil(t *testing.T) {
	require.NotNil(t, Reactor(1))
	require.NotNil(t, Socket(5))
	require.NotNil(t, Session("1-5"))
}
