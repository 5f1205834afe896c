package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New(context.Background(), "", "app")
	require.Error(t, err)
}

func TestNewSelectsSQLiteForBarePathAndSchemeURL(t *testing.T) {
	exec, err := New(context.Background(), ":memory:", "app")
	require.NoError(t, err)
	require.NotNil(t, exec)
	require.Equal(t, "sqlite", exec.Dialect())
	_ = exec.Close()

	exec2, err := New(context.Background(), "sqlite://:memory:", "app")
	require.NoError(t, err)
	require.NotNil(t, exec2)
	require.Equal(t, "sqlite", exec2.Dialect())
	_ = exec2.Close()
}
