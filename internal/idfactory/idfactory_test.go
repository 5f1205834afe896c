package idfactory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToV4(t *testing.T) {
	f := New("")
	id, err := f.NewID()
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestNewV1(t *testing.T) {
	f := New(V1)
	id, err := f.NewID()
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(1), parsed.Version())
}

func TestNewIDsAreUnique(t *testing.T) {
	f := New(V4)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := f.NewID()
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestUnsupportedKind(t *testing.T) {
	f := New(Kind("v9"))
	_, err := f.NewID()
	assert.Error(t, err)
}
