package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastUnknownSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	pos, ok, err := s.Last("events.yaml")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, pos)
}

func TestSetThenLastRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("events.yaml", 42))
	pos, ok, err := s.Last("events.yaml")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), pos)

	require.NoError(t, s.Set("events.yaml", 100))
	pos, ok, err = s.Last("events.yaml")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), pos)
}

func TestPositionsAreIsolatedPerSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("a.yaml", 5))
	require.NoError(t, s.Set("b.yaml", 9))

	posA, _, _ := s.Last("a.yaml")
	posB, _, _ := s.Last("b.yaml")
	assert.Equal(t, int64(5), posA)
	assert.Equal(t, int64(9), posB)
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("events.yaml", 17))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	pos, ok, err := s2.Last("events.yaml")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(17), pos)
}
