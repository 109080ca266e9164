package rherr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatsMessage(t *testing.T) {
	err := New(NotFound, "entry %d missing", 42)
	assert.Equal(t, "not-found: entry 42 missing", err.Error())
	assert.Equal(t, NotFound, err.Kind)
}

func TestWrapNilReturnsNilPointer(t *testing.T) {
	err := Wrap(BackendError, nil)
	assert.Nil(t, err)
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(NotConnected, cause)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIs(t *testing.T) {
	err := New(Invalid, "bad filter")
	assert.True(t, Is(err, Invalid))
	assert.False(t, Is(err, NotFound))
	assert.False(t, Is(errors.New("plain"), Invalid))
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", Kind(999).String())
}
