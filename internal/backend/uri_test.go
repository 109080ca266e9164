package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURIMissingScheme(t *testing.T) {
	_, err := ParseURI("mongo:foo")
	assert.Error(t, err)
}

func TestParseURIMissingBackendSeparator(t *testing.T) {
	_, err := ParseURI("rbh:mongo")
	assert.Error(t, err)
}

func TestParseURIWithAuthorityAndFsname(t *testing.T) {
	u, err := ParseURI("rbh:mongo://db1:27017/myfs")
	require.NoError(t, err)
	assert.Equal(t, "mongo", u.Backend)
	assert.Equal(t, "db1:27017", u.Authority)
	assert.Equal(t, "myfs", u.Fsname)
}

func TestParseURIWithoutAuthority(t *testing.T) {
	u, err := ParseURI("rbh:posix:/mnt/lustre")
	require.NoError(t, err)
	assert.Equal(t, "posix", u.Backend)
	assert.Empty(t, u.Authority)
	assert.Equal(t, "mnt/lustre", u.Fsname)
}

func TestParseURIWithQuery(t *testing.T) {
	u, err := ParseURI("rbh:mongo://db1/myfs?branch=abc")
	require.NoError(t, err)
	assert.Equal(t, "myfs", u.Fsname)
	assert.Equal(t, "branch=abc", u.RawQuery)
}

func TestParseURIEmptyBackendName(t *testing.T) {
	_, err := ParseURI("rbh::/foo")
	assert.Error(t, err)
}
