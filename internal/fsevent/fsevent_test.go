package fsevent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "UPSERT", Upsert.String())
	assert.Equal(t, "LINK", Link.String())
	assert.Equal(t, "UNLINK", Unlink.String())
	assert.Equal(t, "XATTR", Xattr.String())
	assert.Equal(t, "DELETE", Delete.String())
	assert.Equal(t, "PARTIAL_UNLINK", PartialUnlink.String())
	assert.Equal(t, "UNKNOWN", Type(99).String())
}

func TestEnrichHintsAndClear(t *testing.T) {
	e := Event{Xattrs: map[string]value.Value{
		"rbh-fsevents.lustre":    value.Int64(1),
		"rbh-fsevents.retention": value.Int64(1),
		"user.other":             value.Int64(1),
	}}
	assert.ElementsMatch(t, []string{"lustre", "retention"}, e.EnrichHints())
	assert.True(t, e.Pending())

	e.ClearHint("lustre")
	assert.ElementsMatch(t, []string{"retention"}, e.EnrichHints())
	assert.True(t, e.Pending())

	e.ClearHint("retention")
	assert.False(t, e.Pending())
}

func TestPendingFalseWithNoHints(t *testing.T) {
	e := Event{Xattrs: map[string]value.Value{"user.other": value.Int64(1)}}
	assert.False(t, e.Pending())

	var empty Event
	assert.False(t, empty.Pending())
}
