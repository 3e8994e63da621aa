package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusGating(t *testing.T) {
	assert.True(t, Active.CrossAllowed())
	assert.False(t, PostOnly.CrossAllowed())
	assert.False(t, Paused.CrossAllowed())

	assert.True(t, Active.PostAllowed())
	assert.True(t, PostOnly.PostAllowed())
	assert.False(t, Paused.PostAllowed())
	assert.False(t, Closed.PostAllowed())

	assert.True(t, Active.ReduceAllowed())
	assert.True(t, PostOnly.ReduceAllowed())
	assert.True(t, Paused.ReduceAllowed())
	assert.True(t, Closed.ReduceAllowed())
	assert.False(t, Tombstoned.ReduceAllowed())
	assert.False(t, Uninitialized.ReduceAllowed())

	assert.True(t, Closed.AuthorityCanCancel())
	assert.False(t, Active.AuthorityCanCancel())
}

func TestValidTransition(t *testing.T) {
	assert.True(t, Uninitialized.ValidTransition(PostOnly))
	assert.False(t, Uninitialized.ValidTransition(Active))

	assert.True(t, PostOnly.ValidTransition(Active))
	assert.True(t, Active.ValidTransition(Paused))
	assert.True(t, Paused.ValidTransition(Closed))
	assert.True(t, Closed.ValidTransition(Tombstoned))

	assert.False(t, Tombstoned.ValidTransition(Active))
	assert.False(t, Active.ValidTransition(Tombstoned))
}

func TestStringer(t *testing.T) {
	assert.Equal(t, "Active", Active.String())
	assert.Equal(t, "Tombstoned", Tombstoned.String())
	assert.Equal(t, "Unknown", Status(99).String())
}
