package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/core"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/domain"
)

func TestRegistry_AddIsIdempotent(t *testing.T) {
	reg := NewRegistry()

	require.True(t, reg.Add("R1", "s1"))
	require.False(t, reg.Add("R1", "s1"))

	assert.Equal(t, 1, reg.MemberCount("R1"))
	assert.Equal(t, []core.SessionID{"s1"}, reg.MembersOf("R1"))
}

func TestRegistry_RemoveDropsEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	reg.Add("R1", "s1")
	reg.Add("R1", "s2")

	reg.Remove("R1", "s1")
	assert.Equal(t, 1, reg.MemberCount("R1"))

	reg.Remove("R1", "s2")
	assert.Equal(t, 0, reg.MemberCount("R1"))
	assert.Empty(t, reg.Rooms())
}

func TestRegistry_RemoveAll(t *testing.T) {
	reg := NewRegistry()
	reg.Add("R1", "s1")
	reg.Add("R2", "s1")
	reg.Add("R2", "s2")

	rooms := reg.RemoveAll("s1")
	assert.ElementsMatch(t, []domain.RoomID{"R1", "R2"}, rooms)

	assert.Equal(t, 0, reg.MemberCount("R1"))
	assert.Equal(t, []core.SessionID{"s2"}, reg.MembersOf("R2"))

	// A session that never joined is a harmless no-op.
	assert.Empty(t, reg.RemoveAll("ghost"))
}

func TestRegistry_RoomsSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Add("R1", "s1")
	reg.Add("R1", "s2")
	reg.Add("R2", "s3")

	rooms := reg.Rooms()
	assert.ElementsMatch(t, []core.RoomInfo{
		{ID: "R1", MemberCount: 2},
		{ID: "R2", MemberCount: 1},
	}, rooms)
}
