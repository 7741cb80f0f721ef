package core

import "github.com/DhrubaAgarwalla/private-chat-box/internal/domain"

// Frame is a raw signaling payload as it travels on the wire.
type Frame []byte

// SessionID identifies one live connection to the relay. Assigned by the
// transport on connect, gone on disconnect.
type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// RoomInfo is a read-only occupancy view for APIs.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}

// Membership is the room registry the broker fans out against.
// Implementations must be safe for concurrent use.
type Membership interface {
	Add(room domain.RoomID, sid SessionID) bool
	Remove(room domain.RoomID, sid SessionID)
	MembersOf(room domain.RoomID) []SessionID
	MemberCount(room domain.RoomID) int
	RemoveAll(sid SessionID) []domain.RoomID
	Rooms() []RoomInfo
}
