package relay

import (
	"github.com/DhrubaAgarwalla/private-chat-box/internal/core"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickSession
)

// Policy decides what happens when a session's outbound queue is full.
// A slow recipient never stalls fan-out; the policy only chooses between
// losing the frame and cutting the session loose.
type Policy interface {
	OnBackpressure(room domain.RoomID, sid core.SessionID) BackpressureAction
}

// DropPolicy loses the frame for the slow session only.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(domain.RoomID, core.SessionID) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects a session that cannot keep up. Signaling traffic is
// tiny; a full queue means the peer is gone or wedged.
type KickPolicy struct{}

func (KickPolicy) OnBackpressure(domain.RoomID, core.SessionID) BackpressureAction {
	return KickSession
}
