// Package relay implements the call-signaling broker: it tracks which
// sessions are in which rooms and forwards opaque offer/answer/ICE envelopes
// between them. It never parses SDP or ICE semantics.
package relay

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/core"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/domain"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/signal"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrUnknownSession = errors.New("unknown session")
)

// Options tune broker behavior; zero values fall back to defaults.
type Options struct {
	// MaxRoomSize caps membership per room. The broadcast answer/ICE routing
	// is only correct for two-party rooms, so the default is 2.
	MaxRoomSize int
	// AnnouncePeerLeft broadcasts a peerLeft envelope to the rooms a session
	// leaves on disconnect. Off by default: the original protocol relies on
	// peer-transport connectivity state instead.
	AnnouncePeerLeft bool
}

// Broker routes signaling envelopes between sessions sharing a room.
// Payloads stay opaque; only the top-level type tag is interpreted.
type Broker struct {
	mu     sync.RWMutex
	conns  map[core.SessionID]core.SignalConnection
	reg    core.Membership
	policy Policy
	opts   Options
}

func NewBroker(reg core.Membership, policy Policy, opts Options) *Broker {
	if opts.MaxRoomSize == 0 {
		opts.MaxRoomSize = 2
	}
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Broker{
		conns:  make(map[core.SessionID]core.SignalConnection),
		reg:    reg,
		policy: policy,
		opts:   opts,
	}
}

// Connect registers a live transport connection under sid.
func (b *Broker) Connect(sid core.SessionID, conn core.SignalConnection) {
	b.mu.Lock()
	b.conns[sid] = conn
	b.mu.Unlock()
	log.Info().Str("module", "relay.broker").Str("sid", string(sid)).Msg("session connected")
}

// Disconnect removes the session from every room and drops its connection.
// Idempotent; safe to call from both the read pump and a policy kick.
func (b *Broker) Disconnect(sid core.SessionID) {
	b.mu.Lock()
	conn, ok := b.conns[sid]
	delete(b.conns, sid)
	b.mu.Unlock()
	if !ok {
		return
	}
	rooms := b.reg.RemoveAll(sid)
	conn.Close()
	log.Info().Str("module", "relay.broker").Str("sid", string(sid)).Int("rooms", len(rooms)).Msg("session disconnected")

	if !b.opts.AnnouncePeerLeft {
		return
	}
	frame, err := signal.Marshal(signal.PeerLeft{Type: signal.TypePeerLeft, From: string(sid)})
	if err != nil {
		return
	}
	for _, room := range rooms {
		b.fanout(room, sid, frame)
	}
}

// JoinRoom adds sid to room, enforcing the room cap. Idempotent.
func (b *Broker) JoinRoom(sid core.SessionID, room domain.RoomID) error {
	b.mu.RLock()
	_, known := b.conns[sid]
	b.mu.RUnlock()
	if !known {
		return ErrUnknownSession
	}
	if n := b.reg.MemberCount(room); n >= b.opts.MaxRoomSize && !b.isMember(room, sid) {
		return ErrRoomFull
	}
	b.reg.Add(room, sid)
	log.Info().Str("module", "relay.broker").Str("sid", string(sid)).Str("room", string(room)).Msg("joined room")
	return nil
}

func (b *Broker) isMember(room domain.RoomID, sid core.SessionID) bool {
	for _, m := range b.reg.MembersOf(room) {
		if m == sid {
			return true
		}
	}
	return false
}

// Rooms exposes occupancy for the inspection API.
func (b *Broker) Rooms() []core.RoomInfo { return b.reg.Rooms() }

// RoomInfo reports occupancy of one room.
func (b *Broker) RoomInfo(room domain.RoomID) core.RoomInfo {
	return core.RoomInfo{ID: room, MemberCount: b.reg.MemberCount(room)}
}

// HandleEnvelope processes one inbound frame from sid. Malformed or unknown
// envelopes are dropped; one bad message must never take the broker down.
func (b *Broker) HandleEnvelope(sid core.SessionID, data []byte) {
	typ, err := signal.TypeOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "relay.broker").Str("sid", string(sid)).Msg("dropping malformed envelope")
		return
	}

	switch typ {
	case signal.TypeJoinRoom:
		b.handleJoin(sid, data)
	case signal.TypeCallUser:
		b.handleCallUser(sid, data)
	case signal.TypeAnswerCall:
		b.handleAnswerCall(sid, data)
	case signal.TypeIceCandidate:
		b.handleIceCandidate(sid, data)
	case signal.TypeCallDeclined:
		b.handleCallDeclined(sid, data)
	case signal.TypePing:
		b.reply(sid, signal.Envelope{Type: signal.TypePong})
	default:
		log.Warn().Str("module", "relay.broker").Str("sid", string(sid)).Str("type", typ).Msg("unknown envelope type")
	}
}

func (b *Broker) handleJoin(sid core.SessionID, data []byte) {
	var p signal.JoinRoom
	if err := signal.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Warn().Str("module", "relay.broker").Str("sid", string(sid)).Msg("bad join payload")
		return
	}
	room := domain.RoomID(p.RoomID)
	if err := b.JoinRoom(sid, room); err != nil {
		b.reply(sid, signal.ErrorReply{Type: signal.TypeError, Error: err.Error()})
		return
	}
	b.reply(sid, signal.RoomJoined{
		Type:    signal.TypeRoomJoined,
		RoomID:  p.RoomID,
		Members: b.reg.MemberCount(room),
	})
}

func (b *Broker) handleCallUser(sid core.SessionID, data []byte) {
	var p signal.CallUser
	if err := signal.Unmarshal(data, &p); err != nil || p.UserToCall == "" {
		log.Warn().Str("module", "relay.broker").Str("sid", string(sid)).Msg("bad callUser payload")
		return
	}
	frame, err := signal.Marshal(signal.IncomingCall{
		Type:   signal.TypeCallUser,
		Signal: p.SignalData,
		From:   p.From,
	})
	if err != nil {
		return
	}
	b.fanout(domain.RoomID(p.UserToCall), sid, frame)
}

func (b *Broker) handleAnswerCall(sid core.SessionID, data []byte) {
	var p signal.AnswerCall
	if err := signal.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Str("module", "relay.broker").Str("sid", string(sid)).Msg("bad answerCall payload")
		return
	}
	frame, err := signal.Marshal(signal.CallAccepted{
		Type:   signal.TypeCallAccepted,
		Signal: p.Signal,
	})
	if err != nil {
		return
	}
	// Not paired to the original offerer: broadcast to the room the offer
	// targeted. Correct only while rooms hold at most two members, which the
	// join cap enforces.
	b.fanout(domain.RoomID(p.To), sid, frame)
}

func (b *Broker) handleIceCandidate(sid core.SessionID, data []byte) {
	var p signal.IceCandidate
	if err := signal.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Str("module", "relay.broker").Str("sid", string(sid)).Msg("bad iceCandidate payload")
		return
	}
	frame, err := signal.Marshal(signal.IceCandidate{
		Type:      signal.TypeIceCandidate,
		Candidate: p.Candidate,
	})
	if err != nil {
		return
	}
	b.fanout(domain.RoomID(p.To), sid, frame)
}

func (b *Broker) handleCallDeclined(sid core.SessionID, data []byte) {
	var p signal.CallDeclined
	if err := signal.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Str("module", "relay.broker").Str("sid", string(sid)).Msg("bad callDeclined payload")
		return
	}
	frame, err := signal.Marshal(signal.CallDeclined{
		Type:   signal.TypeCallDeclined,
		From:   p.From,
		Reason: p.Reason,
	})
	if err != nil {
		return
	}
	b.fanout(domain.RoomID(p.To), sid, frame)
}

// fanout delivers frame to every member of room except from. Send-and-forget:
// no acknowledgment, and a full queue on one recipient never blocks the rest.
func (b *Broker) fanout(room domain.RoomID, from core.SessionID, frame core.Frame) {
	members := b.reg.MembersOf(room)
	sent := 0
	for _, sid := range members {
		if sid == from {
			continue
		}
		b.mu.RLock()
		conn, ok := b.conns[sid]
		b.mu.RUnlock()
		if !ok {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "relay.broker").Str("room", string(room)).Str("sid", string(sid)).Msg("send failed")
			if b.policy.OnBackpressure(room, sid) == KickSession {
				b.Disconnect(sid)
			}
			continue
		}
		sent++
	}
	log.Debug().Str("module", "relay.broker").Str("room", string(room)).Str("from", string(from)).Int("sent_to", sent).Msg("fanout")
}

func (b *Broker) reply(sid core.SessionID, v any) {
	frame, err := signal.Marshal(v)
	if err != nil {
		return
	}
	b.mu.RLock()
	conn, ok := b.conns[sid]
	b.mu.RUnlock()
	if !ok {
		return
	}
	_ = conn.TrySend(frame)
}
