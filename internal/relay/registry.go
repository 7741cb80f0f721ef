package relay

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/core"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/domain"
)

// Registry is the in-memory room membership table. Rooms come into being on
// first join and disappear when the last member leaves; nothing survives a
// relay restart.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]map[core.SessionID]struct{}
	bySession map[core.SessionID]map[domain.RoomID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:     make(map[domain.RoomID]map[core.SessionID]struct{}),
		bySession: make(map[core.SessionID]map[domain.RoomID]struct{}),
	}
}

// Add puts sid into room. Joining twice is a no-op; the return value reports
// whether membership actually changed.
func (r *Registry) Add(room domain.RoomID, sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[core.SessionID]struct{})
		r.rooms[room] = members
	}
	if _, exists := members[sid]; exists {
		return false
	}
	members[sid] = struct{}{}
	sessions, ok := r.bySession[sid]
	if !ok {
		sessions = make(map[domain.RoomID]struct{})
		r.bySession[sid] = sessions
	}
	sessions[room] = struct{}{}
	log.Debug().Str("module", "relay.registry").Str("room", string(room)).Str("sid", string(sid)).Msg("member added")
	return true
}

func (r *Registry) Remove(room domain.RoomID, sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(room, sid)
}

func (r *Registry) removeLocked(room domain.RoomID, sid core.SessionID) {
	if members, ok := r.rooms[room]; ok {
		delete(members, sid)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if sessions, ok := r.bySession[sid]; ok {
		delete(sessions, room)
		if len(sessions) == 0 {
			delete(r.bySession, sid)
		}
	}
}

// MembersOf returns a snapshot of the sessions currently in room.
func (r *Registry) MembersOf(room domain.RoomID) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]core.SessionID, 0, len(members))
	for sid := range members {
		out = append(out, sid)
	}
	return out
}

func (r *Registry) MemberCount(room domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// RemoveAll removes sid from every room it joined and returns the rooms it
// was a member of. Called on disconnect.
func (r *Registry) RemoveAll(sid core.SessionID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.bySession[sid]
	out := make([]domain.RoomID, 0, len(sessions))
	for room := range sessions {
		out = append(out, room)
	}
	for _, room := range out {
		r.removeLocked(room, sid)
	}
	log.Debug().Str("module", "relay.registry").Str("sid", string(sid)).Int("rooms", len(out)).Msg("session removed from all rooms")
	return out
}

// Rooms lists current occupancy for the inspection API.
func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: len(members)})
	}
	return out
}
