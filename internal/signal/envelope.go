// Package signal defines the relay wire protocol: tagged JSON envelopes
// carried over one persistent connection. SDP/ICE payloads stay opaque
// (json.RawMessage); the relay routes them without looking inside.
package signal

import (
	"encoding/json"
	"errors"
)

// Envelope type tags. Field names are kept compatible with the original
// relay protocol (callUser/answerCall/callAccepted).
const (
	TypeJoinRoom     = "joinRoom"
	TypeRoomJoined   = "roomJoined"
	TypeCallUser     = "callUser"
	TypeAnswerCall   = "answerCall"
	TypeCallAccepted = "callAccepted"
	TypeIceCandidate = "iceCandidate"
	TypeCallDeclined = "callDeclined"
	TypePeerLeft     = "peerLeft"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

var ErrNoType = errors.New("envelope has no type tag")

// Envelope is the minimal tagged form shared by every message.
type Envelope struct {
	Type string `json:"type"`
}

// JoinRoom is sent by a client to enter a signaling room.
type JoinRoom struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// RoomJoined acknowledges a join with the current occupancy.
type RoomJoined struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

// CallUser carries an initiator offer into a room. The relay fans it out to
// every other member of userToCall.
type CallUser struct {
	Type       string          `json:"type"`
	UserToCall string          `json:"userToCall"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
}

// IncomingCall is the relay-side rendering of CallUser delivered to callees.
type IncomingCall struct {
	Type   string          `json:"type"`
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}

// AnswerCall carries a responder answer back toward the room the offer
// targeted. The relay does not pair calls; it broadcasts to the room, which
// is only correct while rooms hold at most two members.
type AnswerCall struct {
	Type   string          `json:"type"`
	Signal json.RawMessage `json:"signal"`
	To     string          `json:"to"`
}

// CallAccepted is the relay-side rendering of AnswerCall delivered to the
// caller.
type CallAccepted struct {
	Type   string          `json:"type"`
	Signal json.RawMessage `json:"signal"`
}

// IceCandidate carries one connectivity candidate. Routed like AnswerCall:
// broadcast to the room named in To.
type IceCandidate struct {
	Type      string          `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
	To        string          `json:"to,omitempty"`
}

// CallDeclined tells the caller the attempt is over (busy callee or an
// explicit refusal) so it is not left waiting on an answer.
type CallDeclined struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// PeerLeft announces a disconnect to the rooms the session was in.
// Optional extension; disabled by default.
type PeerLeft struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// ErrorReply reports a rejected request (e.g. room full) to one session.
type ErrorReply struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// TypeOf extracts the type tag without decoding the rest of the envelope.
func TypeOf(data []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	if env.Type == "" {
		return "", ErrNoType
	}
	return env.Type, nil
}

// Marshal encodes an envelope for the wire.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes an envelope body.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
