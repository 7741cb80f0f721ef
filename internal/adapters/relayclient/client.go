// Package relayclient is the client end of the signaling channel: one
// persistent websocket to the relay, with reconnect backoff and rejoin of
// the last room.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/signal"
)

var ErrNotConnected = errors.New("relay not connected")

const (
	writeWait      = 5 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Callbacks deliver inbound envelopes. Unset fields drop their envelope.
// All callbacks run on the read loop goroutine.
type Callbacks struct {
	RoomJoined   func(roomID string, members int)
	IncomingCall func(from string, offer []byte)
	CallAccepted func(answer []byte)
	IceCandidate func(candidate []byte)
	CallDeclined func(from, reason string)
	PeerLeft     func(from string)
	ErrorReply   func(msg string)
	// Down fires when the connection drops; reconnect happens regardless.
	Down func(err error)
}

// Client implements callctl.Signaler over one relay websocket.
type Client struct {
	url       string
	room      string
	Callbacks Callbacks
	log       zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(url, room string, logger zerolog.Logger) *Client {
	return &Client{
		url:  url,
		room: room,
		log:  logger.With().Str("module", "relayclient").Str("url", url).Logger(),
	}
}

// Run dials the relay and keeps the connection alive until ctx is done,
// reconnecting with exponential backoff and rejoining the room after each
// connect.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		c.mu.Lock()
		c.conn = conn
		room := c.room
		c.mu.Unlock()
		c.log.Info().Msg("connected to relay")

		if room != "" {
			if err := c.JoinRoom(ctx, room); err != nil {
				c.log.Warn().Err(err).Msg("rejoin failed")
			}
		}

		err = c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("relay connection lost")
		if c.Callbacks.Down != nil {
			c.Callbacks.Down(err)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	typ, err := signal.TypeOf(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed envelope")
		return
	}

	switch typ {
	case signal.TypeRoomJoined:
		var p signal.RoomJoined
		if json.Unmarshal(data, &p) == nil && c.Callbacks.RoomJoined != nil {
			c.Callbacks.RoomJoined(p.RoomID, p.Members)
		}
	case signal.TypeCallUser:
		var p signal.IncomingCall
		if json.Unmarshal(data, &p) == nil && c.Callbacks.IncomingCall != nil {
			c.Callbacks.IncomingCall(p.From, p.Signal)
		}
	case signal.TypeCallAccepted:
		var p signal.CallAccepted
		if json.Unmarshal(data, &p) == nil && c.Callbacks.CallAccepted != nil {
			c.Callbacks.CallAccepted(p.Signal)
		}
	case signal.TypeIceCandidate:
		var p signal.IceCandidate
		if json.Unmarshal(data, &p) == nil && c.Callbacks.IceCandidate != nil {
			c.Callbacks.IceCandidate(p.Candidate)
		}
	case signal.TypeCallDeclined:
		var p signal.CallDeclined
		if json.Unmarshal(data, &p) == nil && c.Callbacks.CallDeclined != nil {
			c.Callbacks.CallDeclined(p.From, p.Reason)
		}
	case signal.TypePeerLeft:
		var p signal.PeerLeft
		if json.Unmarshal(data, &p) == nil && c.Callbacks.PeerLeft != nil {
			c.Callbacks.PeerLeft(p.From)
		}
	case signal.TypeError:
		var p signal.ErrorReply
		if json.Unmarshal(data, &p) == nil {
			c.log.Warn().Str("error", p.Error).Msg("relay error reply")
			if c.Callbacks.ErrorReply != nil {
				c.Callbacks.ErrorReply(p.Error)
			}
		}
	case signal.TypePong:
	default:
		c.log.Warn().Str("type", typ).Msg("unknown envelope type")
	}
}

func (c *Client) write(v any) error {
	data, err := signal.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// JoinRoom enters room and remembers it for rejoin after reconnect.
func (c *Client) JoinRoom(_ context.Context, room string) error {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
	return c.write(signal.JoinRoom{Type: signal.TypeJoinRoom, RoomID: room})
}

func (c *Client) SendOffer(_ context.Context, room, from string, sdp []byte) error {
	return c.write(signal.CallUser{
		Type:       signal.TypeCallUser,
		UserToCall: room,
		SignalData: sdp,
		From:       from,
	})
}

func (c *Client) SendAnswer(_ context.Context, room string, sdp []byte) error {
	return c.write(signal.AnswerCall{
		Type:   signal.TypeAnswerCall,
		Signal: sdp,
		To:     room,
	})
}

func (c *Client) SendCandidate(_ context.Context, room string, candidate []byte) error {
	return c.write(signal.IceCandidate{
		Type:      signal.TypeIceCandidate,
		Candidate: candidate,
		To:        room,
	})
}

func (c *Client) SendDecline(_ context.Context, room, from, reason string) error {
	return c.write(signal.CallDeclined{
		Type:   signal.TypeCallDeclined,
		From:   from,
		To:     room,
		Reason: reason,
	})
}

// Ping checks liveness of the signaling channel.
func (c *Client) Ping() error {
	return c.write(signal.Envelope{Type: signal.TypePing})
}
