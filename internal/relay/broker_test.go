package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/core"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/signal"
)

// fakeConn records delivered frames; it can be told to refuse sends to
// exercise the backpressure policy.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	refuse bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refuse {
		return errors.New("queue full")
	}
	c.frames = append(c.frames, append([]byte(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) framesOfType(t *testing.T, typ string) [][]byte {
	t.Helper()
	var out [][]byte
	for _, f := range c.Frames() {
		got, err := signal.TypeOf(f)
		require.NoError(t, err)
		if got == typ {
			out = append(out, f)
		}
	}
	return out
}

func newTestBroker(opts Options) *Broker {
	return NewBroker(NewRegistry(), DropPolicy{}, opts)
}

func connect(b *Broker, sid core.SessionID) *fakeConn {
	conn := &fakeConn{}
	b.Connect(sid, conn)
	return conn
}

func join(t *testing.T, b *Broker, sid core.SessionID, room string) {
	t.Helper()
	b.HandleEnvelope(sid, []byte(fmt.Sprintf(`{"type":"joinRoom","roomId":%q}`, room)))
}

func TestBroker_OfferFanoutExactlyOnceNeverToSender(t *testing.T) {
	b := newTestBroker(Options{})
	a := connect(b, "a")
	c := connect(b, "c")
	outsider := connect(b, "x")
	join(t, b, "a", "R1")
	join(t, b, "c", "R1")
	join(t, b, "x", "R2")

	b.HandleEnvelope("a", []byte(`{"type":"callUser","userToCall":"R1","signalData":{"sdp":"offer"},"from":"a"}`))

	got := c.framesOfType(t, signal.TypeCallUser)
	require.Len(t, got, 1)

	var in signal.IncomingCall
	require.NoError(t, json.Unmarshal(got[0], &in))
	assert.Equal(t, "a", in.From)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(in.Signal))

	assert.Empty(t, a.framesOfType(t, signal.TypeCallUser), "offer must never echo to the sender")
	assert.Empty(t, outsider.framesOfType(t, signal.TypeCallUser), "offer must stay in its room")
}

func TestBroker_AnswerBroadcastsToOfferRoom(t *testing.T) {
	b := newTestBroker(Options{})
	a := connect(b, "a")
	c := connect(b, "c")
	join(t, b, "a", "R1")
	join(t, b, "c", "R1")

	b.HandleEnvelope("c", []byte(`{"type":"answerCall","signal":{"sdp":"answer"},"to":"R1"}`))

	got := a.framesOfType(t, signal.TypeCallAccepted)
	require.Len(t, got, 1)
	var acc signal.CallAccepted
	require.NoError(t, json.Unmarshal(got[0], &acc))
	assert.JSONEq(t, `{"sdp":"answer"}`, string(acc.Signal))

	assert.Empty(t, c.framesOfType(t, signal.TypeCallAccepted))
}

func TestBroker_AnswerBeforeAnyOfferIsHarmless(t *testing.T) {
	b := newTestBroker(Options{})
	a := connect(b, "a")
	join(t, b, "a", "R1")

	// Only one member: the broadcast reaches nobody and nothing breaks.
	b.HandleEnvelope("a", []byte(`{"type":"answerCall","signal":{},"to":"R1"}`))
	b.HandleEnvelope("a", []byte(`{"type":"iceCandidate","candidate":{},"to":"R1"}`))

	assert.Empty(t, a.framesOfType(t, signal.TypeCallAccepted))
	assert.Empty(t, a.framesOfType(t, signal.TypeIceCandidate))
}

func TestBroker_DisconnectStopsDelivery(t *testing.T) {
	b := newTestBroker(Options{})
	connect(b, "a")
	c := connect(b, "c")
	join(t, b, "a", "R1")
	join(t, b, "c", "R1")

	b.Disconnect("c")
	assert.True(t, c.Closed())

	b.HandleEnvelope("a", []byte(`{"type":"callUser","userToCall":"R1","signalData":{},"from":"a"}`))
	assert.Empty(t, c.framesOfType(t, signal.TypeCallUser), "no delivery after disconnect")

	// Disconnect is idempotent.
	b.Disconnect("c")
}

func TestBroker_RoomCapRejectsThirdJoin(t *testing.T) {
	b := newTestBroker(Options{MaxRoomSize: 2})
	connect(b, "a")
	connect(b, "c")
	x := connect(b, "x")
	join(t, b, "a", "R1")
	join(t, b, "c", "R1")
	join(t, b, "x", "R1")

	got := x.framesOfType(t, signal.TypeError)
	require.Len(t, got, 1)
	var rep signal.ErrorReply
	require.NoError(t, json.Unmarshal(got[0], &rep))
	assert.Equal(t, ErrRoomFull.Error(), rep.Error)

	// Rejoining by an existing member is still fine.
	join(t, b, "a", "R1")
	assert.Equal(t, 2, b.RoomInfo("R1").MemberCount)
}

func TestBroker_JoinIsIdempotent(t *testing.T) {
	b := newTestBroker(Options{})
	a := connect(b, "a")
	join(t, b, "a", "R1")
	join(t, b, "a", "R1")

	assert.Equal(t, 1, b.RoomInfo("R1").MemberCount)
	replies := a.framesOfType(t, signal.TypeRoomJoined)
	require.Len(t, replies, 2, "each join is acknowledged")
	var ack signal.RoomJoined
	require.NoError(t, json.Unmarshal(replies[1], &ack))
	assert.Equal(t, 1, ack.Members)
}

func TestBroker_JoinWithoutConnectRejected(t *testing.T) {
	b := newTestBroker(Options{})
	err := b.JoinRoom("ghost", "R1")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestBroker_MalformedEnvelopesDropped(t *testing.T) {
	b := newTestBroker(Options{})
	connect(b, "a")

	b.HandleEnvelope("a", []byte(`{`))
	b.HandleEnvelope("a", []byte(`{"no":"type"}`))
	b.HandleEnvelope("a", []byte(`{"type":"warp"}`))
	b.HandleEnvelope("a", []byte(`{"type":"callUser"}`))
	b.HandleEnvelope("a", []byte(`{"type":"joinRoom"}`))
}

func TestBroker_PingPong(t *testing.T) {
	b := newTestBroker(Options{})
	a := connect(b, "a")

	b.HandleEnvelope("a", []byte(`{"type":"ping"}`))
	assert.Len(t, a.framesOfType(t, signal.TypePong), 1)
}

func TestBroker_KickPolicyDisconnectsSlowSession(t *testing.T) {
	b := NewBroker(NewRegistry(), KickPolicy{}, Options{})
	connect(b, "a")
	c := connect(b, "c")
	c.refuse = true
	join(t, b, "a", "R1")
	join(t, b, "c", "R1")

	b.HandleEnvelope("a", []byte(`{"type":"callUser","userToCall":"R1","signalData":{},"from":"a"}`))

	assert.True(t, c.Closed())
	assert.Equal(t, 1, b.RoomInfo("R1").MemberCount)
}

func TestBroker_PeerLeftAnnouncement(t *testing.T) {
	b := newTestBroker(Options{AnnouncePeerLeft: true})
	a := connect(b, "a")
	connect(b, "c")
	join(t, b, "a", "R1")
	join(t, b, "c", "R1")

	b.Disconnect("c")

	got := a.framesOfType(t, signal.TypePeerLeft)
	require.Len(t, got, 1)
	var left signal.PeerLeft
	require.NoError(t, json.Unmarshal(got[0], &left))
	assert.Equal(t, "c", left.From)
}

func TestBroker_DeclineRoutedToRoom(t *testing.T) {
	b := newTestBroker(Options{})
	a := connect(b, "a")
	connect(b, "c")
	join(t, b, "a", "R1")
	join(t, b, "c", "R1")

	b.HandleEnvelope("c", []byte(`{"type":"callDeclined","from":"c","to":"R1","reason":"busy"}`))

	got := a.framesOfType(t, signal.TypeCallDeclined)
	require.Len(t, got, 1)
	var dec signal.CallDeclined
	require.NoError(t, json.Unmarshal(got[0], &dec))
	assert.Equal(t, "busy", dec.Reason)
}
