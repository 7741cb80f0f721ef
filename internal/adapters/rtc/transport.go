// Package rtc adapts pion/webrtc to the callctl transport interfaces.
// Negotiation is non-trickle: each description is released only after ICE
// gathering completes, so the SDP blob carries the candidates.
package rtc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/callctl"
)

// trackProvider is implemented by streams that carry pion local tracks.
type trackProvider interface {
	Tracks() []webrtc.TrackLocal
}

// Factory builds one Transport per call attempt.
type Factory struct {
	cfg webrtc.Configuration
	log zerolog.Logger
}

func NewFactory(iceServers []string, logger zerolog.Logger) *Factory {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Factory{cfg: cfg, log: logger.With().Str("module", "rtc").Logger()}
}

func (f *Factory) New(role callctl.Role, stream callctl.MediaStream) (callctl.PeerTransport, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}

	t := &Transport{pc: pc, log: f.log.With().Str("role", role.String()).Logger()}

	if provider, ok := stream.(trackProvider); ok {
		for _, track := range provider.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, err
			}
		}
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		t.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.log.Info().Str("peer_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			t.fireDisconnected()
		}
	})

	return t, nil
}

// Transport wraps one PeerConnection. SDP payloads cross the interface as
// JSON-encoded webrtc.SessionDescription, candidates as ICECandidateInit.
type Transport struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu       sync.Mutex
	onDown   func()
	downOnce sync.Once
}

func (t *Transport) CreateOffer(ctx context.Context) ([]byte, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *Transport) HandleOffer(ctx context.Context, offer []byte) ([]byte, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		return nil, err
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return nil, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *Transport) HandleAnswer(answer []byte) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		return err
	}
	return t.pc.SetRemoteDescription(desc)
}

func (t *Transport) AddICECandidate(candidate []byte) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return err
	}
	return t.pc.AddICECandidate(init)
}

func (t *Transport) OnDisconnected(fn func()) {
	t.mu.Lock()
	t.onDown = fn
	t.mu.Unlock()
}

func (t *Transport) fireDisconnected() {
	t.mu.Lock()
	fn := t.onDown
	t.mu.Unlock()
	if fn == nil {
		return
	}
	t.downOnce.Do(fn)
}

func (t *Transport) Close() {
	if err := t.pc.Close(); err != nil {
		t.log.Error().Err(err).Msg("close error")
	} else {
		t.log.Info().Msg("closed")
	}
}
