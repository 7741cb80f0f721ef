// Package callctl drives call setup, teardown and media-track lifecycle on
// the client side: one state machine owning one local capture and at most
// one live peer transport.
package callctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrCallInProgress = errors.New("a call is already in progress")
	ErrBusy           = errors.New("busy with another call")
	ErrDeclined       = errors.New("call declined")
	ErrAnswerTimeout  = errors.New("no answer before timeout")
	ErrCanceled       = errors.New("call attempt canceled")
	ErrMediaCapture   = errors.New("media capture failed")
)

const (
	reasonBusy     = "busy"
	reasonDeclined = "declined"
	reasonNoMedia  = "media unavailable"
)

// AcceptFunc decides whether to take an incoming call. It may block on user
// input; the attempt stays claimed while it runs so a second offer is
// declined as busy.
type AcceptFunc func(from string) bool

// Config wires a Controller. Media, Transports and Signaler are required.
type Config struct {
	Room string
	Self string

	Media      MediaSource
	Transports TransportFactory
	Signaler   Signaler

	// Accept is consulted for every incoming offer. Nil accepts everything.
	Accept AcceptFunc
	// OnState observes transitions. Called outside the controller lock; it
	// may call back into the controller.
	OnState func(State)
	// AnswerTimeout bounds AwaitingAnswer. Zero disables the timer.
	AnswerTimeout time.Duration

	Logger zerolog.Logger
}

// Controller is safe for concurrent use. Every asynchronous continuation
// carries the epoch of the attempt that started it and becomes a no-op once
// the epoch moves on (hang-up, failure, new attempt).
type Controller struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	state   State
	epoch   uint64
	stream  MediaStream
	pc      PeerTransport
	role    Role
	timer   *time.Timer
	lastErr error
}

func NewController(cfg Config) *Controller {
	return &Controller{
		cfg: cfg,
		log: cfg.Logger.With().Str("module", "callctl").Str("room", cfg.Room).Logger(),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports the error that ended the last attempt, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// StartCall captures local media, creates an initiator transport and sends
// the offer into the room. On return the controller is AwaitingAnswer; the
// transition to Connected happens when the answer arrives.
func (c *Controller) StartCall(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	c.epoch++
	ep := c.epoch
	c.state = StateCapturing
	c.lastErr = nil
	c.role = RoleInitiator
	c.mu.Unlock()
	c.notify(StateCapturing)

	stream, err := c.cfg.Media.Capture(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMediaCapture, err)
		c.fail(ep, err)
		return err
	}
	if !c.advance(ep, StateInitiating, func() { c.stream = stream }) {
		stream.Close()
		return ErrCanceled
	}

	pc, err := c.cfg.Transports.New(RoleInitiator, stream)
	if err != nil {
		c.fail(ep, err)
		return err
	}
	if !c.advance(ep, StateInitiating, func() { c.pc = pc }) {
		pc.Close()
		return ErrCanceled
	}
	pc.OnDisconnected(func() { c.onPeerGone(ep) })

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		c.fail(ep, err)
		return err
	}
	if err := c.cfg.Signaler.SendOffer(ctx, c.cfg.Room, c.cfg.Self, offer); err != nil {
		c.fail(ep, err)
		return err
	}

	if !c.advance(ep, StateAwaitingAnswer, func() {
		if c.cfg.AnswerTimeout > 0 {
			c.timer = time.AfterFunc(c.cfg.AnswerTimeout, func() { c.onAnswerTimeout(ep) })
		}
	}) {
		return ErrCanceled
	}
	c.log.Info().Uint64("epoch", ep).Msg("offer sent, awaiting answer")
	return nil
}

// HandleIncomingCall responds to an inbound offer. A controller that is not
// Idle declines explicitly so the caller is not left waiting.
func (c *Controller) HandleIncomingCall(ctx context.Context, from string, offer []byte) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.log.Info().Str("from", from).Msg("declining offer: busy")
		_ = c.cfg.Signaler.SendDecline(ctx, c.cfg.Room, c.cfg.Self, reasonBusy)
		return ErrBusy
	}
	c.epoch++
	ep := c.epoch
	c.state = StateCapturing
	c.lastErr = nil
	c.role = RoleResponder
	c.mu.Unlock()
	c.notify(StateCapturing)

	if c.cfg.Accept != nil && !c.cfg.Accept(from) {
		_ = c.cfg.Signaler.SendDecline(ctx, c.cfg.Room, c.cfg.Self, reasonDeclined)
		c.reset(ep)
		return ErrDeclined
	}

	stream, err := c.cfg.Media.Capture(ctx)
	if err != nil {
		_ = c.cfg.Signaler.SendDecline(ctx, c.cfg.Room, c.cfg.Self, reasonNoMedia)
		err = fmt.Errorf("%w: %v", ErrMediaCapture, err)
		c.fail(ep, err)
		return err
	}
	if !c.advance(ep, StateAnswering, func() { c.stream = stream }) {
		stream.Close()
		return ErrCanceled
	}

	pc, err := c.cfg.Transports.New(RoleResponder, stream)
	if err != nil {
		c.fail(ep, err)
		return err
	}
	if !c.advance(ep, StateAnswering, func() { c.pc = pc }) {
		pc.Close()
		return ErrCanceled
	}
	pc.OnDisconnected(func() { c.onPeerGone(ep) })

	answer, err := pc.HandleOffer(ctx, offer)
	if err != nil {
		c.fail(ep, err)
		return err
	}
	if err := c.cfg.Signaler.SendAnswer(ctx, c.cfg.Room, answer); err != nil {
		c.fail(ep, err)
		return err
	}

	if !c.advance(ep, StateConnected, nil) {
		return ErrCanceled
	}
	c.log.Info().Str("from", from).Uint64("epoch", ep).Msg("call answered")
	return nil
}

// HandleCallAccepted applies the remote answer. Late answers for an ended
// attempt are a no-op.
func (c *Controller) HandleCallAccepted(answer []byte) {
	c.mu.Lock()
	if c.state != StateAwaitingAnswer {
		s := c.state
		c.mu.Unlock()
		c.log.Debug().Str("state", s.String()).Msg("ignoring answer: no attempt awaiting one")
		return
	}
	ep := c.epoch
	pc := c.pc
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if err := pc.HandleAnswer(answer); err != nil {
		c.fail(ep, err)
		return
	}
	if c.advance(ep, StateConnected, nil) {
		c.log.Info().Uint64("epoch", ep).Msg("answer applied, connected")
	}
}

// HandleIceCandidate applies a candidate to the live transport. Harmless
// when no negotiation is in flight.
func (c *Controller) HandleIceCandidate(candidate []byte) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	if err := pc.AddICECandidate(candidate); err != nil {
		c.log.Warn().Err(err).Msg("add ice candidate")
	}
}

// HandleDeclined resolves a pending attempt the remote side refused.
func (c *Controller) HandleDeclined(from, reason string) {
	c.mu.Lock()
	if c.state != StateAwaitingAnswer {
		c.mu.Unlock()
		return
	}
	ep := c.epoch
	c.mu.Unlock()
	c.log.Info().Str("from", from).Str("reason", reason).Msg("call declined by remote")
	c.fail(ep, fmt.Errorf("%w: %s", ErrDeclined, reason))
}

// HandleSignalerDown fails any attempt still depending on the relay.
// A Connected call survives: the peer transport no longer needs signaling.
func (c *Controller) HandleSignalerDown(err error) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	ep := c.epoch
	c.mu.Unlock()
	c.fail(ep, fmt.Errorf("signaling connection lost: %w", err))
}

// HangUp ends the current attempt at any point. Media and transport are
// released synchronously; anything still in flight for this attempt becomes
// a no-op.
func (c *Controller) HangUp() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.epoch++
	pc, stream := c.detachLocked()
	c.state = StateEnded
	c.mu.Unlock()

	closeAll(pc, stream)
	c.notify(StateEnded)
	c.toIdle()
	c.log.Info().Msg("call ended")
}

// ToggleAudio flips the microphone track and reports the new setting.
// Mute is a track-enable flip: no state change, no renegotiation.
func (c *Controller) ToggleAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return false
	}
	on := !c.stream.AudioEnabled()
	c.stream.SetAudioEnabled(on)
	return on
}

// ToggleVideo flips the camera track and reports the new setting.
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return false
	}
	on := !c.stream.VideoEnabled()
	c.stream.SetVideoEnabled(on)
	return on
}

// advance moves to next if the attempt is still current, running fn under
// the lock first. Returns false when the epoch has moved on.
func (c *Controller) advance(ep uint64, next State, fn func()) bool {
	c.mu.Lock()
	if c.epoch != ep {
		c.mu.Unlock()
		return false
	}
	if fn != nil {
		fn()
	}
	changed := c.state != next
	c.state = next
	c.mu.Unlock()
	if changed {
		c.notify(next)
	}
	return true
}

// fail tears the attempt down and reports Failed, then returns to Idle.
func (c *Controller) fail(ep uint64, err error) {
	c.mu.Lock()
	if c.epoch != ep || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.epoch++
	pc, stream := c.detachLocked()
	c.state = StateFailed
	c.lastErr = err
	c.mu.Unlock()

	closeAll(pc, stream)
	c.log.Error().Err(err).Uint64("epoch", ep).Msg("call attempt failed")
	c.notify(StateFailed)
	c.toIdle()
}

// reset quietly returns a claimed-but-unstarted attempt to Idle (declined
// before capture).
func (c *Controller) reset(ep uint64) {
	c.mu.Lock()
	if c.epoch != ep {
		c.mu.Unlock()
		return
	}
	c.epoch++
	pc, stream := c.detachLocked()
	c.state = StateIdle
	c.mu.Unlock()
	closeAll(pc, stream)
	c.notify(StateIdle)
}

func (c *Controller) toIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.notify(StateIdle)
}

// detachLocked hands back the resources of the current attempt so the
// caller can close them outside the lock. Stops the answer timer.
func (c *Controller) detachLocked() (PeerTransport, MediaStream) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	pc, stream := c.pc, c.stream
	c.pc = nil
	c.stream = nil
	return pc, stream
}

func closeAll(pc PeerTransport, stream MediaStream) {
	if pc != nil {
		pc.Close()
	}
	if stream != nil {
		stream.Close()
	}
}

func (c *Controller) onAnswerTimeout(ep uint64) {
	c.mu.Lock()
	timedOut := c.epoch == ep && c.state == StateAwaitingAnswer
	c.mu.Unlock()
	if timedOut {
		c.fail(ep, ErrAnswerTimeout)
	}
}

// onPeerGone reacts to transport-level peer loss; this is how the remote
// party's departure is detected, since the relay sends no peer-left event.
func (c *Controller) onPeerGone(ep uint64) {
	c.mu.Lock()
	gone := c.epoch == ep && c.state == StateConnected
	c.mu.Unlock()
	if !gone {
		return
	}
	c.log.Info().Msg("peer transport disconnected")
	c.HangUp()
}

func (c *Controller) notify(s State) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
	c.log.Debug().Str("state", s.String()).Msg("state")
}
