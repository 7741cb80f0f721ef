package callctl

import "context"

// MediaStream is one local capture: camera plus microphone. Track toggles
// flip the live tracks without renegotiating; Close releases the devices.
type MediaStream interface {
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	AudioEnabled() bool
	VideoEnabled() bool
	Close()
}

// MediaSource acquires a local media stream. A platform primitive — the
// controller only sees success or a permission-denied style failure.
type MediaSource interface {
	Capture(ctx context.Context) (MediaStream, error)
}

// PeerTransport is the direct peer connection under negotiation. SDP and
// candidate payloads are opaque bytes produced and consumed by the adapter.
type PeerTransport interface {
	// CreateOffer produces the local description for the initiator role.
	CreateOffer(ctx context.Context) ([]byte, error)
	// HandleOffer applies a remote offer and returns the local answer.
	HandleOffer(ctx context.Context, offer []byte) ([]byte, error)
	// HandleAnswer applies the remote answer on the initiator side.
	HandleAnswer(answer []byte) error
	// AddICECandidate applies a late connectivity candidate.
	AddICECandidate(candidate []byte) error
	// OnDisconnected registers a callback for transport-level peer loss.
	OnDisconnected(func())
	Close()
}

// TransportFactory builds one PeerTransport per call attempt with the local
// stream already attached.
type TransportFactory interface {
	New(role Role, stream MediaStream) (PeerTransport, error)
}

// Signaler is the relay channel as seen from the controller.
type Signaler interface {
	SendOffer(ctx context.Context, room, from string, sdp []byte) error
	SendAnswer(ctx context.Context, room string, sdp []byte) error
	SendCandidate(ctx context.Context, room string, candidate []byte) error
	SendDecline(ctx context.Context, room, from, reason string) error
}
