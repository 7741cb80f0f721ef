package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

// Peer is the client-side identity attached to outbound offers. The relay
// never authenticates it; it only travels inside envelopes so the remote
// side can show who is calling.
type Peer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewPeer avoids raw literals in adapters and keeps construction obvious.
func NewPeer(id, name string) (*Peer, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	return &Peer{ID: id, Name: name}, nil
}
