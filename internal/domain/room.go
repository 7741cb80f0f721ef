// Package domain contains entities without logic, just meta-data.
package domain

// RoomID is an opaque token chosen by the caller. The signaling core does
// not generate or validate it; rooms exist exactly as long as they have
// members.
type RoomID string
