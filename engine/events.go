package engine

import (
	"github.com/rflandau/arpchat/ktp"
	"github.com/rflandau/arpchat/presence"
)

// File events.go defines the messages the engine sends to the UI.

// An Event is a notification from the engine to the UI.
// Each event should cause exactly one UI mutation.
type Event interface {
	event()
}

// AlertUser asks the UI to get the user's attention; a peer mentioned them.
type AlertUser struct{}

// NetError reports a failure the user should see.
type NetError struct {
	Err error
}

// ShowMessage is a chat line.
// Outgoing messages are shown optimistically, before the wire confirms them.
type ShowMessage struct {
	ID         ktp.ID
	Username   string
	Text       string
	IsOutgoing bool
}

// PresenceUpdate reports that a peer is (still) around.
// PreviousUsername is only set when Kind is presence.UsernameChange.
type PresenceUpdate struct {
	ID               ktp.ID
	Username         string
	IsInactive       bool
	Kind             presence.UpdateKind
	PreviousUsername string
}

// RemovePresence reports that a peer left or timed out.
type RemovePresence struct {
	ID       ktp.ID
	Username string
}

func (AlertUser) event()      {}
func (NetError) event()       {}
func (ShowMessage) event()    {}
func (PresenceUpdate) event() {}
func (RemovePresence) event() {}
