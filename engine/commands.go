package engine

import "github.com/rflandau/arpchat/ktp"

// File commands.go defines the messages the UI sends to the engine.

// A Command is a request from the UI to the engine.
// The set of commands is closed.
type Command interface {
	command()
}

// PauseHeartbeat stops (or resumes) the periodic presence announcement.
// Sweeps of the online table continue either way.
type PauseHeartbeat struct {
	Paused bool
}

// SendMessage echoes Text to the UI as outgoing and broadcasts it.
type SendMessage struct {
	Text string
}

// SetEtherType changes the discriminator of subsequent frames.
// Before an interface is bound, it replaces the preference applied at bind time.
type SetEtherType struct {
	EtherType ktp.EtherType
}

// SetInterface binds the engine to the named interface.
// Only the first successful SetInterface takes effect.
type SetInterface struct {
	Name string
}

// Terminate announces a disconnect (if bound) and stops the engine.
type Terminate struct{}

// UpdateUsername changes the local username.
// The first update after binding starts presence participation.
type UpdateUsername struct {
	Username string
}

func (PauseHeartbeat) command() {}
func (SendMessage) command()    {}
func (SetEtherType) command()   {}
func (SetInterface) command()   {}
func (Terminate) command()      {}
func (UpdateUsername) command() {}
