package engine

// handlers.go contains the switches on command and packet type and the subroutines invoked by each case.

import (
	"fmt"
	"strings"

	"github.com/rflandau/arpchat/channel"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rflandau/arpchat/presence"
)

// handleCommand acts on a single UI command.
// Returns true if the engine must stop.
func (e *Engine) handleCommand(cmd Command) (terminate bool) {
	switch c := cmd.(type) {
	case PauseHeartbeat:
		e.paused = c.Paused
		e.log.Debug().Bool("paused", c.Paused).Msg("heartbeat toggled")
	case SendMessage:
		e.sendMessage(c.Text)
	case SetEtherType:
		e.etherType = c.EtherType
		if e.ch != nil {
			e.ch.SetEtherType(c.EtherType)
		}
	case SetInterface:
		e.setInterface(c.Name)
	case Terminate:
		return true
	case UpdateUsername:
		e.log.Info().Str("old", e.username).Str("new", c.Username).Msg("username changed")
		e.username = c.Username
		if e.state == NeedsUsername {
			if e.ch == nil {
				e.usernamePending = true
			} else {
				e.requestPresence()
			}
		}
	default:
		e.log.Warn().Type("command", cmd).Msg("unknown command")
	}
	return false
}

// setInterface binds the engine to the named interface.
// Failures are reported to the UI; the engine keeps waiting for another SetInterface.
func (e *Engine) setInterface(name string) {
	if e.ch != nil {
		e.emit(NetError{Err: ErrInterfaceAlreadySet})
		return
	}
	ch, err := e.bind(name, channel.WithLogger(e.log), channel.WithEtherType(e.etherType))
	if err != nil {
		e.log.Warn().Err(err).Str("interface", name).Msg("failed to bind")
		e.emit(NetError{Err: fmt.Errorf("%w %q: %w", ErrBindFailed, name, err)})
		return
	}
	e.ch = ch
	e.log.Info().Str("interface", name).Func(ch.Zerolog).Msg("bound")
}

// sendMessage echoes text to the UI as outgoing, then broadcasts it.
func (e *Engine) sendMessage(text string) {
	if e.ch == nil {
		e.emit(NetError{Err: ErrNotBound})
		return
	}
	e.emit(ShowMessage{ID: e.id, Username: e.username, Text: text, IsOutgoing: true})
	e.send(ktp.Message{ID: e.id, Text: text})
}

// handlePacket acts on a single packet received from the channel.
func (e *Engine) handlePacket(p ktp.Packet) {
	switch pkt := p.(type) {
	case ktp.Message:
		e.serveMessage(pkt)
	case ktp.PresenceReq:
		if e.state != NeedsUsername {
			e.announce()
		}
	case ktp.Presence:
		e.servePresence(pkt)
	case ktp.Disconnect:
		if peer, found := e.online[pkt.ID]; found {
			delete(e.online, pkt.ID)
			e.log.Info().Str("peer", pkt.ID.String()).Str("username", peer.username).Msg("peer disconnected")
			e.emit(RemovePresence{ID: pkt.ID, Username: peer.username})
		}
	default:
		e.log.Warn().Type("packet", p).Msg("unknown packet")
	}
}

// serveMessage shows an inbound message, alerting the user if it mentions them.
// Our own messages come back off the wire too; they are shown (confirming delivery) but never alert.
func (e *Engine) serveMessage(m ktp.Message) {
	username := UnknownUsername
	if peer, found := e.online[m.ID]; found {
		username = peer.username
	}
	if m.ID != e.id && e.username != "" && strings.Contains(m.Text, e.username) {
		e.emit(AlertUser{})
	}
	e.emit(ShowMessage{ID: m.ID, Username: username, Text: m.Text})
}

// servePresence upserts the announcing peer and reports the change.
// Hearing our own announcement is what moves us from NeedsInitialPresence to Ready.
func (e *Engine) servePresence(p ktp.Presence) {
	prior, known := e.online[p.ID]
	_, wasOffline := e.offline[p.ID]
	kind := presence.KindOf(known, prior.username, p.Username, p.IsJoin, wasOffline)
	if !known {
		delete(e.offline, p.ID)
	}
	e.online[p.ID] = peer{username: p.Username, lastSeen: e.now()}

	ev := PresenceUpdate{ID: p.ID, Username: p.Username, Kind: kind}
	if kind == presence.UsernameChange {
		ev.PreviousUsername = prior.username
	}
	e.emit(ev)

	if p.ID == e.id && e.state == NeedsInitialPresence {
		e.state = Ready
		e.log.Info().Stringer("state", e.state).Msg("own presence observed")
	}
}
