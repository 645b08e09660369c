// Package engine implements the session engine: the single goroutine that owns a channel,
// tracks which peers are online, and translates between UI commands, KTP packets, and UI events.
//
// An Engine is created with New and driven by Run.
// It talks to the UI exclusively through two queues; neither side ever blocks on the other.
package engine

import (
	"bytes"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/rflandau/arpchat/channel"
	"github.com/rflandau/arpchat/internal/queue"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rflandau/arpchat/netif"
	"github.com/rflandau/arpchat/presence"
	"github.com/rs/zerolog"
)

const (
	// DefaultUsername is used until the UI supplies one.
	DefaultUsername = "Anonymous"
	// UnknownUsername stands in for the author of a message from a peer that has not announced itself.
	UnknownUsername = "Unknown"
	// DefaultIdlePoll is how long the engine sleeps between commands while it waits for an interface.
	// Once bound, the channel's read timeout paces the loop instead.
	DefaultIdlePoll = 10 * time.Millisecond
)

// State is the engine's progress through presence participation.
// It only ever advances.
type State uint8

const (
	// NeedsUsername withholds all presence traffic until the UI supplies a username.
	NeedsUsername State = iota
	// NeedsInitialPresence waits for the session's own announcement to come back off the wire.
	NeedsInitialPresence
	// Ready is normal operation.
	Ready
)

func (s State) String() string {
	switch s {
	case NeedsUsername:
		return "needs username"
	case NeedsInitialPresence:
		return "needs initial presence"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// a peer is an entry in the online table.
type peer struct {
	username string
	lastSeen time.Time
}

// An Engine is one chat session.
// All fields are owned by the goroutine executing Run.
type Engine struct {
	log      *zerolog.Logger
	cmds     *queue.Queue[Command]
	events   *queue.Queue[Event]
	bind     Binder
	now      func() time.Time
	idlePoll time.Duration

	id        ktp.ID // session id
	username  string
	etherType ktp.EtherType // preference applied at bind; tracks the channel afterwards
	state     State
	ch        *channel.Channel

	// set when a username arrives before binding; the presence request is sent once bound
	usernamePending bool
	paused          bool
	lastSweep       time.Time

	online  map[ktp.ID]peer
	offline map[ktp.ID]struct{}
}

// DefaultBinder resolves name among the host's usable interfaces and opens a live capture on it.
func DefaultBinder(name string, opts ...channel.Option) (*channel.Channel, error) {
	ifc, err := netif.ByName(name)
	if err != nil {
		return nil, err
	}
	return channel.Bind(ifc, opts...)
}

// New returns an engine that pops commands from cmds and pushes events onto events.
// The engine does nothing until Run is called.
func New(cmds *queue.Queue[Command], events *queue.Queue[Event], opts ...Option) *Engine {
	e := &Engine{
		cmds:      cmds,
		events:    events,
		bind:      DefaultBinder,
		now:       time.Now,
		idlePoll:  DefaultIdlePoll,
		id:        ktp.NewID(),
		username:  DefaultUsername,
		etherType: ktp.DefaultEtherType,
		state:     NeedsUsername,
		online:    make(map[ktp.ID]peer),
		offline:   make(map[ktp.ID]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		l := zerolog.New(zerolog.ConsoleWriter{
			Out:         os.Stderr,
			FieldsOrder: []string{"session"},
			TimeFormat:  "15:04:05",
		}).With().
			Str("session", e.id.String()).
			Timestamp().
			Caller().
			Logger().Level(zerolog.WarnLevel)
		e.log = &l
	}

	e.log.Debug().Func(e.Zerolog).Msg("engine created")
	return e
}

//#region getters

// ID returns the session id.
func (e *Engine) ID() ktp.ID {
	return e.id
}

// Username returns the current local username.
// Only safe to call from the Run goroutine or after Run returns.
func (e *Engine) Username() string {
	return e.username
}

// State returns the engine's current state.
// Only safe to call from the Run goroutine or after Run returns.
func (e *Engine) State() State {
	return e.state
}

//#endregion getters

// Run drives the session until a Terminate command is processed or the channel fails.
//
// Until an interface is bound, Run handles one command per iteration and otherwise sleeps.
// Once bound, every iteration handles at most one command, attempts one receive (bounded by the
// channel's read timeout), and runs the heartbeat if it is due.
//
// Returns nil after Terminate. A capture failure is reported as a NetError event and returned.
func (e *Engine) Run() error {
	if terminated := e.awaitInterface(); terminated {
		e.log.Info().Msg("terminated before an interface was bound")
		return nil
	}
	defer func() {
		if err := e.ch.Close(); err != nil {
			e.log.Warn().Err(err).Msg("failed to close channel")
		}
	}()

	e.lastSweep = e.now()
	if e.usernamePending {
		e.requestPresence()
	}

	for {
		if cmd, ok := e.nextCommand(); ok {
			if terminated := e.handleCommand(cmd); terminated {
				e.disconnect()
				return nil
			}
		}

		p, err := e.ch.Receive()
		if err != nil {
			e.log.Error().Err(err).Msg("channel lost")
			e.emit(NetError{Err: err})
			return err
		}
		if p != nil {
			e.handlePacket(p)
		}

		if now := e.now(); presence.HeartbeatDue(e.lastSweep, now) {
			e.heartbeat(now)
		}
	}
}

// awaitInterface handles commands until one binds a channel.
// Returns true if the engine was terminated first.
func (e *Engine) awaitInterface() (terminated bool) {
	for e.ch == nil {
		cmd, ok := e.nextCommand()
		if !ok {
			time.Sleep(e.idlePoll)
			continue
		}
		if e.handleCommand(cmd) {
			return true
		}
	}
	return false
}

// nextCommand pops the next command, if any.
// A closed and empty command queue means the UI is gone and is treated as Terminate.
func (e *Engine) nextCommand() (Command, bool) {
	if cmd, ok := e.cmds.TryPop(); ok {
		return cmd, true
	}
	if e.cmds.Closed() {
		e.log.Warn().Msg("command queue closed; terminating")
		return Terminate{}, true
	}
	return nil, false
}

// emit pushes ev to the UI.
// The UI outliving the engine is an invariant; a closed event queue is fatal.
func (e *Engine) emit(ev Event) {
	if err := e.events.Push(ev); err != nil {
		e.log.Error().Err(err).Msg("event queue disconnected")
		panic("engine: event queue disconnected: " + err.Error())
	}
}

// send broadcasts p, reporting failures to the UI. The session carries on either way.
func (e *Engine) send(p ktp.Packet) bool {
	if err := e.ch.Send(p); err != nil {
		e.log.Warn().Err(err).Str("type", ktp.TagString(p.Tag())).Msg("failed to send packet")
		e.emit(NetError{Err: err})
		return false
	}
	return true
}

// disconnect makes a best-effort attempt to tell peers we are leaving.
func (e *Engine) disconnect() {
	if err := e.ch.Send(ktp.Disconnect{ID: e.id}); err != nil {
		e.log.Warn().Err(err).Msg("failed to announce disconnect")
		return
	}
	e.log.Info().Msg("disconnect announced")
}

// requestPresence asks every peer to announce itself and advances out of NeedsUsername.
func (e *Engine) requestPresence() {
	e.usernamePending = false
	e.send(ktp.PresenceReq{})
	e.state = NeedsInitialPresence
	e.log.Debug().Stringer("state", e.state).Msg("presence requested")
}

// announce broadcasts our own presence.
func (e *Engine) announce() {
	e.send(ktp.Presence{ID: e.id, IsJoin: e.state != Ready, Username: e.username})
}

// heartbeat re-announces (if Ready and not paused) and then sweeps the online table.
func (e *Engine) heartbeat(now time.Time) {
	e.lastSweep = now
	if e.state == Ready && !e.paused {
		e.announce()
	}

	ids := slices.SortedFunc(maps.Keys(e.online), func(a, b ktp.ID) int { return bytes.Compare(a[:], b[:]) })
	for _, id := range ids {
		p := e.online[id]
		switch presence.Classify(p.lastSeen, now) {
		case presence.Offline:
			delete(e.online, id)
			e.offline[id] = struct{}{}
			e.log.Info().Str("peer", id.String()).Str("username", p.username).Msg("peer went offline")
			e.emit(RemovePresence{ID: id, Username: p.username})
		case presence.Inactive:
			e.emit(PresenceUpdate{ID: id, Username: p.username, IsInactive: true, Kind: presence.Boring})
		}
	}
}

// Zerolog pretty prints the state of the engine into the given zerolog event.
// Intended to be given to *zerolog.Event.Func().
func (e *Engine) Zerolog(ev *zerolog.Event) {
	ev.Str("session", e.id.String()).
		Str("username", e.username).
		Stringer("state", e.state).
		Stringer("ether type", e.etherType).
		Bool("bound", e.ch != nil).
		Bool("heartbeat paused", e.paused).
		Int("online", len(e.online)).
		Int("offline", len(e.offline))
}
