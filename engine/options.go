package engine

import (
	"time"

	"github.com/rflandau/arpchat/channel"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rs/zerolog"
)

// File options.go provides options that can be passed to the engine constructor to configure it.

// A Binder turns an interface name into a live channel.
// opts carry the engine's logger and ether type preference and must be passed through.
type Binder func(name string, opts ...channel.Option) (*channel.Channel, error)

// Option function to set various options on the engine.
// Uses defaults if an option is not set.
type Option func(*Engine)

// WithLogger replaces the engine's default logger with the given logger.
// The logger is handed down to the channel at bind time.
func WithLogger(l *zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithBinder replaces DefaultBinder.
func WithBinder(b Binder) Option {
	return func(e *Engine) { e.bind = b }
}

// WithEtherType sets the stored ether type preference, applied when the interface is bound.
func WithEtherType(et ktp.EtherType) Option {
	return func(e *Engine) { e.etherType = et }
}

// WithUsername sets the initial local username.
// Unlike an UpdateUsername command, it does not start presence participation.
func WithUsername(name string) Option {
	return func(e *Engine) { e.username = name }
}

// WithClock replaces time.Now as the engine's source of time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIdlePoll overwrites DefaultIdlePoll.
func WithIdlePoll(d time.Duration) Option {
	return func(e *Engine) { e.idlePoll = d }
}
