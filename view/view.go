// Package view holds the UI-side picture of a session: who is online and what has been said.
//
// A Model is fed engine events, one at a time, by the UI loop.
// Every event causes exactly one mutation of the model.
package view

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rflandau/arpchat/engine"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rflandau/arpchat/presence"
)

const (
	// ExportPrefix begins the default name of exported chat files.
	ExportPrefix = "EXPORTED_CHAT"
	// pendingSuffix marks an outgoing message the wire has not echoed back yet.
	pendingSuffix = " sending..."
)

// A Peer is a roster entry.
type Peer struct {
	ID       ktp.ID `json:"id"`
	Username string `json:"username"`
	Inactive bool   `json:"inactive"`
}

// A Line is one entry of the chat history: a message or a notice.
type Line struct {
	Time     time.Time `json:"time"`
	ID       ktp.ID    `json:"id"`                 // author; zero for notices
	Username string    `json:"username,omitempty"` // empty for notices
	Text     string    `json:"text"`
	Pending  bool      `json:"pending,omitempty"` // outgoing and not yet seen on the wire
}

// String renders the line as the terminal shows it.
func (l Line) String() string {
	if l.Username == "" {
		return "> " + l.Text
	}
	s := fmt.Sprintf("%s [%s] %s", l.Time.Format("15:04:05"), l.Username, l.Text)
	if l.Pending {
		s += pendingSuffix
	}
	return s
}

// Model is safe for concurrent use.
type Model struct {
	mu      sync.Mutex
	now     func() time.Time
	roster  map[ktp.ID]Peer
	history []Line
	lastErr error
	alerts  int
}

// New returns an empty model.
// now is the source of message timestamps; nil means time.Now.
func New(now func() time.Time) *Model {
	if now == nil {
		now = time.Now
	}
	return &Model{now: now, roster: make(map[ktp.ID]Peer)}
}

// Apply folds ev into the model and returns the lines the UI should print for it (possibly none).
func (m *Model) Apply(ev engine.Event) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev := ev.(type) {
	case engine.AlertUser:
		m.alerts++
	case engine.NetError:
		m.lastErr = ev.Err
		return []string{"! " + ev.Err.Error()}
	case engine.ShowMessage:
		return m.showMessage(ev)
	case engine.PresenceUpdate:
		m.roster[ev.ID] = Peer{ID: ev.ID, Username: ev.Username, Inactive: ev.IsInactive}
		switch ev.Kind {
		case presence.JoinOrReconnect:
			return m.notice(ev.Username + " logged on")
		case presence.UsernameChange:
			if ev.PreviousUsername != ev.Username {
				return m.notice(ev.PreviousUsername + " is now known as " + ev.Username)
			}
		}
	case engine.RemovePresence:
		delete(m.roster, ev.ID)
		return m.notice(ev.Username + " disconnected, bye!")
	}
	return nil
}

// showMessage appends a message, or confirms the pending outgoing line it echoes.
// Caller must hold the lock.
func (m *Model) showMessage(ev engine.ShowMessage) []string {
	if !ev.IsOutgoing {
		for i := len(m.history) - 1; i >= 0; i-- {
			l := &m.history[i]
			if l.Pending && l.ID == ev.ID && l.Text == ev.Text {
				l.Pending = false
				return nil
			}
		}
	}
	l := Line{Time: m.now(), ID: ev.ID, Username: ev.Username, Text: ev.Text, Pending: ev.IsOutgoing}
	m.history = append(m.history, l)
	return []string{l.String()}
}

// notice appends a roster notice.
// Caller must hold the lock.
func (m *Model) notice(text string) []string {
	l := Line{Time: m.now(), Text: text}
	m.history = append(m.history, l)
	return []string{l.String()}
}

// Peers returns the roster ordered by username, then id.
func (m *Model) Peers() []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Peer, 0, len(m.roster))
	for _, p := range m.roster {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Peer) int {
		if c := strings.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// History returns a copy of the chat history, oldest first.
func (m *Model) History() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

// LastError returns the most recent NetError, if any.
func (m *Model) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Alerts returns how many times the user was mentioned.
func (m *Model) Alerts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts
}

// Export writes the chat history to w, one rendered line per entry.
func (m *Model) Export(w io.Writer) error {
	for _, l := range m.History() {
		if _, err := fmt.Fprintln(w, l.String()); err != nil {
			return err
		}
	}
	return nil
}

// DefaultExportName suggests a file name for exporting on the given day.
func DefaultExportName(now time.Time) string {
	return fmt.Sprintf("%s_%s.txt", ExportPrefix, now.Format("2006-01-02"))
}
