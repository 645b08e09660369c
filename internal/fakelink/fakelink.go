// Package fakelink provides an in-memory broadcast segment whose ports satisfy channel.Link.
// It lets channels and engines be tested without a network interface or privileges.
package fakelink

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rflandau/arpchat/channel"
)

// DefaultReadTimeout is how long a Port's ReadFrame waits before returning channel.ErrReadTimeout.
// Much shorter than the production timeout so loops under test spin quickly.
const DefaultReadTimeout = 5 * time.Millisecond

// A Segment is an in-memory broadcast domain.
// Every frame written by any attached Port is delivered to every Port, including the writer,
// mimicking promiscuous capture on a shared Ethernet segment.
type Segment struct {
	mu    sync.Mutex
	ports []*Port
}

// NewSegment returns an empty broadcast domain.
func NewSegment() *Segment {
	return &Segment{}
}

// Attach plugs a new Port into the segment.
func (s *Segment) Attach() *Port {
	p := &Port{
		seg:     s,
		in:      make(chan []byte, 4096),
		timeout: DefaultReadTimeout,
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.ports = append(s.ports, p)
	s.mu.Unlock()
	return p
}

// Inject delivers frame to every port as if a foreign host had sent it.
func (s *Segment) Inject(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.ports {
		p.deliver(frame)
	}
}

// A Port is one host's view of a Segment. It satisfies channel.Link.
type Port struct {
	seg     *Segment
	in      chan []byte
	timeout time.Duration

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	failAt   int // fail the nth write (1-based); 0 disables
	readErr  error
	closed   bool
	done     chan struct{}
}

func (p *Port) deliver(frame []byte) {
	cp := append([]byte(nil), frame...)
	select {
	case p.in <- cp:
	default: // receiver is not keeping up; the frame is lost like on a real wire
	}
}

// ReadFrame returns the next frame seen on the segment.
func (p *Port) ReadFrame() ([]byte, error) {
	p.mu.Lock()
	rErr, closed := p.readErr, p.closed
	p.mu.Unlock()
	if closed {
		return nil, net.ErrClosed
	} else if rErr != nil {
		return nil, rErr
	}
	select {
	case f := <-p.in:
		return f, nil
	case <-p.done:
		return nil, net.ErrClosed
	case <-time.After(p.timeout):
		return nil, channel.ErrReadTimeout
	}
}

// WriteFrame broadcasts frame to the segment.
func (p *Port) WriteFrame(frame []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return net.ErrClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return err
	}
	if p.failAt > 0 && len(p.written)+1 == p.failAt {
		p.mu.Unlock()
		return errors.New("injected write failure")
	}
	p.written = append(p.written, append([]byte(nil), frame...))
	p.mu.Unlock()

	p.seg.Inject(frame)
	return nil
}

// Close detaches the port. Further reads and writes fail.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return nil
}

// Written returns a copy of every frame successfully written by this port.
func (p *Port) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

// FailWrites causes every subsequent write to return err. nil restores normal behaviour.
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

// FailWriteN causes only the nth write (counted from the first successful write, 1-based) to fail.
func (p *Port) FailWriteN(n int) {
	p.mu.Lock()
	p.failAt = n
	p.mu.Unlock()
}

// FailReads causes every subsequent read to return err.
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

// MAC returns a locally administered hardware address derived from seed.
func MAC(seed byte) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, seed}
}
