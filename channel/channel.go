/*
Package channel implements the frame adapter: the only component that touches the physical interface.

A Channel turns KTP packets into one or more disguised-ARP broadcast frames (fragmentation) and turns captured frames back into packets (reassembly and de-duplication).
Delivery is unreliable, unordered, and duplicate-prone; a Channel tolerates all three and never escalates foreign or malformed traffic.

A Channel is owned by a single goroutine and is not safe for concurrent use.
*/
package channel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rflandau/arpchat/internal/expiring"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rflandau/arpchat/netif"
	"github.com/rs/zerolog"
)

// DefaultPartialTTL is how long an incomplete reassembly may wait for its next fragment.
const DefaultPartialTTL = 5 * time.Second

// a partial is an in-progress reassembly.
// tag and total are fixed when the partial is created.
type partial struct {
	tag   ktp.Tag
	total uint8
	parts [][]byte // indexed by seq; nil until that fragment arrives
	count int
}

// A Channel is bound to one interface and speaks KTP over it.
type Channel struct {
	log       *zerolog.Logger
	mac       net.HardwareAddr
	etherType ktp.EtherType
	link      Link

	partialTTL     time.Duration
	partials       *expiring.Table[ktp.ID, *partial]
	recentCapacity int
	recent         *Recent
}

// Option function to set various options on the channel.
// Uses defaults if an option is not set.
type Option func(*Channel)

// WithLogger replaces the channel's default logger with the given logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithEtherType sets the discriminator used from the first frame on.
func WithEtherType(e ktp.EtherType) Option {
	return func(c *Channel) { c.etherType = e }
}

// WithPartialTTL overwrites DefaultPartialTTL.
func WithPartialTTL(d time.Duration) Option {
	return func(c *Channel) { c.partialTTL = d }
}

// WithRecentCapacity overwrites DefaultRecentCapacity.
func WithRecentCapacity(n int) Option {
	return func(c *Channel) { c.recentCapacity = n }
}

// New returns a Channel that sends and receives over link as the given hardware address.
// The channel takes ownership of link.
func New(link Link, mac net.HardwareAddr, opts ...Option) (*Channel, error) {
	if len(mac) == 0 {
		return nil, ErrNoMac
	} else if len(mac) != macLen {
		return nil, fmt.Errorf("%w: %v is not an Ethernet address", ErrUnknownChannelType, mac)
	}
	c := &Channel{
		mac:            mac,
		etherType:      ktp.DefaultEtherType,
		link:           link,
		partialTTL:     DefaultPartialTTL,
		partials:       expiring.New[ktp.ID, *partial](),
		recentCapacity: DefaultRecentCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.recent = NewRecent(c.recentCapacity)

	if c.log == nil {
		l := zerolog.New(zerolog.ConsoleWriter{
			Out:         os.Stderr,
			FieldsOrder: []string{"mac"},
			TimeFormat:  "15:04:05",
		}).With().
			Str("mac", mac.String()).
			Timestamp().
			Caller().
			Logger().Level(zerolog.WarnLevel)
		c.log = &l
	}

	c.log.Debug().Func(c.Zerolog).Msg("channel created")
	return c, nil
}

// Bind opens a live capture on ifc and returns a Channel over it.
func Bind(ifc netif.Interface, opts ...Option) (*Channel, error) {
	if len(ifc.HardwareAddr) == 0 {
		return nil, ErrNoMac
	}
	link, err := OpenPcap(ifc.Name)
	if err != nil {
		return nil, err
	}
	c, err := New(link, ifc.HardwareAddr, opts...)
	if err != nil {
		link.Close()
		return nil, err
	}
	return c, nil
}

// EtherType returns the discriminator currently applied to sent and received frames.
func (c *Channel) EtherType() ktp.EtherType {
	return c.etherType
}

// SetEtherType changes the discriminator for subsequent frames.
func (c *Channel) SetEtherType(e ktp.EtherType) {
	c.log.Info().Stringer("old", c.etherType).Stringer("new", e).Msg("ether type changed")
	c.etherType = e
}

// Send fragments p and broadcasts every fragment.
//
// Send is all-or-nothing with respect to size and serialization: if p needs more than ktp.MaxFragments fragments
// or any frame fails to serialize, nothing is written.
// A transmission failure aborts the send, leaving already-sent fragments orphaned on the wire.
func (c *Channel) Send(p ktp.Packet) error {
	body := ktp.Encode(p)
	count := max(1, (len(body)+ktp.MaxChunkSize-1)/ktp.MaxChunkSize)
	if count > ktp.MaxFragments {
		return fmt.Errorf("%w (%d bytes would need %d fragments)", ErrMessageTooLong, len(body), count)
	}

	id := ktp.NewID()
	frames := make([][]byte, 0, count)
	for seq := range count {
		start := seq * ktp.MaxChunkSize
		end := min(start+ktp.MaxChunkSize, len(body))
		hdr := ktp.Header{Tag: p.Tag(), Seq: uint8(seq), Total: uint8(count - 1), ID: id}
		frame, err := buildFrame(c.mac, c.etherType, hdr.Serialize(body[start:end]))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrARPSerializeFailed, err)
		}
		frames = append(frames, frame)
	}

	for i, frame := range frames {
		if err := c.link.WriteFrame(frame); err != nil {
			c.log.Warn().Err(err).Int("fragment", i).Int("fragments", count).Msg("transmission failed mid-packet")
			return fmt.Errorf("%w: %w", ErrARPSendFailed, err)
		}
	}
	c.log.Debug().
		Str("type", ktp.TagString(p.Tag())).
		Str("correlation id", id.String()).
		Int("fragments", count).
		Int("body length (bytes)", len(body)).
		Msg("packet sent")
	return nil
}

// Receive pulls at most one frame off the link.
//
// It returns (nil, nil) when the read timed out, when the frame was foreign or malformed,
// when the frame only advanced a reassembly, or when the completed packet was already delivered.
// The only error is a capture failure (wrapping ErrCaptureFailed), after which the channel must be torn down.
func (c *Channel) Receive() (ktp.Packet, error) {
	frame, err := c.link.ReadFrame()
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	payload, ok := unwrapFrame(frame, c.etherType)
	if !ok {
		return nil, nil
	}
	hdr, chunk, err := ktp.Deserialize(payload)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping malformed fragment")
		return nil, nil
	}
	if c.recent.Contains(hdr.ID) {
		return nil, nil
	}

	body, complete := c.reassemble(hdr, chunk)
	if !complete {
		return nil, nil
	}
	p, err := ktp.Decode(hdr.Tag, body)
	if err != nil {
		c.log.Debug().Err(err).Func(hdr.Zerolog).Msg("dropping undecodable packet")
		return nil, nil
	}
	if !c.recent.Insert(hdr.ID) {
		return nil, nil
	}
	return p, nil
}

// reassemble files chunk under its correlation id.
// Once every fragment has arrived, the concatenated body is returned and the partial is forgotten.
func (c *Channel) reassemble(hdr ktp.Header, chunk []byte) (body []byte, complete bool) {
	if hdr.Total == 0 {
		return append([]byte(nil), chunk...), true
	}

	p, found := c.partials.Load(hdr.ID)
	if !found {
		p = &partial{tag: hdr.Tag, total: hdr.Total, parts: make([][]byte, int(hdr.Total)+1)}
		c.partials.Store(hdr.ID, p, c.partialTTL, func(id ktp.ID, p *partial) {
			c.log.Debug().
				Str("correlation id", id.String()).
				Str("type", ktp.TagString(p.tag)).
				Uint8("total", p.total).
				Msg("evicted stale partial reassembly")
		})
	} else if p.tag != hdr.Tag || p.total != hdr.Total {
		c.log.Debug().Func(hdr.Zerolog).Msg("dropping fragment that disagrees with its reassembly")
		return nil, false
	}

	if p.parts[hdr.Seq] != nil { // duplicate
		return nil, false
	}
	part := make([]byte, len(chunk)) // non-nil even when empty, so duplicates are still recognised
	copy(part, chunk)
	p.parts[hdr.Seq] = part
	p.count++
	if p.count < len(p.parts) {
		c.partials.Refresh(hdr.ID, c.partialTTL)
		return nil, false
	}

	c.partials.Delete(hdr.ID)
	for _, part := range p.parts {
		body = append(body, part...)
	}
	return body, true
}

// Pending returns the number of incomplete reassemblies.
func (c *Channel) Pending() int {
	return c.partials.Len()
}

// Close releases the underlying link.
func (c *Channel) Close() error {
	return c.link.Close()
}

// Zerolog pretty prints the state of the channel into the given zerolog event.
// Intended to be given to *zerolog.Event.Func().
func (c *Channel) Zerolog(e *zerolog.Event) {
	e.Str("mac", c.mac.String()).
		Stringer("ether type", c.etherType).
		Int("pending reassemblies", c.partials.Len()).
		Int("recently completed", c.recent.Len())
}
