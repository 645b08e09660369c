package channel_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rflandau/arpchat/channel"
	"github.com/rflandau/arpchat/internal/fakelink"
	. "github.com/rflandau/arpchat/internal/testsupport"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rs/zerolog"
)

var quiet = zerolog.Nop()

// newChannel attaches a channel to seg with a quiet logger.
func newChannel(t *testing.T, seg *fakelink.Segment, seed byte, opts ...channel.Option) (*channel.Channel, *fakelink.Port) {
	t.Helper()
	port := seg.Attach()
	c, err := channel.New(port, fakelink.MAC(seed), append([]channel.Option{channel.WithLogger(&quiet)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, port
}

// collect calls Receive until the window elapses, returning every packet delivered.
func collect(t *testing.T, c *channel.Channel, window time.Duration) []ktp.Packet {
	t.Helper()
	var out []ktp.Packet
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		p, err := c.Receive()
		if err != nil {
			t.Fatal(err)
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// longPresence returns a presence whose body needs exactly n fragments.
func longPresence(n int) ktp.Presence {
	bodyLen := (n-1)*ktp.MaxChunkSize + 1
	return ktp.Presence{ID: ktp.NewID(), Username: strings.Repeat("x", bodyLen-ktp.IDLen-1)}
}

func TestNew(t *testing.T) {
	seg := fakelink.NewSegment()
	if _, err := channel.New(seg.Attach(), nil); !errors.Is(err, channel.ErrNoMac) {
		t.Fatal("expected ErrNoMac", ExpectedActual(channel.ErrNoMac, err))
	}
	if _, err := channel.New(seg.Attach(), net.HardwareAddr{1, 2, 3}); !errors.Is(err, channel.ErrUnknownChannelType) {
		t.Fatal("expected ErrUnknownChannelType", ExpectedActual(channel.ErrUnknownChannelType, err))
	}
	c, _ := newChannel(t, seg, 1)
	if c.EtherType() != ktp.Experimental1 {
		t.Fatal("bad default ether type", ExpectedActual(ktp.Experimental1, c.EtherType()))
	}
}

// Tests the bit-exact layout of a single-fragment frame.
func TestSend_FrameLayout(t *testing.T) {
	seg := fakelink.NewSegment()
	c, port := newChannel(t, seg, 7)
	p := ktp.Disconnect{ID: ktp.ID{1, 1, 1, 1, 1, 1, 1, 1}}
	if err := c.Send(p); err != nil {
		t.Fatal(err)
	}
	frames := port.Written()
	if len(frames) != 1 {
		t.Fatal("bad frame count", ExpectedActual(1, len(frames)))
	}
	f := frames[0]
	mac := fakelink.MAC(7)
	if !bytes.Equal(f[0:6], layers.EthernetBroadcast) {
		t.Errorf("destination is not broadcast: % x", f[0:6])
	}
	if !bytes.Equal(f[6:12], mac) {
		t.Errorf("bad source MAC: % x", f[6:12])
	}
	if et := binary.BigEndian.Uint16(f[12:14]); et != uint16(layers.EthernetTypeARP) {
		t.Errorf("bad ethertype: %#04x", et)
	}
	arp := f[14:]
	payloadLen := ktp.HeaderLen + ktp.IDLen
	if htype := binary.BigEndian.Uint16(arp[0:2]); htype != 1 {
		t.Errorf("bad hardware type %d", htype)
	}
	if ptype := binary.BigEndian.Uint16(arp[2:4]); ptype != 0x88B5 {
		t.Errorf("bad protocol type %#04x", ptype)
	}
	if arp[4] != 6 || int(arp[5]) != payloadLen {
		t.Errorf("bad address lengths %d/%d", arp[4], arp[5])
	}
	if op := binary.BigEndian.Uint16(arp[6:8]); op != layers.ARPRequest {
		t.Errorf("bad opcode %d", op)
	}
	if !bytes.Equal(arp[8:14], mac) {
		t.Errorf("bad sender hardware address % x", arp[8:14])
	}
	spa := arp[14 : 14+payloadLen]
	tha := arp[14+payloadLen : 20+payloadLen]
	tpa := arp[20+payloadLen : 20+2*payloadLen]
	if !bytes.HasPrefix(spa, []byte("ktp")) || spa[3] != ktp.TagDisconnect || spa[4] != 0 || spa[5] != 0 {
		t.Errorf("bad KTP header % x", spa[:6])
	}
	if !bytes.Equal(spa[ktp.HeaderLen:], p.ID[:]) {
		t.Errorf("bad chunk % x", spa[ktp.HeaderLen:])
	}
	if !bytes.Equal(tha, make([]byte, 6)) {
		t.Errorf("target hardware address is not zero: % x", tha)
	}
	if !bytes.Equal(tpa, spa) {
		t.Error("target protocol address does not repeat the payload")
	}
}

func TestSendReceive(t *testing.T) {
	seg := fakelink.NewSegment()
	alice, _ := newChannel(t, seg, 1)
	bob, _ := newChannel(t, seg, 2)

	sent := []ktp.Packet{
		ktp.Message{ID: ktp.NewID(), Text: randomdata.Paragraph()},
		ktp.PresenceReq{},
		ktp.Presence{ID: ktp.NewID(), IsJoin: true, Username: randomdata.SillyName()},
		ktp.Disconnect{ID: ktp.NewID()},
		longPresence(4),
	}
	for _, p := range sent {
		if err := alice.Send(p); err != nil {
			t.Fatal(err)
		}
	}

	for name, c := range map[string]*channel.Channel{"peer": bob, "sender (loopback)": alice} {
		t.Run(name, func(t *testing.T) {
			got := collect(t, c, 150*time.Millisecond)
			if len(got) != len(sent) {
				t.Fatal("bad packet count", ExpectedActual(len(sent), len(got)))
			}
			for i := range sent {
				if got[i] != sent[i] {
					t.Error("packet mismatch", ExpectedActual(sent[i], got[i]))
				}
			}
		})
	}
}

func TestReceive_Permutations(t *testing.T) {
	src := fakelink.NewSegment()
	alice, port := newChannel(t, src, 1)
	p := longPresence(7)
	if err := alice.Send(p); err != nil {
		t.Fatal(err)
	}
	frames := port.Written()
	if len(frames) != 7 {
		t.Fatal("bad fragment count", ExpectedActual(7, len(frames)))
	}

	for i := range 20 {
		dst := fakelink.NewSegment()
		bob, _ := newChannel(t, dst, 2)
		for _, j := range rand.Perm(len(frames)) {
			dst.Inject(frames[j])
		}
		got := collect(t, bob, 60*time.Millisecond)
		if len(got) != 1 || got[0] != p {
			t.Fatalf("permutation %d: reassembly failed (%d packets)", i, len(got))
		}
		if bob.Pending() != 0 {
			t.Fatal("completed reassembly was not removed", ExpectedActual(0, bob.Pending()))
		}
	}
}

func TestSend_Oversize(t *testing.T) {
	seg := fakelink.NewSegment()
	c, port := newChannel(t, seg, 1)

	t.Run("256 fragments is the limit", func(t *testing.T) {
		if err := c.Send(longPresence(256)); err != nil {
			t.Fatal(err)
		}
		if n := len(port.Written()); n != 256 {
			t.Fatal("bad frame count", ExpectedActual(256, n))
		}
	})
	t.Run("257 fragments is rejected", func(t *testing.T) {
		before := len(port.Written())
		if err := c.Send(longPresence(257)); !errors.Is(err, channel.ErrMessageTooLong) {
			t.Fatal("expected ErrMessageTooLong", ExpectedActual(channel.ErrMessageTooLong, err))
		}
		if after := len(port.Written()); after != before {
			t.Fatal("frames were written for a rejected packet", ExpectedActual(before, after))
		}
	})
}

func TestReceive_Dedup(t *testing.T) {
	src := fakelink.NewSegment()
	alice, port := newChannel(t, src, 1)
	for _, p := range []ktp.Packet{ktp.Disconnect{ID: ktp.NewID()}, longPresence(3)} {
		if err := alice.Send(p); err != nil {
			t.Fatal(err)
		}
	}
	frames := port.Written()

	dst := fakelink.NewSegment()
	bob, _ := newChannel(t, dst, 2)
	for range 2 {
		for _, f := range frames {
			dst.Inject(f)
		}
	}
	if got := collect(t, bob, 80*time.Millisecond); len(got) != 2 {
		t.Fatal("duplicated fragment sets must be delivered once", ExpectedActual(2, len(got)))
	}
	if bob.Pending() != 0 {
		t.Fatal("duplicates of a completed packet must not start a new reassembly", ExpectedActual(0, bob.Pending()))
	}
}

func TestReceive_Foreign(t *testing.T) {
	seg := fakelink.NewSegment()
	c, _ := newChannel(t, seg, 2, channel.WithEtherType(ktp.IPv4))

	realARP := func() []byte {
		eth := layers.Ethernet{SrcMAC: fakelink.MAC(9), DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
		arp := layers.ARP{
			AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
			HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
			SourceHwAddress: fakelink.MAC(9), SourceProtAddress: []byte{10, 0, 0, 9},
			DstHwAddress: make([]byte, 6), DstProtAddress: []byte{10, 0, 0, 1},
		}
		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}()
	ipv4 := append(append([]byte{}, realARP[:12]...), 0x08, 0x00)
	ipv4 = append(ipv4, make([]byte, 46)...)
	truncated := realARP[:20]

	for _, f := range [][]byte{realARP, ipv4, truncated, {}, {0xff}} {
		seg.Inject(f)
	}
	for range 5 {
		if p, err := c.Receive(); err != nil || p != nil {
			t.Fatalf("foreign frame surfaced: %v, %v", p, err)
		}
	}
}

func TestReceive_EtherTypeMismatch(t *testing.T) {
	seg := fakelink.NewSegment()
	alice, _ := newChannel(t, seg, 1)
	bob, _ := newChannel(t, seg, 2, channel.WithEtherType(ktp.Experimental2))
	if err := alice.Send(ktp.PresenceReq{}); err != nil {
		t.Fatal(err)
	}
	if got := collect(t, bob, 30*time.Millisecond); len(got) != 0 {
		t.Fatal("frames under a different ether type must be ignored", ExpectedActual(0, len(got)))
	}

	bob.SetEtherType(ktp.Experimental1)
	if err := alice.Send(ktp.PresenceReq{}); err != nil {
		t.Fatal(err)
	}
	if got := collect(t, bob, 30*time.Millisecond); len(got) != 1 {
		t.Fatal("frames under the new ether type must be heard", ExpectedActual(1, len(got)))
	}
}

func TestReceive_StalePartialEvicted(t *testing.T) {
	src := fakelink.NewSegment()
	alice, port := newChannel(t, src, 1)
	if err := alice.Send(longPresence(2)); err != nil {
		t.Fatal(err)
	}
	frames := port.Written()

	dst := fakelink.NewSegment()
	bob, _ := newChannel(t, dst, 2, channel.WithPartialTTL(20*time.Millisecond))
	dst.Inject(frames[0])
	collect(t, bob, 10*time.Millisecond)
	if bob.Pending() != 1 {
		t.Fatal("expected one pending reassembly", ExpectedActual(1, bob.Pending()))
	}
	time.Sleep(50 * time.Millisecond)
	if bob.Pending() != 0 {
		t.Fatal("stale reassembly was not evicted", ExpectedActual(0, bob.Pending()))
	}
}

// A reassembly is kept alive by each fragment that advances it, not by its total age.
func TestReceive_PartialTTLRefreshedPerFragment(t *testing.T) {
	src := fakelink.NewSegment()
	alice, port := newChannel(t, src, 1)
	p := longPresence(3)
	if err := alice.Send(p); err != nil {
		t.Fatal(err)
	}
	frames := port.Written()

	dst := fakelink.NewSegment()
	bob, _ := newChannel(t, dst, 2, channel.WithPartialTTL(100*time.Millisecond))
	var got []ktp.Packet
	for _, f := range frames {
		dst.Inject(f)
		got = append(got, collect(t, bob, 60*time.Millisecond)...)
	}
	if len(got) != 1 || got[0] != ktp.Packet(p) {
		t.Fatal("slow but steady fragments must reassemble", ExpectedActual([]ktp.Packet{p}, got))
	}
}

// tagOffset and totalOffset locate header fields within a disguised frame:
// Ethernet(14) + fixed ARP(8) + sha(6) + prefix(3).
const (
	tagOffset   = 14 + 8 + 6 + 3
	totalOffset = tagOffset + 2
)

func TestReceive_FragmentConflicts(t *testing.T) {
	src := fakelink.NewSegment()
	alice, port := newChannel(t, src, 1)
	p := longPresence(3)
	if err := alice.Send(p); err != nil {
		t.Fatal(err)
	}
	frames := port.Written()
	if len(frames) != 3 {
		t.Fatal("bad fragment count", ExpectedActual(3, len(frames)))
	}

	tests := []struct {
		name   string
		inject func(dst *fakelink.Segment)
	}{
		{"repeated seq", func(dst *fakelink.Segment) {
			dst.Inject(frames[0])
			dst.Inject(frames[0])
		}},
		{"total disagrees", func(dst *fakelink.Segment) {
			dst.Inject(frames[0])
			f := bytes.Clone(frames[1])
			f[totalOffset] = 3
			dst.Inject(f)
		}},
		{"tag disagrees", func(dst *fakelink.Segment) {
			dst.Inject(frames[0])
			f := bytes.Clone(frames[1])
			f[tagOffset] = ktp.TagMessage
			dst.Inject(f)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := fakelink.NewSegment()
			bob, _ := newChannel(t, dst, 2)
			tt.inject(dst)
			if got := collect(t, bob, 20*time.Millisecond); len(got) != 0 {
				t.Fatal("nothing may be delivered before the set is complete", got)
			}
			if bob.Pending() != 1 {
				t.Fatal("conflicting fragment must not start or end a reassembly", ExpectedActual(1, bob.Pending()))
			}
			dst.Inject(frames[1])
			dst.Inject(frames[2])
			got := collect(t, bob, 30*time.Millisecond)
			if len(got) != 1 || got[0] != ktp.Packet(p) {
				t.Fatal("reassembly must survive the conflict", ExpectedActual([]ktp.Packet{p}, got))
			}
			if bob.Pending() != 0 {
				t.Fatal(ExpectedActual(0, bob.Pending()))
			}
		})
	}
}

func TestReceive_DedupWindow(t *testing.T) {
	src := fakelink.NewSegment()
	alice, port := newChannel(t, src, 1)
	sent := make([]ktp.Packet, 3)
	for i := range sent {
		sent[i] = ktp.Disconnect{ID: ktp.NewID()}
		if err := alice.Send(sent[i]); err != nil {
			t.Fatal(err)
		}
	}
	frames := port.Written()

	dst := fakelink.NewSegment()
	bob, _ := newChannel(t, dst, 2, channel.WithRecentCapacity(2))
	for _, f := range frames {
		dst.Inject(f)
	}
	if got := collect(t, bob, 30*time.Millisecond); len(got) != 3 {
		t.Fatal(ExpectedActual(3, len(got)))
	}

	// the first id has been pushed out of the window; the last has not
	dst.Inject(frames[0])
	dst.Inject(frames[2])
	got := collect(t, bob, 30*time.Millisecond)
	if len(got) != 1 || got[0] != sent[0] {
		t.Fatal("only the evicted id may be delivered again", ExpectedActual(sent[:1], got))
	}
}

func TestFailures(t *testing.T) {
	t.Run("capture", func(t *testing.T) {
		seg := fakelink.NewSegment()
		c, port := newChannel(t, seg, 1)
		port.FailReads(errors.New("device went away"))
		if _, err := c.Receive(); !errors.Is(err, channel.ErrCaptureFailed) {
			t.Fatal("expected ErrCaptureFailed", ExpectedActual(channel.ErrCaptureFailed, err))
		}
	})
	t.Run("timeout is not an error", func(t *testing.T) {
		seg := fakelink.NewSegment()
		c, _ := newChannel(t, seg, 1)
		if p, err := c.Receive(); p != nil || err != nil {
			t.Fatalf("expected nothing, got %v, %v", p, err)
		}
	})
	t.Run("transmission", func(t *testing.T) {
		seg := fakelink.NewSegment()
		c, port := newChannel(t, seg, 1)
		port.FailWriteN(2)
		if err := c.Send(longPresence(3)); !errors.Is(err, channel.ErrARPSendFailed) {
			t.Fatal("expected ErrARPSendFailed", ExpectedActual(channel.ErrARPSendFailed, err))
		}
		if n := len(port.Written()); n != 1 {
			t.Fatal("send must abort at the first failure", ExpectedActual(1, n))
		}
	})
}
