package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReadTimeout bounds every read on a production link.
// It doubles as the session engine's tick rate.
const ReadTimeout = 100 * time.Millisecond

// snapLen covers an Ethernet header plus the largest disguised ARP payload.
const snapLen = 1024

// A Link moves raw Ethernet frames on and off one interface.
type Link interface {
	// ReadFrame returns the next captured frame.
	// It must return ErrReadTimeout (possibly wrapped) rather than block indefinitely.
	ReadFrame() ([]byte, error)
	// WriteFrame transmits a complete Ethernet frame.
	WriteFrame(frame []byte) error
	// Close releases the interface.
	Close() error
}

// packetReader is the capture half of a pcap handle.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	Close()
}

// packetWriter is the injection half of a pcap handle.
type packetWriter interface {
	WritePacketData(data []byte) error
	Close()
}

// pcapLink is a Link backed by two live libpcap handles on the same interface.
// Frames are injected through tx and captured through rx.
// Linux never loops a frame back to the packet socket that sent it, but does deliver it to every other packet socket,
// so splitting the handles lets rx hear this host's own broadcasts.
type pcapLink struct {
	rx packetReader
	tx packetWriter
}

// rejectAll is a BPF program of a single "ret #0", so the transmit handle buffers nothing.
var rejectAll = []pcap.BPFInstruction{{Code: 0x06, K: 0}}

// OpenPcap opens the named interface for promiscuous capture of ARP frames, plus a second handle for injection.
// Failure to open either handle is usually a permissions issue and is wrapped in ErrChannelGetting.
func OpenPcap(name string) (Link, error) {
	rx, err := pcap.OpenLive(name, snapLen, true, ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelGetting, err)
	}
	if rx.LinkType() != layers.LinkTypeEthernet {
		rx.Close()
		return nil, ErrUnknownChannelType
	}
	if err := rx.SetBPFFilter("arp"); err != nil {
		rx.Close()
		return nil, fmt.Errorf("%w: failed to install capture filter: %w", ErrChannelGetting, err)
	}

	tx, err := pcap.OpenLive(name, snapLen, false, ReadTimeout)
	if err != nil {
		rx.Close()
		return nil, fmt.Errorf("%w: %w", ErrChannelGetting, err)
	}
	if err := tx.SetBPFInstructionFilter(rejectAll); err != nil {
		rx.Close()
		tx.Close()
		return nil, fmt.Errorf("%w: failed to install transmit filter: %w", ErrChannelGetting, err)
	}
	return &pcapLink{rx: rx, tx: tx}, nil
}

func (l *pcapLink) ReadFrame() ([]byte, error) {
	data, _, err := l.rx.ReadPacketData()
	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return nil, ErrReadTimeout
		}
		return nil, err
	}
	return data, nil
}

func (l *pcapLink) WriteFrame(frame []byte) error {
	return l.tx.WritePacketData(frame)
}

func (l *pcapLink) Close() error {
	l.tx.Close()
	l.rx.Close()
	return nil
}
