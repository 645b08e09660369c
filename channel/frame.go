package channel

// frame.go wraps KTP fragments in broadcast Ethernet frames disguised as ARP requests, and unwraps them again.
//
// Disguised ARP layout (after the 14-byte Ethernet header):
//
//	htype(2)=Ethernet  ptype(2)=EtherType  hlen(1)=6  plen(1)=len(payload)  op(2)=request
//	sha(6)=own MAC     spa(plen)=payload   tha(6)=zero                      tpa(plen)=payload

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rflandau/arpchat/ktp"
)

const (
	arpFixedLen = 8
	macLen      = 6
)

var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

// buildFrame serializes payload into a complete broadcast frame.
// payload must not exceed ktp.MaxFrameSize.
func buildFrame(src net.HardwareAddr, et ktp.EtherType, payload []byte) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetType(et),
		HwAddressSize:     macLen,
		ProtAddressSize:   uint8(len(payload)),
		Operation:         layers.ARPRequest,
		SourceHwAddress:   src,
		SourceProtAddress: payload,
		DstHwAddress:      zeroMAC,
		DstProtAddress:    payload,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unwrapFrame returns the KTP payload carried by frame.
// ok is false for anything that is not one of our disguised ARP frames under the given EtherType.
//
// The ARP body is parsed by hand rather than through layers.ARP: gopacket computes address offsets in uint8,
// which overflows for protocol addresses this large.
func unwrapFrame(frame []byte, et ktp.EtherType) (payload []byte, ok bool) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return nil, false
	}
	if eth.EthernetType != layers.EthernetTypeARP {
		return nil, false
	}
	b := eth.Payload
	if len(b) < arpFixedLen {
		return nil, false
	}
	if layers.LinkType(binary.BigEndian.Uint16(b[0:2])) != layers.LinkTypeEthernet ||
		ktp.EtherType(binary.BigEndian.Uint16(b[2:4])) != et ||
		b[4] != macLen {
		return nil, false
	}
	plen := int(b[5])
	if len(b) < arpFixedLen+2*macLen+2*plen {
		return nil, false
	}
	spa := b[arpFixedLen+macLen : arpFixedLen+macLen+plen]
	if len(spa) < len(ktp.Prefix) || string(spa[:len(ktp.Prefix)]) != string(ktp.Prefix) {
		return nil, false
	}
	return spa, true
}
