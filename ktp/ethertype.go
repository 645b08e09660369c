package ktp

import (
	"fmt"
	"strconv"
	"strings"
)

// EtherType is the 2-byte discriminator carried in the ARP protocol-type field.
// It separates arpchat traffic from real ARP on the same segment; sessions only hear peers using the same value.
// See https://www.iana.org/assignments/ieee-802-numbers/ieee-802-numbers.xhtml
type EtherType uint16

const (
	// IEEE Std 802 - Local Experimental Ethertype 1.
	Experimental1 EtherType = 0x88B5
	// IEEE Std 802 - Local Experimental Ethertype 2.
	Experimental2 EtherType = 0x88B6
	// Internet Protocol version 4.
	IPv4 EtherType = 0x0800
)

// DefaultEtherType is used when no preference was stored.
const DefaultEtherType = Experimental1

// Bytes returns the discriminator in network byte order.
func (e EtherType) Bytes() [2]byte {
	return [2]byte{byte(e >> 8), byte(e)}
}

func (e EtherType) String() string {
	switch e {
	case Experimental1:
		return "Experimental1"
	case Experimental2:
		return "Experimental2"
	case IPv4:
		return "IPv4"
	default:
		return fmt.Sprintf("0x%04X", uint16(e))
	}
}

// MarshalText encodes the EtherType by name, or as 0x-prefixed hex if it has none.
func (e EtherType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText accepts the names produced by String (case-insensitive) or a 0x-prefixed hex value.
func (e *EtherType) UnmarshalText(text []byte) error {
	v, err := ParseEtherType(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseEtherType parses a name or 0x-prefixed hex value into an EtherType.
func ParseEtherType(s string) (EtherType, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "experimental1":
		return Experimental1, nil
	case "experimental2":
		return Experimental2, nil
	case "ipv4":
		return IPv4, nil
	}
	if h, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err := strconv.ParseUint(h, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid ether type %q: %w", s, err)
		}
		return EtherType(v), nil
	}
	return 0, fmt.Errorf("invalid ether type %q", s)
}
