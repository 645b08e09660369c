/*
Package ktp contains the wire codec for KTP, the transport protocol arpchat smuggles inside ARP frames.

A logical Packet is encoded into a body by Encode and recovered by Decode.
Bodies are carried in one or more fragments, each prefixed by a fixed Header; fragmentation itself is handled by package channel.
Nothing in this package performs I/O.
*/
package ktp

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Prefix marks the start of every KTP fragment.
// Frames whose payload does not begin with Prefix are foreign and must be ignored.
var Prefix = []byte("ktp")

const (
	// HeaderLen is the length (in bytes) of the fragment header: prefix, tag, seq, total and correlation id.
	HeaderLen = 3 + 1 + 1 + 1 + IDLen
	// MaxFrameSize is the largest fragment (header included) that can be carried; the ARP protocol-address length field is a single byte.
	MaxFrameSize = 255
	// MaxChunkSize is the largest slice of a body that fits into one fragment.
	MaxChunkSize = MaxFrameSize - HeaderLen
	// MaxFragments is the number of fragments representable by the single-byte total field.
	MaxFragments = 256
)

// IDLen is the length of session and correlation identifiers.
const IDLen = 8

// An ID names either a session (who sent this) or a logical packet instance (which fragments belong together).
type ID [IDLen]byte

// NewID returns a random ID.
func NewID() ID {
	var id ID
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(id[:])
	return id
}

// String returns the ID as lowercase hex.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText encodes the ID as lowercase hex.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes an ID from the hex produced by MarshalText.
func (id *ID) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != IDLen {
		return fmt.Errorf("id must be %d hex characters", 2*IDLen)
	}
	_, err := hex.Decode(id[:], text)
	return err
}

// Tag discriminates packet variants on the wire.
type Tag = uint8

var (
	ErrShortHeader   = errors.New("fragment is shorter than the KTP header")
	ErrMissingPrefix = errors.New("fragment does not begin with the KTP prefix")
	ErrBadSequence   = errors.New("fragment sequence number exceeds declared total")
)

// A Header represents a deconstructed KTP fragment header.
type Header struct {
	// Type of the logical packet this fragment belongs to.
	Tag Tag
	// 0-based index of this fragment.
	Seq uint8
	// 0-based index of the last fragment (fragment count - 1).
	Total uint8
	// Correlation id shared by every fragment of one logical packet.
	ID ID
}

// Serialize returns the header followed by chunk, ready to be placed into a frame.
// Does not validate the header.
func (hdr Header) Serialize(chunk []byte) []byte {
	out := make([]byte, 0, HeaderLen+len(chunk))
	out = append(out, Prefix...)
	out = append(out, hdr.Tag, hdr.Seq, hdr.Total)
	out = append(out, hdr.ID[:]...)
	return append(out, chunk...)
}

// Deserialize splits a fragment into its header and chunk.
// The returned chunk aliases b.
// Fails if the prefix is missing, the fragment is truncated, or seq > total.
func Deserialize(b []byte) (Header, []byte, error) {
	if !bytes.HasPrefix(b, Prefix) {
		return Header{}, nil, ErrMissingPrefix
	}
	if len(b) < HeaderLen {
		return Header{}, nil, fmt.Errorf("%w (%d < %d bytes)", ErrShortHeader, len(b), HeaderLen)
	}
	rest := b[len(Prefix):]
	hdr := Header{Tag: rest[0], Seq: rest[1], Total: rest[2]}
	copy(hdr.ID[:], rest[3:3+IDLen])
	if hdr.Seq > hdr.Total {
		return Header{}, nil, ErrBadSequence
	}
	return hdr, rest[3+IDLen:], nil
}

// Zerolog attaches header's fields to the given log event.
// Intended to be given to *zerolog.Event.Func().
func (hdr Header) Zerolog(ev *zerolog.Event) {
	ev.Str("type", TagString(hdr.Tag)).
		Uint8("seq", hdr.Seq).
		Uint8("total", hdr.Total).
		Str("correlation id", hdr.ID.String())
}
