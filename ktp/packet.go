package ktp

import (
	"errors"
	"fmt"
	"unicode/utf8"

	smaz "github.com/cespare/go-smaz"
)

// Packet tags. The values are part of the wire format.
const (
	TagMessage     Tag = 0
	TagPresenceReq Tag = 1
	TagPresence    Tag = 2
	TagDisconnect  Tag = 3
)

var (
	ErrUnknownTag  = errors.New("unknown packet tag")
	ErrTruncated   = errors.New("packet body is truncated")
	ErrTrailing    = errors.New("packet body has trailing bytes")
	ErrInvalidUTF8 = errors.New("packet text is not valid UTF-8")
)

// TagString returns the name of the packet variant the tag identifies.
func TagString(t Tag) string {
	switch t {
	case TagMessage:
		return "MESSAGE"
	case TagPresenceReq:
		return "PRESENCE_REQ"
	case TagPresence:
		return "PRESENCE"
	case TagDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// A Packet is one logical KTP packet.
// The set of variants is closed: Message, PresenceReq, Presence and Disconnect.
type Packet interface {
	// Tag returns the wire discriminator of the variant.
	Tag() Tag
	packet()
}

// Message is a chat message authored by session ID.
type Message struct {
	ID   ID
	Text string
}

// PresenceReq asks every listening session to announce itself.
type PresenceReq struct{}

// Presence announces that session ID is alive and known as Username.
// IsJoin is set while the sender has not yet seen its own announcement.
type Presence struct {
	ID       ID
	IsJoin   bool
	Username string
}

// Disconnect is a graceful leave notice from session ID.
type Disconnect struct {
	ID ID
}

func (Message) Tag() Tag     { return TagMessage }
func (PresenceReq) Tag() Tag { return TagPresenceReq }
func (Presence) Tag() Tag    { return TagPresence }
func (Disconnect) Tag() Tag  { return TagDisconnect }

func (Message) packet()     {}
func (PresenceReq) packet() {}
func (Presence) packet()    {}
func (Disconnect) packet()  {}

// Encode returns the variant-specific body of p.
// Correlation framing is not included; see Header.
func Encode(p Packet) []byte {
	switch p := p.(type) {
	case Message:
		return append(p.ID[:], smaz.Compress([]byte(p.Text))...)
	case *Message:
		return Encode(*p)
	case PresenceReq, *PresenceReq:
		return []byte{}
	case Presence:
		out := make([]byte, 0, IDLen+1+len(p.Username))
		out = append(out, p.ID[:]...)
		if p.IsJoin {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
		return append(out, p.Username...)
	case *Presence:
		return Encode(*p)
	case Disconnect:
		return append([]byte{}, p.ID[:]...)
	case *Disconnect:
		return Encode(*p)
	}
	return nil
}

// Decode is the inverse of Encode for the given tag.
// It never panics; garbled input of any shape yields an error.
func Decode(tag Tag, body []byte) (Packet, error) {
	switch tag {
	case TagMessage:
		id, rest, err := splitID(body)
		if err != nil {
			return nil, err
		}
		raw, err := smaz.Decompress(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress message: %w", err)
		}
		if !utf8.Valid(raw) {
			return nil, ErrInvalidUTF8
		}
		return Message{ID: id, Text: string(raw)}, nil
	case TagPresenceReq:
		if len(body) != 0 {
			return nil, ErrTrailing
		}
		return PresenceReq{}, nil
	case TagPresence:
		id, rest, err := splitID(body)
		if err != nil {
			return nil, err
		}
		if len(rest) < 1 {
			return nil, ErrTruncated
		}
		if !utf8.Valid(rest[1:]) {
			return nil, ErrInvalidUTF8
		}
		return Presence{ID: id, IsJoin: rest[0] > 0, Username: string(rest[1:])}, nil
	case TagDisconnect:
		id, rest, err := splitID(body)
		if err != nil {
			return nil, err
		} else if len(rest) != 0 {
			return nil, ErrTrailing
		}
		return Disconnect{ID: id}, nil
	default:
		return nil, fmt.Errorf("%w (%d)", ErrUnknownTag, tag)
	}
}

func splitID(body []byte) (ID, []byte, error) {
	var id ID
	if len(body) < IDLen {
		return id, nil, ErrTruncated
	}
	copy(id[:], body[:IDLen])
	return id, body[IDLen:], nil
}
