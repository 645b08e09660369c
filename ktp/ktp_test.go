package ktp_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Pallinder/go-randomdata"
	. "github.com/rflandau/arpchat/internal/testsupport"
	"github.com/rflandau/arpchat/ktp"
)

func TestRoundTrip(t *testing.T) {
	id := ktp.NewID()
	tests := []struct {
		name string
		p    ktp.Packet
	}{
		{"message", ktp.Message{ID: id, Text: "hi bob"}},
		{"empty message", ktp.Message{ID: id}},
		{"long message", ktp.Message{ID: id, Text: randomdata.Paragraph()}},
		{"unicode message", ktp.Message{ID: id, Text: "привіт, світ ✓"}},
		{"presence request", ktp.PresenceReq{}},
		{"presence join", ktp.Presence{ID: id, IsJoin: true, Username: randomdata.SillyName()}},
		{"presence heartbeat", ktp.Presence{ID: id, Username: "alice"}},
		{"presence empty username", ktp.Presence{ID: id}},
		{"disconnect", ktp.Disconnect{ID: id}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := ktp.Encode(tt.p)
			got, err := ktp.Decode(tt.p.Tag(), body)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.p {
				t.Fatal("round trip mismatch", ExpectedActual(tt.p, got))
			}
		})
	}
}

func TestTags(t *testing.T) {
	tests := []struct {
		p   ktp.Packet
		tag ktp.Tag
	}{
		{ktp.Message{}, 0},
		{ktp.PresenceReq{}, 1},
		{ktp.Presence{}, 2},
		{ktp.Disconnect{}, 3},
	}
	for _, tt := range tests {
		if tt.p.Tag() != tt.tag {
			t.Error("bad tag for "+ktp.TagString(tt.tag), ExpectedActual(tt.tag, tt.p.Tag()))
		}
	}
}

func TestEncode_Layout(t *testing.T) {
	id := ktp.ID{1, 2, 3, 4, 5, 6, 7, 8}
	t.Run("presence", func(t *testing.T) {
		got := ktp.Encode(ktp.Presence{ID: id, IsJoin: true, Username: "bob"})
		want := append(id[:], 1, 'b', 'o', 'b')
		if !bytes.Equal(got, want) {
			t.Fatal("bad presence body", ExpectedActual(want, got))
		}
	})
	t.Run("disconnect", func(t *testing.T) {
		if got := ktp.Encode(ktp.Disconnect{ID: id}); !bytes.Equal(got, id[:]) {
			t.Fatal("bad disconnect body", ExpectedActual(id[:], got))
		}
	})
	t.Run("presence request", func(t *testing.T) {
		if got := ktp.Encode(ktp.PresenceReq{}); len(got) != 0 {
			t.Fatal("presence request must have an empty body", ExpectedActual(0, len(got)))
		}
	})
	t.Run("message is compressed after the id", func(t *testing.T) {
		text := strings.Repeat("the ", 20)
		got := ktp.Encode(ktp.Message{ID: id, Text: text})
		if !bytes.Equal(got[:ktp.IDLen], id[:]) {
			t.Fatal("message body must start with the session id")
		}
		if len(got)-ktp.IDLen >= len(text) {
			t.Fatalf("expected compression of %d bytes, got %d", len(text), len(got)-ktp.IDLen)
		}
	})
}

func TestDecode_Failures(t *testing.T) {
	id := ktp.NewID()
	tests := []struct {
		name string
		tag  ktp.Tag
		body []byte
		err  error
	}{
		{"short message", ktp.TagMessage, id[:5], ktp.ErrTruncated},
		{"short presence", ktp.TagPresence, id[:], ktp.ErrTruncated},
		{"short disconnect", ktp.TagDisconnect, id[:7], ktp.ErrTruncated},
		{"long disconnect", ktp.TagDisconnect, append(id[:], 0), ktp.ErrTrailing},
		{"presence request with body", ktp.TagPresenceReq, []byte{0}, ktp.ErrTrailing},
		{"presence invalid utf8", ktp.TagPresence, append(id[:], 0, 0xff, 0xfe), ktp.ErrInvalidUTF8},
		{"unknown tag", 9, id[:], ktp.ErrUnknownTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ktp.Decode(tt.tag, tt.body)
			if !errors.Is(err, tt.err) {
				t.Fatal("unexpected error", ExpectedActual(tt.err, err))
			}
			if p != nil {
				t.Fatalf("expected no packet, got %v", p)
			}
		})
	}
}

// Decode is fed directly from the network; no input may cause a panic.
func TestDecode_Garbage(t *testing.T) {
	for range 2000 {
		body := make([]byte, rand.IntN(64))
		for i := range body {
			body[i] = byte(rand.UintN(256))
		}
		for tag := range ktp.Tag(6) {
			_, _ = ktp.Decode(tag, body)
		}
	}
}

func TestHeader(t *testing.T) {
	hdr := ktp.Header{Tag: ktp.TagPresence, Seq: 2, Total: 5, ID: ktp.NewID()}
	chunk := []byte(randomdata.SillyName())

	frag := hdr.Serialize(chunk)
	if len(frag) != ktp.HeaderLen+len(chunk) {
		t.Fatal("bad fragment length", ExpectedActual(ktp.HeaderLen+len(chunk), len(frag)))
	}
	if !bytes.HasPrefix(frag, []byte("ktp")) {
		t.Fatal("fragment is missing the prefix")
	}
	if frag[3] != hdr.Tag || frag[4] != hdr.Seq || frag[5] != hdr.Total || !bytes.Equal(frag[6:14], hdr.ID[:]) {
		t.Fatalf("bad header layout: % x", frag[:ktp.HeaderLen])
	}

	gotHdr, gotChunk, err := ktp.Deserialize(frag)
	if err != nil {
		t.Fatal(err)
	}
	if gotHdr != hdr {
		t.Fatal("header mismatch", ExpectedActual(hdr, gotHdr))
	}
	if !bytes.Equal(gotChunk, chunk) {
		t.Fatal("chunk mismatch", ExpectedActual(chunk, gotChunk))
	}

	t.Run("failures", func(t *testing.T) {
		if _, _, err := ktp.Deserialize([]byte("arp-request")); !errors.Is(err, ktp.ErrMissingPrefix) {
			t.Error("expected missing prefix", ExpectedActual(ktp.ErrMissingPrefix, err))
		}
		if _, _, err := ktp.Deserialize(frag[:ktp.HeaderLen-1]); !errors.Is(err, ktp.ErrShortHeader) {
			t.Error("expected short header", ExpectedActual(ktp.ErrShortHeader, err))
		}
		bad := ktp.Header{Seq: 3, Total: 1}.Serialize(nil)
		if _, _, err := ktp.Deserialize(bad); !errors.Is(err, ktp.ErrBadSequence) {
			t.Error("expected bad sequence", ExpectedActual(ktp.ErrBadSequence, err))
		}
	})
}

func TestSizes(t *testing.T) {
	if ktp.HeaderLen != 14 {
		t.Error("bad header length", ExpectedActual(14, ktp.HeaderLen))
	}
	if ktp.MaxChunkSize != 241 {
		t.Error("bad chunk size", ExpectedActual(241, ktp.MaxChunkSize))
	}
}

func TestEtherType(t *testing.T) {
	tests := []struct {
		in   string
		want ktp.EtherType
	}{
		{"Experimental1", ktp.Experimental1},
		{"experimental2", ktp.Experimental2},
		{"IPv4", ktp.IPv4},
		{"0x1234", 0x1234},
	}
	for _, tt := range tests {
		got, err := ktp.ParseEtherType(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Error("bad parse of "+tt.in, ExpectedActual(tt.want, got))
		}
		text, _ := got.MarshalText()
		var back ktp.EtherType
		if err := back.UnmarshalText(text); err != nil || back != got {
			t.Error("text round trip failed", ExpectedActual(got, back))
		}
	}
	if b := ktp.Experimental1.Bytes(); b != [2]byte{0x88, 0xB5} {
		t.Error("bad byte order", ExpectedActual([2]byte{0x88, 0xB5}, b))
	}
	if _, err := ktp.ParseEtherType("ethernet"); err == nil {
		t.Error("expected an error for an unknown name")
	}
}

func TestID_Text(t *testing.T) {
	id := ktp.NewID()
	b, err := id.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 2*ktp.IDLen {
		t.Fatal("bad hex length", ExpectedActual(2*ktp.IDLen, len(b)))
	}
	var got ktp.ID
	if err := got.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatal(ExpectedActual(id, got))
	}
	for _, bad := range []string{"", "abcd", "zz00000000000000", "000000000000000000"} {
		if err := got.UnmarshalText([]byte(bad)); err == nil {
			t.Errorf("%q decoded without error", bad)
		}
	}
}
