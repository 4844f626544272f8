// Package rtp implements the 12-byte RTP packet header and a periodic
// audio streamer built on top of it. Header marshal/unmarshal is
// hand-rolled rather than routed through pion/rtp: this wire format pins
// details (a fixed SSRC default, an optional RFC 2250 prefix) that a
// general-purpose RTP marshaler doesn't expose as knobs.
package rtp

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed RTP header length in bytes (no CSRC, no extension).
const HeaderSize = 12

// DefaultSSRC is the fixed synchronization source identifier used unless
// WithRandomSSRC opts into a per-session random one.
const DefaultSSRC uint32 = 0x13F97E67

// RFC2250PrefixSize is the MPEG-audio-specific header RFC 2250 prepends
// ahead of the MP3 payload (MBZ + fragment offset, both zero for whole-frame
// packetization).
const RFC2250PrefixSize = 4

// Header is the fixed 12-byte RTP header.
type Header struct {
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// Marshal encodes h into a 12-byte header: V=2, P=0, X=0, CC=0.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = 0x80 // V=2, P=0, X=0, CC=0
	buf[1] = h.PayloadType & 0x7F
	if h.Marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], h.SSRC)
	return buf
}

// Unmarshal decodes an RTP header from the front of buf and returns the
// remaining bytes as payload, starting after any CSRC list. extraPrefix
// skips a further fixed-size prefix (e.g. RFC2250PrefixSize for MP3).
func Unmarshal(buf []byte, extraPrefix int) (Header, []byte, error) {
	if len(buf) <= HeaderSize {
		return Header{}, nil, fmt.Errorf("rtp: packet too short (%d bytes)", len(buf))
	}
	version := buf[0] >> 6
	if version != 2 {
		return Header{}, nil, fmt.Errorf("rtp: unsupported version %d", version)
	}
	csrcCount := int(buf[0] & 0x0F)
	h := Header{
		Marker:         buf[1]&0x80 != 0,
		PayloadType:    buf[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		Timestamp:      binary.BigEndian.Uint32(buf[4:8]),
		SSRC:           binary.BigEndian.Uint32(buf[8:12]),
	}
	offset := HeaderSize + csrcCount*4 + extraPrefix
	if offset > len(buf) {
		return Header{}, nil, fmt.Errorf("rtp: payload offset %d exceeds packet length %d", offset, len(buf))
	}
	return h, buf[offset:], nil
}
