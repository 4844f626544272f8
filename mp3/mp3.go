// Package mp3 implements an incremental MPEG-1/2/2.5 Layer I/II/III frame
// synchronizer. It never performs I/O; callers push bytes in via Write and
// receive whole frames out via the OnFrame callback.
package mp3

import (
	"github.com/rs/zerolog"

	"github.com/snd/streamgo/internal/streamlog"
)

// maxFrameLength sanity-caps a computed frame length; the largest frame the
// tables allow is MPEG-2.5 Layer II at 160 kbps and 8 kHz, 2881 bytes with
// padding, so this leaves headroom.
const maxFrameLength = 4096

// minConsecutiveLarge / minConsecutiveMid are the adaptive-policy
// thresholds consumed by IsValid.
const (
	minConsecutiveLarge = 3
	minConsecutiveMid   = 2
	minTotalMid         = 3
)

// Header describes one parsed MPEG audio frame header.
type Header struct {
	Version         Version
	Layer           Layer
	Protected       bool
	BitRate         int // bits per second
	SampleRate      int // Hz
	Padding         bool
	ChannelMode     ChannelMode
	Emphasis        int
	FrameLength     int
	SamplesPerFrame int
}

// Valid reports whether h describes a structurally legal frame header: no
// reserved version/layer/sample-rate/emphasis field, no free-format (0) or
// invalid (15) bitrate index, and none of the forbidden Layer II
// (bitrate, channel-mode) pairs.
func (h Header) Valid() bool {
	if h.Version == VersionReserved || h.Layer == LayerReserved {
		return false
	}
	if h.BitRate <= 0 || h.SampleRate <= 0 {
		return false
	}
	if h.Emphasis == 2 { // 2 = reserved
		return false
	}
	if h.Version == Version1 && h.Layer == LayerII && layerIIForbidden(h.BitRate/1000, h.ChannelMode) {
		return false
	}
	return true
}

// hasSync reports whether b0,b1 start an MPEG audio sync word: byte0 is all
// ones, and the top 3 bits of byte1 are also set, giving the 11 sync bits
// (0xFFE...). This deliberately does not special-case AAC ADTS's 12-bit
// 0xFFF sync: an ADTS stream decodes here with layer bits forced to 00
// (reserved), so Header.Valid already rejects it without a dedicated
// byte-range check.
func hasSync(b0, b1 byte) bool {
	return b0 == 0xFF && b1&0xE0 == 0xE0
}

// parseHeader decodes the 4-byte frame header at the front of buf. buf must
// be at least 4 bytes and start with a valid sync word (the caller checks
// hasSync first); parseHeader itself only decodes fields and computes the
// frame length, it does not judge validity; call Header.Valid for that.
func parseHeader(buf []byte) Header {
	b1, b2, b3 := buf[1], buf[2], buf[3]

	v := versionFromBits((b1 >> 3) & 0x03)
	l := layerFromBits((b1 >> 1) & 0x03)
	protected := b1&0x01 == 0

	bitrateIdx := int(b2>>4) & 0x0F
	sampleIdx := int(b2>>2) & 0x03
	padding := b2&0x02 != 0

	mode := ChannelMode((b3 >> 6) & 0x03)
	emphasis := int(b3 & 0x03)

	kbps := bitrateKbps(v, l, bitrateIdx)
	rate := sampleRateHz(v, sampleIdx)

	h := Header{
		Version:         v,
		Layer:           l,
		Protected:       protected,
		BitRate:         kbps * 1000,
		SampleRate:      rate,
		Padding:         padding,
		ChannelMode:     mode,
		Emphasis:        emphasis,
		SamplesPerFrame: samplesPerFrame(v, l),
	}
	if rate > 0 && kbps > 0 {
		h.FrameLength = frameLength(v, l, h.BitRate, rate, padding)
	}
	return h
}

// frameLength computes the whole-frame byte length: Layer I uses a 12x/4
// multiplier with a 4-byte padding slot, Layer II/III use 144 (MPEG-1) or
// 72 (MPEG-2/2.5, half the samples per frame) with a 1-byte padding slot.
func frameLength(v Version, l Layer, bitRateBps, sampleRate int, padding bool) int {
	pad := 0
	if padding {
		pad = 1
	}
	switch l {
	case LayerI:
		if padding {
			pad = 4
		}
		return (12*bitRateBps/sampleRate)*4 + pad
	case LayerIII:
		mult := 144
		if v != Version1 {
			mult = 72
		}
		return mult*bitRateBps/sampleRate + pad
	default: // LayerII
		return 144*bitRateBps/sampleRate + pad
	}
}

// Parser is the incremental frame synchronizer: an append-only ring of
// undrained bytes plus the last header it validated.
type Parser struct {
	ring       []byte
	lastHeader Header
	hasValid   bool
	onFrame    func(frame []byte, h Header)
	log        zerolog.Logger
}

// Option configures a Parser at construction.
type Option func(*Parser)

// WithOnFrame registers the callback invoked with each complete frame.
func WithOnFrame(fn func(frame []byte, h Header)) Option {
	return func(p *Parser) { p.onFrame = fn }
}

// WithParserLogger attaches a scoped logger.
func WithParserLogger(l zerolog.Logger) Option { return func(p *Parser) { p.log = l } }

// New constructs an empty Parser.
func New(opts ...Option) *Parser {
	p := &Parser{log: streamlog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Write appends data to the internal ring and drains every frame it can
// confirm by the next sync word, invoking OnFrame for each. A trailing
// frame with no subsequent bytes to confirm its boundary is held back
// until more data arrives or Flush is called. Returns the number emitted.
func (p *Parser) Write(data []byte) int {
	p.ring = append(p.ring, data...)
	return p.drain(false)
}

// Flush drains every frame still buffered, including a trailing frame that
// Write held back for lack of a confirming next sync word: once the caller
// knows no more data is coming, an unconfirmed header is the best frame
// boundary available.
func (p *Parser) Flush() int { return p.drain(true) }

// Reset clears all buffered state.
func (p *Parser) Reset() {
	p.ring = p.ring[:0]
	p.hasValid = false
	p.lastHeader = Header{}
}

// HasValidFrame reports whether the parser has ever emitted a valid frame.
func (p *Parser) HasValidFrame() bool { return p.hasValid }

// LastHeader returns the most recently emitted frame's header.
func (p *Parser) LastHeader() Header { return p.lastHeader }

func (p *Parser) drain(force bool) int {
	emitted := 0
	for {
		if skipped := p.skipID3(); skipped {
			continue
		}
		if len(p.ring) < 4 {
			return emitted
		}
		if !hasSync(p.ring[0], p.ring[1]) {
			idx := p.findSync()
			if idx < 0 {
				if len(p.ring) > 3 {
					p.ring = p.ring[len(p.ring)-3:]
				}
				return emitted
			}
			p.ring = p.ring[idx:]
			continue
		}

		h := parseHeader(p.ring[:4])
		if !h.Valid() || h.FrameLength <= 0 || h.FrameLength > maxFrameLength {
			p.ring = p.ring[1:]
			continue
		}

		if len(p.ring) < h.FrameLength+2 {
			if force && len(p.ring) >= h.FrameLength {
				p.emit(h)
				emitted++
				continue
			}
			return emitted // need more data to confirm the next sync
		}
		if !hasSync(p.ring[h.FrameLength], p.ring[h.FrameLength+1]) {
			p.ring = p.ring[1:]
			continue
		}

		p.emit(h)
		emitted++
	}
}

func (p *Parser) emit(h Header) {
	frame := append([]byte(nil), p.ring[:h.FrameLength]...)
	p.lastHeader = h
	p.hasValid = true
	p.ring = p.ring[h.FrameLength:]
	if p.onFrame != nil {
		p.onFrame(frame, h)
	}
}

// skipID3 drops a leading ID3v2 tag (synchsafe size header), returning true
// if it consumed one and the caller should re-evaluate from the top.
func (p *Parser) skipID3() bool {
	if len(p.ring) < 10 || string(p.ring[:3]) != "ID3" {
		return false
	}
	size := synchsafe(p.ring[6], p.ring[7], p.ring[8], p.ring[9])
	total := 10 + size
	if total > len(p.ring) {
		return false // wait for the rest of the tag to arrive
	}
	p.ring = p.ring[total:]
	return true
}

func synchsafe(b0, b1, b2, b3 byte) int {
	return int(b0)<<21 | int(b1)<<14 | int(b2)<<7 | int(b3)
}

// findSync returns the offset of the next sync word in the ring, or -1.
func (p *Parser) findSync() int {
	for i := 0; i+1 < len(p.ring); i++ {
		if hasSync(p.ring[i], p.ring[i+1]) {
			return i
		}
	}
	return -1
}

// IsValid classifies data as containing MP3 audio, with a policy that
// adapts to buffer size: larger buffers require more consecutive valid
// frames, small buffers fall back to a single frame within 10% of its
// computed length.
func IsValid(data []byte) bool {
	if len(data) >= 10 && string(data[:3]) == "ID3" {
		size := synchsafe(data[6], data[7], data[8], data[9])
		if skip := 10 + size; skip < len(data) {
			data = data[skip:]
		}
	}

	consecutive, maxConsecutive, total := 0, 0, 0
	smallBufferOK := false
	pos := 0
	for pos+4 <= len(data) {
		if !hasSync(data[pos], data[pos+1]) {
			pos++
			consecutive = 0
			continue
		}
		h := parseHeader(data[pos : pos+4])
		if !h.Valid() || h.FrameLength <= 0 {
			pos++
			consecutive = 0
			continue
		}
		if pos+h.FrameLength+2 <= len(data) && !hasSync(data[pos+h.FrameLength], data[pos+h.FrameLength+1]) {
			pos++
			consecutive = 0
			continue
		}

		consecutive++
		total++
		if consecutive > maxConsecutive {
			maxConsecutive = consecutive
		}
		if len(data) < 1024 {
			// Deliberately version-keyed only; the heuristic ignores Layer.
			mult := 144
			if h.Version != Version1 {
				mult = 72
			}
			expected := mult * h.BitRate / h.SampleRate
			tolerance := expected / 10
			diff := h.FrameLength - expected
			if diff < 0 {
				diff = -diff
			}
			if diff <= tolerance {
				smallBufferOK = true
			}
		}
		pos += h.FrameLength
	}

	switch {
	case len(data) >= 2048:
		return maxConsecutive >= minConsecutiveLarge
	case len(data) >= 1024:
		return maxConsecutive >= minConsecutiveMid || total >= minTotalMid
	default:
		return total >= 1 && smallBufferOK
	}
}
