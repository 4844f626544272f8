// Package sdp builds and parses the single-media SDP bodies RTSP DESCRIBE
// exchanges. Emission writes an exact, fixed line order by hand, since
// pion/sdp/v3's generic marshaler reorders/omits lines this wire format
// depends on; parsing (of a client-supplied or relayed SDP) delegates to
// pion/sdp/v3.SessionDescription.Unmarshal and is adapted back into our
// Description via FromPion.
package sdp

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	pionsdp "github.com/pion/sdp/v3"
)

// Encoding identifies an audio codec by its SDP rtpmap name.
type Encoding string

const (
	EncodingPCMU Encoding = "PCMU"
	EncodingGSM  Encoding = "GSM"
	EncodingDVI4 Encoding = "DVI4"
	EncodingPCMA Encoding = "PCMA"
	EncodingG722 Encoding = "G722"
	EncodingL16  Encoding = "L16"
	EncodingL8   Encoding = "L8"
	EncodingMPA  Encoding = "MPA"
	EncodingOpus Encoding = "opus"
	EncodingAAC  Encoding = "mpeg4-generic"
	EncodingAptX Encoding = "aptx"
)

// Format describes one payload-type assignment: a row of the static RTP
// payload-type table, or a dynamic (96+) assignment chosen by the caller.
type Format struct {
	PT        int
	Encoding  Encoding
	ClockRate int
	Channels  int
	Dynamic   bool
}

// staticFormats is the static audio payload-type table from RFC 3551 §6.
var staticFormats = []Format{
	{PT: 0, Encoding: EncodingPCMU, ClockRate: 8000, Channels: 1},
	{PT: 3, Encoding: EncodingGSM, ClockRate: 8000, Channels: 1},
	{PT: 5, Encoding: EncodingDVI4, ClockRate: 8000, Channels: 1},
	{PT: 6, Encoding: EncodingDVI4, ClockRate: 16000, Channels: 1},
	{PT: 8, Encoding: EncodingPCMA, ClockRate: 8000, Channels: 1},
	{PT: 9, Encoding: EncodingG722, ClockRate: 8000, Channels: 1},
	{PT: 10, Encoding: EncodingL16, ClockRate: 44100, Channels: 2},
	{PT: 11, Encoding: EncodingL16, ClockRate: 44100, Channels: 1},
	{PT: 14, Encoding: EncodingMPA, ClockRate: 90000, Channels: 1},
	{PT: 16, Encoding: EncodingDVI4, ClockRate: 11025, Channels: 1},
	{PT: 17, Encoding: EncodingDVI4, ClockRate: 22050, Channels: 1},
}

// FirstDynamicPT is the first payload type number outside the static table.
const FirstDynamicPT = 96

// StaticFormat looks up the static payload-type assignment for an encoding
// at the given clock rate and channel count, returning ok=false if no
// static row matches (the caller should assign a dynamic PT instead).
func StaticFormat(enc Encoding, clockRate, channels int) (Format, bool) {
	for _, f := range staticFormats {
		if f.Encoding == enc && f.ClockRate == clockRate && f.Channels == channels {
			return f, true
		}
	}
	return Format{}, false
}

// DynamicFormat builds a dynamic (PT >= 96) format assignment.
func DynamicFormat(pt int, enc Encoding, clockRate, channels int) Format {
	return Format{PT: pt, Encoding: enc, ClockRate: clockRate, Channels: channels, Dynamic: true}
}

// MIME derives the payload's MIME type: for a static PT the table above is
// authoritative, for a dynamic PT the SDP rtpmap encoding names it. The RTSP
// client's receive path uses this to look up a registered decoder.
func (f Format) MIME() string {
	enc := f.Encoding
	if !f.Dynamic {
		for _, s := range staticFormats {
			if s.PT == f.PT {
				enc = s.Encoding
				break
			}
		}
	}
	switch enc {
	case EncodingMPA:
		return "audio/mpeg"
	case EncodingOpus:
		return "audio/opus"
	case EncodingAAC:
		return "audio/aac"
	default:
		return "audio/" + string(enc)
	}
}

// MediaAttrs holds the encoding-specific `a=fmtp:`/`a=ptime:` attributes:
// Opus stereo/sprop-stereo, AptX variant/bitresolution, AAC
// streamtype/profile-level-id/mode, MP3's optional ptime+layer=3.
type MediaAttrs struct {
	OpusStereo      bool
	OpusSpropStereo bool
	AptXVariant     string
	AptXBitRes      int
	AACProfileLevel string
	MP3PtimeMs      int
}

// Description is a single-media SDP session description, built and
// serialized with a fixed v=/o=/s=/c=/t=/m=/a= field order.
type Description struct {
	OriginID int64  // o= session id; 0 picks a new random value in String
	Host     string // o= unicast-address
	Name     string // s=
	ConnAddr string // c= connection-address; defaults to 0.0.0.0
	Port     int    // m= port; 0 for an as-yet-unbound RTSP media stream
	Format   Format
	Track    string // a=control: value, e.g. "trackID=0"
	Attrs    MediaAttrs
}

// New constructs a Description with the usual serve-side defaults:
// c=IN IP4 0.0.0.0, m= port 0, and trackID=0.
func New(host, name string, format Format) Description {
	return Description{
		Host:     host,
		Name:     name,
		ConnAddr: "0.0.0.0",
		Format:   format,
		Track:    "trackID=0",
	}
}

// String renders the SDP body with CRLF line endings: session header, then
// one m= line and its a= lines.
func (d Description) String() string {
	var b strings.Builder
	originID := d.OriginID
	if originID == 0 {
		originID = rand.Int63()
	}

	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- %d 0 IN IP4 %s\r\n", originID, d.Host)
	fmt.Fprintf(&b, "s=%s\r\n", d.Name)
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", d.ConnAddr)
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "m=audio %d RTP/AVP %d\r\n", d.Port, d.Format.PT)

	if d.Format.Channels > 1 {
		fmt.Fprintf(&b, "a=rtpmap:%d %s/%d/%d\r\n", d.Format.PT, d.Format.Encoding, d.Format.ClockRate, d.Format.Channels)
	} else {
		fmt.Fprintf(&b, "a=rtpmap:%d %s/%d\r\n", d.Format.PT, d.Format.Encoding, d.Format.ClockRate)
	}

	for _, line := range d.fmtpLines() {
		b.WriteString(line)
		b.WriteString("\r\n")
	}

	fmt.Fprintf(&b, "a=control:%s\r\n", d.Track)
	return b.String()
}

// fmtpLines returns the encoding-specific attribute lines for each codec.
func (d Description) fmtpLines() []string {
	var lines []string
	switch d.Format.Encoding {
	case EncodingOpus:
		var params []string
		if d.Attrs.OpusStereo {
			params = append(params, "stereo=1")
		}
		if d.Attrs.OpusSpropStereo {
			params = append(params, "sprop-stereo=1")
		}
		if len(params) > 0 {
			lines = append(lines, fmt.Sprintf("a=fmtp:%d %s", d.Format.PT, strings.Join(params, ";")))
		}
	case EncodingAptX:
		var params []string
		if d.Attrs.AptXVariant != "" {
			params = append(params, "variant="+d.Attrs.AptXVariant)
		}
		if d.Attrs.AptXBitRes > 0 {
			params = append(params, fmt.Sprintf("bitresolution=%d", d.Attrs.AptXBitRes))
		}
		if len(params) > 0 {
			lines = append(lines, fmt.Sprintf("a=fmtp:%d %s", d.Format.PT, strings.Join(params, ";")))
		}
	case EncodingAAC:
		params := []string{"streamtype=5", "mode=AAC-hbr"}
		if d.Attrs.AACProfileLevel != "" {
			params = append(params, "profile-level-id="+d.Attrs.AACProfileLevel)
		}
		lines = append(lines, fmt.Sprintf("a=fmtp:%d %s", d.Format.PT, strings.Join(params, ";")))
	case EncodingMPA:
		if d.Attrs.MP3PtimeMs > 0 {
			lines = append(lines, fmt.Sprintf("a=ptime:%d", d.Attrs.MP3PtimeMs))
		}
		lines = append(lines, fmt.Sprintf("a=fmtp:%d layer=3", d.Format.PT))
	}
	return lines
}

// FromPion converts a pion/sdp/v3 SessionDescription's first audio media
// section into a Description, used when parsing an SDP body received over
// the wire (e.g. a DESCRIBE reply relayed from another component). The
// payload type's encoding/clock/channels are read from its a=rtpmap
// attribute rather than a pion convenience method, since this wire format
// needs the exact raw fields rather than a generalized codec model.
func FromPion(sd *pionsdp.SessionDescription) (Description, error) {
	d := Description{ConnAddr: "0.0.0.0", Name: string(sd.SessionName)}
	d.Host = sd.Origin.UnicastAddress
	d.OriginID = int64(sd.Origin.SessionID)
	if sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
		d.ConnAddr = sd.ConnectionInformation.Address.Address
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" || len(md.MediaName.Formats) == 0 {
			continue
		}
		d.Port = md.MediaName.Port.Value
		pt, err := strconv.Atoi(md.MediaName.Formats[0])
		if err != nil {
			return d, fmt.Errorf("sdp: non-numeric payload type %q: %w", md.MediaName.Formats[0], err)
		}

		found := false
		for _, attr := range md.Attributes {
			switch attr.Key {
			case "rtpmap":
				f, ok := parseRtpmap(attr.Value)
				if ok && f.PT == pt {
					f.Dynamic = pt >= FirstDynamicPT
					d.Format = f
					found = true
				}
			case "control":
				d.Track = attr.Value
			}
		}
		if !found {
			return d, fmt.Errorf("sdp: no a=rtpmap attribute for payload type %d", pt)
		}
		return d, nil
	}
	return d, fmt.Errorf("sdp: no audio media section found")
}

// parseRtpmap parses an "a=rtpmap" value of the form "<pt> <enc>/<rate>[/<ch>]".
func parseRtpmap(value string) (Format, bool) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return Format{}, false
	}
	pt, err := strconv.Atoi(fields[0])
	if err != nil {
		return Format{}, false
	}
	parts := strings.Split(fields[1], "/")
	if len(parts) < 2 {
		return Format{}, false
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return Format{}, false
	}
	channels := 1
	if len(parts) == 3 {
		if n, err := strconv.Atoi(parts[2]); err == nil {
			channels = n
		}
	}
	return Format{PT: pt, Encoding: Encoding(parts[0]), ClockRate: rate, Channels: channels}, true
}
