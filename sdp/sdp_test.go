package sdp

import (
	"strings"
	"testing"

	pionsdp "github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"
)

func TestStringSessionLayout(t *testing.T) {
	fmtFmt, ok := StaticFormat(EncodingL16, 44100, 2)
	require.True(t, ok)
	require.Equal(t, 10, fmtFmt.PT)

	d := New("192.168.1.5", "streamgo", fmtFmt)
	d.OriginID = 42
	out := d.String()

	lines := strings.Split(out, "\r\n")
	require.Equal(t, "v=0", lines[0])
	require.Equal(t, "o=- 42 0 IN IP4 192.168.1.5", lines[1])
	require.Equal(t, "s=streamgo", lines[2])
	require.Equal(t, "c=IN IP4 0.0.0.0", lines[3])
	require.Equal(t, "t=0 0", lines[4])
	require.Equal(t, "m=audio 0 RTP/AVP 10", lines[5])
	require.Equal(t, "a=rtpmap:10 L16/44100/2", lines[6])
	require.Equal(t, "a=control:trackID=0", lines[7])
}

func TestStringMonoOmitsChannelCount(t *testing.T) {
	f, ok := StaticFormat(EncodingL16, 44100, 1)
	require.True(t, ok)
	d := New("10.0.0.1", "s", f)
	require.Contains(t, d.String(), "a=rtpmap:11 L16/44100\r\n")
}

func TestStringMP3Attrs(t *testing.T) {
	f, ok := StaticFormat(EncodingMPA, 90000, 1)
	require.True(t, ok)
	d := New("10.0.0.1", "s", f)
	d.Attrs.MP3PtimeMs = 26
	out := d.String()
	require.Contains(t, out, "a=ptime:26\r\n")
	require.Contains(t, out, "a=fmtp:14 layer=3\r\n")
}

func TestStringOpusFmtp(t *testing.T) {
	f := DynamicFormat(96, EncodingOpus, 48000, 2)
	d := New("10.0.0.1", "s", f)
	d.Attrs.OpusStereo = true
	d.Attrs.OpusSpropStereo = true
	out := d.String()
	require.Contains(t, out, "a=fmtp:96 stereo=1;sprop-stereo=1\r\n")
}

func TestMIMEDerivation(t *testing.T) {
	cases := []struct {
		f    Format
		want string
	}{
		{Format{PT: 10}, "audio/L16"}, // static PT, encoding derived from the table
		{Format{PT: 0}, "audio/PCMU"},
		{Format{PT: 14}, "audio/mpeg"},
		{DynamicFormat(96, EncodingOpus, 48000, 2), "audio/opus"},
		{DynamicFormat(97, EncodingL8, 22050, 1), "audio/L8"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.f.MIME())
	}
}

func TestFromPionRoundTrip(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 99 0 IN IP4 10.1.1.1\r\n" +
		"s=test\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"t=0 0\r\n" +
		"m=audio 6000 RTP/AVP 10\r\n" +
		"a=rtpmap:10 L16/44100/2\r\n" +
		"a=control:trackID=0\r\n"

	var sd pionsdp.SessionDescription
	require.NoError(t, sd.Unmarshal([]byte(raw)))

	d, err := FromPion(&sd)
	require.NoError(t, err)
	require.Equal(t, "test", d.Name)
	require.Equal(t, "10.1.1.1", d.Host)
	require.Equal(t, int64(99), d.OriginID)
	require.Equal(t, 6000, d.Port)
	require.Equal(t, 10, d.Format.PT)
	require.Equal(t, EncodingL16, d.Format.Encoding)
	require.Equal(t, 44100, d.Format.ClockRate)
	require.Equal(t, 2, d.Format.Channels)
	require.Equal(t, "trackID=0", d.Track)
}
