package rtsp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snd/streamgo/httpio"
)

// loopbackPair wraps a net.Pipe so ParseRequest can be exercised without a
// real socket: writes to server arrive as reads on client.
type loopbackPair struct {
	client httpio.Client
	server net.Conn
}

func newLoopbackPair(t *testing.T) *loopbackPair {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return &loopbackPair{client: httpio.DialClient(client), server: server}
}

func TestSplitURL(t *testing.T) {
	hostport, path, err := SplitURL("rtsp://192.168.1.5:8554/live/stream1")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.5:8554", hostport)
	require.Equal(t, "/live/stream1", path)
}

func TestSplitURLNoPath(t *testing.T) {
	hostport, path, err := SplitURL("rtsp://192.168.1.5:8554")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.5:8554", hostport)
	require.Equal(t, "/", path)
}

func TestSplitURLRejectsWrongScheme(t *testing.T) {
	_, _, err := SplitURL("http://example.com/x")
	require.Error(t, err)
}

func TestParseTransportAcceptsBothProfiles(t *testing.T) {
	t1, err := ParseTransport("RTP/AVP;unicast;client_port=5004-5005")
	require.NoError(t, err)
	require.Equal(t, "RTP/AVP", t1.Profile)
	require.Equal(t, 5004, t1.ClientRTPPort)
	require.Equal(t, 5005, t1.ClientRTCPPort)

	t2, err := ParseTransport("RTP/AVP/UDP;unicast;client_port=6000-6001")
	require.NoError(t, err)
	require.Equal(t, "RTP/AVP/UDP", t2.Profile)
	require.Equal(t, 6000, t2.ClientRTPPort)
}

func TestParseTransportRejectsUnknownProfile(t *testing.T) {
	_, err := ParseTransport("RTP/SAVP;unicast;client_port=5004-5005")
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestParseTransportRejectsMissingClientPort(t *testing.T) {
	_, err := ParseTransport("RTP/AVP;unicast")
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestParseServerPort(t *testing.T) {
	rtpPort, rtcpPort, ok := ParseServerPort("RTP/AVP;unicast;client_port=5004-5005;server_port=6970-6971")
	require.True(t, ok)
	require.Equal(t, 6970, rtpPort)
	require.Equal(t, 6971, rtcpPort)
}

func TestParseServerPortMissing(t *testing.T) {
	_, _, ok := ParseServerPort("RTP/AVP;unicast;client_port=5004-5005")
	require.False(t, ok)
}

func TestParseStatusLine(t *testing.T) {
	code, msg := ParseStatusLine("RTSP/1.0 200 OK")
	require.Equal(t, 200, code)
	require.Equal(t, "OK", msg)
}

func TestParseStatusLineMalformed(t *testing.T) {
	code, msg := ParseStatusLine("garbage")
	require.Equal(t, 0, code)
	require.Equal(t, "garbage", msg)
}

func TestParseRequestMalformedFirstLineKeepsSessionOpen(t *testing.T) {
	c := newLoopbackPair(t)
	go func() {
		_, _ = c.server.Write([]byte("GARBAGE\r\n\r\n"))
	}()
	req, err := ParseRequest(c.client, 0)
	require.NoError(t, err)
	require.Nil(t, req, "a first line with no method/URL pair must be treated as malformed, not fatal")
}

func TestParseRequestParsesMethodURLCSeq(t *testing.T) {
	c := newLoopbackPair(t)
	go func() {
		_, _ = c.server.Write([]byte("SETUP rtsp://127.0.0.1:8554/live/trackID=0 RTSP/1.0\r\nCSeq: 3\r\n\r\n"))
	}()
	req, err := ParseRequest(c.client, 0)
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, "SETUP", req.Method)
	require.Equal(t, "rtsp://127.0.0.1:8554/live/trackID=0", req.URL)
	require.Equal(t, "3", req.CSeq)
}
