package url

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultPorts(t *testing.T) {
	cases := map[string]int{
		"http://example.com/x":  80,
		"https://example.com/x": 443,
		"rtsp://example.com/x":  554,
		"ftp://example.com/x":   21,
	}
	for in, port := range cases {
		u := Parse(in)
		require.Equal(t, port, u.Port, in)
	}
}

func TestParseNoPath(t *testing.T) {
	u := Parse("http://example.com")
	require.Equal(t, "/", u.Path)
	require.Equal(t, "http://example.com", u.Root, "root is the literal input when there is no path")
	require.Equal(t, 80, u.Port)
}

func TestParseRootIsLiteralPrefix(t *testing.T) {
	u := Parse("http://example.com/a/b")
	require.Equal(t, "http://example.com", u.Root)

	u = Parse("rtsp://example.com:8554/live")
	require.Equal(t, "rtsp://example.com:8554", u.Root)
}

func TestParseExplicitPort(t *testing.T) {
	u := Parse("rtsp://127.0.0.1:8554/stream")
	require.Equal(t, "127.0.0.1", u.Host)
	require.Equal(t, 8554, u.Port)
	require.Equal(t, "/stream", u.Path)
}

func TestParseMalformed(t *testing.T) {
	u := Parse("not a url")
	require.Equal(t, URL{}, u)
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"http://example.com:80/x",
		"https://example.com:443/a/b/c",
		"rtsp://127.0.0.1:554/live",
		"ftp://example.com:21/pub",
	}
	for _, in := range inputs {
		u := Parse(in)
		require.Equal(t, in, u.String(), in)
	}
}

func TestIsSecure(t *testing.T) {
	require.True(t, Parse("https://example.com").IsSecure())
	require.False(t, Parse("http://example.com").IsSecure())
}

func TestIPv4HostNoPath(t *testing.T) {
	u := Parse("http://192.168.1.1:8080")
	require.Equal(t, "192.168.1.1", u.Host)
	require.Equal(t, 8080, u.Port)
	require.Equal(t, "/", u.Path)
}
