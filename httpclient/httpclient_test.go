package httpclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	streamurl "github.com/snd/streamgo/url"
)

// serveOnce starts a one-shot TCP listener that writes resp to the first
// connection and returns the listener's address.
func serveOnce(t *testing.T, resp string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf) // drain the request line/headers
		_, _ = conn.Write([]byte(resp))
	}()
	return ln.Addr().String()
}

func TestProcessChunkedDownload(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nHello\r\n6\r\n World\r\n0\r\n\r\n"
	addr := serveOnce(t, resp)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var port int
	_, err = fmtSscan(portStr, &port)
	require.NoError(t, err)

	u := streamurl.URL{Protocol: "http", Host: host, Port: port, Path: "/", Root: "http://" + addr}

	req := NewRequest(WithTimeout(2 * time.Second))
	status, err := req.Process(MethodGET, u, "", nil, 0)
	require.NoError(t, err)
	require.Equal(t, 200, status)

	var body []byte
	buf := make([]byte, 4)
	for {
		n, err := req.Read(buf)
		require.NoError(t, err)
		body = append(body, buf[:n]...)
		if n == 0 {
			break
		}
	}
	require.Equal(t, "Hello World", string(body))
}

func fmtSscan(s string, v *int) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	*v = n
	return 1, nil
}
