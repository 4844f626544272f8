package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBufferedURLStreamPreservesByteOrder(t *testing.T) {
	body := "the quick brown fox jumps over the lazy dog, repeated: " +
		"the quick brown fox jumps over the lazy dog"
	addr := serveOnce(t, "HTTP/1.1 200 OK\r\nContent-Length: "+itoa(len(body))+"\r\n\r\n"+body)

	us := NewURLStream()
	status, err := us.Begin("http://"+addr+"/", "*/*", MethodGET, "", nil)
	require.NoError(t, err)
	require.Equal(t, 200, status)

	buffered := NewBufferedURLStream(us, 16)
	buffered.Start()
	defer buffered.Stop()

	var got []byte
	buf := make([]byte, 7)
	deadline := time.After(2 * time.Second)
	for len(got) < len(body) {
		select {
		case <-deadline:
			t.Fatal("timed out reading from BufferedURLStream")
		default:
		}
		n, err := buffered.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, body, string(got))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
