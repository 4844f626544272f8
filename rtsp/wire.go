package rtsp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/snd/streamgo/httpio"
)

// dateHeaderLayout matches RFC 7231's IMF-fixdate, which RTSP's Date
// header reuses verbatim.
const dateHeaderLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Request is one parsed RTSP request line plus its header block.
type Request struct {
	Method   string
	URL      string
	Protocol string
	Header   *httpio.Header
	CSeq     string
}

// ParseRequest reads one request (request line + headers) from c. A
// malformed first line returns (nil, nil): the caller keeps the session
// open and simply does not reply.
func ParseRequest(c httpio.Client, timeout time.Duration) (*Request, error) {
	h := httpio.NewHeader()
	if err := h.Read(c, timeout); err != nil {
		return nil, err
	}
	fields := strings.Fields(h.FirstLine)
	if len(fields) < 2 {
		return nil, nil
	}
	req := &Request{Method: fields[0], URL: fields[1], Header: h}
	if len(fields) >= 3 {
		req.Protocol = fields[2]
	}
	req.CSeq, _ = h.Get("CSeq")
	return req, nil
}

// SplitURL parses "rtsp://host[:port]/path" into host:port and the path.
func SplitURL(raw string) (hostport, path string, err error) {
	const scheme = "rtsp://"
	if !strings.HasPrefix(raw, scheme) {
		return "", "", fmt.Errorf("rtsp: url %q missing rtsp:// scheme", raw)
	}
	rest := raw[len(scheme):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return rest, "/", nil
	}
	return rest[:slash], rest[slash:], nil
}

// Transport is a parsed Transport header: profile plus client/server ports.
type Transport struct {
	Profile        string // "RTP/AVP" or "RTP/AVP/UDP"
	ClientRTPPort  int
	ClientRTCPPort int
	ServerRTPPort  int
	ServerRTCPPort int
}

// ParseTransport parses a SETUP request's Transport header, accepting both
// "RTP/AVP;unicast;client_port=A-B" and "RTP/AVP/UDP;unicast;client_port=A-B".
func ParseTransport(value string) (Transport, error) {
	var t Transport
	parts := strings.Split(value, ";")
	if len(parts) == 0 {
		return t, ErrNoTransport
	}
	profile := strings.TrimSpace(parts[0])
	if profile != "RTP/AVP" && profile != "RTP/AVP/UDP" {
		return t, ErrNoTransport
	}
	t.Profile = profile

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "client_port=") {
			continue
		}
		rng := strings.TrimPrefix(p, "client_port=")
		a, b, ok := splitRange(rng)
		if !ok {
			return t, ErrNoTransport
		}
		t.ClientRTPPort = a
		t.ClientRTCPPort = b
		return t, nil
	}
	return t, ErrNoTransport
}

// ParseServerPort extracts server_port=C-D from a SETUP reply's Transport
// header, as the RTSP client side needs after SETUP.
func ParseServerPort(value string) (rtpPort, rtcpPort int, ok bool) {
	for _, p := range strings.Split(value, ";") {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "server_port=") {
			continue
		}
		a, b, ok := splitRange(strings.TrimPrefix(p, "server_port="))
		return a, b, ok
	}
	return 0, 0, false
}

func splitRange(s string) (a, b int, ok bool) {
	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		return 0, 0, false
	}
	av, err1 := strconv.Atoi(s[:dash])
	bv, err2 := strconv.Atoi(s[dash+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return av, bv, true
}

// writeReplyHeader writes "RTSP/1.0 CODE MSG\r\nCSeq: N\r\nDate: ...GMT\r\n",
// the common prefix every reply shares.
func writeReplyHeader(b *strings.Builder, code int, msg, cseq string) {
	fmt.Fprintf(b, "RTSP/1.0 %d %s\r\n", code, msg)
	fmt.Fprintf(b, "CSeq: %s\r\n", cseq)
	fmt.Fprintf(b, "Date: %s\r\n", time.Now().UTC().Format(dateHeaderLayout))
}

// ParseStatusLine splits a reply's first line ("RTSP/1.0 200 OK") into the
// status code and message, as the client side needs after every request.
func ParseStatusLine(line string) (code int, msg string) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return 0, line
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, line
	}
	if len(fields) == 3 {
		msg = fields[2]
	}
	return code, msg
}
