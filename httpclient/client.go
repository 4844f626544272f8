// Package httpclient implements a minimal HTTP/1.1 request engine and the
// URL stream reader built on top of it, aimed at long-lived audio streams
// rather than general-purpose web traffic.
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snd/streamgo/httpio"
	"github.com/snd/streamgo/internal/metrics"
	"github.com/snd/streamgo/internal/streamlog"
	streamurl "github.com/snd/streamgo/url"
)

// Method is an HTTP request method.
type Method int

const (
	MethodUndefined Method = iota
	MethodGET
	MethodHEAD
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodTRACE
	MethodOPTIONS
	MethodCONNECT
	MethodPATCH
)

func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodHEAD:
		return "HEAD"
	case MethodPOST:
		return "POST"
	case MethodPUT:
		return "PUT"
	case MethodDELETE:
		return "DELETE"
	case MethodTRACE:
		return "TRACE"
	case MethodOPTIONS:
		return "OPTIONS"
	case MethodCONNECT:
		return "CONNECT"
	case MethodPATCH:
		return "PATCH"
	default:
		return ""
	}
}

// Dialer opens a transport connection to a host:port; the default uses
// net.Dial("tcp", ...), an Option can swap in a TLS dialer for https/rtsps.
type Dialer func(network, addr string, timeout time.Duration) (httpio.Client, error)

func defaultDialer(network, addr string, timeout time.Duration) (httpio.Client, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Request is the HTTP request engine: it composes a request, writes it to
// the socket, reads the reply header, and exposes the body as a stream.
type Request struct {
	client httpio.Client
	dial   Dialer
	log    zerolog.Logger

	reqHeader   httpio.Header
	replyHeader httpio.Header
	extraHdrs   [][2]string // AddRequestHeader entries, applied after the defaults
	chunk       *httpio.ChunkReader

	userAgent      string
	accept         string
	acceptEncoding string
	connection     string
	timeout        time.Duration

	onConnect func(*Request)

	contentLength int
	bytesRead     int
	ready         bool

	host string
}

// Option configures a Request at construction time.
type Option func(*Request)

// WithTimeout sets the read/connect timeout (default 60s).
func WithTimeout(d time.Duration) Option { return func(r *Request) { r.timeout = d } }

// WithAgent sets the User-Agent header value.
func WithAgent(ua string) Option { return func(r *Request) { r.userAgent = ua } }

// WithAccept sets the default Accept header.
func WithAccept(mime string) Option { return func(r *Request) { r.accept = mime } }

// WithConnection sets Connection to "keep-alive" or "close".
func WithConnection(v string) Option { return func(r *Request) { r.connection = v } }

// WithDialer overrides the transport dialer, e.g. for TLS.
func WithDialer(d Dialer) Option { return func(r *Request) { r.dial = d } }

// WithOnConnect registers a callback invoked immediately after the TCP
// connection is established, letting callers inject headers dynamically
// (e.g. ICY's "Icy-MetaData: 1").
func WithOnConnect(fn func(*Request)) Option { return func(r *Request) { r.onConnect = fn } }

// WithLogger attaches a scoped logger; defaults to a no-op logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Request) { r.log = l } }

// NewRequest constructs a Request with streaming-friendly defaults:
// Accept-Encoding: identity, Connection: keep-alive, 60s timeout.
func NewRequest(opts ...Option) *Request {
	r := &Request{
		dial:           defaultDialer,
		log:            streamlog.Nop(),
		userAgent:      "streamgo",
		accept:         "*/*",
		acceptEncoding: "identity",
		connection:     "keep-alive",
		timeout:        60 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AddRequestHeader sets an additional request header, overriding any
// default of the same name.
func (r *Request) AddRequestHeader(key, value string) {
	r.extraHdrs = append(r.extraHdrs, [2]string{key, value})
}

// ReplyHeader returns a reply header value (case-insensitive).
func (r *Request) ReplyHeader(key string) (string, bool) { return r.replyHeader.Get(key) }

// IsReady reports whether a response is available to read.
func (r *Request) IsReady() bool { return r.ready }

// ContentLength returns the declared Content-Length, or -1 if chunked/absent.
func (r *Request) ContentLength() int {
	if r.replyHeader.Chunked() {
		return -1
	}
	return r.contentLength
}

// Available returns bytes remaining to read in the body.
func (r *Request) Available() int {
	if r.replyHeader.Chunked() {
		return r.chunk.Available()
	}
	if r.contentLength < 0 {
		return -1
	}
	remain := r.contentLength - r.bytesRead
	if remain < 0 {
		return 0
	}
	return remain
}

// Process performs one HTTP exchange: connect if needed, apply the
// on-connect callback, reset the reply header, populate and write the
// request header, optionally write a body, then read the reply header and
// arm the chunk reader if the reply is chunked. Returns the HTTP status
// code (0 on connect failure, 401 on header-read timeout).
func (r *Request) Process(method Method, u streamurl.URL, reqMime string, body io.Reader, bodyLen int) (int, error) {
	if r.client == nil {
		addr := u.Host + ":" + strconv.Itoa(u.Port)
		c, err := r.dial("tcp", addr, r.timeout)
		if err != nil {
			r.log.Warn().Err(err).Str("addr", addr).Msg("httpclient: connect failed")
			metrics.HTTPRequestsTotal.WithLabelValues(method.String(), "err").Inc()
			return 0, fmt.Errorf("httpclient: connect %s: %w", addr, err)
		}
		r.client = c
		r.host = u.Host
		if r.onConnect != nil {
			r.onConnect(r)
		}
	}

	r.replyHeader.SetProcessed()

	r.reqHeader.Clear()
	r.reqHeader.FirstLine = fmt.Sprintf("%s %s HTTP/1.1", method.String(), u.Path)
	r.reqHeader.Put(httpio.HeaderHost, r.host)
	r.reqHeader.Put(httpio.HeaderConnection, r.connection)
	r.reqHeader.Put(httpio.HeaderUserAgent, r.userAgent)
	r.reqHeader.Put(httpio.HeaderAcceptEncoding, r.acceptEncoding)
	r.reqHeader.Put(httpio.HeaderAccept, r.accept)
	if reqMime != "" {
		r.reqHeader.Put(httpio.HeaderContentType, reqMime)
	}
	if bodyLen > 0 {
		r.reqHeader.Put(httpio.HeaderContentLength, strconv.Itoa(bodyLen))
	}
	for _, kv := range r.extraHdrs {
		r.reqHeader.Put(kv[0], kv[1])
	}

	if err := r.reqHeader.Write(r.client); err != nil {
		return 0, fmt.Errorf("httpclient: write request: %w", err)
	}

	if body != nil {
		buf := make([]byte, 512)
		if _, err := io.CopyBuffer(r.client, body, buf); err != nil {
			return 0, fmt.Errorf("httpclient: write body: %w", err)
		}
	}

	if err := r.replyHeader.Read(r.client, r.timeout); err != nil {
		if errors.Is(err, httpio.ErrTimeout) {
			metrics.HTTPRequestsTotal.WithLabelValues(method.String(), "err").Inc()
			return 401, nil
		}
		return 0, fmt.Errorf("httpclient: read reply: %w", err)
	}

	status, msg := parseStatusLine(r.replyHeader.FirstLine)
	r.replyHeader.FirstLine = msg

	if r.replyHeader.Chunked() {
		r.chunk = httpio.NewChunkReader(r.client, r.timeout)
	} else {
		// An absent Content-Length means the body runs until the connection
		// closes (e.g. an ICY radio stream), not that it is empty.
		if v, ok := r.replyHeader.GetInt(httpio.HeaderContentLength); ok {
			r.contentLength = v
		} else {
			r.contentLength = -1
		}
		r.bytesRead = 0
	}

	r.ready = true
	metrics.HTTPRequestsTotal.WithLabelValues(method.String(), statusClass(status)).Inc()
	return status, nil
}

// Read reads body bytes, delegating to the chunk reader when the reply is
// chunked or to the plain client otherwise.
func (r *Request) Read(buf []byte) (int, error) {
	if r.replyHeader.Chunked() {
		return r.chunk.Read(buf)
	}
	remain := r.Available()
	if remain == 0 {
		return 0, nil
	}
	if remain > 0 && len(buf) > remain {
		buf = buf[:remain]
	}
	n, err := r.client.Read(buf)
	r.bytesRead += n
	return n, err
}

// Stop tears down readiness without closing the underlying client, so a
// keep-alive connection can be reused for the next Process call.
func (r *Request) Stop() {
	r.ready = false
	r.chunk = nil
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "err"
	}
}

func parseStatusLine(line string) (int, string) {
	// "HTTP/1.x SP CODE SP MESSAGE"
	var proto string
	var code int
	var rest string
	n, _ := fmt.Sscanf(line, "%s %d", &proto, &code)
	if n < 2 {
		return 0, line
	}
	// recover the message by skipping proto+code+two spaces
	for i, sp := 0, 0; i < len(line); i++ {
		if line[i] == ' ' {
			sp++
			if sp == 2 {
				rest = line[i+1:]
				break
			}
		}
	}
	return code, rest
}
