package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/snd/streamgo/httpio"
	"github.com/snd/streamgo/internal/metrics"
	"github.com/snd/streamgo/internal/streamlog"
	streamurl "github.com/snd/streamgo/url"
)

// maxRedirects bounds the redirect chain a URLStream follows.
const maxRedirects = 8

// ErrRedirectLimit is returned when more than maxRedirects 3xx replies are
// chained.
var ErrRedirectLimit = fmt.Errorf("httpclient: redirect limit exceeded")

// URLStream is a high-level reader over an HTTP body: it dials, issues the
// request, follows redirects, and exposes content length plus a small
// internal read buffer for single-byte Read/Peek.
type URLStream struct {
	req    *Request
	url    streamurl.URL
	log    zerolog.Logger
	active bool

	caCert     []byte
	powerSave  bool
	extraHdrs  map[string]string
	totalRead  int

	peekBuf []byte
}

// StreamOption configures a URLStream at construction time.
type StreamOption func(*URLStream)

// WithCACert configures the PEM bundle used to validate TLS connections
// for https/rtsps URLs.
func WithCACert(pem []byte) StreamOption { return func(s *URLStream) { s.caCert = pem } }

// WithPowerSave is a pure platform hint (Wi-Fi power save); it has no
// effect on hosts without a controllable radio.
func WithPowerSave(on bool) StreamOption { return func(s *URLStream) { s.powerSave = on } }

// WithStreamLogger attaches a scoped logger.
func WithStreamLogger(l zerolog.Logger) StreamOption { return func(s *URLStream) { s.log = l } }

// NewURLStream constructs an idle URLStream; call Begin to open it.
func NewURLStream(opts ...StreamOption) *URLStream {
	s := &URLStream{
		log:       streamlog.Nop(),
		extraHdrs: map[string]string{},
		peekBuf:   make([]byte, 0, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetHeader adds a header preserved across redirects (Icy-MetaData is the
// motivating case, but the mechanism generalizes).
func (s *URLStream) SetHeader(key, value string) { s.extraHdrs[key] = value }

// Begin parses rawURL, dials a plain or TLS client depending on scheme,
// performs the request, and follows 3xx redirects up to maxRedirects,
// preserving extra headers (e.g. Icy-MetaData) across each hop. Only a 200
// reply marks the stream Active.
func (s *URLStream) Begin(rawURL string, acceptMime string, method Method, reqMime string, reqBody io.Reader) (int, error) {
	u := streamurl.Parse(rawURL)
	if u.Protocol == "" {
		return 0, fmt.Errorf("httpclient: malformed url %q", rawURL)
	}

	status, err := s.open(u, acceptMime, method, reqMime, reqBody)
	if err != nil {
		return 0, err
	}

	for redirects := 0; status >= 300 && status < 400; redirects++ {
		if redirects >= maxRedirects {
			return status, ErrRedirectLimit
		}
		loc, ok := s.req.ReplyHeader(httpio.HeaderLocation)
		if !ok {
			break
		}
		metrics.HTTPRedirectsTotal.Inc()
		s.req.Stop()
		s.req = nil
		next := streamurl.Parse(loc)
		if next.Protocol == "" {
			// relative redirect: resolve against the current root.
			next = streamurl.Parse(u.Root + loc)
		}
		u = next
		status, err = s.open(u, acceptMime, method, reqMime, reqBody)
		if err != nil {
			return 0, err
		}
	}

	s.url = u
	s.active = status == 200
	s.totalRead = 0
	return status, nil
}

func (s *URLStream) open(u streamurl.URL, acceptMime string, method Method, reqMime string, reqBody io.Reader) (int, error) {
	opts := []Option{WithAccept(acceptMime)}
	if u.IsSecure() {
		opts = append(opts, WithDialer(tlsDialer(s.caCert)))
	}
	s.req = NewRequest(opts...)
	for k, v := range s.extraHdrs {
		s.req.AddRequestHeader(k, v)
	}
	var bodyLen int
	if sized, ok := reqBody.(interface{ Len() int }); ok {
		bodyLen = sized.Len()
	}
	return s.req.Process(method, u, reqMime, reqBody, bodyLen)
}

// ReplyHeaderValue exposes a reply header from the last request performed
// by Begin, letting wrapping components (e.g. icy.Stream) read icy-metaint
// and friends without re-parsing HTTP themselves.
func (s *URLStream) ReplyHeaderValue(key string) (string, bool) {
	if s.req == nil {
		return "", false
	}
	return s.req.ReplyHeader(key)
}

// Active reports whether Begin succeeded with a 200 status.
func (s *URLStream) Active() bool { return s.active }

// ContentLength returns the body's declared length, or -1 if chunked/unknown.
func (s *URLStream) ContentLength() int {
	if s.req == nil {
		return -1
	}
	return s.req.ContentLength()
}

// Available returns the number of bytes currently known to be readable.
func (s *URLStream) Available() int {
	if s.req == nil {
		return 0
	}
	avail := s.req.Available()
	if avail < 0 {
		return -1
	}
	return avail + len(s.peekBuf)
}

// TotalRead returns the cumulative byte count returned by Read so far.
func (s *URLStream) TotalRead() int { return s.totalRead }

// Read reads up to len(buf) bytes of body, serving any peeked byte first.
func (s *URLStream) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n := 0
	if len(s.peekBuf) > 0 {
		buf[0] = s.peekBuf[0]
		s.peekBuf = s.peekBuf[:0]
		n = 1
		if len(buf) == 1 {
			s.totalRead += n
			return n, nil
		}
	}
	m, err := s.req.Read(buf[n:])
	s.totalRead += m
	return n + m, err
}

// ReadByte reads exactly one byte, consuming a previously-peeked byte
// first, if any.
func (s *URLStream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 0 {
		return 0, err
	}
	return b[0], nil
}

// Peek returns the next byte without consuming it.
func (s *URLStream) Peek() (byte, error) {
	if len(s.peekBuf) > 0 {
		return s.peekBuf[0], nil
	}
	var b [1]byte
	m, err := s.req.Read(b[:])
	if m == 0 {
		return 0, err
	}
	s.peekBuf = append(s.peekBuf[:0], b[0])
	return b[0], nil
}

// End stops the underlying request but preserves the client connection for
// reuse (keep-alive).
func (s *URLStream) End() {
	if s.req != nil {
		s.req.Stop()
	}
	s.active = false
}

// Clear frees buffers, fully releasing the stream.
func (s *URLStream) Clear() {
	s.End()
	s.req = nil
	s.peekBuf = s.peekBuf[:0]
}

func tlsDialer(caPEM []byte) Dialer {
	return func(network, addr string, timeout time.Duration) (httpio.Client, error) {
		cfg := &tls.Config{}
		if len(caPEM) > 0 {
			pool := x509.NewCertPool()
			pool.AppendCertsFromPEM(caPEM)
			cfg.RootCAs = pool
		}
		d := &net.Dialer{Timeout: timeout}
		host, _, err := net.SplitHostPort(addr)
		if err == nil {
			cfg.ServerName = host
		}
		return tls.DialWithDialer(d, network, addr, cfg)
	}
}
