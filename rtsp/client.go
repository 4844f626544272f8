package rtsp

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	pionsdp "github.com/pion/sdp/v3"
	"github.com/rs/zerolog"

	"github.com/snd/streamgo/httpio"
	"github.com/snd/streamgo/internal/streamlog"
	"github.com/snd/streamgo/rtp"
	"github.com/snd/streamgo/sdp"
)

// DecoderConfig configures the client's receive path (currently only the
// resample factor), decoded from a loosely-typed map (e.g. from a config file) via
// mapstructure rather than requiring a typed struct literal at every call
// site.
type DecoderConfig struct {
	ResampleFactor float64 `mapstructure:"resample_factor"`
}

const (
	defaultConnectRetries   = 2
	defaultConnectRetryWait = 500 * time.Millisecond
	defaultKeepaliveEvery   = 25 * time.Second
	defaultHandshakeWait    = 1500 * time.Millisecond
	firstLocalRTPPort       = 5004
	lastLocalRTPPort        = 5999
)

// Client is an RTSP client: it opens a local UDP port pair, runs the
// OPTIONS/DESCRIBE/SETUP/PLAY handshake, and receives the resulting RTP
// stream.
type Client struct {
	log zerolog.Logger

	conn    httpio.Client
	netConn net.Conn

	connectRetries int
	connectWait    time.Duration
	timeout        time.Duration
	keepaliveEvery time.Duration
	handshakeWait  time.Duration

	hostPort    string
	path        string
	rawURL      string
	contentBase string

	reqMu     sync.Mutex
	cseq      int
	sessionID string

	Description sdp.Description

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	localRTPPort  int
	serverRTPPort int

	active int32 // atomic bool

	resampleFactor float64

	keepaliveOnce sync.Once
	endOnce       sync.Once
	stopKeepalive chan struct{}
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithConnectRetries overrides the TCP connect retry count (default 2).
func WithConnectRetries(n int) ClientOption { return func(c *Client) { c.connectRetries = n } }

// WithConnectRetryDelay overrides the delay between connect retries.
func WithConnectRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.connectWait = d }
}

// WithClientTimeout overrides the per-request read timeout.
func WithClientTimeout(d time.Duration) ClientOption { return func(c *Client) { c.timeout = d } }

// WithKeepaliveInterval overrides the 25s OPTIONS keepalive period.
func WithKeepaliveInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.keepaliveEvery = d }
}

// WithHandshakeWait overrides how long PLAY waits for the first UDP packet
// before falling back to assuming the stream is already flowing.
func WithHandshakeWait(d time.Duration) ClientOption { return func(c *Client) { c.handshakeWait = d } }

// WithClientLogger attaches a scoped logger.
func WithClientLogger(l zerolog.Logger) ClientOption { return func(c *Client) { c.log = l } }

// WithDecoderConfig decodes raw (e.g. parsed from a config file) into a
// DecoderConfig via mapstructure and applies it. Currently this covers the
// resample factor used for drift compensation on the receive path.
func WithDecoderConfig(raw map[string]any) ClientOption {
	return func(c *Client) {
		var cfg DecoderConfig
		if err := mapstructure.Decode(raw, &cfg); err != nil {
			c.log.Warn().Err(err).Msg("rtsp: invalid decoder config, ignoring")
			return
		}
		if cfg.ResampleFactor > 0 {
			c.resampleFactor = cfg.ResampleFactor
		}
	}
}

// NewClient constructs a Client with conservative defaults: two connect
// retries 500ms apart, a 10s request timeout, and a 25s keepalive.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		log:            streamlog.Nop(),
		connectRetries: defaultConnectRetries,
		connectWait:    defaultConnectRetryWait,
		timeout:        10 * time.Second,
		keepaliveEvery: defaultKeepaliveEvery,
		handshakeWait:  defaultHandshakeWait,
		stopKeepalive:  make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect dials rawURL's host:port, retrying connectRetries times with
// connectWait between attempts.
func (c *Client) Connect(rawURL string) error {
	hostPort, path, err := SplitURL(rawURL)
	if err != nil {
		return err
	}
	c.rawURL, c.hostPort, c.path = rawURL, hostPort, path

	var lastErr error
	for attempt := 0; attempt <= c.connectRetries; attempt++ {
		conn, err := net.DialTimeout("tcp", hostPort, c.timeout)
		if err == nil {
			c.netConn = conn
			c.conn = httpio.DialClient(conn)
			return nil
		}
		lastErr = err
		if attempt < c.connectRetries {
			time.Sleep(c.connectWait)
		}
	}
	return fmt.Errorf("%w: connect %s: %v", ErrProtocol, hostPort, lastErr)
}

func (c *Client) nextCSeq() string {
	c.cseq++
	return strconv.Itoa(c.cseq)
}

// request writes one RTSP request and reads back its reply header, reusing
// httpio's line/header layer for the RTSP/1.0 framing. Serialized by reqMu
// so the keepalive goroutine's OPTIONS never interleaves with a foreground
// request on the shared control connection.
func (c *Client) request(method, url string, extra map[string]string) (int, *httpio.Header, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s RTSP/1.0\r\n", method, url)
	fmt.Fprintf(&b, "CSeq: %s\r\n", c.nextCSeq())
	if c.sessionID != "" {
		fmt.Fprintf(&b, "Session: %s\r\n", c.sessionID)
	}
	for k, v := range extra {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, nil, err
	}
	if _, err := io.WriteString(c.conn, b.String()); err != nil {
		return 0, nil, fmt.Errorf("%w: write %s: %v", ErrProtocol, method, err)
	}

	h := httpio.NewHeader()
	if err := h.Read(c.conn, c.timeout); err != nil {
		return 0, nil, fmt.Errorf("%w: read %s reply: %v", ErrProtocol, method, err)
	}
	code, msg := ParseStatusLine(h.FirstLine)
	h.FirstLine = msg
	if code >= 300 && code < 400 {
		return code, h, fmt.Errorf("%w: %s replied %d: %w", ErrProtocol, method, code, ErrRedirectUnsupported)
	}
	if code == 0 || code >= 400 {
		return code, h, fmt.Errorf("%w: %s replied %d", ErrProtocol, method, code)
	}
	if sid, ok := h.Get("Session"); ok {
		c.sessionID = firstToken(sid)
	}
	return code, h, nil
}

// firstToken returns the part of a Session header value before any ";"
// parameters (e.g. a timeout=60 suffix).
func firstToken(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// Options sends an OPTIONS request, retrying with the same count/delay
// knobs as Connect before giving up; the handshake's OPTIONS step and the
// keepalive loop use this.
func (c *Client) Options() error {
	var lastErr error
	for attempt := 0; attempt <= c.connectRetries; attempt++ {
		_, _, err := c.request("OPTIONS", c.rawURL, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < c.connectRetries {
			time.Sleep(c.connectWait)
		}
	}
	return lastErr
}

// Describe sends DESCRIBE and parses the SDP reply body into c.Description.
// The reply's Content-Base header, when present, replaces the default track
// URL base for the subsequent SETUP.
func (c *Client) Describe() (sdp.Description, error) {
	_, h, err := c.request("DESCRIBE", c.rawURL, map[string]string{"Accept": "application/sdp"})
	if err != nil {
		return sdp.Description{}, err
	}
	if cb, ok := h.Get("Content-Base"); ok {
		c.contentBase = strings.TrimSpace(cb)
	}
	length, _ := h.GetInt(httpio.HeaderContentLength)
	body := make([]byte, length)
	read := 0
	for read < length {
		n, err := c.conn.Read(body[read:])
		if n == 0 {
			if err != nil {
				return sdp.Description{}, fmt.Errorf("%w: read SDP body: %v", ErrProtocol, err)
			}
			break
		}
		read += n
	}

	var parsed pionsdp.SessionDescription
	if err := parsed.Unmarshal(body[:read]); err != nil {
		return sdp.Description{}, fmt.Errorf("%w: parse SDP: %v", ErrProtocol, err)
	}
	desc, err := sdp.FromPion(&parsed)
	if err != nil {
		return sdp.Description{}, err
	}
	c.Description = desc
	return desc, nil
}

// openLocalPort binds a local even UDP port for RTP and port+1 for RTCP,
// trying 5004, 5006, ... until a pair binds.
func (c *Client) openLocalPort() error {
	for port := firstLocalRTPPort; port <= lastLocalRTPPort; port += 2 {
		rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		if err != nil {
			continue
		}
		rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port + 1})
		if err != nil {
			rtpConn.Close()
			continue
		}
		c.rtpConn, c.rtcpConn, c.localRTPPort = rtpConn, rtcpConn, port
		return nil
	}
	return fmt.Errorf("rtsp: no free local UDP port pair in [%d,%d]", firstLocalRTPPort, lastLocalRTPPort)
}

// Setup opens a local RTP/RTCP port pair and sends SETUP, retrying with the
// RTP/AVP/UDP profile if the server rejects RTP/AVP.
func (c *Client) Setup() error {
	if err := c.openLocalPort(); err != nil {
		return err
	}
	url := c.trackURL()

	transportHdr := fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", c.localRTPPort, c.localRTPPort+1)
	_, h, err := c.request("SETUP", url, map[string]string{"Transport": transportHdr})
	if err != nil {
		transportHdr = fmt.Sprintf("RTP/AVP/UDP;unicast;client_port=%d-%d", c.localRTPPort, c.localRTPPort+1)
		_, h, err = c.request("SETUP", url, map[string]string{"Transport": transportHdr})
		if err != nil {
			return err
		}
	}

	value, _ := h.Get("Transport")
	rtpPort, _, ok := ParseServerPort(value)
	if !ok {
		return ErrNoTransport
	}
	c.serverRTPPort = rtpPort

	c.primeUDP()
	return nil
}

// trackURL builds the SETUP target: Content-Base from DESCRIBE when the
// server supplied one, otherwise the connect URL, with the SDP a=control
// track (default trackID=0) appended.
func (c *Client) trackURL() string {
	track := c.Description.Track
	if track == "" {
		track = "trackID=0"
	}
	base := c.contentBase
	if base == "" {
		base = c.rawURL + "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + track
}

// primeUDP sends two zero-length datagrams to the server's RTP port so a
// NAT/firewall in between opens a return path before PLAY starts the
// stream.
func (c *Client) primeUDP() {
	host, _, _ := net.SplitHostPort(c.hostPort)
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: c.serverRTPPort}
	c.rtpConn.WriteToUDP(nil, addr)
	c.rtpConn.WriteToUDP(nil, addr)
}

// Play sends PLAY, starts the keepalive loop, and waits up to
// handshakeWait for the first RTP datagram to confirm the path is open
// (falling back to assuming PLAYING if nothing arrives in time).
func (c *Client) Play() error {
	_, _, err := c.request("PLAY", c.rawURL, map[string]string{"Range": "npt=0.000-"})
	if err != nil {
		return err
	}
	atomic.StoreInt32(&c.active, 1)
	c.startKeepalive()

	if c.rtpConn != nil {
		c.rtpConn.SetReadDeadline(time.Now().Add(c.handshakeWait))
		buf := make([]byte, 2048)
		_, _ = c.rtpConn.Read(buf)
		c.rtpConn.SetReadDeadline(time.Time{})
	}
	return nil
}

func (c *Client) startKeepalive() {
	c.keepaliveOnce.Do(func() {
		go func() {
			t := time.NewTicker(c.keepaliveEvery)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					if err := c.Options(); err != nil {
						c.log.Warn().Err(err).Msg("rtsp: keepalive OPTIONS failed")
					}
				case <-c.stopKeepalive:
					return
				}
			}
		}()
	})
}

// SetActive toggles playback: true re-issues PLAY, false issues PAUSE.
func (c *Client) SetActive(play bool) error {
	if play {
		if atomic.LoadInt32(&c.active) == 1 {
			return nil
		}
		_, _, err := c.request("PLAY", c.rawURL, nil)
		if err == nil {
			atomic.StoreInt32(&c.active, 1)
		}
		return err
	}
	_, _, err := c.request("PAUSE", c.rawURL, nil)
	if err == nil {
		atomic.StoreInt32(&c.active, 0)
	}
	return err
}

// ResampleFactor returns the drift-compensation factor from WithDecoderConfig
// (1.0, pass-through, if none was configured), for callers wiring an
// audiosource.Resampler in front of their decoder's sink.
func (c *Client) ResampleFactor() float64 {
	if c.resampleFactor <= 0 {
		return 1.0
	}
	return c.resampleFactor
}

// SetReceiveDeadline bounds the next ReceivePacket call, letting callers
// poll for packets without blocking forever (e.g. to check a cancellation
// signal between reads).
func (c *Client) SetReceiveDeadline(d time.Duration) {
	if c.rtpConn != nil {
		c.rtpConn.SetReadDeadline(time.Now().Add(d))
	}
}

// ReceivePacket reads one RTP datagram and decodes its header, returning
// the payload bytes after any RFC 2250 prefix for MPA payloads.
func (c *Client) ReceivePacket(buf []byte) (rtp.Header, []byte, error) {
	n, _, err := c.rtpConn.ReadFromUDP(buf)
	if err != nil {
		return rtp.Header{}, nil, err
	}
	if n <= rtp.HeaderSize {
		return rtp.Header{}, nil, fmt.Errorf("rtsp: short RTP packet (%d bytes)", n)
	}
	extra := 0
	if c.Description.Format.Encoding == sdp.EncodingMPA {
		extra = rtp.RFC2250PrefixSize
	}
	return rtp.Unmarshal(buf[:n], extra)
}

// End sends TEARDOWN, stops the keepalive loop, and closes the sockets.
// Idempotent: calls after the first are no-ops.
func (c *Client) End() error {
	var err error
	c.endOnce.Do(func() {
		close(c.stopKeepalive)
		_, _, err = c.request("TEARDOWN", c.rawURL, nil)
		if c.rtpConn != nil {
			c.rtpConn.Close()
		}
		if c.rtcpConn != nil {
			c.rtcpConn.Close()
		}
		if c.netConn != nil {
			c.netConn.Close()
		}
	})
	return err
}
