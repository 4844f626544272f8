package rtsp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/snd/streamgo/httpio"
	"github.com/snd/streamgo/internal/metrics"
	"github.com/snd/streamgo/internal/streamlog"
	"github.com/snd/streamgo/sdp"
	"github.com/snd/streamgo/transport"
)

// DefaultPort is the default RTSP listening port.
const DefaultPort = 8554

// defaultIdleTimeout is the PLAYING-state idle-session timeout.
const defaultIdleTimeout = 60 * time.Second

// DescribeFunc builds the SDP description answering a DESCRIBE request for
// the negotiated host/stream name.
type DescribeFunc func(host string) sdp.Description

// PlayFunc is invoked once a session transitions to PLAYING; it starts
// streaming to pair and returns a stop callback invoked on PAUSE/TEARDOWN.
type PlayFunc func(sess *Session, pair *transport.Pair) (stop func(), err error)

// Server is an RTSP TCP listener serving one session at a time by default,
// generalized to N via WithMaxClients, and rate-limited per remote IP via
// golang.org/x/time/rate.
type Server struct {
	log zerolog.Logger

	ln        net.Listener
	controlLn net.Listener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	maxClients int
	sem        chan struct{}

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	rateBurst int

	idleTimeout time.Duration
	reqTimeout  time.Duration

	pool     *transport.Pool
	describe DescribeFunc
	onPlay   PlayFunc

	streamName string

	pathConfig map[string]PathConfig

	controlSrv  *SimpleControlServer
	controlAddr string
}

// PathConfig is a per-stream-path override, decoded from a loosely-typed
// map (e.g. parsed from a config file) via mapstructure rather than
// requiring callers to build a typed struct by hand.
type PathConfig struct {
	StreamName         string `mapstructure:"stream_name"`
	IdleTimeoutSeconds int    `mapstructure:"idle_timeout_seconds"`
}

// WithPathConfig registers per-path overrides, each decoded from a
// loosely-typed map[string]any into PathConfig via mapstructure.
func WithPathConfig(raw map[string]map[string]any) Option {
	return func(s *Server) {
		s.pathConfig = make(map[string]PathConfig, len(raw))
		for path, fields := range raw {
			var cfg PathConfig
			if err := mapstructure.Decode(fields, &cfg); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("rtsp: invalid path config, ignoring")
				continue
			}
			s.pathConfig[path] = cfg
		}
	}
}

// pathIdleTimeout returns the per-path idle timeout override for path, or
// the server default.
func (s *Server) pathIdleTimeout(path string) time.Duration {
	if cfg, ok := s.pathConfig[path]; ok && cfg.IdleTimeoutSeconds > 0 {
		return time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	}
	return s.idleTimeout
}

// Option configures a Server at construction.
type Option func(*Server)

// WithMaxClients raises the concurrent-session limit to n; defaults to 1.
func WithMaxClients(n int) Option { return func(s *Server) { s.maxClients = n } }

// WithRequestRateLimit bounds how often new connections from one remote IP
// are accepted; requests on an already accepted connection are not limited.
func WithRequestRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.rateLimit, s.rateBurst = rate.Limit(perSecond), burst }
}

// WithIdleTimeout overrides the 60s PLAYING-state idle timeout.
func WithIdleTimeout(d time.Duration) Option { return func(s *Server) { s.idleTimeout = d } }

// WithTransportPool supplies the UDP socket pool SETUP/PLAY acquire from.
func WithTransportPool(p *transport.Pool) Option { return func(s *Server) { s.pool = p } }

// WithDescribe registers the SDP-building callback used for DESCRIBE.
func WithDescribe(fn DescribeFunc) Option { return func(s *Server) { s.describe = fn } }

// WithOnPlay registers the callback that starts RTP streaming on PLAY.
func WithOnPlay(fn PlayFunc) Option { return func(s *Server) { s.onPlay = fn } }

// WithStreamName sets the s= line used in generated SDP.
func WithStreamName(name string) Option { return func(s *Server) { s.streamName = name } }

// WithServerLogger attaches a scoped logger.
func WithServerLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// WithControlProtocol registers an optional SimpleControlServer that Serve
// runs alongside the RTSP listener, bound to its own addr.
func WithControlProtocol(cs *SimpleControlServer, addr string) Option {
	return func(s *Server) { s.controlSrv, s.controlAddr = cs, addr }
}

// NewServer constructs a Server with defaults of one client at a time and
// a 60s idle timeout; call Begin to bind the listener.
func NewServer(opts ...Option) *Server {
	s := &Server{
		log:         streamlog.Nop(),
		maxClients:  1,
		conns:       map[net.Conn]struct{}{},
		limiters:    map[string]*rate.Limiter{},
		idleTimeout: defaultIdleTimeout,
		reqTimeout:  4 * time.Second,
		streamName:  "streamgo",
	}
	for _, o := range opts {
		o(s)
	}
	s.sem = make(chan struct{}, s.maxClients)
	return s
}

// Begin binds the TCP listening socket.
func (s *Server) Begin(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rtsp: listen %s: %w", addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener's address; valid after Begin.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close aborts the listening socket (and the control listener, if one is
// running) and every active session's TCP connection. Safe to call more
// than once.
func (s *Server) Close() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	if s.controlLn != nil {
		s.controlLn.Close()
	}
	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = map[net.Conn]struct{}{}
	s.connsMu.Unlock()
	return err
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// Serve runs the task-mode accept loop: per accepted client a session
// handler runs until CLOSED, then cleans up. Blocks until the listener
// errors (e.g. on Close).
func (s *Server) Serve() error {
	if s.controlSrv != nil {
		cln, err := net.Listen("tcp", s.controlAddr)
		if err != nil {
			return fmt.Errorf("rtsp: control listen %s: %w", s.controlAddr, err)
		}
		s.controlLn = cln
		go func() {
			if err := s.controlSrv.Serve(cln); err != nil {
				s.log.Debug().Err(err).Msg("rtsp: control server stopped")
			}
		}()
	}
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		if !s.allow(conn.RemoteAddr()) {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

// allow applies the per-IP rate limiter and the concurrent-client semaphore,
// non-blocking: it refuses a connection rather than queuing it.
func (s *Server) allow(addr net.Addr) bool {
	host, _, _ := net.SplitHostPort(addr.String())
	if s.rateLimit > 0 {
		s.limiterMu.Lock()
		lim, ok := s.limiters[host]
		if !ok {
			lim = rate.NewLimiter(s.rateLimit, s.rateBurst)
			s.limiters[host] = lim
		}
		s.limiterMu.Unlock()
		if !lim.Allow() {
			return false
		}
	}
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// TasklessSession threads state between DoLoop calls: the currently active
// client connection and its Session, if any. Zero value is ready for a
// first call.
type TasklessSession struct {
	conn       net.Conn
	client     httpio.Client
	sess       *Session
	th         *transport.Handle
	stopStream func()
	host       string
}

// NewTasklessSession returns empty taskless state for DoLoop's first call.
func NewTasklessSession() *TasklessSession { return &TasklessSession{} }

// DoLoop services one iteration of the taskless deployment mode, meant to
// be called repeatedly from a host loop rather than from a dedicated accept
// goroutine. With no active client, it polls for one for up
// to acceptTimeout and returns; with an active client, it services one
// pending request (bounded by the server's request timeout) and applies the
// PLAYING-state idle timeout. TEARDOWN or a session-ending error resets ts
// so the next call accepts a new client.
func (s *Server) DoLoop(ts *TasklessSession, acceptTimeout time.Duration) error {
	if ts.conn == nil {
		if dl, ok := s.ln.(interface{ SetDeadline(time.Time) error }); ok {
			_ = dl.SetDeadline(time.Now().Add(acceptTimeout))
		}
		conn, err := s.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			return err
		}
		if !s.allow(conn.RemoteAddr()) {
			conn.Close()
			return nil
		}
		s.trackConn(conn)
		ts.conn = conn
		ts.client = httpio.DialClient(conn)
		ts.sess = NewSession()
		ts.host, _, _ = net.SplitHostPort(conn.RemoteAddr().String())
		metrics.RTSPClients.Inc()
		return nil
	}

	if ts.sess.Idle(s.pathIdleTimeout(ts.sess.StreamID)) {
		s.closeTasklessSession(ts)
		return nil
	}

	req, err := ParseRequest(ts.client, s.reqTimeout)
	if errors.Is(err, httpio.ErrTimeout) {
		return nil // no request yet: keep the session; the idle check decides
	}
	if err != nil {
		s.closeTasklessSession(ts)
		return nil
	}
	if req == nil {
		return nil // malformed first line: keep session open, no reply
	}
	ts.sess.Touch()
	ts.sess.LastCSeq = req.CSeq

	reply := s.handle(ts.sess, req, ts.host, &ts.th, &ts.stopStream)
	if reply != "" {
		if _, err := io.WriteString(ts.client, reply); err != nil {
			s.closeTasklessSession(ts)
			return nil
		}
	}
	if ts.sess.State == StateClosed {
		s.closeTasklessSession(ts)
	}
	return nil
}

// closeTasklessSession releases a taskless client's resources and resets ts
// to its zero value so DoLoop accepts a new client on its next call.
func (s *Server) closeTasklessSession(ts *TasklessSession) {
	if ts.stopStream != nil {
		ts.stopStream()
	}
	if ts.th != nil {
		ts.th.Drop()
	}
	if ts.conn != nil {
		s.untrackConn(ts.conn)
		ts.conn.Close()
		metrics.RTSPClients.Dec()
		select {
		case <-s.sem:
		default:
		}
	}
	*ts = TasklessSession{}
}

func (s *Server) handleConn(conn net.Conn) {
	s.trackConn(conn)
	defer s.untrackConn(conn)
	defer func() { <-s.sem }()
	defer conn.Close()

	sess := NewSession()
	metrics.RTSPClients.Inc()
	defer metrics.RTSPClients.Dec()

	var stopStream func()
	var th *transport.Handle
	defer func() {
		if stopStream != nil {
			stopStream()
		}
		if th != nil {
			th.Drop()
		}
	}()

	client := httpio.DialClient(conn)
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	for sess.State != StateClosed {
		if sess.Idle(s.pathIdleTimeout(sess.StreamID)) {
			sess.State = StateClosed
			return
		}
		req, err := ParseRequest(client, s.reqTimeout)
		if errors.Is(err, httpio.ErrTimeout) {
			continue // no request yet: loop; the idle check above decides
		}
		if err != nil {
			return // socket closed or failed; the session ends
		}
		if req == nil {
			continue // malformed first line: keep session open, no reply
		}
		sess.Touch()
		sess.LastCSeq = req.CSeq

		reply := s.handle(sess, req, host, &th, &stopStream)
		if reply != "" {
			if _, err := io.WriteString(client, reply); err != nil {
				return
			}
		}
	}
}

// handle dispatches one parsed request to the session state machine and
// composes the reply body. thPtr holds this connection's transport.Handle
// across requests so SETUP's acquire and TEARDOWN's (or disconnect's)
// release stay matched; stopPtr holds the active streamer's stop callback
// so PAUSE and TEARDOWN can halt it and PLAY can install a new one.
func (s *Server) handle(sess *Session, req *Request, host string, thPtr **transport.Handle, stopPtr *func()) (reply string) {
	switch req.Method {
	case "PLAY", "PAUSE", "TEARDOWN":
		if sid, ok := req.Header.Get("Session"); !ok || firstToken(sid) != sess.ID {
			s.log.Debug().Str("session", sess.UUID).Str("method", req.Method).Msg("rtsp: Session header mismatch")
			var b strings.Builder
			writeReplyHeader(&b, 454, "Session Not Found", req.CSeq)
			b.WriteString("\r\n")
			return b.String()
		}
	}

	if err := sess.Transition(req.Method); err != nil {
		s.log.Debug().Str("session", sess.UUID).Str("method", req.Method).Str("state", sess.State.String()).Msg("rtsp: ignoring request in wrong state")
		return ""
	}

	var b strings.Builder
	switch req.Method {
	case "OPTIONS":
		writeReplyHeader(&b, 200, "OK", req.CSeq)
		b.WriteString("Public: DESCRIBE, SETUP, TEARDOWN, PLAY\r\n\r\n")

	case "DESCRIBE":
		body := ""
		if s.describe != nil {
			d := s.describe(host)
			if _, path, err := SplitURL(req.URL); err == nil {
				if cfg, ok := s.pathConfig[path]; ok && cfg.StreamName != "" {
					d.Name = cfg.StreamName
				}
			}
			body = d.String()
		}
		writeReplyHeader(&b, 200, "OK", req.CSeq)
		fmt.Fprintf(&b, "Content-Base: %s/\r\n", req.URL)
		b.WriteString("Content-Type: application/sdp\r\n")
		fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(body))
		b.WriteString(body)

	case "SETUP":
		transportHdr, _ := req.Header.Get("Transport")
		t, err := ParseTransport(transportHdr)
		if err != nil {
			writeReplyHeader(&b, 461, "Unsupported Transport", req.CSeq)
			b.WriteString("\r\n")
			break
		}
		sess.ClientRTPPort, sess.ClientRTCPPort = t.ClientRTPPort, t.ClientRTCPPort
		if s.pool != nil {
			pair, handle, err := s.pool.Acquire(host, t.ClientRTPPort)
			if err == nil {
				sess.ServerRTPPort, sess.ServerRTCPPort = pair.ServerRTPPort, pair.ServerRTCPPort
				sess.Pair = pair
				*thPtr = handle
			}
		}
		if _, path, err := SplitURL(req.URL); err == nil {
			sess.StreamID = path
		}
		dest := host
		if dest == "" {
			dest = "127.0.0.1"
		}
		source := "127.0.0.1"
		if lnHost, _, err := net.SplitHostPort(s.ln.Addr().String()); err == nil && lnHost != "" && lnHost != "0.0.0.0" && lnHost != "::" {
			source = lnHost
		}
		writeReplyHeader(&b, 200, "OK", req.CSeq)
		fmt.Fprintf(&b, "Session: %s\r\n", sess.ID)
		fmt.Fprintf(&b, "Transport: RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d;source=%s;destination=%s\r\n\r\n",
			sess.ClientRTPPort, sess.ClientRTCPPort, sess.ServerRTPPort, sess.ServerRTCPPort, source, dest)

	case "PLAY":
		writeReplyHeader(&b, 200, "OK", req.CSeq)
		b.WriteString("Range: npt=0.000-\r\n")
		fmt.Fprintf(&b, "Session: %s\r\n\r\n", sess.ID)
		if s.onPlay != nil && sess.Pair != nil {
			stop, err := s.onPlay(sess, sess.Pair)
			if err != nil {
				s.log.Warn().Err(err).Msg("rtsp: onPlay failed")
			} else if stop != nil {
				*stopPtr = stop
			}
		}

	case "PAUSE":
		s.stopStreaming(stopPtr)
		writeReplyHeader(&b, 200, "OK", req.CSeq)
		fmt.Fprintf(&b, "Session: %s\r\n\r\n", sess.ID)

	case "TEARDOWN":
		s.stopStreaming(stopPtr)
		writeReplyHeader(&b, 200, "OK", req.CSeq)
		b.WriteString("\r\n")

	default:
		s.log.Debug().Str("method", req.Method).Msg("rtsp: unknown method, ignoring")
		return ""
	}

	return b.String()
}

// stopStreaming halts the session's active streamer, if any; PAUSE and
// TEARDOWN both funnel through here so the stop callback runs exactly once
// per PLAY.
func (s *Server) stopStreaming(stopPtr *func()) {
	if *stopPtr != nil {
		(*stopPtr)()
		*stopPtr = nil
	}
}
