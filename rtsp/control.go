package rtsp

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snd/streamgo/httpio"
	"github.com/snd/streamgo/internal/streamlog"
)

// ControlHandler answers a SimpleControlServer command. cmd is the first
// whitespace-separated token (lowercased), args the rest of the line.
// Replies are single lines; handlers should not write CRLF themselves.
type ControlHandler func(cmd string, args []string) (reply string, err error)

// SimpleControlServer is an optional, additive plain-text control protocol:
// newline-terminated "play"/"stop"/"volume N" commands over a TCP listener
// run alongside the RTSP server, reusing httpio's line reader. It is off by
// default and never replaces RTSP; a caller opts in via WithControlProtocol.
type SimpleControlServer struct {
	log     zerolog.Logger
	handler ControlHandler
	timeout time.Duration
}

// ControlOption configures a SimpleControlServer at construction.
type ControlOption func(*SimpleControlServer)

// WithControlLogger attaches a scoped logger.
func WithControlLogger(l zerolog.Logger) ControlOption {
	return func(s *SimpleControlServer) { s.log = l }
}

// WithControlLineTimeout overrides the per-line read timeout (default 60s).
func WithControlLineTimeout(d time.Duration) ControlOption {
	return func(s *SimpleControlServer) { s.timeout = d }
}

// NewSimpleControlServer builds a control server that dispatches every
// parsed command line to handler.
func NewSimpleControlServer(handler ControlHandler, opts ...ControlOption) *SimpleControlServer {
	s := &SimpleControlServer{
		log:     streamlog.Nop(),
		handler: handler,
		timeout: 60 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeConn reads newline-terminated commands from conn until it closes, a
// read times out, or an empty line arrives, dispatching each to the handler
// and writing back its single-line reply ("ERR <message>" on handler error,
// "OK" for an empty reply). A line of only whitespace gets no reply.
func (s *SimpleControlServer) ServeConn(conn net.Conn) {
	defer conn.Close()
	client := httpio.DialClient(conn)
	buf := make([]byte, 256)

	for {
		n, err := httpio.ReadLine(client, buf, s.timeout, false)
		if err != nil || n == 0 {
			return
		}
		line := string(buf[:n])
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := strings.ToLower(fields[0])
		reply, err := s.handler(cmd, fields[1:])
		if err != nil {
			reply = "ERR " + err.Error()
		}
		if reply == "" {
			reply = "OK"
		}
		if _, werr := io.WriteString(client, reply+"\r\n"); werr != nil {
			return
		}
	}
}

// Serve accepts connections on ln and handles each with ServeConn on its own
// goroutine, until ln.Accept fails (e.g. on Close).
func (s *SimpleControlServer) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.ServeConn(conn)
	}
}

// PlayerControl is the narrow capability set a SimpleControlServer's default
// handler dispatches to: start/stop playback and a 0-100 volume knob. A
// caller wires this to whatever session/streamer pair WithOnPlay controls.
type PlayerControl interface {
	Play() error
	Stop() error
	SetVolume(percent int) error
}

// PlayerControlHandler builds a ControlHandler for "play", "stop", and
// "volume <0-100>" commands against p.
func PlayerControlHandler(p PlayerControl) ControlHandler {
	return func(cmd string, args []string) (string, error) {
		switch cmd {
		case "play":
			return "", p.Play()
		case "stop":
			return "", p.Stop()
		case "volume":
			if len(args) != 1 {
				return "", fmt.Errorf("volume requires exactly one argument")
			}
			pct, err := strconv.Atoi(args[0])
			if err != nil || pct < 0 || pct > 100 {
				return "", fmt.Errorf("volume must be an integer in [0,100]")
			}
			return "", p.SetVolume(pct)
		default:
			return "", fmt.Errorf("unknown command %q", cmd)
		}
	}
}
