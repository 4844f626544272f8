// Package rtsp implements the RTSP/1.0 session state machine, server, and
// client, reusing httpio's line reader and header store for RTSP's
// line-based wire format (RFC 2326 is close enough to HTTP/1.1's framing
// that the same primitives apply directly).
package rtsp

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/snd/streamgo/transport"
)

// State is a session's position in the RTSP lifecycle.
type State int

const (
	StateInit State = iota
	StateReady
	StatePlaying
	StatePaused
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is one RTSP client's negotiated state, created on TCP accept and
// destroyed on TEARDOWN or disconnect.
type Session struct {
	ID string // random 16-bit value, printed decimal; the wire-visible Session header

	// UUID correlates this session's log lines across OPTIONS/DESCRIBE/
	// SETUP/PLAY/TEARDOWN without parsing the (short, collision-prone) ID.
	UUID string

	State State

	StreamID string // path of the SETUP URL, e.g. "/live/trackID=0"

	ClientRTPPort  int
	ClientRTCPPort int
	ServerRTPPort  int
	ServerRTCPPort int

	LastCSeq string

	URLPreSuffix string // host:port
	URLSuffix    string // path + trackID

	ContentLength int // POST/DESCRIBE bodies; unused in the serve path

	LastActivity time.Time

	Pair *transport.Pair // set by SETUP, read by PLAY to avoid a second Acquire
}

// NewSession starts a session in INIT with a fresh random id.
func NewSession() *Session {
	return &Session{
		ID:           fmt.Sprintf("%d", rand.Intn(1<<16)),
		UUID:         uuid.NewString(),
		State:        StateInit,
		LastActivity: time.Now(),
	}
}

// ErrInvalidTransition is returned by Transition when the requested method
// is not permitted from the session's current state.
var ErrInvalidTransition = fmt.Errorf("rtsp: invalid state transition")

// Transition applies one method's effect on the state machine. OPTIONS is
// permitted in any state and never changes it. Returns ErrInvalidTransition
// for a method the current state doesn't accept.
func (s *Session) Transition(method string) error {
	switch method {
	case "OPTIONS":
		return nil
	case "DESCRIBE":
		if s.State != StateInit {
			return ErrInvalidTransition
		}
		return nil
	case "SETUP":
		if s.State != StateInit {
			return ErrInvalidTransition
		}
		s.State = StateReady
		return nil
	case "PLAY":
		if s.State != StateReady && s.State != StatePaused {
			return ErrInvalidTransition
		}
		s.State = StatePlaying
		return nil
	case "PAUSE":
		if s.State != StatePlaying {
			return ErrInvalidTransition
		}
		s.State = StateReady
		return nil
	case "TEARDOWN":
		if s.State != StateReady && s.State != StatePlaying && s.State != StatePaused {
			return ErrInvalidTransition
		}
		s.State = StateClosed
		return nil
	default:
		return fmt.Errorf("rtsp: unknown method %q", method)
	}
}

// Touch records activity for the idle-timeout check.
func (s *Session) Touch() { s.LastActivity = time.Now() }

// Idle reports whether the session has been silent longer than timeout
// while PLAYING; only PLAYING sessions idle out.
func (s *Session) Idle(timeout time.Duration) bool {
	return s.State == StatePlaying && time.Since(s.LastActivity) > timeout
}
