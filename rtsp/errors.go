package rtsp

import "errors"

// ErrProtocol covers RTSP handshake/reply failures; any of them is fatal
// to the session.
var ErrProtocol = errors.New("rtsp: protocol error")

// ErrRedirectUnsupported is wrapped into ErrProtocol when a 3xx reply is
// received; RTSP redirects are not followed.
var ErrRedirectUnsupported = errors.New("rtsp: 3xx redirect is not implemented")

// ErrNoTransport is returned when a SETUP reply's Transport header can't be
// parsed under either accepted profile.
var ErrNoTransport = errors.New("rtsp: no usable Transport header")

// ErrSessionMismatch is returned when a PLAY/PAUSE/TEARDOWN request's
// Session header doesn't match the session id.
var ErrSessionMismatch = errors.New("rtsp: Session header mismatch")
