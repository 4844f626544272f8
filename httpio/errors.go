package httpio

import "errors"

// ErrTimeout is returned by Header.Read when a header read exceeds its configured
// timeout; the HTTP layer maps this to a synthetic 401 status, httpio
// itself only reports the timeout.
var ErrTimeout = errors.New("httpio: read timeout")
