// Package url implements a minimal URL splitter for the scheme://host[:port][/path]
// shape used throughout the streaming stack (http, https, rtsp, ftp). It intentionally
// does not pull in net/url's generality: the wire formats this module speaks only ever
// need protocol/host/port/path/root, and keeping the splitter narrow keeps its
// behavior easy to check by inspection.
package url

import "strings"

// defaultPorts maps a scheme to the port inferred when the input omits one.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"rtsp":  554,
	"ftp":   21,
}

// URL is immutable after Parse. Root is the literal input up to (not
// including) the path; Path always has a leading "/".
type URL struct {
	Protocol string
	Host     string
	Port     int
	Path     string
	Root     string
}

// IsSecure reports whether the URL's port is the TLS port (443).
func (u URL) IsSecure() bool {
	return u.Port == 443
}

// String re-emits Root plus the path.
func (u URL) String() string {
	var b strings.Builder
	b.WriteString(u.Root)
	if u.Path != "/" {
		b.WriteString(u.Path)
	} else {
		b.WriteString("/")
	}
	return b.String()
}

// Parse splits str into a URL. On malformed input (no "://") it returns the
// zero URL. Path defaults to "/"; Root is the input with any path stripped.
func Parse(str string) URL {
	schemeSep := strings.Index(str, "://")
	if schemeSep < 0 {
		return URL{}
	}
	scheme := str[:schemeSep]
	rest := str[schemeSep+3:]

	// Root is the literal input up to the path, never a reconstruction:
	// the whole input when there is no path, the prefix before the first
	// slash otherwise.
	hostPort := rest
	path := "/"
	root := str
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		hostPort = rest[:slash]
		path = rest[slash:]
		root = str[:schemeSep+3+slash]
	}

	host := hostPort
	port := defaultPorts[scheme]
	if colon := strings.LastIndexByte(hostPort, ':'); colon >= 0 {
		host = hostPort[:colon]
		if p, ok := parsePort(hostPort[colon+1:]); ok {
			port = p
		}
	}

	return URL{
		Protocol: scheme,
		Host:     host,
		Port:     port,
		Path:     path,
		Root:     root,
	}
}

func parsePort(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
