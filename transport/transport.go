// Package transport implements a reference-counted UDP RTP/RTCP socket
// pool: each RTSP session acquires a pair of UDP sockets bound to the
// negotiated server ports, and the pair is only closed once every acquirer
// has released it.
package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snd/streamgo/internal/streamlog"
)

// Pair is one acquired RTP/RTCP UDP socket pair plus the remote endpoint it
// was negotiated for.
type Pair struct {
	RTPConn  *net.UDPConn
	RTCPConn *net.UDPConn

	ServerRTPPort  int
	ServerRTCPPort int

	remoteIP   string
	remoteRTP  int
}

// Handle is a reference-counted lease on a Pair; Drop releases the lease and
// closes the underlying sockets once the last holder has dropped it.
type Handle struct {
	pool *Pool
	key  string
}

// Pool owns the live UDP socket pairs, keyed by remote IP + client RTP port,
// and reference-counts acquisitions so a socket pair outlives a single
// SETUP/PLAY/TEARDOWN round-trip if more than one caller holds it.
type Pool struct {
	mu    sync.Mutex
	pairs map[string]*entry
	log   zerolog.Logger

	portLow, portHigh int
	nextPort          int
}

type entry struct {
	pair *Pair
	refs int
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithPortRange restricts the even server RTP ports tried (5004, 5006, ...
// by default); RTCP always uses RTP port + 1.
func WithPortRange(low, high int) Option {
	return func(p *Pool) { p.portLow, p.portHigh, p.nextPort = low, high, low }
}

// WithPoolLogger attaches a scoped logger.
func WithPoolLogger(l zerolog.Logger) Option { return func(p *Pool) { p.log = l } }

// NewPool constructs an empty Pool. Default port range is 5004-5999.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		pairs:     map[string]*entry{},
		log:       streamlog.Nop(),
		portLow:   5004,
		portHigh:  5999,
		nextPort:  5004,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Acquire binds (or reuses) a UDP socket pair for remoteIP, incrementing its
// reference count. The same (remoteIP, clientRTPPort) key returns the same
// Pair as long as any Handle referencing it is still held.
func (p *Pool) Acquire(remoteIP string, clientRTPPort int) (*Pair, *Handle, error) {
	key := fmt.Sprintf("%s:%d", remoteIP, clientRTPPort)

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.pairs[key]; ok {
		e.refs++
		return e.pair, &Handle{pool: p, key: key}, nil
	}

	pair, err := p.bind(remoteIP, clientRTPPort)
	if err != nil {
		return nil, nil, err
	}
	p.pairs[key] = &entry{pair: pair, refs: 1}
	return pair, &Handle{pool: p, key: key}, nil
}

func (p *Pool) bind(remoteIP string, clientRTPPort int) (*Pair, error) {
	for port := p.nextPort; port <= p.portHigh; port += 2 {
		rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		if err != nil {
			continue
		}
		rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port + 1})
		if err != nil {
			rtpConn.Close()
			continue
		}
		p.nextPort = port + 2
		if p.nextPort > p.portHigh {
			p.nextPort = p.portLow
		}
		return &Pair{
			RTPConn:        rtpConn,
			RTCPConn:       rtcpConn,
			ServerRTPPort:  port,
			ServerRTCPPort: port + 1,
			remoteIP:       remoteIP,
			remoteRTP:      clientRTPPort,
		}, nil
	}
	return nil, fmt.Errorf("transport: no free UDP port pair in [%d,%d]", p.portLow, p.portHigh)
}

// Drop releases the lease; once the last Handle for a Pair is dropped, both
// sockets are closed and the pool forgets the pair.
func (h *Handle) Drop() {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()

	e, ok := h.pool.pairs[h.key]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	e.pair.RTPConn.Close()
	e.pair.RTCPConn.Close()
	delete(h.pool.pairs, h.key)
}

// Send writes payload as one UDP datagram to the remote RTP port this Pair
// was acquired for, satisfying rtp.Sender.
func (p *Pair) Send(payload []byte) error {
	addr := &net.UDPAddr{IP: net.ParseIP(p.remoteIP), Port: p.remoteRTP}
	_, err := p.RTPConn.WriteToUDP(payload, addr)
	return err
}
