package rtp

import (
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snd/streamgo/internal/metrics"
	"github.com/snd/streamgo/internal/streamlog"
)

// slowTickThreshold is the per-tick send-time warning budget.
const slowTickThreshold = 20 * time.Millisecond

// defaultThrottleInterval is the number of packets between wall-clock
// catch-up checks in RunTask.
const defaultThrottleInterval = 50

// Source pulls raw audio bytes for packetization; it is the narrow slice of
// audiosource.Source the streamer actually needs, kept local to avoid a
// package-level dependency for a single method.
type Source interface {
	ReadBytes(buf []byte) (int, error)
}

// Sender transmits one already-packetized UDP datagram to the negotiated
// client RTP port; transport.Pair implements this.
type Sender interface {
	Send(payload []byte) error
}

// EncodeFunc converts fragment_size raw bytes to on-wire representation
// (e.g. host-to-network byte-swap for L16); nil means passthrough.
type EncodeFunc func(dst, src []byte) int

// Streamer pulls fixed-size fragments from a Source on a periodic
// schedule, packetizes them as RTP, and hands them to a Sender.
type Streamer struct {
	log zerolog.Logger

	payloadType     uint8
	fragmentSize    int
	period          time.Duration
	timestampIncr   uint32
	rfc2250Prefix   bool
	throttleEvery   int
	encode          EncodeFunc

	seq       uint16
	timestamp uint32
	ssrc      uint32

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Streamer at construction.
type Option func(*Streamer)

// WithPayloadType sets the RTP PT field.
func WithPayloadType(pt uint8) Option { return func(s *Streamer) { s.payloadType = pt } }

// WithFragmentSize sets the audio payload bytes pulled per tick.
func WithFragmentSize(n int) Option { return func(s *Streamer) { s.fragmentSize = n } }

// WithPeriod sets the tick period, normally derived from samples-per-packet
// and sample rate: period = samples_per_packet / sample_rate.
func WithPeriod(d time.Duration) Option { return func(s *Streamer) { s.period = d } }

// WithTimestampIncrement sets the per-tick RTP timestamp advance (samples
// per packet for PCM, fixed 1152 for MPEG Layer III).
func WithTimestampIncrement(n uint32) Option { return func(s *Streamer) { s.timestampIncr = n } }

// WithRFC2250Prefix enables the 4-byte MPEG audio header MP3 packetization
// prepends ahead of the frame payload.
func WithRFC2250Prefix(on bool) Option { return func(s *Streamer) { s.rfc2250Prefix = on } }

// WithThrottleInterval overrides the packet count between compensating-sleep
// checks in RunTask (default 50).
func WithThrottleInterval(n int) Option { return func(s *Streamer) { s.throttleEvery = n } }

// WithEncode installs a byte-transform applied to each fragment before
// packetization (e.g. network-byte-order conversion for L16).
func WithEncode(fn EncodeFunc) Option { return func(s *Streamer) { s.encode = fn } }

// WithRandomSSRC replaces the fixed DefaultSSRC with a random value, for
// callers that need distinct sessions to be distinguishable on the wire.
func WithRandomSSRC() Option { return func(s *Streamer) { s.ssrc = rand.Uint32() } }

// WithStreamerLogger attaches a scoped logger.
func WithStreamerLogger(l zerolog.Logger) Option { return func(s *Streamer) { s.log = l } }

// New constructs a Streamer with a random starting sequence number and
// timestamp, the fixed default SSRC, and a 50-packet throttle interval.
func New(opts ...Option) *Streamer {
	s := &Streamer{
		log:           streamlog.Nop(),
		ssrc:          DefaultSSRC,
		throttleEvery: defaultThrottleInterval,
		seq:           uint16(rand.Intn(1 << 16)),
		timestamp:     rand.Uint32(),
		stopCh:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stop halts RunTask's loop; it does not flush any in-flight payload, since
// packetization is one-shot per tick. Idempotent.
func (s *Streamer) Stop() { s.stopOnce.Do(func() { close(s.stopCh) }) }

// RunTask runs a cooperative loop ticking every s.period, pulling a
// fragment from src, packetizing, and sending via snd. Every throttleEvery
// ticks it compares
// elapsed wall time to expected time and sleeps off any surplus, guarding
// against sources that produce data faster than real time.
func (s *Streamer) RunTask(src Source, snd Sender) error {
	s.log.Warn().Msg("rtp: marker bit is set on every packet, not only on talk-spurt starts")
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	start := time.Now()
	ticks := 0

	fragment := make([]byte, s.fragmentSize)
	wire := make([]byte, s.fragmentSize)

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			tickStart := time.Now()
			if err := s.sendOneTick(src, snd, fragment, wire); err != nil {
				s.log.Warn().Err(err).Msg("rtp: send tick failed")
			}
			elapsed := time.Since(tickStart)
			if elapsed > slowTickThreshold {
				metrics.RTPSlowTicksTotal.Inc()
				s.log.Warn().Dur("elapsed", elapsed).Msg("rtp: tick exceeded 20ms budget")
			}

			ticks++
			if s.throttleEvery > 0 && ticks%s.throttleEvery == 0 {
				expected := time.Duration(ticks) * s.period
				actual := time.Since(start)
				if actual < expected {
					time.Sleep(expected - actual)
				}
			}
		}
	}
}

func (s *Streamer) sendOneTick(src Source, snd Sender, fragment, wire []byte) error {
	timer := prometheus.NewTimer(metrics.RTPSendSeconds)
	defer timer.ObserveDuration()

	n, err := src.ReadBytes(fragment)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	payload := fragment[:n]
	if s.encode != nil {
		n = s.encode(wire[:cap(wire)], payload)
		payload = wire[:n]
	}

	prefixLen := 0
	if s.rfc2250Prefix {
		prefixLen = RFC2250PrefixSize
	}
	packet := make([]byte, HeaderSize+prefixLen+len(payload))

	h := Header{
		Marker:         true,
		PayloadType:    s.payloadType,
		SequenceNumber: s.seq,
		Timestamp:      s.timestamp,
		SSRC:           s.ssrc,
	}
	copy(packet, h.Marshal())
	// RFC 2250's MBZ+fragment-offset prefix is left zeroed: whole frames are
	// packetized one-per-tick, so fragment offset is always 0.
	copy(packet[HeaderSize+prefixLen:], payload)

	s.seq++
	s.timestamp += s.timestampIncr

	if err := snd.Send(packet); err != nil {
		metrics.RTPPacketsDroppedTotal.Inc()
		return err
	}
	metrics.RTPPacketsSentTotal.Inc()
	return nil
}
