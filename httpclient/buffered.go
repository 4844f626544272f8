package httpclient

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snd/streamgo/internal/streamlog"
)

// BufferedURLStream wraps a URLStream with a background ring buffer that
// pre-fetches ahead of the consumer, smoothing over network jitter for
// real-time playback. It is pure buffering, no format transformation.
type BufferedURLStream struct {
	under *URLStream
	log   zerolog.Logger

	cap int

	mu     sync.Mutex
	cond   *sync.Cond
	ring   []byte
	head   int
	size   int
	err    error
	filled bool

	stop chan struct{}
	done chan struct{}
}

// BufferedOption configures a BufferedURLStream at construction.
type BufferedOption func(*BufferedURLStream)

// WithBufferedLogger attaches a scoped logger.
func WithBufferedLogger(l zerolog.Logger) BufferedOption {
	return func(b *BufferedURLStream) { b.log = l }
}

// NewBufferedURLStream wraps under with a capacity-sized ring buffer; call
// Start after under.Begin has opened the stream.
func NewBufferedURLStream(under *URLStream, capacity int, opts ...BufferedOption) *BufferedURLStream {
	b := &BufferedURLStream{
		under: under,
		log:   streamlog.Nop(),
		cap:   capacity,
		ring:  make([]byte, capacity),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	for _, o := range opts {
		o(b)
	}
	return b
}

// Start launches the background fetch goroutine, which reads from under
// into the ring buffer until Stop is called or under returns a terminal
// error.
func (b *BufferedURLStream) Start() {
	go b.fetchLoop()
}

func (b *BufferedURLStream) fetchLoop() {
	defer close(b.done)
	chunk := make([]byte, 4096)
	for {
		b.mu.Lock()
		for b.size == b.cap && b.err == nil {
			select {
			case <-b.stop:
				b.mu.Unlock()
				return
			default:
			}
			b.cond.Wait()
		}
		if b.err != nil {
			b.mu.Unlock()
			return
		}
		free := b.cap - b.size
		b.mu.Unlock()

		want := len(chunk)
		if want > free {
			want = free
		}
		n, err := b.under.Read(chunk[:want])
		if n > 0 {
			b.mu.Lock()
			b.writeLocked(chunk[:n])
			b.filled = true
			b.cond.Broadcast()
			b.mu.Unlock()
		} else if err == nil {
			// URLStream.Read returns (0, nil) rather than io.EOF once the
			// declared content length is exhausted; avoid busy-spinning on it.
			select {
			case <-b.stop:
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			b.mu.Lock()
			b.err = err
			b.cond.Broadcast()
			b.mu.Unlock()
			return
		}
		select {
		case <-b.stop:
			return
		default:
		}
	}
}

// writeLocked appends data to the ring buffer; caller holds b.mu. Capacity
// is enforced by the caller never requesting more than the free space.
func (b *BufferedURLStream) writeLocked(data []byte) {
	tail := (b.head + b.size) % b.cap
	for _, by := range data {
		b.ring[tail] = by
		tail = (tail + 1) % b.cap
		b.size++
	}
}

// Read drains up to len(buf) pre-fetched bytes, blocking until at least one
// byte is available or the underlying stream ends.
func (b *BufferedURLStream) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.size == 0 && b.err == nil {
		b.cond.Wait()
	}
	n := 0
	for n < len(buf) && b.size > 0 {
		buf[n] = b.ring[b.head]
		b.head = (b.head + 1) % b.cap
		b.size--
		n++
	}
	b.cond.Broadcast()
	if n == 0 {
		return 0, b.err
	}
	return n, nil
}

// Available returns the number of bytes currently sitting in the ring
// buffer, ready for an immediate Read.
func (b *BufferedURLStream) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Stop halts the background fetch goroutine and waits for it to exit.
func (b *BufferedURLStream) Stop() {
	close(b.stop)
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done
}

var _ io.Reader = (*BufferedURLStream)(nil)
