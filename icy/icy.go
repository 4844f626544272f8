// Package icy implements a demuxer that wraps a URLStream to separate
// interleaved Shoutcast/Icecast metadata from audio bytes, without
// re-parsing HTTP (it composes on top of httpclient.URLStream).
package icy

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snd/streamgo/httpclient"
	"github.com/snd/streamgo/httpio"
	"github.com/snd/streamgo/internal/streamlog"
)

// state classifies the next stream byte as audio, metadata size, or metadata.
type state int

const (
	stateData state = iota
	stateSize
	stateMetadata
)

// MetaKind identifies the kind of metadata event delivered via the callback.
type MetaKind int

const (
	MetaTitle MetaKind = iota
	MetaName
	MetaGenre
	MetaDescription
)

// MetaFunc receives a metadata event: kind, value, and the value's length.
type MetaFunc func(kind MetaKind, value string, length int)

// Stream is the ICY demuxer. It wraps a *httpclient.URLStream and exposes a
// Read that returns only audio bytes; metadata is delivered synchronously
// via the OnMeta callback between audio-byte ranges, never interleaved
// with a partial audio byte.
type Stream struct {
	under *httpclient.URLStream
	log   zerolog.Logger

	// ID uniquely identifies this demuxer instance in logs, since a process
	// may have several ICY streams open concurrently.
	ID string

	metaint int
	OnMeta  MetaFunc

	st          state
	audioCount  int
	metaSize    int
	metaBuf     []byte
	metaWritten int
}

// Option configures a Stream at construction.
type Option func(*Stream)

// WithLogger attaches a scoped logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Stream) { s.log = l } }

// WithMetaFunc registers the metadata callback.
func WithMetaFunc(fn MetaFunc) Option { return func(s *Stream) { s.OnMeta = fn } }

// New wraps under, an already-constructed (not yet begun) URLStream.
func New(under *httpclient.URLStream, opts ...Option) *Stream {
	s := &Stream{under: under, log: streamlog.Nop(), st: stateData, ID: uuid.NewString()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Begin adds Icy-MetaData: 1 to the request, performs the HTTP exchange via
// the wrapped URLStream, then reads icy-metaint and emits icy-name/genre/description
// via OnMeta.
func (s *Stream) Begin(rawURL string) (int, error) {
	s.under.SetHeader(httpio.HeaderICYMetaData, "1")
	status, err := s.under.Begin(rawURL, "*/*", httpclient.MethodGET, "", nil)
	if err != nil || status != 200 {
		return status, err
	}

	s.metaint = 0
	s.st = stateData
	s.audioCount = 0

	// icy-metaint/name/genre/description come from the reply headers of the
	// underlying stream's last request, read via ReplyHeaderValue.
	if h, ok := s.under.ReplyHeaderValue(httpio.HeaderICYMetaInt); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(h)); err == nil {
			s.metaint = n
		}
	}
	if s.OnMeta != nil {
		if v, ok := s.under.ReplyHeaderValue(httpio.HeaderICYName); ok {
			s.OnMeta(MetaName, v, len(v))
		}
		if v, ok := s.under.ReplyHeaderValue(httpio.HeaderICYGenre); ok {
			s.OnMeta(MetaGenre, v, len(v))
		}
		if v, ok := s.under.ReplyHeaderValue(httpio.HeaderICYDescription); ok {
			s.OnMeta(MetaDescription, v, len(v))
		}
	}
	return status, nil
}

// Read returns only bytes classified as audio (DATA state); metadata bytes
// are consumed transparently and surfaced via OnMeta. If metaint is 0,
// ICY framing is disabled and Read is a pure passthrough.
func (s *Stream) Read(buf []byte) (int, error) {
	if s.metaint == 0 {
		return s.under.Read(buf)
	}

	out := 0
	var one [1]byte
	for out < len(buf) {
		n, err := s.under.Read(one[:])
		if n == 0 {
			if out > 0 {
				return out, nil
			}
			return 0, err
		}
		b := one[0]
		switch s.st {
		case stateData:
			s.audioCount++
			buf[out] = b
			out++
			if s.audioCount >= s.metaint {
				s.audioCount = 0
				s.st = stateSize
			}
		case stateSize:
			s.metaSize = int(b) * 16
			if s.metaSize == 0 {
				s.st = stateData
			} else {
				s.metaBuf = make([]byte, s.metaSize)
				s.metaWritten = 0
				s.st = stateMetadata
			}
		case stateMetadata:
			s.metaBuf[s.metaWritten] = b
			s.metaWritten++
			if s.metaWritten >= s.metaSize {
				s.emitMeta()
				s.st = stateData
			}
		}
	}
	return out, nil
}

// emitMeta extracts StreamTitle='...'; from the accumulated metadata block
// and invokes OnMeta with MetaTitle.
func (s *Stream) emitMeta() {
	if s.OnMeta == nil {
		return
	}
	raw := string(s.metaBuf)
	const key = "StreamTitle='"
	i := strings.Index(raw, key)
	if i < 0 {
		return
	}
	rest := raw[i+len(key):]
	end := strings.Index(rest, "';")
	if end < 0 {
		return
	}
	title := rest[:end]
	s.log.Debug().Str("stream_id", s.ID).Str("title", title).Msg("icy: metadata title changed")
	s.OnMeta(MetaTitle, title, len(title))
}
