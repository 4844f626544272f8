// Command streamserver is an example RTSP+RTP server binary: it serves a raw
// L16/44100/2 PCM file (e.g. produced by `sox -t raw` or similar) to one
// connecting RTSP client at a time, exposing Prometheus metrics alongside.
package main

import (
	"encoding/binary"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snd/streamgo/internal/metrics"
	"github.com/snd/streamgo/internal/streamlog"
	"github.com/snd/streamgo/rtp"
	"github.com/snd/streamgo/rtsp"
	"github.com/snd/streamgo/sdp"
	"github.com/snd/streamgo/transport"
)

func main() {
	addr := flag.String("addr", ":8554", "RTSP listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus /metrics listen address")
	pcmPath := flag.String("pcm", "", "path to a raw L16/44100/2 PCM file to loop")
	pretty := flag.Bool("pretty", true, "pretty-print logs to stderr")
	flag.Parse()

	streamlog.Init(zerolog.InfoLevel, *pretty)
	log := streamlog.Component("cmd.streamserver")

	if *pcmPath == "" {
		log.Fatal().Msg("missing -pcm")
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		log.Info().Str("addr", *metricsAddr).Msg("serving /metrics")
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	pool := transport.NewPool(transport.WithPoolLogger(streamlog.Component("transport")))
	format, _ := sdp.StaticFormat(sdp.EncodingL16, 44100, 2)

	const fragmentSamples = 441 // 10ms at 44.1kHz
	const fragmentBytes = fragmentSamples * 2 * 2 // 16-bit stereo

	srv := rtsp.NewServer(
		rtsp.WithTransportPool(pool),
		rtsp.WithServerLogger(streamlog.Component("rtsp.server")),
		rtsp.WithStreamName("streamgo-demo"),
		rtsp.WithDescribe(func(host string) sdp.Description {
			return sdp.New(host, "streamgo-demo", format)
		}),
		rtsp.WithOnPlay(func(sess *rtsp.Session, pair *transport.Pair) (func(), error) {
			src, err := newLoopingPCMSource(*pcmPath, fragmentBytes)
			if err != nil {
				return nil, err
			}
			streamer := rtp.New(
				rtp.WithPayloadType(uint8(format.PT)),
				rtp.WithFragmentSize(fragmentBytes),
				rtp.WithPeriod(fragmentSamples*time.Second/time.Duration(format.ClockRate)),
				rtp.WithTimestampIncrement(uint32(fragmentSamples)),
				rtp.WithEncode(encodeL16BigEndian),
				rtp.WithStreamerLogger(streamlog.Component("rtp.streamer")),
			)
			go func() {
				if err := streamer.RunTask(src, pair); err != nil {
					log.Warn().Err(err).Msg("streamer stopped")
				}
			}()
			return func() { streamer.Stop(); src.Close() }, nil
		}),
	)

	if err := srv.Begin(*addr); err != nil {
		log.Fatal().Err(err).Msg("bind RTSP listener")
	}
	log.Info().Str("addr", srv.Addr().String()).Msg("serving RTSP")
	if err := srv.Serve(); err != nil {
		log.Fatal().Err(err).Msg("RTSP server stopped")
	}
}

// encodeL16BigEndian swaps the on-disk native int16 samples to the network
// byte order an L16 RTP payload carries.
func encodeL16BigEndian(dst, src []byte) int {
	n := len(src) / 2 * 2
	for i := 0; i+1 < n; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(src[i : i+2]))
		binary.BigEndian.PutUint16(dst[i:i+2], uint16(sample))
	}
	return n
}

// loopingPCMSource reads fixed-size fragments from a file, looping back to
// the start at EOF, standing in for a real decoder pipeline.
type loopingPCMSource struct {
	f            *os.File
	fragmentSize int
}

func newLoopingPCMSource(path string, fragmentSize int) (*loopingPCMSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &loopingPCMSource{f: f, fragmentSize: fragmentSize}, nil
}

func (s *loopingPCMSource) ReadBytes(buf []byte) (int, error) {
	n, err := s.f.Read(buf)
	if n == 0 {
		if _, serr := s.f.Seek(0, 0); serr != nil {
			return 0, serr
		}
		return s.f.Read(buf)
	}
	return n, err
}

func (s *loopingPCMSource) Close() error { return s.f.Close() }
