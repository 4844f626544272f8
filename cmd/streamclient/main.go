// Command streamclient is an example RTSP client binary: it runs the
// OPTIONS/DESCRIBE/SETUP/PLAY handshake against an RTSP server and writes
// the received L16/L8 payload, decoded to host-order 16-bit PCM, to a file.
package main

import (
	"encoding/binary"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snd/streamgo/audiosource"
	"github.com/snd/streamgo/internal/streamlog"
	"github.com/snd/streamgo/rtsp"
)

func main() {
	url := flag.String("url", "", "rtsp:// URL to play")
	out := flag.String("out", "", "path to write decoded PCM to")
	pretty := flag.Bool("pretty", true, "pretty-print logs to stderr")
	flag.Parse()

	streamlog.Init(zerolog.InfoLevel, *pretty)
	log := streamlog.Component("cmd.streamclient")

	if *url == "" || *out == "" {
		log.Fatal().Msg("missing -url or -out")
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal().Err(err).Msg("create output file")
	}
	defer f.Close()

	c := rtsp.NewClient(rtsp.WithClientLogger(streamlog.Component("rtsp.client")))
	if err := c.Connect(*url); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	if err := c.Options(); err != nil {
		log.Fatal().Err(err).Msg("OPTIONS")
	}
	desc, err := c.Describe()
	if err != nil {
		log.Fatal().Err(err).Msg("DESCRIBE")
	}
	if err := c.Setup(); err != nil {
		log.Fatal().Err(err).Msg("SETUP")
	}
	if err := c.Play(); err != nil {
		log.Fatal().Err(err).Msg("PLAY")
	}
	log.Info().Str("encoding", string(desc.Format.Encoding)).Int("clock", desc.Format.ClockRate).Msg("playing")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	registry := audiosource.NewRegistry()
	registry.Register("audio/L16", audiosource.NewL16Decoder)
	registry.Register("audio/L8", audiosource.NewL8Decoder)

	resampler := audiosource.NewResampler(&fileSink{f: f})
	resampler.SetResampleFactor(c.ResampleFactor())

	mime := desc.Format.MIME()
	decoder, ok := registry.Lookup(mime, resampler)
	if !ok {
		log.Fatal().Str("mime", mime).Err(audiosource.ErrUnsupportedFormat).Msg("no decoder")
	}
	if err := decoder.Begin(); err != nil {
		log.Fatal().Err(err).Msg("begin decoder")
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-sigCh:
			if err := c.End(); err != nil {
				log.Warn().Err(err).Msg("TEARDOWN")
			}
			return
		default:
		}
		c.SetReceiveDeadline(time.Second)
		_, payload, err := c.ReceivePacket(buf)
		if err != nil {
			continue
		}
		if err := decoder.Push(payload); err != nil {
			log.Warn().Err(err).Msg("decode payload")
		}
	}
}

// fileSink writes decoded PCM samples as little-endian int16 to a file,
// standing in for a real speaker/file audio sink.
type fileSink struct {
	f *os.File
}

func (s *fileSink) Write(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, smp := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(smp))
	}
	_, err := s.f.Write(buf)
	return err
}
