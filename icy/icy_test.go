package icy

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snd/streamgo/httpclient"
)

// demux replicates Stream.Read's state machine directly against a raw byte
// source so the audio/metadata split can be checked without needing a live
// HTTP server.
func demux(t *testing.T, metaint int, src []byte) (audio []byte, titles []string) {
	t.Helper()
	st := stateData
	audioCount := 0
	var metaSize int
	var metaBuf []byte
	var metaWritten int

	for _, b := range src {
		switch st {
		case stateData:
			audioCount++
			audio = append(audio, b)
			if audioCount >= metaint {
				audioCount = 0
				st = stateSize
			}
		case stateSize:
			metaSize = int(b) * 16
			if metaSize == 0 {
				st = stateData
			} else {
				metaBuf = make([]byte, 0, metaSize)
				metaWritten = 0
				st = stateMetadata
			}
		case stateMetadata:
			metaBuf = append(metaBuf, b)
			metaWritten++
			if metaWritten >= metaSize {
				raw := string(metaBuf)
				const key = "StreamTitle='"
				if i := strings.Index(raw, key); i >= 0 {
					rest := raw[i+len(key):]
					if end := strings.Index(rest, "';"); end >= 0 {
						titles = append(titles, rest[:end])
					}
				}
				st = stateData
			}
		}
	}
	return audio, titles
}

func TestICYDemuxTitleBetweenAudioBlocks(t *testing.T) {
	metaint := 8192
	audio1 := make([]byte, metaint)
	for i := range audio1 {
		audio1[i] = byte(i)
	}
	audio2 := make([]byte, metaint)
	for i := range audio2 {
		audio2[i] = byte(255 - i)
	}

	meta := "StreamTitle='Song A';"
	metaBlock := make([]byte, 32)
	copy(metaBlock, meta)
	sizeByte := byte(len(metaBlock) / 16)

	var src []byte
	src = append(src, audio1...)
	src = append(src, sizeByte)
	src = append(src, metaBlock...)
	src = append(src, audio2...)

	audio, titles := demux(t, metaint, src)
	require.Equal(t, append(append([]byte{}, audio1...), audio2...), audio)
	require.Equal(t, []string{"Song A"}, titles)
}

// TestStreamEndToEnd drives Stream.Begin/Read against a real TCP server
// emitting an ICY response with no Content-Length, the shape an internet
// radio station actually sends.
func TestStreamEndToEnd(t *testing.T) {
	audio1 := []byte{10, 11, 12, 13}
	audio2 := []byte{20, 21, 22, 23}
	metaBlock := []byte("StreamTitle='X';") // exactly 16 bytes, one size unit

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf) // drain the request
		resp := "HTTP/1.1 200 OK\r\nicy-metaint: 4\r\nicy-name: Test Radio\r\n\r\n"
		body := append(append(append(append([]byte{}, audio1...), 1), metaBlock...), audio2...)
		_, _ = conn.Write(append([]byte(resp), body...))
	}()

	var titles []string
	var names []string
	us := httpclient.NewURLStream()
	st := New(us, WithMetaFunc(func(kind MetaKind, value string, length int) {
		switch kind {
		case MetaTitle:
			titles = append(titles, value)
		case MetaName:
			names = append(names, value)
		}
	}))

	status, err := st.Begin("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	require.Equal(t, 200, status)

	var audio []byte
	buf := make([]byte, 3)
	for len(audio) < 8 {
		n, err := st.Read(buf)
		if n == 0 {
			require.NoError(t, err)
			break
		}
		audio = append(audio, buf[:n]...)
	}
	require.Equal(t, append(append([]byte{}, audio1...), audio2...), audio)
	require.Equal(t, []string{"X"}, titles)
	require.Equal(t, []string{"Test Radio"}, names)
}

func TestICYDemuxZeroLengthMetadataBlock(t *testing.T) {
	src := append([]byte{1, 2, 3}, 0) // 3 audio bytes then a zero-size metadata marker
	audio, titles := demux(t, 3, src)
	require.Equal(t, []byte{1, 2, 3}, audio)
	require.Empty(t, titles)
}
