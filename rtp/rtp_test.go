package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderMarshalUnmarshalRoundTrip(t *testing.T) {
	h := Header{Marker: true, PayloadType: 11, SequenceNumber: 4242, Timestamp: 123456, SSRC: DefaultSSRC}
	buf := h.Marshal()
	require.Len(t, buf, HeaderSize)
	require.Equal(t, byte(0x80), buf[0]) // V=2,P=0,X=0,CC=0
	require.Equal(t, byte(0x8B), buf[1]) // marker set, PT=11

	payload := []byte{1, 2, 3, 4}
	packet := append(append([]byte(nil), buf...), payload...)

	got, gotPayload, err := Unmarshal(packet, 0)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, payload, gotPayload)
}

func TestUnmarshalRejectsShortPacket(t *testing.T) {
	_, _, err := Unmarshal(make([]byte, 8), 0)
	require.Error(t, err)
}

func TestUnmarshalRFC2250Prefix(t *testing.T) {
	h := Header{PayloadType: 14, SequenceNumber: 1, Timestamp: 0, SSRC: DefaultSSRC}
	prefix := []byte{0, 0, 0, 0}
	payload := []byte{0xFF, 0xFB, 0x90, 0x64}
	packet := append(append(append([]byte(nil), h.Marshal()...), prefix...), payload...)

	_, gotPayload, err := Unmarshal(packet, RFC2250PrefixSize)
	require.NoError(t, err)
	require.Equal(t, payload, gotPayload)
}

type fakeSource struct {
	chunks [][]byte
	idx    int
}

func (f *fakeSource) ReadBytes(buf []byte) (int, error) {
	if f.idx >= len(f.chunks) {
		return 0, nil
	}
	n := copy(buf, f.chunks[f.idx])
	f.idx++
	return n, nil
}

type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) Send(payload []byte) error {
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func TestStreamerSendOneTickSequencesAndTimestamps(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}}
	snd := &fakeSender{}
	s := New(WithPayloadType(11), WithFragmentSize(4), WithTimestampIncrement(4))
	startSeq := s.seq
	startTS := s.timestamp

	require.NoError(t, s.sendOneTick(src, snd, make([]byte, 4), make([]byte, 4)))
	require.NoError(t, s.sendOneTick(src, snd, make([]byte, 4), make([]byte, 4)))

	require.Len(t, snd.sent, 2)
	h0, p0, err := Unmarshal(snd.sent[0], 0)
	require.NoError(t, err)
	require.Equal(t, startSeq, h0.SequenceNumber)
	require.Equal(t, startTS, h0.Timestamp)
	require.Equal(t, []byte{1, 2, 3, 4}, p0)

	h1, p1, err := Unmarshal(snd.sent[1], 0)
	require.NoError(t, err)
	require.Equal(t, startSeq+1, h1.SequenceNumber)
	require.Equal(t, startTS+4, h1.Timestamp)
	require.Equal(t, []byte{5, 6, 7, 8}, p1)
}

func TestStreamerSkipsEmptyFragment(t *testing.T) {
	src := &fakeSource{} // no chunks, always returns 0
	snd := &fakeSender{}
	s := New(WithPayloadType(11), WithFragmentSize(4))
	require.NoError(t, s.sendOneTick(src, snd, make([]byte, 4), make([]byte, 4)))
	require.Empty(t, snd.sent)
}
