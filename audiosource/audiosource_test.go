package audiosource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	samples []int16
}

func (s *captureSink) Write(samples []int16) error {
	s.samples = append(s.samples, samples...)
	return nil
}

func TestL16DecoderConvertsNetworkByteOrder(t *testing.T) {
	sink := &captureSink{}
	d := NewL16Decoder(sink)
	require.NoError(t, d.Begin())
	// 0x0100 big-endian -> 256, 0xFFFF -> -1
	require.NoError(t, d.Push([]byte{0x01, 0x00, 0xFF, 0xFF}))
	require.Equal(t, []int16{256, -1}, sink.samples)
}

func TestL16DecoderDropsTrailingOddByte(t *testing.T) {
	sink := &captureSink{}
	d := NewL16Decoder(sink)
	require.NoError(t, d.Push([]byte{0x00, 0x01, 0x02}))
	require.Equal(t, []int16{1}, sink.samples)
}

func TestL8DecoderExpandsTo16Bit(t *testing.T) {
	sink := &captureSink{}
	d := NewL8Decoder(sink)
	require.NoError(t, d.Push([]byte{128, 0, 255}))
	require.Equal(t, []int16{0, -32768, 32512}, sink.samples)
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register("audio/L16", NewL16Decoder)

	sink := &captureSink{}
	dec, ok := reg.Lookup("audio/L16", sink)
	require.True(t, ok)
	require.Equal(t, "audio/L16", dec.MIME())

	_, ok = reg.Lookup("audio/unknown", sink)
	require.False(t, ok)
}

func TestResamplerPassthroughAtUnitFactor(t *testing.T) {
	sink := &captureSink{}
	r := NewResampler(sink)
	require.NoError(t, r.Write([]int16{1, 2, 3, 4}))
	require.Equal(t, []int16{1, 2, 3, 4}, sink.samples)
}

func TestResamplerDropsSamplesBelowUnitFactor(t *testing.T) {
	sink := &captureSink{}
	r := NewResampler(sink)
	r.SetResampleFactor(0.5)
	require.NoError(t, r.Write([]int16{1, 2, 3, 4, 5, 6}))
	require.Len(t, sink.samples, 3)
}

func TestResamplerDuplicatesSamplesAboveUnitFactor(t *testing.T) {
	sink := &captureSink{}
	r := NewResampler(sink)
	r.SetResampleFactor(2.0)
	require.NoError(t, r.Write([]int16{7}))
	require.Equal(t, []int16{7, 7}, sink.samples)
}
