package rtsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithPathConfigDecodesIdleTimeout(t *testing.T) {
	s := NewServer(WithPathConfig(map[string]map[string]any{
		"/live": {"idle_timeout_seconds": 5, "stream_name": "Live Feed"},
	}))
	require.Equal(t, 5*time.Second, s.pathIdleTimeout("/live"))
	require.Equal(t, s.idleTimeout, s.pathIdleTimeout("/unknown"))
}

func TestWithPathConfigIgnoresInvalidEntry(t *testing.T) {
	s := NewServer(WithPathConfig(map[string]map[string]any{
		"/live": {"idle_timeout_seconds": "not-a-number"},
	}))
	require.Equal(t, s.idleTimeout, s.pathIdleTimeout("/live"), "an undecodable entry must fall back to the default, not panic")
}

func TestWithDecoderConfigAppliesResampleFactor(t *testing.T) {
	c := NewClient(WithDecoderConfig(map[string]any{"resample_factor": 0.98}))
	require.InDelta(t, 0.98, c.ResampleFactor(), 0.0001)
}

func TestResampleFactorDefaultsToUnity(t *testing.T) {
	c := NewClient()
	require.Equal(t, 1.0, c.ResampleFactor())
}
