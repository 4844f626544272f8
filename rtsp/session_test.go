package rtsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransitionFullLifecycle(t *testing.T) {
	s := NewSession()
	require.Equal(t, StateInit, s.State)

	require.NoError(t, s.Transition("DESCRIBE"))
	require.Equal(t, StateInit, s.State, "DESCRIBE never changes state")

	require.NoError(t, s.Transition("SETUP"))
	require.Equal(t, StateReady, s.State)

	require.NoError(t, s.Transition("PLAY"))
	require.Equal(t, StatePlaying, s.State)

	require.NoError(t, s.Transition("PAUSE"))
	require.Equal(t, StateReady, s.State)

	require.NoError(t, s.Transition("PLAY"))
	require.Equal(t, StatePlaying, s.State)

	require.NoError(t, s.Transition("TEARDOWN"))
	require.Equal(t, StateClosed, s.State)
}

func TestTransitionOptionsPermittedInAnyState(t *testing.T) {
	for _, st := range []State{StateInit, StateReady, StatePlaying, StatePaused, StateClosed} {
		s := &Session{State: st}
		require.NoError(t, s.Transition("OPTIONS"))
		require.Equal(t, st, s.State)
	}
}

func TestTransitionRejectsOutOfOrderRequests(t *testing.T) {
	s := NewSession()
	require.ErrorIs(t, s.Transition("PLAY"), ErrInvalidTransition, "PLAY before SETUP")

	require.NoError(t, s.Transition("SETUP"))
	require.ErrorIs(t, s.Transition("DESCRIBE"), ErrInvalidTransition, "DESCRIBE after SETUP")
	require.ErrorIs(t, s.Transition("PAUSE"), ErrInvalidTransition, "PAUSE before PLAY")

	require.NoError(t, s.Transition("TEARDOWN"))
	require.ErrorIs(t, s.Transition("SETUP"), ErrInvalidTransition, "SETUP after TEARDOWN")
	require.ErrorIs(t, s.Transition("PLAY"), ErrInvalidTransition, "PLAY after TEARDOWN")
}

func TestIdleOnlyAppliesWhilePlaying(t *testing.T) {
	s := &Session{State: StateReady, LastActivity: time.Now().Add(-time.Hour)}
	require.False(t, s.Idle(time.Second), "READY sessions never idle-timeout")

	s.State = StatePlaying
	require.True(t, s.Idle(time.Second))

	s.Touch()
	require.False(t, s.Idle(time.Second))
}
