package rtsp

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	played  bool
	stopped bool
	volume  int
}

func (p *fakePlayer) Play() error             { p.played = true; return nil }
func (p *fakePlayer) Stop() error             { p.stopped = true; return nil }
func (p *fakePlayer) SetVolume(pct int) error { p.volume = pct; return nil }

func TestSimpleControlServerDispatchesCommands(t *testing.T) {
	player := &fakePlayer{}
	cs := NewSimpleControlServer(PlayerControlHandler(player))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go cs.Serve(ln)
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("play\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\r\n", line)
	require.True(t, player.played)

	_, err = conn.Write([]byte("volume 42\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\r\n", line)
	require.Equal(t, 42, player.volume)

	_, err = conn.Write([]byte("volume abc\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "ERR")

	_, err = conn.Write([]byte("stop\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\r\n", line)
	require.True(t, player.stopped)
}
