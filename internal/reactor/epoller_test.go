package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func TestWaitReportsReadable(t *testing.T) {
	ep, err := New(16)
	require.NoError(t, err)
	defer ep.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.True(t, ep.Add(fds[0], EventIn))

	// Nothing readable yet.
	n, err := ep.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	n, err = ep.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, fds[0], ep.EventFD(0))
	assert.NotZero(t, ep.Events(0)&EventIn)
}

func TestOneShotDisarmsUntilMod(t *testing.T) {
	ep, err := New(16)
	require.NoError(t, err)
	defer ep.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.True(t, ep.Add(fds[0], EventIn|EventOneShot))
	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	n, err := ep.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Still readable, but the one-shot registration is spent.
	n, err = ep.Wait(50)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.True(t, ep.Mod(fds[0], EventIn|EventOneShot))
	deadline := time.Now().Add(time.Second)
	n = 0
	for n == 0 && time.Now().Before(deadline) {
		n, err = ep.Wait(100)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, n)
}

func TestDelUnregisters(t *testing.T) {
	ep, err := New(16)
	require.NoError(t, err)
	defer ep.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.True(t, ep.Add(fds[0], EventIn))
	require.True(t, ep.Del(fds[0]))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	n, err := ep.Wait(50)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
