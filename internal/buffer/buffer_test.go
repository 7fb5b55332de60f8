package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func checkInvariants(t *testing.T, b *Buffer) {
	t.Helper()
	assert.GreaterOrEqual(t, b.readPos, 0)
	assert.LessOrEqual(t, b.readPos, b.writePos)
	assert.LessOrEqual(t, b.writePos, len(b.buf))
}

func TestAppendRetrieveRoundTrip(t *testing.T) {
	b := New()
	payload := []byte("GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n")
	b.Append(payload)
	checkInvariants(t, b)

	assert.Equal(t, len(payload), b.ReadableBytes())
	assert.Equal(t, string(payload), b.RetrieveAllToString())
	assert.Equal(t, 0, b.ReadableBytes())
	checkInvariants(t, b)
}

func TestPartialRetrieve(t *testing.T) {
	b := New()
	b.AppendString("hello world")
	b.Retrieve(6)
	assert.Equal(t, "world", string(b.Peek()))
	assert.Equal(t, 6, b.PrependableBytes())
	checkInvariants(t, b)
}

func TestEnsureWritableCompacts(t *testing.T) {
	b := NewSize(16)
	b.AppendString("0123456789")
	b.Retrieve(8)

	// 6 writable + 8 prependable can hold 10 more without growing.
	b.EnsureWritable(10)
	assert.Equal(t, 0, b.readPos)
	assert.Equal(t, "89", string(b.Peek()))
	assert.Equal(t, 16, len(b.buf))
	checkInvariants(t, b)
}

func TestEnsureWritableGrows(t *testing.T) {
	b := NewSize(8)
	b.AppendString("abcdefgh")
	before := b.writePos

	b.EnsureWritable(100)
	assert.Equal(t, before+100+1, len(b.buf))
	assert.Equal(t, "abcdefgh", string(b.Peek()))
	checkInvariants(t, b)
}

func TestRetrieveAllZeroes(t *testing.T) {
	b := NewSize(8)
	b.AppendString("secret")
	b.RetrieveAll()
	assert.Equal(t, 0, b.readPos)
	assert.Equal(t, 0, b.writePos)
	assert.Equal(t, bytes.Repeat([]byte{0}, 8), b.buf)
}

func TestReadFDFillsTail(t *testing.T) {
	fds := makePipe(t)
	defer unix.Close(fds[0])

	payload := []byte("small payload")
	_, err := unix.Write(fds[1], payload)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[1]))

	b := New()
	n, err := b.ReadFD(fds[0])
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, string(payload), string(b.Peek()))
	checkInvariants(t, b)
}

func TestReadFDGrowsFromStage(t *testing.T) {
	fds := makePipe(t)
	defer unix.Close(fds[0])

	payload := bytes.Repeat([]byte("x"), 4096)
	_, err := unix.Write(fds[1], payload)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[1]))

	// Fill the buffer completely so the writable tail is empty and every
	// byte of the read must come through the staging area.
	b := NewSize(64)
	b.HasWritten(64)
	b.Retrieve(64)

	before := b.ReadableBytes()
	n, err := b.ReadFD(fds[0])
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, before+len(payload), b.ReadableBytes())
	assert.Equal(t, payload, b.Peek())
	checkInvariants(t, b)
}

func TestWriteFDConsumes(t *testing.T) {
	fds := makePipe(t)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	b := New()
	b.AppendString("over the wire")
	n, err := b.WriteFD(fds[1])
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, 0, b.ReadableBytes())

	out := make([]byte, 64)
	m, err := unix.Read(fds[0], out)
	require.NoError(t, err)
	assert.Equal(t, "over the wire", string(out[:m]))
}

func makePipe(t *testing.T) [2]int {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	return fds
}
