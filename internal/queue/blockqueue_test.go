package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 5; i++ {
		require.True(t, q.PushBack(i))
	}
	require.True(t, q.PushFront(-1))

	want := []int{-1, 0, 1, 2, 3, 4}
	for _, w := range want {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, w, got)
	}
	assert.True(t, q.Empty())
}

func TestPushBlocksWhileFull(t *testing.T) {
	q := New[int](1)
	require.True(t, q.PushBack(1))

	pushed := make(chan struct{})
	go func() {
		q.PushBack(2)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Pop()
	require.True(t, ok)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after pop")
	}
}

func TestPopTimeout(t *testing.T) {
	q := New[string](4)
	start := time.Now()
	_, ok := q.PopTimeout(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	q.PushBack("ready")
	v, ok := q.PopTimeout(time.Second)
	require.True(t, ok)
	assert.Equal(t, "ready", v)
}

func TestCloseReleasesWaiters(t *testing.T) {
	empty := New[int](1)
	full := New[int](1)
	full.PushBack(1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, ok := empty.Pop() // blocks until close
		assert.False(t, ok)
	}()
	go func() {
		defer wg.Done()
		assert.False(t, full.PushBack(2)) // blocks until close
	}()

	time.Sleep(20 * time.Millisecond)
	empty.Close()
	full.Close()
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	q := New[int](2)
	q.PushBack(1)
	q.Close()
	q.Close()

	assert.False(t, q.PushBack(3))
	_, ok := q.Pop()
	assert.False(t, ok)
}
