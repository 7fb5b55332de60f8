// Package reactor wraps the epoll readiness facility. The Epoller is a pure
// multiplexer: it owns no connection state and its control-plane calls
// (Add, Mod, Del) may be issued from worker goroutines while the reactor
// goroutine is blocked in Wait, which epoll permits.
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Event bits re-exported so callers do not import unix directly.
const (
	EventIn      = uint32(unix.EPOLLIN)
	EventOut     = uint32(unix.EPOLLOUT)
	EventRDHup   = uint32(unix.EPOLLRDHUP)
	EventHup     = uint32(unix.EPOLLHUP)
	EventErr     = uint32(unix.EPOLLERR)
	EventET      = uint32(unix.EPOLLET)
	EventOneShot = uint32(unix.EPOLLONESHOT)
)

type Epoller struct {
	epfd   int
	events []unix.EpollEvent
}

func New(maxEvents int) (*Epoller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Epoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func (e *Epoller) Add(fd int, events uint32) bool {
	if fd < 0 {
		return false
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev) == nil
}

func (e *Epoller) Mod(fd int, events uint32) bool {
	if fd < 0 {
		return false
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &ev) == nil
}

func (e *Epoller) Del(fd int) bool {
	if fd < 0 {
		return false
	}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil) == nil
}

// Wait blocks until readiness or timeout (milliseconds, -1 blocks
// indefinitely) and returns the number of ready events. Interrupted waits
// are retried.
func (e *Epoller) Wait(timeoutMS int) (int, error) {
	for {
		n, err := unix.EpollWait(e.epfd, e.events, timeoutMS)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("epoll_wait: %w", err)
		}
		return n, nil
	}
}

// EventFD returns the fd of the i-th ready event from the last Wait.
func (e *Epoller) EventFD(i int) int {
	return int(e.events[i].Fd)
}

// Events returns the readiness bitset of the i-th ready event.
func (e *Epoller) Events(i int) uint32 {
	return e.events[i].Events
}

func (e *Epoller) Close() error {
	return unix.Close(e.epfd)
}
