package http

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/chen150182055/WebServer-02/internal/buffer"
	"github.com/chen150182055/WebServer-02/internal/logger"
	"github.com/chen150182055/WebServer-02/pkg/store/user"
)

// writeDrainThreshold keeps the write loop going under level-triggered mode
// while a large mapped file remains, instead of bouncing through epoll for
// every socket-buffer refill.
const writeDrainThreshold = 10240

// Conn carries the per-client state: the input and output buffers, the
// incremental request parser, the composed response, and the two-segment
// vector for the gathered write.
//
// A Conn is owned by at most one worker at any instant (one-shot arming
// serializes access); only Close and Closed are called concurrently.
type Conn struct {
	fd         int
	remoteAddr string
	et         bool
	srcDir     string
	store      user.Store

	inBuf  *buffer.Buffer
	outBuf *buffer.Buffer
	req    Request
	resp   Response
	iov    [2][]byte

	closed atomic.Bool
}

// NewConn creates an unbound connection slot. The server keeps one per fd
// and rebinds it on each accept via Init.
func NewConn(et bool, srcDir string, store user.Store) *Conn {
	return &Conn{
		et:     et,
		srcDir: srcDir,
		store:  store,
		inBuf:  buffer.New(),
		outBuf: buffer.New(),
	}
}

// Init binds the slot to a freshly accepted socket and resets all request
// state.
func (c *Conn) Init(fd int, remoteAddr string) {
	c.fd = fd
	c.remoteAddr = remoteAddr
	c.resp.Unmap()
	c.inBuf.RetrieveAll()
	c.outBuf.RetrieveAll()
	c.req.Reset()
	c.resp = Response{}
	c.iov[0], c.iov[1] = nil, nil
	c.closed.Store(false)
}

func (c *Conn) FD() int            { return c.fd }
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Read drains the socket into the input buffer. Under edge-triggered mode
// it loops until the kernel reports would-block; under level-triggered it
// reads once. Returns io.EOF when the peer has shut down.
func (c *Conn) Read() (int, error) {
	total := 0
	for {
		n, err := c.inBuf.ReadFD(c.fd)
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		if !c.et {
			return total, nil
		}
	}
}

// Write issues gathered writes for the header buffer and the mapped file
// segment, advancing both according to the bytes the kernel accepted.
func (c *Conn) Write() (int, error) {
	total := 0
	for {
		iovs := [][]byte{c.iov[0], c.iov[1]}
		n, err := unix.Writev(c.fd, iovs)
		if err != nil {
			return total, err
		}
		total += n
		c.advance(n)
		if c.ToWriteBytes() == 0 {
			return total, nil
		}
		if !c.et && c.ToWriteBytes() <= writeDrainThreshold {
			return total, nil
		}
	}
}

func (c *Conn) advance(n int) {
	if n > len(c.iov[0]) {
		overflow := n - len(c.iov[0])
		c.iov[1] = c.iov[1][overflow:]
		if len(c.iov[0]) > 0 {
			c.outBuf.RetrieveAll()
			c.iov[0] = nil
		}
		return
	}
	c.outBuf.Retrieve(n)
	c.iov[0] = c.outBuf.Peek()
}

// ToWriteBytes is the number of response bytes not yet accepted by the
// kernel.
func (c *Conn) ToWriteBytes() int {
	return len(c.iov[0]) + len(c.iov[1])
}

// IsKeepAlive reports whether the connection survives the current response.
func (c *Conn) IsKeepAlive() bool {
	return c.resp.KeepAlive()
}

// StatusCode returns the status of the most recently composed response.
func (c *Conn) StatusCode() int {
	return c.resp.Code()
}

// Process drives the parser over the accumulated input and, when a request
// is complete (or hopeless), composes the response and arms the write
// vector. Returns true when there is a response to write, false when more
// input is needed.
func (c *Conn) Process(ctx context.Context) bool {
	if c.req.finished() {
		// Previous request fully handled: reset for the next one on this
		// keep-alive session.
		c.req.Reset()
		c.resp.Unmap()
		c.outBuf.RetrieveAll()
	}
	if c.inBuf.ReadableBytes() <= 0 {
		return false
	}

	switch c.req.Parse(c.inBuf) {
	case ParseNeedMore:
		return false
	case ParseMalformed:
		c.resp.Init(c.srcDir, c.req.Path(), false, 400)
	default:
		reqPath, code := c.dispatch(ctx)
		c.resp.Init(c.srcDir, reqPath, c.req.IsKeepAlive(), code)
	}

	c.resp.Make(c.outBuf)
	c.iov[0] = c.outBuf.Peek()
	c.iov[1] = c.resp.File()
	return true
}

// dispatch routes login and register POSTs through the user store and maps
// the outcome to the page that gets served.
func (c *Conn) dispatch(ctx context.Context) (string, int) {
	reqPath := c.req.Path()
	if c.req.Method() != "POST" || (reqPath != "/login.html" && reqPath != "/register.html") {
		return reqPath, 200
	}

	username := c.req.Post("username")
	password := c.req.Post("password")
	var err error
	if reqPath == "/login.html" {
		err = c.store.Authenticate(ctx, username, password)
	} else {
		err = c.store.Register(ctx, username, password)
	}
	switch {
	case err == nil:
		return "/welcome.html", 200
	case errors.Is(err, user.ErrBadCredentials), errors.Is(err, user.ErrUserExists):
		return "/error.html", 200
	default:
		logger.Error("user store error for %s: %v", c.remoteAddr, err)
		return reqPath, 500
	}
}

// Close shuts the socket down exactly once and releases the mapped file.
// Returns true on the call that actually closed it.
func (c *Conn) Close() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	c.resp.Unmap()
	unix.Close(c.fd)
	return true
}

// Closed reports whether Close has run.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}
