package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/chen150182055/WebServer-02/internal/http"
	"github.com/chen150182055/WebServer-02/internal/logger"
	"github.com/chen150182055/WebServer-02/internal/pool"
	"github.com/chen150182055/WebServer-02/internal/ratelimiter"
	"github.com/chen150182055/WebServer-02/internal/reactor"
	"github.com/chen150182055/WebServer-02/internal/timer"
	"github.com/chen150182055/WebServer-02/pkg/metrics"
	"github.com/chen150182055/WebServer-02/pkg/store/user"
)

const (
	listenBacklog = 6
	maxEvents     = 1024
	busyBody      = "Server busy!"
)

// Config is the process control surface handed to New.
type Config struct {
	// Port must lie in [1024, 65535].
	Port int

	// TrigMode selects edge- or level-triggered notification: bit 0 is the
	// connection sockets, bit 1 the listener.
	TrigMode int

	// TimeoutMS is the per-connection inactivity deadline in milliseconds.
	// Zero disables the timer.
	TimeoutMS int

	// Linger enables SO_LINGER{1,1} on the listener.
	Linger bool

	// MaxConnections caps concurrently open clients; further accepts get a
	// busy response.
	MaxConnections int

	// DocRoot is the static file root. Empty means <cwd>/resources.
	DocRoot string

	// Workers sizes the worker pool.
	Workers int

	// AcceptRPS and AcceptBurst gate the accept loop. Zero RPS disables
	// the limiter.
	AcceptRPS   uint
	AcceptBurst uint
}

// Server owns the listen socket and runs the event loop.
type Server struct {
	cfg    Config
	srcDir string

	listenFd int
	wakeFd   int

	listenEvents uint32
	connEvents   uint32

	ep      *reactor.Epoller
	heap    *timer.HeapTimer
	workers *pool.WorkerPool
	store   user.Store
	metrics *metrics.ServerMetrics
	limiter *ratelimiter.RateLimiter

	// conns is the arena of connection slots keyed by fd, reused across
	// accepts. Written only by the reactor goroutine.
	conns map[int]*http.Conn

	userCount atomic.Int64
	closing   atomic.Bool
	stopOnce  sync.Once
}

// New validates cfg, binds the listen socket, and prepares the reactor.
func New(cfg Config, store user.Store, m *metrics.ServerMetrics) (*Server, error) {
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d outside [1024, 65535]", cfg.Port)
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 65536
	}

	srcDir := cfg.DocRoot
	if srcDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		srcDir = filepath.Join(cwd, "resources")
	}

	s := &Server{
		cfg:     cfg,
		srcDir:  srcDir,
		store:   store,
		metrics: m,
		heap:    timer.New(),
		conns:   make(map[int]*http.Conn),
		limiter: ratelimiter.New(cfg.AcceptRPS, cfg.AcceptBurst),
	}
	s.initEventMode(cfg.TrigMode)

	ep, err := reactor.New(maxEvents)
	if err != nil {
		return nil, err
	}
	s.ep = ep

	if err := s.initSocket(); err != nil {
		s.ep.Close()
		return nil, err
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(s.listenFd)
		s.ep.Close()
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	s.wakeFd = wakeFd
	s.ep.Add(wakeFd, reactor.EventIn)

	s.workers = pool.New(cfg.Workers)

	logger.Info("server configured: port=%d trigMode=%d timeoutMS=%d linger=%v maxConns=%d docRoot=%s",
		cfg.Port, cfg.TrigMode, cfg.TimeoutMS, cfg.Linger, cfg.MaxConnections, srcDir)
	return s, nil
}

// initEventMode derives the epoll flag sets from the trigger mode. Bit 0
// makes connection sockets edge-triggered, bit 1 the listener.
func (s *Server) initEventMode(trigMode int) {
	s.listenEvents = reactor.EventRDHup
	s.connEvents = reactor.EventOneShot | reactor.EventRDHup
	if trigMode < 0 || trigMode > 3 {
		trigMode = 3
	}
	if trigMode&1 != 0 {
		s.connEvents |= reactor.EventET
	}
	if trigMode&2 != 0 {
		s.listenEvents |= reactor.EventET
	}
}

func (s *Server) initSocket() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}

	if s.cfg.Linger {
		// Block close until pending data is flushed, for at most a second.
		lin := unix.Linger{Onoff: 1, Linger: 1}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &lin); err != nil {
			unix.Close(fd)
			return fmt.Errorf("set SO_LINGER: %w", err)
		}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: s.cfg.Port}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind port %d: %w", s.cfg.Port, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen port %d: %w", s.cfg.Port, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set nonblocking: %w", err)
	}

	s.listenFd = fd
	if !s.ep.Add(fd, s.listenEvents|reactor.EventIn) {
		unix.Close(fd)
		return errors.New("register listener with epoll")
	}
	logger.Info("listening on port %d", s.cfg.Port)
	return nil
}

// UserCount returns the number of live connections.
func (s *Server) UserCount() int64 {
	return s.userCount.Load()
}

// Serve runs the event loop until ctx is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logger.Info("server started")
	for !s.closing.Load() {
		timeout := -1
		if s.cfg.TimeoutMS > 0 {
			timeout = s.heap.NextTick()
		}
		n, err := s.ep.Wait(timeout)
		if err != nil {
			logger.Error("reactor wait: %v", err)
			continue
		}
		for i := 0; i < n; i++ {
			fd := s.ep.EventFD(i)
			ev := s.ep.Events(i)

			switch {
			case fd == s.listenFd:
				s.dealListen()
			case fd == s.wakeFd:
				s.drainWake()
			default:
				c := s.conns[fd]
				if c == nil || c.Closed() {
					continue
				}
				switch {
				case ev&(reactor.EventRDHup|reactor.EventHup|reactor.EventErr) != 0:
					s.closeConn(c)
				case ev&reactor.EventIn != 0:
					s.dealRead(ctx, c)
				case ev&reactor.EventOut != 0:
					s.dealWrite(ctx, c)
				default:
					logger.Error("unexpected event 0x%x on fd %d", ev, fd)
				}
			}
		}
	}

	s.shutdown()
	return nil
}

// Stop requests shutdown and wakes the reactor. Safe to call more than
// once and from any goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.closing.Store(true)
		var one [8]byte
		binary.LittleEndian.PutUint64(one[:], 1)
		unix.Write(s.wakeFd, one[:])
	})
}

func (s *Server) shutdown() {
	logger.Info("server shutting down")
	s.workers.Close()
	for _, c := range s.conns {
		if !c.Closed() {
			s.closeConn(c)
		}
	}
	s.heap.Clear()
	s.ep.Close()
	unix.Close(s.listenFd)
	unix.Close(s.wakeFd)
	logger.Info("server stopped")
}

func (s *Server) drainWake() {
	var buf [8]byte
	unix.Read(s.wakeFd, buf[:])
}

// dealListen accepts pending clients. Under an edge-triggered listener the
// loop drains the accept queue; level-triggered takes one client and trusts
// the next event.
func (s *Server) dealListen() {
	for {
		fd, sa, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err != unix.EAGAIN && err != unix.ECONNABORTED {
				logger.Warn("accept: %v", err)
			}
			return
		}

		switch {
		case !s.limiter.Allow():
			unix.Close(fd)
		case s.userCount.Load() >= int64(s.cfg.MaxConnections):
			s.sendBusy(fd)
			s.metrics.BusyRejected()
			logger.Warn("clients full, rejected fd %d", fd)
		default:
			s.addClient(fd, sa)
		}

		if s.listenEvents&reactor.EventET == 0 {
			return
		}
	}
}

// sendBusy transmits a minimal busy response and closes the socket.
func (s *Server) sendBusy(fd int) {
	resp := fmt.Sprintf("HTTP/1.1 503 Service Unavailable\r\nConnection: close\r\nContent-length: %d\r\n\r\n%s",
		len(busyBody), busyBody)
	if _, err := unix.Write(fd, []byte(resp)); err != nil {
		logger.Warn("send busy response to fd %d: %v", fd, err)
	}
	unix.Close(fd)
}

func (s *Server) addClient(fd int, sa unix.Sockaddr) {
	c := s.conns[fd]
	if c == nil {
		c = http.NewConn(s.connEvents&reactor.EventET != 0, s.srcDir, s.store)
		s.conns[fd] = c
	}
	c.Init(fd, sockaddrString(sa))

	s.userCount.Add(1)
	s.metrics.ConnOpened()

	if s.cfg.TimeoutMS > 0 {
		timeout := time.Duration(s.cfg.TimeoutMS) * time.Millisecond
		s.heap.Add(fd, timeout, func() { s.onTimeout(fd) })
	}
	s.ep.Add(fd, s.connEvents|reactor.EventIn)
	logger.Info("client[%d] in from %s, userCount=%d", fd, c.RemoteAddr(), s.userCount.Load())
}

// onTimeout fires on the reactor goroutine when a connection sat idle past
// its deadline. The slot may already be closed or rebound; both are fine to
// ignore.
func (s *Server) onTimeout(fd int) {
	c := s.conns[fd]
	if c == nil || c.Closed() || c.FD() != fd {
		return
	}
	s.metrics.TimedOut()
	logger.Info("client[%d] timed out", fd)
	s.closeConn(c)
}

// closeConn unregisters and closes a connection at most once, whichever
// thread gets there first.
func (s *Server) closeConn(c *http.Conn) {
	fd := c.FD()
	s.ep.Del(fd)
	if c.Close() {
		s.userCount.Add(-1)
		s.metrics.ConnClosed()
		logger.Info("client[%d] quit, userCount=%d", fd, s.userCount.Load())
	}
}

// extendTime postpones the connection's inactivity deadline.
func (s *Server) extendTime(c *http.Conn) {
	if s.cfg.TimeoutMS > 0 {
		s.heap.Adjust(c.FD(), time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
	}
}

func (s *Server) dealRead(ctx context.Context, c *http.Conn) {
	s.extendTime(c)
	s.workers.Submit(func() { s.onRead(ctx, c) })
}

func (s *Server) dealWrite(ctx context.Context, c *http.Conn) {
	s.extendTime(c)
	s.workers.Submit(func() { s.onWrite(ctx, c) })
}

func (s *Server) onRead(ctx context.Context, c *http.Conn) {
	_, err := c.Read()
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		// EOF from the peer, a reset, or a socket closed under us.
		s.closeConn(c)
		return
	}
	s.onProcess(ctx, c)
}

// onProcess runs the connection state machine and re-arms the fd for the
// direction it needs next.
func (s *Server) onProcess(ctx context.Context, c *http.Conn) {
	if c.Process(ctx) {
		s.metrics.Response(c.StatusCode())
		s.ep.Mod(c.FD(), s.connEvents|reactor.EventOut)
	} else {
		s.ep.Mod(c.FD(), s.connEvents|reactor.EventIn)
	}
}

func (s *Server) onWrite(ctx context.Context, c *http.Conn) {
	_, err := c.Write()
	if c.ToWriteBytes() == 0 {
		// Response fully transmitted.
		if c.IsKeepAlive() {
			s.onProcess(ctx, c)
			return
		}
		s.closeConn(c)
		return
	}
	if err == nil || errors.Is(err, unix.EAGAIN) {
		// Socket buffer full: wait for writability again.
		s.ep.Mod(c.FD(), s.connEvents|reactor.EventOut)
		return
	}
	s.closeConn(c)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
