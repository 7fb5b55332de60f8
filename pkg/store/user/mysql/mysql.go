// Package mysql implements the user store against a MySQL `user` table with
// `username` and `password` columns.
//
// The store holds a fixed set of dedicated connections rather than leaning
// on database/sql's dynamic pool: N handles are opened at init and recycled
// through a queue gated by a counting semaphore, so the number of in-flight
// queries never exceeds the configured pool size and a saturated pool
// blocks workers instead of opening new connections.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/semaphore"

	"github.com/chen150182055/WebServer-02/pkg/store/user"
)

// Config collects the connection settings for the MySQL store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// PoolSize is the number of dedicated connections opened at init.
	PoolSize int
}

// Store is a MySQL-backed user.Store with a fixed connection pool.
//
// Invariant: free handles + handles held by callers == PoolSize. The
// semaphore's permit count equals the free-handle count whenever no caller
// is mid-acquire.
type Store struct {
	db   *sql.DB
	sem  *semaphore.Weighted
	mu   sync.Mutex
	free []*sql.Conn
	size int
}

// New opens cfg.PoolSize dedicated connections and verifies the first with
// a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	dsn := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		AllowNativePasswords: true,
	}
	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &Store{
		db:   db,
		sem:  semaphore.NewWeighted(int64(cfg.PoolSize)),
		free: make([]*sql.Conn, 0, cfg.PoolSize),
		size: cfg.PoolSize,
	}
	for i := 0; i < cfg.PoolSize; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open pooled connection %d: %w", i, err)
		}
		s.free = append(s.free, conn)
	}
	return s, nil
}

// handle is a borrowed connection. release returns it to the pool exactly
// once regardless of how many times it is called, so callers can defer it
// on every path.
type handle struct {
	store *Store
	conn  *sql.Conn
	once  sync.Once
}

func (h *handle) release() {
	h.once.Do(func() {
		h.store.mu.Lock()
		h.store.free = append(h.store.free, h.conn)
		h.store.mu.Unlock()
		h.store.sem.Release(1)
	})
}

// acquire blocks on the semaphore until a handle is free or ctx is done.
func (s *Store) acquire(ctx context.Context) (*handle, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire db handle: %w", err)
	}
	s.mu.Lock()
	conn := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	s.mu.Unlock()
	return &handle{store: s, conn: conn}, nil
}

// FreeCount returns the number of handles currently in the pool.
func (s *Store) FreeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.free)
}

func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	h, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer h.release()

	var stored string
	row := h.conn.QueryRowContext(ctx,
		"SELECT password FROM user WHERE username = ? LIMIT 1", username)
	if err := row.Scan(&stored); err != nil {
		if err == sql.ErrNoRows {
			return user.ErrBadCredentials
		}
		return fmt.Errorf("query user: %w", err)
	}
	if stored != password {
		return user.ErrBadCredentials
	}
	return nil
}

func (s *Store) Register(ctx context.Context, username, password string) error {
	h, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer h.release()

	var existing string
	row := h.conn.QueryRowContext(ctx,
		"SELECT username FROM user WHERE username = ? LIMIT 1", username)
	switch err := row.Scan(&existing); err {
	case sql.ErrNoRows:
	case nil:
		return user.ErrUserExists
	default:
		return fmt.Errorf("query user: %w", err)
	}

	if _, err := h.conn.ExecContext(ctx,
		"INSERT INTO user(username, password) VALUES(?, ?)", username, password); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Close closes every pooled handle and the underlying database. Handles
// still borrowed are reclaimed as their holders release them, so Close
// waits on the semaphore for all of them.
func (s *Store) Close() error {
	for i := 0; i < s.size; i++ {
		s.sem.Acquire(context.Background(), 1)
	}
	s.mu.Lock()
	for _, conn := range s.free {
		conn.Close()
	}
	s.free = nil
	s.mu.Unlock()
	return s.db.Close()
}
