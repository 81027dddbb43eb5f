// Package registry tracks live client connections and the goroutines
// serving them. Entries are added at accept time and removed exactly once,
// either by the goroutine itself when its work returns or by Drain.
package registry

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"

	"github.com/cyberinferno/consolemux/console"
	"github.com/cyberinferno/consolemux/idgenerator"
	"github.com/cyberinferno/consolemux/logger"
	"github.com/cyberinferno/consolemux/safemap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrDraining is returned by Add once Drain has started.
	ErrDraining = errors.New("registry is draining")

	// ErrLimitReached is returned by Add when MaxConnections are already active.
	ErrLimitReached = errors.New("connection limit reached")
)

// Work serves one connection. It returns when the peer disconnects, an
// error occurs, or the connection is shut down by Drain.
type Work func(id uint64, conn net.Conn)

// Options configures a Registry.
type Options struct {
	Logger logger.Logger
	// MaxConnections caps concurrently served connections. Zero means no cap.
	MaxConnections int64
}

type entry struct {
	id   uint64
	conn net.Conn
	done chan struct{}
	// recovered holds a panic value from Work; read only after done is closed.
	recovered any
}

// Registry is safe for concurrent use. The zero value is not usable; call New.
type Registry struct {
	logger  logger.Logger
	ids     *idgenerator.IdGenerator
	entries *safemap.SafeMap[uint64, *entry]
	limit   *semaphore.Weighted
	wg      sync.WaitGroup

	mu       sync.Mutex
	draining bool
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	r := &Registry{
		logger:  log,
		ids:     idgenerator.NewIdGenerator(),
		entries: safemap.NewSafeMap[uint64, *entry](),
	}

	if opts.MaxConnections > 0 {
		r.limit = semaphore.NewWeighted(opts.MaxConnections)
	}

	return r
}

// Add registers conn and starts a goroutine running work against it. The
// entry is stored before the goroutine starts, so a worker that finishes
// immediately still finds itself. If the connection cannot be accepted conn
// is closed and an error returned.
//
// Parameters:
//   - conn: The accepted connection; owned by the registry from now on
//   - work: The function serving the connection
//
// Returns:
//   - The generation id identifying the entry
//   - ErrDraining or ErrLimitReached if the connection was rejected
func (r *Registry) Add(conn net.Conn, work Work) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		_ = conn.Close()
		return idgenerator.Invalid, ErrDraining
	}

	if r.limit != nil && !r.limit.TryAcquire(1) {
		_ = conn.Close()
		return idgenerator.Invalid, ErrLimitReached
	}

	e := &entry{
		id:   r.ids.Next(),
		conn: conn,
		done: make(chan struct{}),
	}

	r.entries.Store(e.id, e)
	r.wg.Add(1)
	go r.serve(e, work)

	return e.id, nil
}

func (r *Registry) serve(e *entry, work Work) {
	defer r.wg.Done()
	defer close(e.done)

	defer func() {
		if r.limit != nil {
			r.limit.Release(1)
		}

		_ = e.conn.Close()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			if err, ok := rec.(error); ok && errors.Is(err, console.ErrPoisoned) {
				panic(rec)
			}

			e.recovered = rec
		}

		if _, removed := r.entries.LoadAndDelete(e.id); removed && e.recovered != nil {
			r.logger.Error("connection worker panicked",
				logger.Field{Key: "conn", Value: e.id},
				logger.Field{Key: "panic", Value: fmt.Sprint(e.recovered)})
		}
	}()

	work(e.id, e.conn)
}

// Drain stops accepting new entries, takes every remaining entry, shuts
// each connection down in both directions and waits for its goroutine.
// Panics recovered from workers are logged, never propagated. Drain returns
// only after every goroutine started by Add has finished. It is safe to
// call more than once.
//
// Returns:
//   - The number of entries drained by this call
func (r *Registry) Drain() int {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	taken := r.entries.TakeAll()
	ids := make([]uint64, 0, len(taken))
	for id := range taken {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		e := taken[id]
		if err := shutdown(e.conn); err != nil && !errors.Is(err, net.ErrClosed) {
			r.logger.Warn("connection shutdown failed",
				logger.Field{Key: "conn", Value: id}, logger.Err(err))
		}

		<-e.done
		if e.recovered != nil {
			r.logger.Error("connection worker panicked",
				logger.Field{Key: "conn", Value: id},
				logger.Field{Key: "panic", Value: fmt.Sprint(e.recovered)})
		}
	}

	r.wg.Wait()

	if len(ids) > 0 {
		r.logger.Info("connections drained", logger.Field{Key: "count", Value: len(ids)})
	}

	return len(ids)
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// shutdown forces any read blocked on conn to return. Unix and TCP
// connections are half-closed in both directions; anything else is closed.
func shutdown(conn net.Conn) error {
	hc, ok := conn.(interface {
		CloseRead() error
		CloseWrite() error
	})
	if !ok {
		return conn.Close()
	}

	return errors.Join(hc.CloseRead(), hc.CloseWrite())
}
