package eventloop

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/consolemux/console"
	"github.com/cyberinferno/consolemux/logger"
	"github.com/cyberinferno/consolemux/registry"
	"github.com/cyberinferno/consolemux/worker"
	"golang.org/x/sys/unix"
)

var errNoPendingConnection = errors.New("no pending connection")

// EventLoop supervises one child process. Create it with New and call Run
// once from the goroutine that should own the loop.
type EventLoop struct {
	logger   logger.Logger
	pid      int
	console  *console.Console
	registry *registry.Registry

	listener    *net.UnixListener
	listenerFd  int
	termination *terminationSource
	poller      *poller

	state        atomic.Int32
	shutdownOnce sync.Once
}

// New registers both event sources: the SIGCHLD self-pipe first, then the
// listening socket bound at cfg.SocketPath. Nothing blocks until Run.
//
// Parameters:
//   - cfg: Socket settings
//   - pid: Process id of the already started child
//   - con: The console shared by all connections
//   - reg: Registry that receives accepted connections
//   - log: Logger for the loop and its connections
//
// Returns:
//   - The EventLoop in state Running, or an error wrapping ErrSetup
func New(cfg Config, pid int, con *console.Console, reg *registry.Registry, log logger.Logger) (*EventLoop, error) {
	l := &EventLoop{
		logger:   log,
		pid:      pid,
		console:  con,
		registry: reg,
	}

	term, err := newTerminationSource()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	l.termination = term

	ln, err := Listen(cfg.SocketPath, cfg.RemoveStaleSocket)
	if err != nil {
		term.close()
		return nil, err
	}
	l.listener = ln

	if err := l.register(); err != nil {
		term.close()
		_ = ln.Close()
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	l.state.Store(int32(Running))
	return l, nil
}

func (l *EventLoop) register() error {
	p, err := newPoller()
	if err != nil {
		return err
	}

	if err := p.add(l.termination.readFd, terminationToken); err != nil {
		_ = p.close()
		return err
	}

	rc, err := l.listener.SyscallConn()
	if err != nil {
		_ = p.close()
		return fmt.Errorf("listener raw conn: %w", err)
	}

	var addErr error
	if err := rc.Control(func(fd uintptr) {
		l.listenerFd = int(fd)
		addErr = p.add(int(fd), listenerToken)
	}); err != nil {
		addErr = err
	}
	if addErr != nil {
		_ = p.close()
		return addErr
	}

	l.poller = p
	return nil
}

// State returns the current lifecycle state.
func (l *EventLoop) State() State {
	return State(l.state.Load())
}

// Addr returns the listening socket's address.
func (l *EventLoop) Addr() net.Addr {
	return l.listener.Addr()
}

// Run blocks until the child terminates and returns its exit code, or
// SignaledStatus if a signal killed it. By the time Run returns the socket
// is closed and every connection has been shut down and its worker finished.
//
// Returns:
//   - The child's status
//   - A non-nil error only if waiting on the event sources or the child failed
func (l *EventLoop) Run() (int, error) {
	defer l.shutdown()

	status, exited, err := l.reap()
	if err != nil {
		return 0, err
	}
	if exited {
		return status, nil
	}

	l.logger.Info("accepting connections", logger.Field{Key: "socket", Value: l.listener.Addr().String()})

	for {
		token, err := l.poller.wait()
		if err != nil {
			return 0, err
		}

		switch token {
		case listenerToken:
			l.acceptOne()

		case terminationToken:
			if err := l.termination.consume(); err != nil {
				return 0, err
			}

			status, exited, err := l.reap()
			if err != nil {
				return 0, err
			}
			if exited {
				return status, nil
			}
		}
	}
}

// reap checks the child without blocking. Anything but exit or death by
// signal (still running, stopped, continued) is reported as not exited.
func (l *EventLoop) reap() (int, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(l.pid, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("wait for child %d: %w", l.pid, err)
		}
		if wpid == 0 {
			return 0, false, nil
		}

		switch {
		case ws.Exited():
			l.logger.Info("child exited", logger.Field{Key: "pid", Value: l.pid}, logger.Field{Key: "code", Value: ws.ExitStatus()})
			return ws.ExitStatus(), true, nil
		case ws.Signaled():
			l.logger.Info("child terminated by signal", logger.Field{Key: "pid", Value: l.pid}, logger.Field{Key: "signal", Value: ws.Signal().String()})
			return SignaledStatus, true, nil
		default:
			return 0, false, nil
		}
	}
}

func (l *EventLoop) acceptOne() {
	conn, err := l.accept()
	if errors.Is(err, errNoPendingConnection) {
		return
	}
	if err != nil {
		l.logger.Error("accept error", logger.Err(err))
		return
	}

	id, err := l.registry.Add(conn, l.serve)
	if err != nil {
		l.logger.Warn("connection rejected", logger.Err(err))
		return
	}

	l.logger.Debug("connection accepted", logger.Field{Key: "conn", Value: id})
}

func (l *EventLoop) serve(id uint64, conn net.Conn) {
	log := l.logger.With(logger.Field{Key: "conn", Value: id})
	reason := worker.Forward(conn, l.console, log)
	log.Debug("connection finished", logger.Field{Key: "reason", Value: reason.String()})
}

// accept takes exactly one pending connection without ever parking on the
// runtime poller, so a vanished client cannot stall the loop.
func (l *EventLoop) accept() (net.Conn, error) {
	rc, err := l.listener.SyscallConn()
	if err != nil {
		return nil, err
	}

	var nfd int
	var acceptErr error
	if err := rc.Control(func(fd uintptr) {
		nfd, _, acceptErr = unix.Accept4(int(fd), unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	}); err != nil {
		return nil, err
	}

	switch acceptErr {
	case nil:
	case unix.EAGAIN, unix.EINTR, unix.ECONNABORTED:
		return nil, errNoPendingConnection
	default:
		return nil, fmt.Errorf("accept4: %w", acceptErr)
	}

	f := os.NewFile(uintptr(nfd), "unix-conn")
	defer f.Close()

	return net.FileConn(f)
}

// shutdown moves to ShuttingDown, stops watching both sources, closes the
// listener so later connects are refused, and drains the registry.
func (l *EventLoop) shutdown() {
	l.shutdownOnce.Do(func() {
		l.state.Store(int32(ShuttingDown))

		_ = l.poller.remove(l.termination.readFd)
		_ = l.poller.remove(l.listenerFd)
		_ = l.poller.close()
		l.termination.close()

		if err := l.listener.Close(); err != nil {
			l.logger.Warn("listener close failed", logger.Err(err))
		}

		l.registry.Drain()
		l.logger.Info("event loop stopped")
	})
}
