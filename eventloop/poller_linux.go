package eventloop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Tokens identify which source an epoll event belongs to.
const (
	terminationToken int32 = 0
	listenerToken    int32 = 1
)

// poller is a level-triggered epoll instance delivering one event per wait.
type poller struct {
	fd     int
	events []unix.EpollEvent
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	return &poller{fd: fd, events: make([]unix.EpollEvent, 1)}, nil
}

func (p *poller) add(fd int, token int32) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: token}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}

	return nil
}

func (p *poller) remove(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}

	return nil
}

// wait blocks without timeout until a source is ready and returns its
// token. Only one slot is requested; other ready sources stay ready and are
// reported by the next call.
func (p *poller) wait() (int32, error) {
	for {
		n, err := unix.EpollWait(p.fd, p.events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("epoll_wait: %w", err)
		}
		if n > 0 {
			return p.events[0].Fd, nil
		}
	}
}

func (p *poller) close() error {
	return unix.Close(p.fd)
}
