//go:build !linux

package eventloop

import (
	"fmt"
	"net"

	"github.com/cyberinferno/consolemux/console"
	"github.com/cyberinferno/consolemux/logger"
	"github.com/cyberinferno/consolemux/registry"
)

// EventLoop is only implemented on Linux.
type EventLoop struct{}

// New always fails outside Linux.
func New(Config, int, *console.Console, *registry.Registry, logger.Logger) (*EventLoop, error) {
	return nil, fmt.Errorf("%w: epoll event loop requires linux", ErrSetup)
}

// Run is never reachable because New fails.
func (l *EventLoop) Run() (int, error) {
	return 0, fmt.Errorf("%w: epoll event loop requires linux", ErrSetup)
}

// State reports ShuttingDown.
func (l *EventLoop) State() State {
	return ShuttingDown
}

// Addr is nil outside Linux.
func (l *EventLoop) Addr() net.Addr {
	return nil
}
