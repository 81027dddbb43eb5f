package eventloop

import (
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// terminationSource turns SIGCHLD deliveries into readability of a
// non-blocking self-pipe so they can be multiplexed with the listener.
type terminationSource struct {
	readFd  int
	writeFd int
	signals chan os.Signal
	done    chan struct{}
}

func newTerminationSource() (*terminationSource, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("self-pipe: %w", err)
	}

	s := &terminationSource{
		readFd:  fds[0],
		writeFd: fds[1],
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}

	signal.Notify(s.signals, unix.SIGCHLD)
	go s.forward()

	return s, nil
}

func (s *terminationSource) forward() {
	defer close(s.done)

	for range s.signals {
		// EAGAIN means the pipe is full and a wakeup is already pending.
		_, _ = unix.Write(s.writeFd, []byte{1})
	}
}

// consume empties the self-pipe so the source is no longer readable.
func (s *terminationSource) consume() error {
	var buf [64]byte
	for {
		n, err := unix.Read(s.readFd, buf[:])
		switch {
		case err == unix.EAGAIN:
			return nil
		case err == unix.EINTR:
			continue
		case err != nil:
			return fmt.Errorf("read self-pipe: %w", err)
		case n < len(buf):
			return nil
		}
	}
}

func (s *terminationSource) close() {
	signal.Stop(s.signals)
	close(s.signals)
	<-s.done

	_ = unix.Close(s.readFd)
	_ = unix.Close(s.writeFd)
}
