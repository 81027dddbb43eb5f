// Package console wraps the write end of the child's stdin pipe. Every
// connection shares one Console; WriteLine holds the lock for the whole
// line so bytes from different connections never interleave within a line.
package console

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
)

var (
	// ErrPoisoned is the panic value raised by WriteLine once a previous
	// write panicked mid-line. The pipe contents are then of unknown
	// consistency and the process must not keep writing.
	ErrPoisoned = errors.New("console lock poisoned")

	// ErrClosed is returned by WriteLine after Close.
	ErrClosed = errors.New("console closed")
)

// Console is the shared, mutually exclusive write target.
type Console struct {
	mu       sync.Mutex
	w        io.WriteCloser
	poisoned bool
	closed   bool
}

// New wraps w. The Console owns w and closes it in Close.
func New(w io.WriteCloser) *Console {
	return &Console{w: w}
}

// WriteLine writes line in full while holding the console lock. It panics
// with ErrPoisoned if an earlier WriteLine panicked.
//
// Parameters:
//   - line: The bytes to write, normally ending with '\n'
//
// Returns:
//   - An error wrapping the underlying write failure; use IsBrokenPipe to
//     detect that the child closed its stdin
func (c *Console) WriteLine(line []byte) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		panic(ErrPoisoned)
	}

	if c.closed {
		return ErrClosed
	}

	completed := false
	defer func() {
		if !completed {
			c.poisoned = true
		}
	}()

	for len(line) > 0 {
		n, werr := c.w.Write(line)
		if werr != nil {
			completed = true
			return fmt.Errorf("console write failed: %w", werr)
		}

		line = line[n:]
	}

	completed = true
	return nil
}

// Poisoned reports whether a write panicked while holding the lock.
func (c *Console) Poisoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}

// Close closes the underlying writer. Safe to call multiple times.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.w.Close()
}

// IsBrokenPipe reports whether err means the reading side of the pipe is gone.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
