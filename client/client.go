// Package client sends newline-delimited text to a running supervisor over
// its Unix socket. There is no handshake or acknowledgement: a line is
// delivered once the supervisor reads it and forwards it to the child.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// ConnectionState represents the current state of the client connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // not connected yet
	Connected                           // connected and able to send
	Closed                              // closed; the client cannot be reused
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	// ErrNotConnected is returned when sending before Connect.
	ErrNotConnected = errors.New("client is not connected")

	// ErrClosed is returned when using a closed client.
	ErrClosed = errors.New("client is closed")
)

// Config holds configuration for the client.
type Config struct {
	// SocketPath is the supervisor's listening socket.
	SocketPath string
	// DialTimeout bounds connection establishment; 0 means no timeout.
	DialTimeout time.Duration
	// WriteTimeout bounds each line write; 0 means no timeout.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with a 5s dial timeout and 10s write timeout.
//
// Parameters:
//   - socketPath: The supervisor's socket path
//
// Returns:
//   - A Config with default timeouts
func DefaultConfig(socketPath string) Config {
	return Config{
		SocketPath:   socketPath,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Client is a line sender. It is safe for concurrent use; concurrent
// SendLine calls never interleave bytes within a line.
type Client struct {
	config Config

	mu    sync.Mutex
	conn  net.Conn
	state ConnectionState
}

// New creates a client in the Disconnected state.
func New(config Config) *Client {
	return &Client{config: config, state: Disconnected}
}

// Connect dials the supervisor socket.
//
// Returns:
//   - An error if the client is closed, already connected, or the dial fails
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		return ErrClosed
	case Connected:
		return fmt.Errorf("already connected to %s", c.config.SocketPath)
	}

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.Dial("unix", c.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.config.SocketPath, err)
	}

	c.conn = conn
	c.state = Connected
	return nil
}

// SendLine sends line, appending '\n' if it does not already end with one.
//
// Parameters:
//   - line: The text to send
//
// Returns:
//   - An error if the client is not connected or the write fails
func (c *Client) SendLine(line string) error {
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}

	return c.write([]byte(line))
}

// SendRaw sends data exactly as given, without adding a delimiter.
func (c *Client) SendRaw(data []byte) error {
	return c.write(data)
}

// SendFrom copies r to the supervisor line by line until r is exhausted.
// A trailing line without '\n' is sent as-is.
//
// Parameters:
//   - r: The source of lines
//
// Returns:
//   - The number of lines sent
//   - The first read or write error, if any
func (c *Client) SendFrom(r io.Reader) (int, error) {
	reader := bufio.NewReader(r)
	sent := 0

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			if err := c.write(line); err != nil {
				return sent, err
			}

			sent++
		}

		if errors.Is(readErr, io.EOF) {
			return sent, nil
		}
		if readErr != nil {
			return sent, fmt.Errorf("failed to read input: %w", readErr)
		}
	}
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		return ErrClosed
	case Disconnected:
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close closes the connection. It is safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return nil
	}

	c.state = Closed
	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
