// Package worker forwards newline-delimited text from one client connection
// into the shared console.
package worker

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/cyberinferno/consolemux/console"
	"github.com/cyberinferno/consolemux/logger"
)

const readBufferSize = 4096

// LineWriter accepts one complete line per call and writes it atomically.
type LineWriter interface {
	WriteLine(line []byte) error
}

// Reason tells why Forward returned.
type Reason int

const (
	EndOfStream  Reason = iota // peer closed the connection
	ConsoleGone                // child closed its stdin (broken pipe)
	ReadFailed                 // any other read error
	WriteFailed                // any other console write error
)

// String returns a human-readable name for the reason.
func (r Reason) String() string {
	switch r {
	case EndOfStream:
		return "EndOfStream"
	case ConsoleGone:
		return "ConsoleGone"
	case ReadFailed:
		return "ReadFailed"
	case WriteFailed:
		return "WriteFailed"
	default:
		return "Unknown"
	}
}

// Forward reads lines from src and writes each one, delimiter included and
// otherwise unchanged, to dst. A trailing line without '\n' is forwarded
// when the stream ends. Forward never retries: the first error ends it.
//
// Parameters:
//   - src: The client connection
//   - dst: The console
//   - log: Logger scoped to the connection
//
// Returns:
//   - The Reason forwarding stopped
func Forward(src io.Reader, dst LineWriter, log logger.Logger) Reason {
	reader := bufio.NewReaderSize(src, readBufferSize)
	lines := 0

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			if err := dst.WriteLine(line); err != nil {
				if console.IsBrokenPipe(err) || errors.Is(err, console.ErrClosed) {
					log.Info("console closed by child, dropping connection",
						logger.Field{Key: "lines", Value: lines})
					return ConsoleGone
				}

				log.Warn("console write error", logger.Err(err))
				return WriteFailed
			}

			lines++
		}

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			log.Debug("connection closed by peer", logger.Field{Key: "lines", Value: lines})
			return EndOfStream
		}

		if errors.Is(readErr, net.ErrClosed) || errors.Is(readErr, io.ErrClosedPipe) {
			log.Debug("connection shut down", logger.Field{Key: "lines", Value: lines})
		} else {
			log.Warn("connection read error", logger.Err(readErr))
		}

		return ReadFailed
	}
}
