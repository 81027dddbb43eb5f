package eventloop

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"
)

const staleProbeTimeout = 200 * time.Millisecond

// Listen binds a Unix stream socket at path. The socket file is unlinked
// when the listener is closed. With removeStale, an existing socket file
// that refuses connections is removed first; anything else at path is left
// alone and reported.
//
// Parameters:
//   - path: Filesystem path for the socket
//   - removeStale: Whether to clean up a dead socket left by a previous run
//
// Returns:
//   - The bound listener, or an error wrapping ErrSetup
func Listen(path string, removeStale bool) (*net.UnixListener, error) {
	if removeStale {
		if err := removeStaleSocket(path); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("%w: bind %s: %w", ErrSetup, path, err)
	}

	ln.SetUnlinkOnClose(true)
	return ln, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, staleProbeTimeout)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%s is in use by another process", path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}

	return nil
}
