package eventloop

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyberinferno/consolemux/client"
	"github.com/cyberinferno/consolemux/console"
	"github.com/cyberinferno/consolemux/launcher"
	"github.com/cyberinferno/consolemux/logger"
	"github.com/cyberinferno/consolemux/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

type runResult struct {
	status int
	err    error
}

type harness struct {
	loop     *EventLoop
	registry *registry.Registry
	child    *launcher.Child
	socket   string
	output   string
	result   chan runResult
}

// start launches script under sh, builds the loop around it and runs it.
// The script may refer to the output file as "$OUT".
func start(t *testing.T, script string) *harness {
	t.Helper()
	dir := shortTempDir(t)
	out := filepath.Join(dir, "out")

	t.Setenv("OUT", out)
	child, err := launcher.Launch("sh", "-c", script)
	require.NoError(t, err)

	con := console.New(child.Console)
	t.Cleanup(func() { _ = con.Close() })

	reg := registry.New(registry.Options{Logger: logger.NewNopLogger()})
	socket := filepath.Join(dir, "c.sock")
	loop, err := New(Config{SocketPath: socket}, child.Pid, con, reg, logger.NewNopLogger())
	if err != nil {
		_ = child.Kill()
		_, _ = unix.Wait4(child.Pid, nil, 0, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, Running, loop.State())

	h := &harness{
		loop:     loop,
		registry: reg,
		child:    child,
		socket:   socket,
		output:   out,
		result:   make(chan runResult, 1),
	}

	go func() {
		status, err := loop.Run()
		h.result <- runResult{status: status, err: err}
	}()

	return h
}

func (h *harness) wait(t *testing.T) int {
	t.Helper()
	select {
	case r := <-h.result:
		require.NoError(t, r.err)
		assert.Equal(t, ShuttingDown, h.loop.State())
		assert.Equal(t, 0, h.registry.Len())
		return r.status
	case <-time.After(10 * time.Second):
		t.Fatal("event loop did not stop")
		return 0
	}
}

func (h *harness) dial(t *testing.T) *client.Client {
	t.Helper()
	c := client.New(client.DefaultConfig(h.socket))
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) readOutput(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.output)
	require.NoError(t, err)
	return string(data)
}

func TestEventLoop_ExitCode(t *testing.T) {
	h := start(t, "sleep 0.2; exit 7")
	assert.Equal(t, 7, h.wait(t))
}

func TestEventLoop_ChildAlreadyExited(t *testing.T) {
	dir := shortTempDir(t)
	child, err := launcher.Launch("sh", "-c", "exit 5")
	require.NoError(t, err)
	con := console.New(child.Console)
	defer con.Close()

	require.Eventually(t, func() bool { return isZombie(child.Pid) }, 5*time.Second, 10*time.Millisecond)

	reg := registry.New(registry.Options{})
	loop, err := New(Config{SocketPath: filepath.Join(dir, "c.sock")}, child.Pid, con, reg, logger.NewNopLogger())
	require.NoError(t, err)

	status, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, 5, status)
	assert.Equal(t, ShuttingDown, loop.State())

	_, err = net.Dial("unix", filepath.Join(dir, "c.sock"))
	assert.Error(t, err)
}

func isZombie(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}

	// The state follows the parenthesised command name.
	stat := string(data)
	i := strings.LastIndexByte(stat, ')')
	return i >= 0 && i+2 < len(stat) && stat[i+2] == 'Z'
}

func TestEventLoop_SignalSentinel(t *testing.T) {
	t.Run("child kills itself", func(t *testing.T) {
		h := start(t, "sleep 0.2; kill -9 $$")
		assert.Equal(t, SignaledStatus, h.wait(t))
	})

	t.Run("external SIGTERM", func(t *testing.T) {
		h := start(t, "exec sleep 30")
		require.NoError(t, unix.Kill(h.child.Pid, unix.SIGTERM))
		assert.Equal(t, SignaledStatus, h.wait(t))
	})
}

func TestEventLoop_SingleConnectionOrder(t *testing.T) {
	h := start(t, `head -n 5 > "$OUT"`)
	c := h.dial(t)

	var want strings.Builder
	for i := range 5 {
		line := fmt.Sprintf("command %d", i)
		require.NoError(t, c.SendLine(line))
		want.WriteString(line + "\n")
	}

	assert.Equal(t, 0, h.wait(t))
	assert.Equal(t, want.String(), h.readOutput(t))
}

func TestEventLoop_ConcurrentConnections(t *testing.T) {
	const clients, lines = 6, 40
	h := start(t, fmt.Sprintf(`head -n %d > "$OUT"`, clients*lines))

	var g errgroup.Group
	for i := range clients {
		c := h.dial(t)
		g.Go(func() error {
			for j := range lines {
				if err := c.SendLine(fmt.Sprintf("client-%02d-line-%03d-%s", i, j, strings.Repeat("x", 64))); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, h.wait(t))

	got := strings.Split(strings.TrimSuffix(h.readOutput(t), "\n"), "\n")
	require.Len(t, got, clients*lines)

	next := make(map[int]int)
	for _, line := range got {
		var id, seq int
		var pad string
		_, err := fmt.Sscanf(line, "client-%02d-line-%03d-%s", &id, &seq, &pad)
		require.NoError(t, err, "mangled line %q", line)
		assert.Len(t, pad, 64)
		assert.Equal(t, next[id], seq, "client %d out of order", id)
		next[id]++
	}
}

func TestEventLoop_PartialLineForwarded(t *testing.T) {
	h := start(t, `head -c 9 > "$OUT"`)
	c := h.dial(t)

	require.NoError(t, c.SendRaw([]byte("a\npartial")))
	require.NoError(t, c.Close())

	assert.Equal(t, 0, h.wait(t))
	assert.Equal(t, "a\npartial", h.readOutput(t))
}

func TestEventLoop_DrainsOpenConnections(t *testing.T) {
	h := start(t, `read line; echo "$line" > "$OUT"; exit 3`)

	idle, err := net.Dial("unix", h.socket)
	require.NoError(t, err)
	defer idle.Close()
	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, 5*time.Second, 5*time.Millisecond)

	sender := h.dial(t)
	require.NoError(t, sender.SendLine("go"))

	assert.Equal(t, 3, h.wait(t))
	assert.Equal(t, "go\n", h.readOutput(t))

	require.NoError(t, idle.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := idle.Read(make([]byte, 1))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = net.Dial("unix", h.socket)
	assert.Error(t, err, "connections after shutdown must be refused")
}

func TestEventLoop_ClientOutlivesChildInput(t *testing.T) {
	// The child stops reading after one line but keeps running; the rest of
	// the client's lines hit a broken pipe and only that worker stops.
	h := start(t, `head -n 1 > "$OUT"; exec 0<&-; sleep 0.5; exit 4`)
	c := h.dial(t)

	for i := range 3 {
		_ = c.SendLine(fmt.Sprintf("line %d", i))
	}

	assert.Equal(t, 4, h.wait(t))
	assert.Equal(t, "line 0\n", h.readOutput(t))
}

func TestNew_SetupFailure(t *testing.T) {
	dir := shortTempDir(t)
	con := console.New(nopWriteCloser{&bytes.Buffer{}})

	_, err := New(Config{SocketPath: filepath.Join(dir, "missing", "c.sock")}, os.Getpid(), con, registry.New(registry.Options{}), logger.NewNopLogger())
	assert.ErrorIs(t, err, ErrSetup)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
