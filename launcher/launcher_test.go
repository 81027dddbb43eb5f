//go:build unix

package launcher

import (
	"testing"

	"github.com/cyberinferno/consolemux/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func reap(t *testing.T, pid int) unix.WaitStatus {
	t.Helper()
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, 0, nil)
		if err == unix.EINTR {
			continue
		}

		require.NoError(t, err)
		return status
	}
}

func TestLaunch_StdinIsPipe(t *testing.T) {
	child, err := Launch("sh", "-c", `read line; [ "$line" = hello ] && exit 3; exit 4`)
	require.NoError(t, err)
	assert.Positive(t, child.Pid)

	_, err = child.Console.Write([]byte("hello\n"))
	require.NoError(t, err)

	status := reap(t, child.Pid)
	require.True(t, status.Exited())
	assert.Equal(t, 3, status.ExitStatus())
	assert.NoError(t, child.Console.Close())
}

func TestLaunch_StdinEOFWhenConsoleClosed(t *testing.T) {
	child, err := Launch("sh", "-c", `cat >/dev/null; exit 9`)
	require.NoError(t, err)

	require.NoError(t, child.Console.Close())

	status := reap(t, child.Pid)
	require.True(t, status.Exited())
	assert.Equal(t, 9, status.ExitStatus())
}

func TestLaunch_BrokenPipeAfterExit(t *testing.T) {
	child, err := Launch("true")
	require.NoError(t, err)
	reap(t, child.Pid)

	c := console.New(child.Console)
	defer c.Close()

	err = c.WriteLine([]byte("too late\n"))
	require.Error(t, err)
	assert.True(t, console.IsBrokenPipe(err))
}

func TestLaunch_Kill(t *testing.T) {
	child, err := Launch("sleep", "30")
	require.NoError(t, err)
	defer child.Console.Close()

	require.NoError(t, child.Kill())

	status := reap(t, child.Pid)
	require.True(t, status.Signaled())
	assert.Equal(t, unix.SIGKILL, status.Signal())
}

func TestLaunch_Abort(t *testing.T) {
	child, err := Launch("sleep", "30")
	require.NoError(t, err)

	require.NoError(t, child.Abort())

	_, err = unix.Wait4(child.Pid, nil, unix.WNOHANG, nil)
	assert.ErrorIs(t, err, unix.ECHILD)
}

func TestLaunch_SetupFailure(t *testing.T) {
	t.Run("unknown executable", func(t *testing.T) {
		_, err := Launch("consolemux-definitely-missing-binary")
		assert.ErrorIs(t, err, ErrSetup)
	})

	t.Run("not executable", func(t *testing.T) {
		_, err := Launch(t.TempDir())
		assert.ErrorIs(t, err, ErrSetup)
	})
}
