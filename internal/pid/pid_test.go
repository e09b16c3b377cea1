package pid_test

import (
	"os"
	"strconv"
	"testing"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	require.NoError(t, pid.Write())

	data, err := os.ReadFile(pid.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, pid.Remove())
	_, err = os.Stat(pid.Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, pid.Remove())
}

func TestWriteReplacesStaleFile(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	require.NoError(t, os.WriteFile(pid.Path(), []byte("garbage"), 0o600))
	require.NoError(t, pid.Write())
}

func TestWriteDetectsRunningInstance(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	// The parent process (the test runner) is alive for the whole test.
	require.NoError(t, os.WriteFile(pid.Path(), []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := pid.Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}
