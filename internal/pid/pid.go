package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/qualityctl/internal/errors"
)

const (
	pidFile = "qualityctl.pid"
)

// Path returns the PID file location: $XDG_RUNTIME_DIR if set, otherwise the
// system temp directory.
func Path() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, pidFile)
}

// Write writes the current process ID to a PID file. A file left behind by a
// process that is no longer running is replaced.
func Write() error {
	errFactory := errors.New()
	path := Path()

	if running, err := isRunning(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	} else if running {
		return errFactory.WithData(errors.ErrAlreadyRunning, path)
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove() error {
	errFactory := errors.New()
	path := Path()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func isRunning(path string) (bool, error) {
	bytes, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
	if err != nil || pid <= 0 {
		// Unreadable contents are treated as stale.
		return false, nil
	}
	if pid == os.Getpid() {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}
