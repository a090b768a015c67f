package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
)

// ErrAlreadyHeld means another live process owns the named lock. It is a
// normal control-flow outcome, not a failure: the caller should end its
// loop quietly, because a legitimate instance is already running.
var ErrAlreadyHeld = errors.New("singleton lock already held")

// Guard hands out machine-wide exclusive locks, one per logical worker
// name, backed by flock(2) files under a shared directory. The OS drops a
// flock when its owner dies, so a crashed supervisor can never leave a
// name permanently locked.
type Guard struct {
	dir string
}

func NewGuard(dir string) *Guard { return &Guard{dir: dir} }

// Handle represents exclusive ownership of one lock name. Release it on
// every exit path of the owning control loop.
type Handle struct {
	fl      *flock.Flock
	pidPath string
}

// Acquire takes the lock for name without blocking. If the lock is held
// elsewhere it returns ErrAlreadyHeld immediately; acquisition is never
// queued or retried.
func (g *Guard) Acquire(name string) (*Handle, error) {
	if err := os.MkdirAll(g.dir, 0o750); err != nil {
		return nil, fmt.Errorf("lock dir %s: %w", g.dir, err)
	}
	fl := flock.New(filepath.Join(g.dir, name+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !locked {
		return nil, ErrAlreadyHeld
	}
	h := &Handle{fl: fl, pidPath: filepath.Join(g.dir, name+".pid")}
	// Owner pid is advisory, for diagnostics; the flock is authoritative.
	_ = os.WriteFile(h.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
	return h, nil
}

// Holder reports the recorded owner pid for name, or 0 when no live owner
// is recorded. Stale pid files (owner dead, pid unparseable) count as no
// owner.
func (g *Guard) Holder(name string) int {
	b, err := os.ReadFile(filepath.Join(g.dir, name+".pid"))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || !pidAlive(pid) {
		return 0
	}
	return pid
}

// Release drops the lock and removes the owner pid file, best-effort.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	_ = os.Remove(h.pidPath)
	_ = h.fl.Unlock()
}

// pidAlive returns true if a process with the given pid exists (or we lack
// permission to signal it, which still means it exists).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
