package interprocess

import (
	"context"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/maersdal/readoutcard/roc"
)

// Lock is the two-part lock modeled on InterprocessLock.h: a file lock
// paired with a "named mutex", each a flock on its own file. If
// acquiring the file lock fails, another holder is alive. If the file
// lock succeeds but the named mutex does not, the file half was released
// while the named half stayed held (Unlock without ReleaseNamedMutex), a
// distinct failure reported as roc.NamedMutexLockError. Because both
// halves are flock locks, the OS releases both when the owning process
// exits, so a crashed process leaves neither half held.
type Lock struct {
	filePath  string
	mutexPath string

	fileLock  *flock.Flock
	mutexLock *flock.Flock
}

// New constructs a Lock for the given paths. It does not acquire
// anything; call TryLock or Wait.
func New(filePath, mutexPath string) *Lock {
	return &Lock{filePath: filePath, mutexPath: mutexPath}
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// TryLock attempts to acquire both halves without blocking. It returns
// *roc.FileLockError if the file lock is held by another process, or
// *roc.NamedMutexLockError if the file lock succeeded but the named
// mutex is held — the named-only failure.
func (l *Lock) TryLock() error {
	if err := touch(l.filePath); err != nil {
		return &roc.FileLockError{Path: l.filePath, Cause: err}
	}
	if err := touch(l.mutexPath); err != nil {
		return &roc.NamedMutexLockError{Name: l.mutexPath, Cause: err}
	}

	l.fileLock = flock.New(l.filePath)
	ok, err := l.fileLock.TryLock()
	if err != nil {
		return &roc.FileLockError{Path: l.filePath, Cause: err}
	}
	if !ok {
		return &roc.FileLockError{Path: l.filePath, Cause: errLockHeld}
	}

	l.mutexLock = flock.New(l.mutexPath)
	ok, err = l.mutexLock.TryLock()
	if err != nil {
		l.fileLock.Unlock()
		return &roc.NamedMutexLockError{Name: l.mutexPath, Cause: err}
	}
	if !ok {
		l.fileLock.Unlock()
		return &roc.NamedMutexLockError{Name: l.mutexPath, Cause: errLockHeld}
	}
	return nil
}

// waitPollInterval is the retry cadence TryLockContext uses while
// Wait blocks for each lock half.
const waitPollInterval = 50 * time.Millisecond

// Wait blocks until both lock halves are acquired, or ctx is done. Every
// caller acquires the file lock before the named mutex, so two
// processes racing for the same channel poll in the same order and can
// never deadlock against each other. It reports the same distinction as
// TryLock: *roc.FileLockError if the file lock never frees up, or
// *roc.NamedMutexLockError if the file lock succeeded but the named
// mutex did not.
func (l *Lock) Wait(ctx context.Context) error {
	if err := touch(l.filePath); err != nil {
		return &roc.FileLockError{Path: l.filePath, Cause: err}
	}
	if err := touch(l.mutexPath); err != nil {
		return &roc.NamedMutexLockError{Name: l.mutexPath, Cause: err}
	}

	l.fileLock = flock.New(l.filePath)
	ok, err := l.fileLock.TryLockContext(ctx, waitPollInterval)
	if err != nil {
		return &roc.FileLockError{Path: l.filePath, Cause: err}
	}
	if !ok {
		return &roc.FileLockError{Path: l.filePath, Cause: ctx.Err()}
	}

	l.mutexLock = flock.New(l.mutexPath)
	ok, err = l.mutexLock.TryLockContext(ctx, waitPollInterval)
	if err != nil {
		l.fileLock.Unlock()
		return &roc.NamedMutexLockError{Name: l.mutexPath, Cause: err}
	}
	if !ok {
		l.fileLock.Unlock()
		return &roc.NamedMutexLockError{Name: l.mutexPath, Cause: ctx.Err()}
	}
	return nil
}

// Unlock releases the file-lock half only: the named mutex half stays
// held until ReleaseNamedMutex is called or the process exits, and a
// locker that comes in between gets *roc.NamedMutexLockError. A clean
// shutdown calls ReleaseNamedMutex once it has finished tearing down
// channel state.
func (l *Lock) Unlock() error {
	if l.fileLock == nil {
		return nil
	}
	return l.fileLock.Unlock()
}

// ReleaseNamedMutex releases the named-mutex half, signaling a clean
// shutdown to the next process that probes this channel.
func (l *Lock) ReleaseNamedMutex() error {
	if l.mutexLock == nil {
		return nil
	}
	return l.mutexLock.Unlock()
}

type lockHeldError struct{}

func (lockHeldError) Error() string { return "lock already held" }

var errLockHeld = lockHeldError{}
