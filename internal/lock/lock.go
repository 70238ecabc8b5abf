// Package lock implements the per-container reader/writer exclusion
// primitive: a single (owner-id, mode) slot guarding one container's
// header and child-name arrays. Acquisition is always non-blocking —
// a caller that cannot acquire gets an error back immediately rather
// than waiting, matching the engine's single-process, multi-worker
// concurrency model.
package lock

import "sync"

// Mode is the mode a container lock is held in.
type Mode int

const (
	// Unlocked means no worker currently holds the container.
	Unlocked Mode = iota
	// Read means one or more workers hold a shared read lock.
	Read
	// Write means exactly one worker holds the exclusive write lock.
	Write
)

// Recorder observes a non-blocking lock acquisition that failed because
// the container was already held by another worker.
type Recorder interface {
	RecordLockWait(class, mode string)
}

// Lock guards one container. The zero value is an unlocked lock, ready
// to use.
type Lock struct {
	mu      sync.Mutex
	mode    Mode
	readers map[int]struct{}
	writer  int

	recorder Recorder
	class    string
}

// Observe wires an optional metrics recorder and a class label (e.g.
// "page", "table") into l, reported on every failed acquisition. Called
// once by a container's constructor or loader; a nil recorder disables
// reporting.
func (l *Lock) Observe(recorder Recorder, class string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorder = recorder
	l.class = class
}

func (l *Lock) recordWait(mode string) {
	if l.recorder != nil {
		l.recorder.RecordLockWait(l.class, mode)
	}
}

// RequireWrite attempts to acquire the write lock for workerID. It
// succeeds if the lock is free, or already held for write by workerID
// itself (reentrant); it fails if held by any other worker in any mode.
// Acquisition never blocks.
func (l *Lock) RequireWrite(workerID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.mode {
	case Unlocked:
		l.mode = Write
		l.writer = workerID
		return true
	case Write:
		ok := l.writer == workerID
		if !ok {
			l.recordWait("write")
		}
		return ok
	default: // Read
		l.recordWait("write")
		return false
	}
}

// RequireRead attempts to acquire a shared read lock for workerID. It
// succeeds if the lock is free or already held for read (by any
// worker, including workerID); it fails if held for write by a
// different worker. Acquisition never blocks.
func (l *Lock) RequireRead(workerID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.mode {
	case Unlocked:
		l.mode = Read
		l.readers = map[int]struct{}{workerID: {}}
		return true
	case Read:
		l.readers[workerID] = struct{}{}
		return true
	default: // Write
		ok := l.writer == workerID
		if !ok {
			l.recordWait("read")
		}
		return ok
	}
}

// ReleaseWrite releases the write lock held by workerID. It is a no-op
// if workerID does not hold the write lock.
func (l *Lock) ReleaseWrite(workerID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode == Write && l.writer == workerID {
		l.mode = Unlocked
		l.writer = 0
	}
}

// ReleaseRead releases workerID's read lock. Once no readers remain the
// lock returns to Unlocked.
func (l *Lock) ReleaseRead(workerID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode != Read {
		return
	}
	delete(l.readers, workerID)
	if len(l.readers) == 0 {
		l.mode = Unlocked
	}
}

// Mode reports the lock's current mode.
func (l *Lock) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// WriteFree reports whether the lock currently has no write holder — the
// precondition init_transaction and rollback require of every
// participating container before a snapshot or restore may proceed.
func (l *Lock) WriteFree() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode != Write
}
