// Package lock provides the per-container lock embedded in every
// Database, Table, Directory, and Page. It has no analog in the teacher
// codebase's object-storage model (which synchronizes with a plain
// sync.RWMutex), so it is written directly from the reader/writer
// exclusion semantics the container layer requires: non-blocking
// acquisition, write reentrancy for the current holder, and shared read
// locks compatible with each other but not with a write lock.
package lock
