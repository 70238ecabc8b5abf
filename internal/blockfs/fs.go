// Package blockfs is the engine's façade over the block-addressable file
// system that backs container storage. It plays the role of the C core's
// NIFAT32_* handle API: open/read/write/close/delete by numbered content
// handle, plus path construction and unique-name generation for new
// containers.
package blockfs

import (
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"

	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
	"github.com/j1sk1ss/cdbms/pkg/logx"
	"github.com/j1sk1ss/cdbms/pkg/retry"
)

// nameCache is the subset of *cache.Cache that FS needs: a positive
// override for Exists so a container the cache already knows about counts
// as existing even before it has been saved to disk.
type nameCache interface {
	Exists(name string) bool
}

// FS roots all container file access under a single base directory and
// retries transient open/write failures.
type FS struct {
	basePath string
	retryer  *retry.Retryer
	logger   *logx.Logger
	cache    nameCache
}

// New creates an FS rooted at basePath. A nil retryer is replaced by one
// built from retry.DefaultConfig(); a nil logger means nothing is logged. containerCache
// may also be nil, in which case Exists and UniqueName consult storage alone.
func New(basePath string, retryer *retry.Retryer, logger *logx.Logger, containerCache *cache.Cache) *FS {
	if retryer == nil {
		retryer = retry.New(retry.DefaultConfig())
	}
	fs := &FS{basePath: basePath, retryer: retryer, logger: logger}
	if containerCache != nil {
		fs.cache = containerCache
	}
	return fs
}

// Handle is a numbered, open content reference, analogous to the C core's
// ci_t content index.
type Handle struct {
	id   int
	path string
	file *os.File
	mu   sync.Mutex
}

var handleCounter struct {
	mu   sync.Mutex
	next int
}

func nextHandleID() int {
	handleCounter.mu.Lock()
	defer handleCounter.mu.Unlock()
	handleCounter.next++
	return handleCounter.next
}

// Open opens (creating if needed) the container file for name+extension
// under the FS's base path, retrying transient I/O failures.
func (fs *FS) Open(name, extension string) (*Handle, error) {
	path, err := LoadPath(name, fs.basePath, extension)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeOpenFailed, "invalid container path").
			WithComponent("blockfs").WithOperation("Open").WithCause(err)
	}

	var f *os.File
	openErr := fs.retryer.Do(func() error {
		var err error
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return cdbmserr.New(cdbmserr.CodeOpenFailed, "failed to open container file").
				WithComponent("blockfs").WithOperation("Open").WithContext("path", path).WithCause(err)
		}
		return nil
	})
	if openErr != nil {
		if fs.logger != nil {
			fs.logger.Error("open failed for %s: %v", path, openErr)
		}
		return nil, openErr
	}

	return &Handle{id: nextHandleID(), path: path, file: f}, nil
}

// Read reads len(buf) bytes from h at offset.
func (h *Handle) Read(offset int64, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, cdbmserr.New(cdbmserr.CodeReadFailed, "failed to read container content").
			WithComponent("blockfs").WithOperation("Read").WithContext("path", h.path).WithCause(err)
	}
	return n, nil
}

// Write writes data to h at offset, retrying transient failures.
func (fs *FS) Write(h *Handle, offset int64, data []byte) error {
	return fs.retryer.Do(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()

		n, err := h.file.WriteAt(data, offset)
		if err != nil {
			return cdbmserr.New(cdbmserr.CodeWriteFailed, "failed to write container content").
				WithComponent("blockfs").WithOperation("Write").WithContext("path", h.path).WithCause(err)
		}
		if n != len(data) {
			return cdbmserr.New(cdbmserr.CodeWriteFailed, "short write to container content").
				WithComponent("blockfs").WithOperation("Write").WithContext("path", h.path)
		}
		return nil
	})
}

// Close closes h.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.file.Close(); err != nil {
		return cdbmserr.New(cdbmserr.CodeIOFailure, "failed to close container content").
			WithComponent("blockfs").WithOperation("Close").WithContext("path", h.path).WithCause(err)
	}
	return nil
}

// Delete removes the container file for name+extension under basePath.
func (fs *FS) Delete(name, extension string) error {
	path, err := LoadPath(name, fs.basePath, extension)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeDeleteFailed, "invalid container path").
			WithComponent("blockfs").WithOperation("Delete").WithCause(err)
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cdbmserr.New(cdbmserr.CodeDeleteFailed, "failed to delete container file").
			WithComponent("blockfs").WithOperation("Delete").WithContext("path", path).WithCause(err)
	}
	return nil
}

// Exists reports whether a container file for name+extension is present
// under basePath, or whether name is already known to the global container
// cache — a positive override so a container that is cached but not yet
// saved still counts as existing.
func (fs *FS) Exists(name, extension string) bool {
	if fs.cache != nil && fs.cache.Exists(name) {
		return true
	}

	path, err := LoadPath(name, fs.basePath, extension)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Copy duplicates the container file for srcName+extension to
// dstName+extension under the same base path, used by transaction
// snapshot and rollback to materialize shadow-prefixed copies.
func (fs *FS) Copy(srcName, dstName, extension string) error {
	srcPath, err := LoadPath(srcName, fs.basePath, extension)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeOpenFailed, "invalid source container path").
			WithComponent("blockfs").WithOperation("Copy").WithCause(err)
	}
	dstPath, err := LoadPath(dstName, fs.basePath, extension)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeOpenFailed, "invalid destination container path").
			WithComponent("blockfs").WithOperation("Copy").WithCause(err)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeReadFailed, "failed to read source container file").
			WithComponent("blockfs").WithOperation("Copy").WithContext("path", srcPath).WithCause(err)
	}
	if err := os.WriteFile(dstPath, data, 0600); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "failed to write destination container file").
			WithComponent("blockfs").WithOperation("Copy").WithContext("path", dstPath).WithCause(err)
	}
	return nil
}

const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// UniqueName generates a short container name of the given length that
// does not collide with an existing file of the given extension, mirroring
// generate_unique_filename's retry-until-free loop.
func (fs *FS) UniqueName(length int, extension string) (string, error) {
	const maxAttempts = 1000

	for attempt := 0; attempt < maxAttempts; attempt++ {
		name := randomName(length)
		if !fs.Exists(name, extension) {
			return name, nil
		}
	}

	return "", cdbmserr.New(cdbmserr.CodeAllocationFailed, "exhausted attempts generating a unique container name").
		WithComponent("blockfs").WithOperation("UniqueName").WithContext("extension", extension)
}

func randomName(length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(nameAlphabet[rand.Intn(len(nameAlphabet))])
	}
	return b.String()
}
