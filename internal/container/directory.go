package container

import (
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/checksum"
	"github.com/j1sk1ss/cdbms/internal/codec"
	"github.com/j1sk1ss/cdbms/internal/lock"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
	"golang.org/x/sync/errgroup"
)

const directoryHeaderSize = 4 + DirectoryNameSize + 2 // magic + name + page count

// Directory holds an ordered list of page names and routes row operations
// to the page holding a given row index within the directory.
type Directory struct {
	deps *Deps

	Name      string
	PageNames []string

	checksum uint32
	lock     lock.Lock
}

// NewDirectory constructs an empty directory ready to be saved.
func NewDirectory(deps *Deps, name string) *Directory {
	d := &Directory{deps: deps, Name: name}
	d.lock.Observe(deps.LockRecorder, "directory")
	return d
}

// CreateEmptyDirectory allocates a directory under a fresh unique name.
func CreateEmptyDirectory(deps *Deps) (*Directory, error) {
	name, err := deps.FS.UniqueName(DirectoryNameSize, DirectoryExtension)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeAllocationFailed, "could not allocate directory name").WithCause(err).
			WithComponent("container").WithOperation("CreateEmptyDirectory")
	}
	return NewDirectory(deps, name), nil
}

func rowsPerPage(rowSize int) int {
	if rowSize <= 0 {
		return 0
	}
	return PageContentSize / rowSize
}

// locate splits a directory-relative row index into the page it lives on
// and the row's slot within that page.
func (d *Directory) locate(index, rowSize int) (pageOrdinal, slot int) {
	perPage := rowsPerPage(rowSize)
	if perPage == 0 {
		return -1, -1
	}
	return index / perPage, index % perPage
}

func (d *Directory) loadPageAt(ordinal int) (*Page, error) {
	if ordinal < 0 || ordinal >= len(d.PageNames) {
		return nil, cdbmserr.New(cdbmserr.CodeRowNotFound, "row index beyond directory").
			WithComponent("container").WithOperation("Directory.loadPageAt")
	}
	return LoadPage(d.deps, d.PageNames[ordinal])
}

// Append places row in the first page with a free slot, extending the
// directory with a fresh page if the last one is full. It returns the
// directory-relative row index, or CodeDirectoryFull if at capacity.
func (d *Directory) Append(workerID int, rowSize int, row []byte) (int, error) {
	perPage := rowsPerPage(rowSize)
	for ordinal, name := range d.PageNames {
		page, err := LoadPage(d.deps, name)
		if err != nil {
			continue
		}
		if slot, err := page.Append(workerID, rowSize, row); err == nil {
			return ordinal*perPage + slot, nil
		}
	}

	if !d.lock.RequireWrite(workerID) {
		return -1, cdbmserr.New(cdbmserr.CodeLockUnavailable, "directory write lock unavailable").
			WithComponent("container").WithOperation("Directory.Append")
	}
	defer d.lock.ReleaseWrite(workerID)

	if len(d.PageNames) >= MaxPagesPerDirectory {
		return -1, cdbmserr.New(cdbmserr.CodeDirectoryFull, "directory has no room for another page").
			WithComponent("container").WithOperation("Directory.Append")
	}

	name, err := d.deps.FS.UniqueName(PageNameSize, PageExtension)
	if err != nil {
		return -1, cdbmserr.New(cdbmserr.CodeAllocationFailed, "could not allocate page name").WithCause(err).
			WithComponent("container").WithOperation("Directory.Append")
	}
	page := NewPage(d.deps, name)
	slot, err := page.Append(workerID, rowSize, row)
	if err != nil {
		return -1, err
	}

	d.deps.Cache.Add(cache.ClassPage, page.Name, PageBasePath, page,
		func() error { return nil },
		func() error { return page.Save() },
	)
	d.PageNames = append(d.PageNames, page.Name)
	return (len(d.PageNames)-1)*perPage + slot, nil
}

// Get retrieves the row at directory-relative index.
func (d *Directory) Get(workerID int, index, rowSize int) ([]byte, error) {
	ordinal, slot := d.locate(index, rowSize)
	page, err := d.loadPageAt(ordinal)
	if err != nil {
		return nil, err
	}
	return page.Get(workerID, slot, rowSize)
}

// GetRaw retrieves the row at directory-relative index regardless of
// tombstone state, for the table scanner.
func (d *Directory) GetRaw(workerID int, index, rowSize int) ([]byte, error) {
	ordinal, slot := d.locate(index, rowSize)
	page, err := d.loadPageAt(ordinal)
	if err != nil {
		return nil, err
	}
	return page.GetRaw(workerID, slot, rowSize)
}

// Insert overwrites the row at directory-relative index.
func (d *Directory) Insert(workerID int, index, rowSize int, row []byte) error {
	ordinal, slot := d.locate(index, rowSize)
	page, err := d.loadPageAt(ordinal)
	if err != nil {
		return err
	}
	return page.Insert(workerID, slot, rowSize, row)
}

// Delete tombstones the row at directory-relative index.
func (d *Directory) Delete(workerID int, index, rowSize int) error {
	ordinal, slot := d.locate(index, rowSize)
	page, err := d.loadPageAt(ordinal)
	if err != nil {
		return err
	}
	return page.Delete(workerID, slot, rowSize)
}

func (d *Directory) headerBytes() []byte {
	buf := make([]byte, directoryHeaderSize)
	putUint32(buf[0:4], DirectoryMagic)
	putFixedString(buf[4:4+DirectoryNameSize], d.Name)
	putUint16(buf[4+DirectoryNameSize:], uint16(len(d.PageNames)))
	return buf
}

func (d *Directory) nameArrayBytes() []byte {
	buf := make([]byte, MaxPagesPerDirectory*PageNameSize)
	for i, name := range d.PageNames {
		putFixedString(buf[i*PageNameSize:(i+1)*PageNameSize], name)
	}
	return buf
}

// getChecksum hashes the header (with its checksum field implicitly zero,
// since it is never part of headerBytes) combined with the full-capacity
// page-name array, per spec.md §4.2. The combine step (rather than
// overwrite) preserves the header's contribution, unlike the original
// DRM_get_checksum which discarded it.
func (d *Directory) getChecksum() uint32 {
	headerHash := checksum.Sum32(d.headerBytes(), 0)
	namesHash := checksum.Sum32(d.nameArrayBytes(), 0)
	return checksum.Combine(headerHash, namesHash)
}

// Save writes the directory, skipping I/O if the checksum is unchanged.
func (d *Directory) Save() error {
	sum := d.getChecksum()
	if sum == d.checksum {
		return nil
	}

	encodedHeader, err := codec.PackN(d.deps.codec(), d.headerBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack directory header failed").WithCause(err).
			WithComponent("container").WithOperation("Directory.Save")
	}
	encodedNames, err := codec.PackN(d.deps.codec(), d.nameArrayBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack directory page names failed").WithCause(err).
			WithComponent("container").WithOperation("Directory.Save")
	}

	h, err := d.deps.FS.Open(d.Name, DirectoryExtension)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeOpenFailed, "open directory file failed").WithCause(err).
			WithComponent("container").WithOperation("Directory.Save")
	}
	defer h.Close()

	if err := d.deps.FS.Write(h, 0, encodedHeader); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write directory header failed").WithCause(err).
			WithComponent("container").WithOperation("Directory.Save")
	}
	if err := d.deps.FS.Write(h, int64(len(encodedHeader)), encodedNames); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write directory page names failed").WithCause(err).
			WithComponent("container").WithOperation("Directory.Save")
	}

	d.checksum = sum
	return nil
}

// LoadDirectory returns the cached directory for name if present, else
// reads it from disk and registers it in the cache.
func LoadDirectory(deps *Deps, name string) (*Directory, error) {
	if v, ok := deps.Cache.Find(cache.ClassDirectory, name, DirectoryBasePath); ok {
		deps.logf("directory %s served from cache", name)
		return v.(*Directory), nil
	}

	h, err := deps.FS.Open(name, DirectoryExtension)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeNotFound, "directory file not found").WithCause(err).
			WithComponent("container").WithOperation("LoadDirectory").WithContext("name", name)
	}
	defer h.Close()

	width := deps.codec().Width()
	encodedHeader, err := readExact(h, 0, directoryHeaderSize*width)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read directory header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDirectory")
	}
	rawHeader, err := codec.UnpackN(deps.codec(), encodedHeader)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack directory header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDirectory")
	}
	if getUint32(rawHeader[0:4]) != DirectoryMagic {
		return nil, cdbmserr.New(cdbmserr.CodeInvalidMagic, "directory file has wrong magic").
			WithComponent("container").WithOperation("LoadDirectory").WithContext("name", name)
	}

	dir := &Directory{deps: deps, Name: getFixedString(rawHeader[4 : 4+DirectoryNameSize])}
	dir.lock.Observe(deps.LockRecorder, "directory")
	pageCount := int(getUint16(rawHeader[4+DirectoryNameSize:]))
	if pageCount > MaxPagesPerDirectory {
		pageCount = MaxPagesPerDirectory
	}

	encodedNames, err := readExact(h, int64(directoryHeaderSize*width), MaxPagesPerDirectory*PageNameSize*width)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read directory page names failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDirectory")
	}
	rawNames, err := codec.UnpackN(deps.codec(), encodedNames)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack directory page names failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDirectory")
	}
	for i := 0; i < pageCount; i++ {
		name := getFixedString(rawNames[i*PageNameSize : (i+1)*PageNameSize])
		dir.PageNames = append(dir.PageNames, name)
	}
	dir.checksum = dir.getChecksum()

	deps.Cache.Add(cache.ClassDirectory, dir.Name, DirectoryBasePath, dir,
		func() error { return nil },
		func() error { return dir.Save() },
	)

	return dir, nil
}

// DeleteDirectory removes the directory file and, when full is true,
// recursively flushes and unlinks every child page in parallel.
func DeleteDirectory(deps *Deps, dir *Directory, workerID int, full bool) error {
	if !dir.lock.RequireWrite(workerID) {
		return cdbmserr.New(cdbmserr.CodeLockUnavailable, "cannot lock directory for delete").
			WithComponent("container").WithOperation("DeleteDirectory")
	}
	defer dir.lock.ReleaseWrite(workerID)

	if full {
		var g errgroup.Group
		for _, name := range dir.PageNames {
			name := name
			g.Go(func() error {
				return DeletePage(deps, name)
			})
		}
		if err := g.Wait(); err != nil {
			deps.logf("parallel page delete under directory %s reported: %v", dir.Name, err)
		}
	}

	if err := deps.FS.Delete(dir.Name, DirectoryExtension); err != nil {
		return cdbmserr.New(cdbmserr.CodeDeleteFailed, "delete directory file failed").WithCause(err).
			WithComponent("container").WithOperation("DeleteDirectory")
	}
	deps.Cache.Flush(cache.ClassDirectory, dir.Name, DirectoryBasePath)
	return nil
}
