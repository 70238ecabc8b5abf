package container

import (
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/checksum"
	"github.com/j1sk1ss/cdbms/internal/codec"
	"github.com/j1sk1ss/cdbms/internal/lock"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
)

const pageHeaderSize = 4 + PageNameSize + 2 // magic + name + content length

// Page is the leaf storage container: a fixed-capacity byte buffer divided
// into row-width slots. A slot whose first byte equals PageEmpty is a
// tombstone, skipped by readers and overwritable by insert. Page itself is
// row-width agnostic: callers (Directory) supply rowSize on every call.
type Page struct {
	deps *Deps

	Name    string
	Length  int
	Content [PageContentSize]byte

	checksum uint32
	lock     lock.Lock
}

// NewPage constructs an empty page ready to be saved.
func NewPage(deps *Deps, name string) *Page {
	p := &Page{deps: deps, Name: name}
	p.lock.Observe(deps.LockRecorder, "page")
	return p
}

func (p *Page) rowsCapacity(rowSize int) int {
	if rowSize <= 0 {
		return 0
	}
	return PageContentSize / rowSize
}

// Append writes row into the first tombstoned or unused slot, returning its
// slot index, or an error if the page has no free slot.
func (p *Page) Append(workerID int, rowSize int, row []byte) (int, error) {
	if len(row) != rowSize {
		return -1, cdbmserr.New(cdbmserr.CodeRowTooWide, "row does not match row size").
			WithComponent("container").WithOperation("Page.Append")
	}
	if !p.lock.RequireWrite(workerID) {
		return -1, cdbmserr.New(cdbmserr.CodeLockUnavailable, "page write lock unavailable").
			WithComponent("container").WithOperation("Page.Append")
	}
	defer p.lock.ReleaseWrite(workerID)

	capacity := p.rowsCapacity(rowSize)
	for slot := 0; slot < capacity; slot++ {
		offset := slot * rowSize
		if offset+rowSize > p.Length || p.Content[offset] == PageEmpty {
			copy(p.Content[offset:offset+rowSize], row)
			if offset+rowSize > p.Length {
				p.Length = offset + rowSize
			}
			return slot, nil
		}
	}
	return -1, cdbmserr.New(cdbmserr.CodePageFull, "page has no free row slot").
		WithComponent("container").WithOperation("Page.Append")
}

// Insert writes row into slot unconditionally.
func (p *Page) Insert(workerID int, slot int, rowSize int, row []byte) error {
	if len(row) != rowSize {
		return cdbmserr.New(cdbmserr.CodeRowTooWide, "row does not match row size").
			WithComponent("container").WithOperation("Page.Insert")
	}
	if !p.lock.RequireWrite(workerID) {
		return cdbmserr.New(cdbmserr.CodeLockUnavailable, "page write lock unavailable").
			WithComponent("container").WithOperation("Page.Insert")
	}
	defer p.lock.ReleaseWrite(workerID)

	offset := slot * rowSize
	if offset+rowSize > PageContentSize {
		return cdbmserr.New(cdbmserr.CodePageFull, "slot out of page range").
			WithComponent("container").WithOperation("Page.Insert")
	}
	copy(p.Content[offset:offset+rowSize], row)
	if offset+rowSize > p.Length {
		p.Length = offset + rowSize
	}
	return nil
}

// Delete tombstones slot by writing PageEmpty at its first byte.
func (p *Page) Delete(workerID int, slot int, rowSize int) error {
	if !p.lock.RequireWrite(workerID) {
		return cdbmserr.New(cdbmserr.CodeLockUnavailable, "page write lock unavailable").
			WithComponent("container").WithOperation("Page.Delete")
	}
	defer p.lock.ReleaseWrite(workerID)

	offset := slot * rowSize
	if offset >= p.Length {
		return cdbmserr.New(cdbmserr.CodeRowNotFound, "slot is beyond page content").
			WithComponent("container").WithOperation("Page.Delete")
	}
	p.Content[offset] = PageEmpty
	return nil
}

// Get copies slot's row data out. It returns CodeRowNotFound for a
// tombstoned slot.
func (p *Page) Get(workerID int, slot int, rowSize int) ([]byte, error) {
	if !p.lock.RequireRead(workerID) {
		return nil, cdbmserr.New(cdbmserr.CodeLockUnavailable, "page read lock unavailable").
			WithComponent("container").WithOperation("Page.Get")
	}
	defer p.lock.ReleaseRead(workerID)

	offset := slot * rowSize
	if offset+rowSize > p.Length {
		return nil, cdbmserr.New(cdbmserr.CodeRowNotFound, "slot is beyond page content").
			WithComponent("container").WithOperation("Page.Get")
	}
	if p.Content[offset] == PageEmpty {
		return nil, cdbmserr.New(cdbmserr.CodeRowNotFound, "row slot is tombstoned").
			WithComponent("container").WithOperation("Page.Get")
	}
	row := make([]byte, rowSize)
	copy(row, p.Content[offset:offset+rowSize])
	return row, nil
}

// GetRaw copies slot's row data regardless of tombstone state. Used by the
// table scanner, which checks the PageEmpty sentinel itself so it can skip
// a tombstoned row and keep scanning rather than treating it as not-found.
func (p *Page) GetRaw(workerID int, slot int, rowSize int) ([]byte, error) {
	if !p.lock.RequireRead(workerID) {
		return nil, cdbmserr.New(cdbmserr.CodeLockUnavailable, "page read lock unavailable").
			WithComponent("container").WithOperation("Page.GetRaw")
	}
	defer p.lock.ReleaseRead(workerID)

	offset := slot * rowSize
	if offset+rowSize > p.Length {
		return nil, cdbmserr.New(cdbmserr.CodeRowNotFound, "slot is beyond page content").
			WithComponent("container").WithOperation("Page.GetRaw")
	}
	row := make([]byte, rowSize)
	copy(row, p.Content[offset:offset+rowSize])
	return row, nil
}

func (p *Page) headerBytes() []byte {
	buf := make([]byte, pageHeaderSize)
	putUint32(buf[0:4], PageMagic)
	putFixedString(buf[4:4+PageNameSize], p.Name)
	putUint16(buf[4+PageNameSize:], uint16(p.Length))
	return buf
}

func (p *Page) getChecksum() uint32 {
	headerHash := checksum.Sum32(p.headerBytes(), 0)
	contentHash := checksum.Sum32(p.Content[:], 0)
	return checksum.Combine(headerHash, contentHash)
}

// Save persists the page, skipping the write if the checksum is unchanged
// since the last save.
func (p *Page) Save() error {
	sum := p.getChecksum()
	if sum == p.checksum {
		return nil
	}

	encodedHeader, err := codec.PackN(p.deps.codec(), p.headerBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack page header failed").WithCause(err).
			WithComponent("container").WithOperation("Page.Save")
	}
	encodedContent, err := codec.PackN(p.deps.codec(), p.Content[:])
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack page content failed").WithCause(err).
			WithComponent("container").WithOperation("Page.Save")
	}

	h, err := p.deps.FS.Open(p.Name, PageExtension)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeOpenFailed, "open page file failed").WithCause(err).
			WithComponent("container").WithOperation("Page.Save")
	}
	defer h.Close()

	if err := p.deps.FS.Write(h, 0, encodedHeader); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write page header failed").WithCause(err).
			WithComponent("container").WithOperation("Page.Save")
	}
	if err := p.deps.FS.Write(h, int64(len(encodedHeader)), encodedContent); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write page content failed").WithCause(err).
			WithComponent("container").WithOperation("Page.Save")
	}

	p.checksum = sum
	return nil
}

// LoadPage returns the cached page for name if present, else reads it from
// disk and registers it in the cache.
func LoadPage(deps *Deps, name string) (*Page, error) {
	if v, ok := deps.Cache.Find(cache.ClassPage, name, PageBasePath); ok {
		deps.logf("page %s served from cache", name)
		return v.(*Page), nil
	}

	h, err := deps.FS.Open(name, PageExtension)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeNotFound, "page file not found").WithCause(err).
			WithComponent("container").WithOperation("LoadPage").WithContext("name", name)
	}
	defer h.Close()

	encodedHeader, err := readExact(h, 0, pageHeaderSize*deps.codec().Width())
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read page header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadPage")
	}
	rawHeader, err := codec.UnpackN(deps.codec(), encodedHeader)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack page header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadPage")
	}
	if getUint32(rawHeader[0:4]) != PageMagic {
		return nil, cdbmserr.New(cdbmserr.CodeInvalidMagic, "page file has wrong magic").
			WithComponent("container").WithOperation("LoadPage").WithContext("name", name)
	}

	page := &Page{deps: deps, Name: getFixedString(rawHeader[4 : 4+PageNameSize])}
	page.lock.Observe(deps.LockRecorder, "page")
	page.Length = int(getUint16(rawHeader[4+PageNameSize:]))

	encodedContent, err := readExact(h, int64(pageHeaderSize*deps.codec().Width()), PageContentSize*deps.codec().Width())
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read page content failed").WithCause(err).
			WithComponent("container").WithOperation("LoadPage")
	}
	rawContent, err := codec.UnpackN(deps.codec(), encodedContent)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack page content failed").WithCause(err).
			WithComponent("container").WithOperation("LoadPage")
	}
	copy(page.Content[:], rawContent)
	page.checksum = page.getChecksum()

	deps.Cache.Add(cache.ClassPage, page.Name, PageBasePath, page,
		func() error { return nil },
		func() error { return page.Save() },
	)

	return page, nil
}

// DeletePage unlinks the page file and drops it from the cache.
func DeletePage(deps *Deps, name string) error {
	deps.Cache.Flush(cache.ClassPage, name, PageBasePath)
	return deps.FS.Delete(name, PageExtension)
}

// readExact reads exactly n bytes from h at offset.
func readExact(h interface{ Read(int64, []byte) (int, error) }, offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := h.Read(offset, buf)
	if err != nil {
		return nil, err
	}
	if read != n {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "short read").
			WithComponent("container").WithOperation("readExact")
	}
	return buf, nil
}
