package container

import (
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/checksum"
	"github.com/j1sk1ss/cdbms/internal/codec"
	"github.com/j1sk1ss/cdbms/internal/lock"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
)

const tableHeaderSize = 4 + TableNameSize + 2 + 2 // magic + name + column count + dir count

// Table owns a schema (ordered columns, cached row width) and an ordered
// list of directory names, and dispatches row CRUD across them.
type Table struct {
	deps *Deps

	Name      string
	Columns   []*Column
	RowSize   int
	DirNames  []string

	checksum uint32
	lock     lock.Lock
}

// NewTable constructs a table in memory. It fails with CodeRowTooWide if
// the derived row width does not fit within a page's content capacity.
func NewTable(deps *Deps, name string, columns []*Column) (*Table, error) {
	rowSize := RowWidth(columns)
	if rowSize >= PageContentSize {
		return nil, cdbmserr.New(cdbmserr.CodeRowTooWide, "row width exceeds page content capacity").
			WithComponent("container").WithOperation("NewTable").WithContext("table", name)
	}
	tbl := &Table{deps: deps, Name: name, Columns: columns, RowSize: rowSize}
	tbl.lock.Observe(deps.LockRecorder, "table")
	return tbl, nil
}

// ColumnInfo resolves a column's byte offset and size within a row, used
// by expression compilation to bind a condition to row bytes.
type ColumnInfo struct {
	Column *Column
	Offset int
}

// GetColumnInfo finds a column by name and its byte offset within a row.
func (t *Table) GetColumnInfo(name string) (*ColumnInfo, error) {
	offset := 0
	for _, c := range t.Columns {
		if c.Name == name {
			return &ColumnInfo{Column: c, Offset: offset}, nil
		}
		offset += c.Size
	}
	return nil, cdbmserr.New(cdbmserr.CodeColumnNotFound, "column not found").
		WithComponent("container").WithOperation("GetColumnInfo").WithContext("column", name)
}

func (t *Table) loadDirAt(ordinal int) (*Directory, error) {
	if ordinal < 0 || ordinal >= len(t.DirNames) {
		return nil, cdbmserr.New(cdbmserr.CodeRowNotFound, "row index beyond table").
			WithComponent("container").WithOperation("Table.loadDirAt")
	}
	return LoadDirectory(t.deps, t.DirNames[ordinal])
}

func rowsPerDirectory(rowSize int) int {
	return rowsPerPage(rowSize) * MaxPagesPerDirectory
}

// Append inserts data, rejecting input longer than RowSize and zero-padding
// shorter input up to RowSize, returning the table-global row index on
// success.
func (t *Table) Append(workerID int, data []byte) (int, error) {
	if len(data) > t.RowSize {
		return -1, cdbmserr.New(cdbmserr.CodeRowTooWide, "input data exceeds row size").
			WithComponent("container").WithOperation("Table.Append").WithContext("table", t.Name)
	}
	row := make([]byte, t.RowSize)
	copy(row, data)

	perDir := rowsPerDirectory(t.RowSize)
	for ordinal, name := range t.DirNames {
		dir, err := LoadDirectory(t.deps, name)
		if err != nil {
			continue
		}
		if idx, err := dir.Append(workerID, t.RowSize, row); err == nil {
			return ordinal*perDir + idx, nil
		}
	}

	if !t.lock.RequireWrite(workerID) {
		return -1, cdbmserr.New(cdbmserr.CodeLockUnavailable, "table write lock unavailable").
			WithComponent("container").WithOperation("Table.Append")
	}
	defer t.lock.ReleaseWrite(workerID)

	if len(t.DirNames) >= MaxDirectoriesPerTable {
		return -1, cdbmserr.New(cdbmserr.CodeDatabaseFull, "table has no room for another directory").
			WithComponent("container").WithOperation("Table.Append")
	}

	dir, err := CreateEmptyDirectory(t.deps)
	if err != nil {
		return -1, err
	}
	idx, err := dir.Append(workerID, t.RowSize, row)
	if err != nil {
		return -1, err
	}

	t.deps.Cache.Add(cache.ClassDirectory, dir.Name, DirectoryBasePath, dir,
		func() error { return nil },
		func() error { return dir.Save() },
	)
	t.DirNames = append(t.DirNames, dir.Name)
	return (len(t.DirNames)-1)*perDir + idx, nil
}

// Get retrieves the row at table-global index.
func (t *Table) Get(workerID int, index int) ([]byte, error) {
	perDir := rowsPerDirectory(t.RowSize)
	if perDir == 0 {
		return nil, cdbmserr.New(cdbmserr.CodeRowNotFound, "row not found").
			WithComponent("container").WithOperation("Table.Get")
	}
	dir, err := t.loadDirAt(index / perDir)
	if err != nil {
		return nil, err
	}
	return dir.Get(workerID, index%perDir, t.RowSize)
}

// GetRaw retrieves the row at table-global index regardless of tombstone
// state. The scanning row processor uses this and checks the PageEmpty
// sentinel itself, so a tombstoned row is skipped rather than ending scan.
func (t *Table) GetRaw(workerID int, index int) ([]byte, error) {
	perDir := rowsPerDirectory(t.RowSize)
	if perDir == 0 {
		return nil, cdbmserr.New(cdbmserr.CodeRowNotFound, "row not found").
			WithComponent("container").WithOperation("Table.GetRaw")
	}
	dir, err := t.loadDirAt(index / perDir)
	if err != nil {
		return nil, err
	}
	return dir.GetRaw(workerID, index%perDir, t.RowSize)
}

// Insert overwrites the row at table-global index.
func (t *Table) Insert(workerID int, index int, data []byte) error {
	if len(data) > t.RowSize {
		return cdbmserr.New(cdbmserr.CodeRowTooWide, "input data exceeds row size").
			WithComponent("container").WithOperation("Table.Insert")
	}
	row := make([]byte, t.RowSize)
	copy(row, data)

	perDir := rowsPerDirectory(t.RowSize)
	dir, err := t.loadDirAt(index / perDir)
	if err != nil {
		return err
	}
	return dir.Insert(workerID, index%perDir, t.RowSize, row)
}

// Delete tombstones the row at table-global index.
func (t *Table) Delete(workerID int, index int) error {
	perDir := rowsPerDirectory(t.RowSize)
	dir, err := t.loadDirAt(index / perDir)
	if err != nil {
		return err
	}
	return dir.Delete(workerID, index%perDir, t.RowSize)
}

// Migrate copies every live row from src to dst. When projection is
// non-empty, only the named columns are copied per row (destination
// columns must match the projected column's size); otherwise whole rows
// are copied and must share RowSize.
func Migrate(src, dst *Table, workerID int, projection []string) error {
	if len(projection) == 0 && src.RowSize != dst.RowSize {
		return cdbmserr.New(cdbmserr.CodeSchemaMismatch, "source and destination row sizes differ").
			WithComponent("container").WithOperation("Migrate")
	}

	type fieldMap struct {
		srcOffset, dstOffset, size int
	}
	var fields []fieldMap
	if len(projection) > 0 {
		for _, name := range projection {
			srcInfo, err := src.GetColumnInfo(name)
			if err != nil {
				return err
			}
			dstInfo, err := dst.GetColumnInfo(name)
			if err != nil {
				return err
			}
			if srcInfo.Column.Size != dstInfo.Column.Size {
				return cdbmserr.New(cdbmserr.CodeSchemaMismatch, "projected column size mismatch").
					WithComponent("container").WithOperation("Migrate").WithContext("column", name)
			}
			fields = append(fields, fieldMap{srcInfo.Offset, dstInfo.Offset, srcInfo.Column.Size})
		}
	}

	index := 0
	for {
		row, err := src.GetRaw(workerID, index)
		if err != nil {
			break
		}
		index++
		if len(row) == 0 || row[0] == PageEmpty {
			continue
		}

		var out []byte
		if fields == nil {
			out = row
		} else {
			out = make([]byte, dst.RowSize)
			for _, f := range fields {
				copy(out[f.dstOffset:f.dstOffset+f.size], row[f.srcOffset:f.srcOffset+f.size])
			}
		}
		if _, err := dst.Append(workerID, out); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) headerBytes() []byte {
	buf := make([]byte, tableHeaderSize)
	putUint32(buf[0:4], TableMagic)
	putFixedString(buf[4:4+TableNameSize], t.Name)
	off := 4 + TableNameSize
	putUint16(buf[off:off+2], uint16(len(t.Columns)))
	putUint16(buf[off+2:off+4], uint16(len(t.DirNames)))
	return buf
}

func (t *Table) columnsBytes() []byte {
	buf := make([]byte, 0, len(t.Columns)*columnRecordSize)
	for _, c := range t.Columns {
		buf = append(buf, c.encode()...)
	}
	return buf
}

func (t *Table) dirNamesBytes() []byte {
	buf := make([]byte, MaxDirectoriesPerTable*DirectoryNameSize)
	for i, name := range t.DirNames {
		putFixedString(buf[i*DirectoryNameSize:(i+1)*DirectoryNameSize], name)
	}
	return buf
}

// getChecksum combines the header hash, the running hash of every column
// descriptor, and the fixed-capacity directory-name array hash. This
// follows spec.md's intended combined-hash semantics rather than the
// original TBM_get_checksum, which discarded the header/column
// contribution by overwriting it with the directory-array hash.
func (t *Table) getChecksum() uint32 {
	sum := checksum.Sum32(t.headerBytes(), 0)
	for _, c := range t.Columns {
		sum = checksum.Combine(sum, checksum.Sum32(c.encode(), 0))
	}
	return checksum.Combine(sum, checksum.Sum32(t.dirNamesBytes(), 0))
}

// Save writes the table, skipping I/O if the checksum is unchanged.
func (t *Table) Save() error {
	sum := t.getChecksum()
	if sum == t.checksum {
		return nil
	}

	encodedHeader, err := codec.PackN(t.deps.codec(), t.headerBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack table header failed").WithCause(err).
			WithComponent("container").WithOperation("Table.Save")
	}
	encodedColumns, err := codec.PackN(t.deps.codec(), t.columnsBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack table columns failed").WithCause(err).
			WithComponent("container").WithOperation("Table.Save")
	}
	encodedDirs, err := codec.PackN(t.deps.codec(), t.dirNamesBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack table directory names failed").WithCause(err).
			WithComponent("container").WithOperation("Table.Save")
	}

	h, err := t.deps.FS.Open(t.Name, TableExtension)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeOpenFailed, "open table file failed").WithCause(err).
			WithComponent("container").WithOperation("Table.Save")
	}
	defer h.Close()

	offset := int64(0)
	if err := t.deps.FS.Write(h, offset, encodedHeader); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write table header failed").WithCause(err).
			WithComponent("container").WithOperation("Table.Save")
	}
	offset += int64(len(encodedHeader))
	if err := t.deps.FS.Write(h, offset, encodedColumns); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write table columns failed").WithCause(err).
			WithComponent("container").WithOperation("Table.Save")
	}
	offset += int64(len(encodedColumns))
	if err := t.deps.FS.Write(h, offset, encodedDirs); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write table directory names failed").WithCause(err).
			WithComponent("container").WithOperation("Table.Save")
	}

	t.checksum = sum
	return nil
}

// LoadTable returns the cached table for name if present, else reads it
// from disk and registers it in the cache.
func LoadTable(deps *Deps, name string) (*Table, error) {
	if v, ok := deps.Cache.Find(cache.ClassTable, name, TableBasePath); ok {
		deps.logf("table %s served from cache", name)
		return v.(*Table), nil
	}

	h, err := deps.FS.Open(name, TableExtension)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeNotFound, "table file not found").WithCause(err).
			WithComponent("container").WithOperation("LoadTable").WithContext("name", name)
	}
	defer h.Close()

	width := deps.codec().Width()
	encodedHeader, err := readExact(h, 0, tableHeaderSize*width)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read table header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadTable")
	}
	rawHeader, err := codec.UnpackN(deps.codec(), encodedHeader)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack table header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadTable")
	}
	if getUint32(rawHeader[0:4]) != TableMagic {
		return nil, cdbmserr.New(cdbmserr.CodeInvalidMagic, "table file has wrong magic").
			WithComponent("container").WithOperation("LoadTable").WithContext("name", name)
	}

	off := 4 + TableNameSize
	tbl := &Table{deps: deps, Name: getFixedString(rawHeader[4:off])}
	tbl.lock.Observe(deps.LockRecorder, "table")
	columnCount := int(getUint16(rawHeader[off : off+2]))
	dirCount := int(getUint16(rawHeader[off+2 : off+4]))
	if dirCount > MaxDirectoriesPerTable {
		dirCount = MaxDirectoriesPerTable
	}

	offset := int64(tableHeaderSize * width)
	encodedColumns, err := readExact(h, offset, columnCount*columnRecordSize*width)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read table columns failed").WithCause(err).
			WithComponent("container").WithOperation("LoadTable")
	}
	rawColumns, err := codec.UnpackN(deps.codec(), encodedColumns)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack table columns failed").WithCause(err).
			WithComponent("container").WithOperation("LoadTable")
	}
	for i := 0; i < columnCount; i++ {
		tbl.Columns = append(tbl.Columns, decodeColumn(rawColumns[i*columnRecordSize:(i+1)*columnRecordSize]))
	}
	tbl.RowSize = RowWidth(tbl.Columns)
	offset += int64(columnCount * columnRecordSize * width)

	encodedDirs, err := readExact(h, offset, MaxDirectoriesPerTable*DirectoryNameSize*width)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read table directory names failed").WithCause(err).
			WithComponent("container").WithOperation("LoadTable")
	}
	rawDirs, err := codec.UnpackN(deps.codec(), encodedDirs)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack table directory names failed").WithCause(err).
			WithComponent("container").WithOperation("LoadTable")
	}
	for i := 0; i < dirCount; i++ {
		tbl.DirNames = append(tbl.DirNames, getFixedString(rawDirs[i*DirectoryNameSize:(i+1)*DirectoryNameSize]))
	}
	tbl.checksum = tbl.getChecksum()

	deps.Cache.Add(cache.ClassTable, tbl.Name, TableBasePath, tbl,
		func() error { return nil },
		func() error { return tbl.Save() },
	)

	return tbl, nil
}

// DeleteTable removes the table file and, when full is true, recursively
// deletes every linked directory (and its pages).
func DeleteTable(deps *Deps, tbl *Table, workerID int, full bool) error {
	if !tbl.lock.RequireWrite(workerID) {
		return cdbmserr.New(cdbmserr.CodeLockUnavailable, "cannot lock table for delete").
			WithComponent("container").WithOperation("DeleteTable")
	}
	defer tbl.lock.ReleaseWrite(workerID)

	if full {
		for _, name := range tbl.DirNames {
			dir, err := LoadDirectory(deps, name)
			if err != nil {
				continue
			}
			DeleteDirectory(deps, dir, workerID, full)
		}
	}

	if err := deps.FS.Delete(tbl.Name, TableExtension); err != nil {
		return cdbmserr.New(cdbmserr.CodeDeleteFailed, "delete table file failed").WithCause(err).
			WithComponent("container").WithOperation("DeleteTable")
	}
	deps.Cache.Flush(cache.ClassTable, tbl.Name, TableBasePath)
	return nil
}
