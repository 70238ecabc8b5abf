package container

import (
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/checksum"
	"github.com/j1sk1ss/cdbms/internal/codec"
	"github.com/j1sk1ss/cdbms/internal/lock"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
	"golang.org/x/sync/errgroup"
)

const databaseHeaderSize = 4 + DatabaseNameSize + 2 // magic + name + table count

// Database owns an ordered list of table names and is the root of the
// container hierarchy the query kernel connects to.
type Database struct {
	deps *Deps

	Name       string
	TableNames []string

	checksum uint32
	lock     lock.Lock

	// txTargets is the (basePath, name, extension) list snapshotted by the
	// most recent InitTransaction. Rollback restores exactly this list
	// rather than recomputing it from the live tree, since a container
	// allocated after the snapshot has no shadow file to restore from.
	txTargets [][3]string
}

// CreateDatabase constructs a database in memory, ready to be saved.
func CreateDatabase(deps *Deps, name string) *Database {
	db := &Database{deps: deps, Name: name}
	db.lock.Observe(deps.LockRecorder, "database")
	return db
}

// LinkTable appends newTable's name to the database's table list and
// registers newTable in the cache, so GetTable finds it before it is first
// saved. It fails with CodeDatabaseFull once the table count bound is reached.
func (d *Database) LinkTable(newTable *Table) error {
	if len(d.TableNames) >= MaxTablesPerDatabase {
		return cdbmserr.New(cdbmserr.CodeDatabaseFull, "database has no room for another table").
			WithComponent("container").WithOperation("LinkTable")
	}
	for _, name := range d.TableNames {
		if name == newTable.Name {
			return cdbmserr.New(cdbmserr.CodeDuplicateName, "table name already linked").
				WithComponent("container").WithOperation("LinkTable").WithContext("table", newTable.Name)
		}
	}
	d.deps.Cache.Add(cache.ClassTable, newTable.Name, TableBasePath, newTable,
		func() error { return nil },
		func() error { return newTable.Save() },
	)
	d.TableNames = append(d.TableNames, newTable.Name)
	return nil
}

// GetTable loads one of the database's linked tables by name, failing with
// CodeTableNotFound if name is not linked.
func (d *Database) GetTable(name string) (*Table, error) {
	for _, linked := range d.TableNames {
		if linked == name {
			return LoadTable(d.deps, name)
		}
	}
	return nil, cdbmserr.New(cdbmserr.CodeTableNotFound, "table not linked to database").
		WithComponent("container").WithOperation("GetTable").WithContext("table", name)
}

// AppendRow, GetRow, InsertRow, and DeleteRow dispatch row operations to
// the named table, the entry points the query kernel's row logic uses.

func (d *Database) AppendRow(workerID int, tableName string, data []byte) (int, error) {
	tbl, err := d.GetTable(tableName)
	if err != nil {
		return -1, err
	}
	return tbl.Append(workerID, data)
}

func (d *Database) GetRow(workerID int, tableName string, index int) ([]byte, error) {
	tbl, err := d.GetTable(tableName)
	if err != nil {
		return nil, err
	}
	return tbl.Get(workerID, index)
}

func (d *Database) InsertRow(workerID int, tableName string, index int, data []byte) error {
	tbl, err := d.GetTable(tableName)
	if err != nil {
		return err
	}
	return tbl.Insert(workerID, index, data)
}

func (d *Database) DeleteRow(workerID int, tableName string, index int) error {
	tbl, err := d.GetTable(tableName)
	if err != nil {
		return err
	}
	return tbl.Delete(workerID, index)
}

func (d *Database) headerBytes() []byte {
	buf := make([]byte, databaseHeaderSize)
	putUint32(buf[0:4], DatabaseMagic)
	putFixedString(buf[4:4+DatabaseNameSize], d.Name)
	putUint16(buf[4+DatabaseNameSize:], uint16(len(d.TableNames)))
	return buf
}

func (d *Database) tableNamesBytes() []byte {
	buf := make([]byte, MaxTablesPerDatabase*TableNameSize)
	for i, name := range d.TableNames {
		putFixedString(buf[i*TableNameSize:(i+1)*TableNameSize], name)
	}
	return buf
}

func (d *Database) getChecksum() uint32 {
	headerHash := checksum.Sum32(d.headerBytes(), 0)
	namesHash := checksum.Sum32(d.tableNamesBytes(), 0)
	return checksum.Combine(headerHash, namesHash)
}

// Save persists the database, skipping I/O if the checksum is unchanged.
func (d *Database) Save() error {
	sum := d.getChecksum()
	if sum == d.checksum {
		return nil
	}

	encodedHeader, err := codec.PackN(d.deps.codec(), d.headerBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack database header failed").WithCause(err).
			WithComponent("container").WithOperation("Database.Save")
	}
	encodedNames, err := codec.PackN(d.deps.codec(), d.tableNamesBytes())
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "pack database table names failed").WithCause(err).
			WithComponent("container").WithOperation("Database.Save")
	}

	h, err := d.deps.FS.Open(d.Name, DatabaseExtension)
	if err != nil {
		return cdbmserr.New(cdbmserr.CodeOpenFailed, "open database file failed").WithCause(err).
			WithComponent("container").WithOperation("Database.Save")
	}
	defer h.Close()

	if err := d.deps.FS.Write(h, 0, encodedHeader); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write database header failed").WithCause(err).
			WithComponent("container").WithOperation("Database.Save")
	}
	if err := d.deps.FS.Write(h, int64(len(encodedHeader)), encodedNames); err != nil {
		return cdbmserr.New(cdbmserr.CodeWriteFailed, "write database table names failed").WithCause(err).
			WithComponent("container").WithOperation("Database.Save")
	}

	d.checksum = sum
	return nil
}

// LoadDatabase reads a database file from disk. Unlike tables/directories/
// pages, a database is not deduplicated through the global cache — the
// kernel holds exactly one connection at a time (see internal/kernel).
func LoadDatabase(deps *Deps, name string) (*Database, error) {
	h, err := deps.FS.Open(name, DatabaseExtension)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeNotFound, "database file not found").WithCause(err).
			WithComponent("container").WithOperation("LoadDatabase").WithContext("name", name)
	}
	defer h.Close()

	width := deps.codec().Width()
	encodedHeader, err := readExact(h, 0, databaseHeaderSize*width)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read database header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDatabase")
	}
	rawHeader, err := codec.UnpackN(deps.codec(), encodedHeader)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack database header failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDatabase")
	}
	if getUint32(rawHeader[0:4]) != DatabaseMagic {
		return nil, cdbmserr.New(cdbmserr.CodeInvalidMagic, "database file has wrong magic").
			WithComponent("container").WithOperation("LoadDatabase").WithContext("name", name)
	}

	db := &Database{deps: deps, Name: getFixedString(rawHeader[4 : 4+DatabaseNameSize])}
	db.lock.Observe(deps.LockRecorder, "database")
	tableCount := int(getUint16(rawHeader[4+DatabaseNameSize:]))
	if tableCount > MaxTablesPerDatabase {
		tableCount = MaxTablesPerDatabase
	}

	encodedNames, err := readExact(h, int64(databaseHeaderSize*width), MaxTablesPerDatabase*TableNameSize*width)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "read database table names failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDatabase")
	}
	rawNames, err := codec.UnpackN(deps.codec(), encodedNames)
	if err != nil {
		return nil, cdbmserr.New(cdbmserr.CodeReadFailed, "unpack database table names failed").WithCause(err).
			WithComponent("container").WithOperation("LoadDatabase")
	}
	for i := 0; i < tableCount; i++ {
		db.TableNames = append(db.TableNames, getFixedString(rawNames[i*TableNameSize:(i+1)*TableNameSize]))
	}
	db.checksum = db.getChecksum()

	return db, nil
}

// DeleteDatabase removes the database file and, when full is true,
// recursively deletes every linked table (and its directories and pages)
// in parallel.
func DeleteDatabase(deps *Deps, db *Database, workerID int, full bool) error {
	if !db.lock.RequireWrite(workerID) {
		return cdbmserr.New(cdbmserr.CodeLockUnavailable, "cannot lock database for delete").
			WithComponent("container").WithOperation("DeleteDatabase")
	}
	defer db.lock.ReleaseWrite(workerID)

	if full {
		var g errgroup.Group
		for _, name := range db.TableNames {
			name := name
			g.Go(func() error {
				tbl, err := LoadTable(deps, name)
				if err != nil {
					return nil
				}
				return DeleteTable(deps, tbl, workerID, full)
			})
		}
		if err := g.Wait(); err != nil {
			deps.logf("parallel table delete under database %s reported: %v", db.Name, err)
		}
	}

	if err := deps.FS.Delete(db.Name, DatabaseExtension); err != nil {
		return cdbmserr.New(cdbmserr.CodeDeleteFailed, "delete database file failed").WithCause(err).
			WithComponent("container").WithOperation("DeleteDatabase")
	}
	return nil
}

// snapshotTargets walks the container tree reachable from db, returning
// every (basePath, name, extension) file that init_transaction must
// persist-then-copy, and rollback must restore.
func snapshotTargets(deps *Deps, db *Database) ([][3]string, error) {
	targets := [][3]string{{DatabaseBasePath, db.Name, DatabaseExtension}}

	for _, tableName := range db.TableNames {
		tbl, err := LoadTable(deps, tableName)
		if err != nil {
			return nil, err
		}
		targets = append(targets, [3]string{TableBasePath, tbl.Name, TableExtension})

		for _, dirName := range tbl.DirNames {
			dir, err := LoadDirectory(deps, dirName)
			if err != nil {
				return nil, err
			}
			targets = append(targets, [3]string{DirectoryBasePath, dir.Name, DirectoryExtension})

			for _, pageName := range dir.PageNames {
				targets = append(targets, [3]string{PageBasePath, pageName, PageExtension})
			}
		}
	}

	return targets, nil
}

func writeFreeThroughout(deps *Deps, db *Database) bool {
	if !db.lock.WriteFree() {
		return false
	}
	for _, tableName := range db.TableNames {
		tbl, err := LoadTable(deps, tableName)
		if err != nil || !tbl.lock.WriteFree() {
			return false
		}
		for _, dirName := range tbl.DirNames {
			dir, err := LoadDirectory(deps, dirName)
			if err != nil || !dir.lock.WriteFree() {
				return false
			}
			for _, pageName := range dir.PageNames {
				page, err := LoadPage(deps, pageName)
				if err != nil || !page.lock.WriteFree() {
					return false
				}
			}
		}
	}
	return true
}

// InitTransaction is a global barrier: it persists every container
// reachable from db, then copies each to a shadow-prefixed file, giving
// Rollback a consistent restore point. It fails if any participating
// container currently holds a write lock.
func InitTransaction(deps *Deps, db *Database) error {
	if !writeFreeThroughout(deps, db) {
		return cdbmserr.New(cdbmserr.CodeLockUnavailable, "a container in this database holds a write lock").
			WithComponent("container").WithOperation("InitTransaction")
	}

	if err := flushAllReachable(deps, db); err != nil {
		return err
	}

	targets, err := snapshotTargets(deps, db)
	if err != nil {
		return err
	}
	for _, t := range targets {
		name, ext := t[1], t[2]
		if err := deps.FS.Copy(name, ShadowPrefix+name, ext); err != nil {
			return cdbmserr.New(cdbmserr.CodeWriteFailed, "failed to snapshot container file").WithCause(err).
				WithComponent("container").WithOperation("InitTransaction").WithContext("name", name)
		}
	}

	db.txTargets = targets
	return nil
}

func flushAllReachable(deps *Deps, db *Database) error {
	if err := db.Save(); err != nil {
		return err
	}
	for _, tableName := range db.TableNames {
		tbl, err := LoadTable(deps, tableName)
		if err != nil {
			return err
		}
		if err := tbl.Save(); err != nil {
			return err
		}
		for _, dirName := range tbl.DirNames {
			dir, err := LoadDirectory(deps, dirName)
			if err != nil {
				return err
			}
			if err := dir.Save(); err != nil {
				return err
			}
			for _, pageName := range dir.PageNames {
				page, err := LoadPage(deps, pageName)
				if err != nil {
					return err
				}
				if err := page.Save(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Rollback evicts the cached in-memory copies (eviction saves unsaved
// changes, which the restore then overwrites), restores every container
// file of the current database from its shadow snapshot, and returns a
// freshly reloaded Database. It fails if any participating
// container currently holds a write lock, leaving state untouched.
func Rollback(deps *Deps, db *Database) (*Database, error) {
	if !writeFreeThroughout(deps, db) {
		return nil, cdbmserr.New(cdbmserr.CodeLockUnavailable, "a container in this database holds a write lock").
			WithComponent("container").WithOperation("Rollback")
	}

	if db.txTargets == nil {
		return nil, cdbmserr.New(cdbmserr.CodeNotFound, "no transaction snapshot to roll back to").
			WithComponent("container").WithOperation("Rollback")
	}

	deps.Cache.FlushAll(cache.ClassPage)
	deps.Cache.FlushAll(cache.ClassDirectory)
	deps.Cache.FlushAll(cache.ClassTable)

	for _, t := range db.txTargets {
		name, ext := t[1], t[2]
		if err := deps.FS.Copy(ShadowPrefix+name, name, ext); err != nil {
			return nil, cdbmserr.New(cdbmserr.CodeWriteFailed, "failed to restore container file from snapshot").WithCause(err).
				WithComponent("container").WithOperation("Rollback").WithContext("name", name)
		}
	}

	return LoadDatabase(deps, db.Name)
}
