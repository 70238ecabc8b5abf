package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j1sk1ss/cdbms/internal/blockfs"
	"github.com/j1sk1ss/cdbms/internal/cache"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()
	dir := t.TempDir()
	c := cache.New(cache.Config{})
	return &Deps{
		FS:    blockfs.New(dir, nil, nil, c),
		Cache: c,
	}
}

func TestPageAppendGetDelete(t *testing.T) {
	deps := testDeps(t)
	page := NewPage(deps, "PAGE0001")

	slot, err := page.Append(1, 4, []byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 0, slot)

	row, err := page.Get(1, slot, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), row)

	require.NoError(t, page.Delete(1, slot, 4))
	_, err = page.Get(1, slot, 4)
	assert.Error(t, err)
}

func TestPageAppendReusesTombstone(t *testing.T) {
	deps := testDeps(t)
	page := NewPage(deps, "PAGE0002")

	s0, _ := page.Append(1, 4, []byte("aaaa"))
	page.Append(1, 4, []byte("bbbb"))
	require.NoError(t, page.Delete(1, s0, 4))

	reused, err := page.Append(1, 4, []byte("cccc"))
	require.NoError(t, err)
	assert.Equal(t, s0, reused)
}

func TestPageSaveLoadRoundTrip(t *testing.T) {
	deps := testDeps(t)
	page := NewPage(deps, "PAGE0003")
	page.Append(1, 4, []byte("abcd"))
	require.NoError(t, page.Save())

	loaded, err := LoadPage(deps, "PAGE0003")
	require.NoError(t, err)
	assert.Equal(t, page.Length, loaded.Length)
	assert.Equal(t, page.Content, loaded.Content)
}

func TestPageSaveIsNoOpWithoutMutation(t *testing.T) {
	deps := testDeps(t)
	page := NewPage(deps, "PAGE0004")
	page.Append(1, 4, []byte("abcd"))
	require.NoError(t, page.Save())

	sumBefore := page.checksum
	require.NoError(t, page.Save())
	assert.Equal(t, sumBefore, page.checksum)
}

func TestDirectorySpansMultiplePages(t *testing.T) {
	deps := testDeps(t)
	dir := NewDirectory(deps, "DIR00001")

	rowSize := 8
	perPage := PageContentSize / rowSize
	for i := 0; i < perPage+1; i++ {
		_, err := dir.Append(1, rowSize, []byte("rowdata!"))
		require.NoError(t, err)
	}
	assert.Len(t, dir.PageNames, 2)
}

func TestDirectorySaveLoadRoundTrip(t *testing.T) {
	deps := testDeps(t)
	dir := NewDirectory(deps, "DIR00002")
	dir.Append(1, 4, []byte("abcd"))
	require.NoError(t, dir.Save())

	loaded, err := LoadDirectory(deps, "DIR00002")
	require.NoError(t, err)
	assert.Equal(t, dir.PageNames, loaded.PageNames)
}

func newTestTable(t *testing.T, deps *Deps, name string) *Table {
	t.Helper()
	columns, err := CompileColumns([]string{
		"title", "8", "str", "np", "na",
		"pages", "4", "int", "np", "na",
	})
	require.NoError(t, err)
	tbl, err := NewTable(deps, name, columns)
	require.NoError(t, err)
	return tbl
}

func TestTableAppendGetDelete(t *testing.T) {
	deps := testDeps(t)
	tbl := newTestTable(t, deps, "BOOKS0001")

	idx, err := tbl.Append(1, []byte("The Sea 0040"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	row, err := tbl.Get(1, idx)
	require.NoError(t, err)
	assert.Equal(t, "The Sea 0040", string(row))

	require.NoError(t, tbl.Delete(1, idx))
	_, err = tbl.Get(1, idx)
	assert.Error(t, err)
}

func TestTableAppendAllocatesSecondDirectory(t *testing.T) {
	deps := testDeps(t)
	columns, err := CompileColumns([]string{"wide", "4000", "str", "np", "na"})
	require.NoError(t, err)
	tbl, err := NewTable(deps, "BOOKS0002", columns)
	require.NoError(t, err)

	row := make([]byte, tbl.RowSize)
	perDir := rowsPerDirectory(tbl.RowSize)
	for i := 0; i < perDir+1; i++ {
		_, err := tbl.Append(1, row)
		require.NoError(t, err)
	}
	assert.Len(t, tbl.DirNames, 2)
}

func TestTableMigrateProjectsColumns(t *testing.T) {
	deps := testDeps(t)
	src := newTestTable(t, deps, "SRC0000001")
	src.Append(1, []byte("The Sea 0040"))
	src.Append(1, []byte("Far Away0100"))

	dstColumns, err := CompileColumns([]string{"title", "8", "str", "np", "na"})
	require.NoError(t, err)
	dst, err := NewTable(deps, "DST0000001", dstColumns)
	require.NoError(t, err)

	require.NoError(t, Migrate(src, dst, 1, []string{"title"}))

	row, err := dst.Get(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "The Sea ", string(row))
}

func TestColumnCompileModuleType(t *testing.T) {
	columns, err := CompileColumns([]string{
		"enriched", "16", "geocode=zipcode,mpre", "primary", "auto_inc",
	})
	require.NoError(t, err)
	require.Len(t, columns, 1)
	c := columns[0]
	assert.Equal(t, TypeModule, c.Type)
	assert.Equal(t, "geocode", c.ModuleName)
	assert.Equal(t, "zipcode", c.ModuleQuery)
	assert.Equal(t, ModulePreload, c.ModulePhase)
	assert.True(t, c.Primary)
	assert.True(t, c.AutoIncrement)
}

func TestDatabaseLinkAndGetTable(t *testing.T) {
	deps := testDeps(t)
	db := CreateDatabase(deps, "LIB00001")
	tbl := newTestTable(t, deps, "BOOKS0003")
	require.NoError(t, db.LinkTable(tbl))

	got, err := db.GetTable("BOOKS0003")
	require.NoError(t, err)
	assert.Equal(t, tbl.Name, got.Name)
}

func TestDatabaseSaveLoadRoundTrip(t *testing.T) {
	deps := testDeps(t)
	db := CreateDatabase(deps, "LIB00002")
	tbl := newTestTable(t, deps, "BOOKS0004")
	require.NoError(t, db.LinkTable(tbl))
	require.NoError(t, tbl.Save())
	require.NoError(t, db.Save())

	loaded, err := LoadDatabase(deps, "LIB00002")
	require.NoError(t, err)
	assert.Equal(t, db.TableNames, loaded.TableNames)
}

func TestTransactionRollbackRestoresSnapshot(t *testing.T) {
	deps := testDeps(t)
	db := CreateDatabase(deps, "LIB00003")
	tbl := newTestTable(t, deps, "BOOKS0005")
	require.NoError(t, db.LinkTable(tbl))

	idx, err := tbl.Append(1, []byte("The Sea 0040"))
	require.NoError(t, err)
	require.NoError(t, tbl.Save())
	require.NoError(t, db.Save())

	require.NoError(t, InitTransaction(deps, db))

	require.NoError(t, tbl.Insert(1, idx, []byte("Modified0000")))
	require.NoError(t, flushAllReachable(deps, db))

	restored, err := Rollback(deps, db)
	require.NoError(t, err)

	restoredTbl, err := restored.GetTable("BOOKS0005")
	require.NoError(t, err)
	row, err := restoredTbl.Get(1, idx)
	require.NoError(t, err)
	assert.Equal(t, "The Sea 0040", string(row))
}

// TestRollbackAfterPostSnapshotGrowthSucceeds covers a page allocated
// between InitTransaction and Rollback: that page has no shadow file, so
// rollback must restore only what was actually snapshotted rather than
// recomputing targets from the post-mutation tree.
func TestRollbackAfterPostSnapshotGrowthSucceeds(t *testing.T) {
	deps := testDeps(t)
	db := CreateDatabase(deps, "LIB00004")
	columns, err := CompileColumns([]string{"wide", "4000", "str", "np", "na"})
	require.NoError(t, err)
	tbl, err := NewTable(deps, "BOOKS0006", columns)
	require.NoError(t, err)
	require.NoError(t, db.LinkTable(tbl))

	row := make([]byte, tbl.RowSize)
	first, err := tbl.Append(1, row)
	require.NoError(t, err)
	require.NoError(t, tbl.Save())
	require.NoError(t, db.Save())

	require.NoError(t, InitTransaction(deps, db))

	// The single page under this directory holds exactly one row of this
	// width, so this append allocates a brand new page with no shadow copy.
	_, err = tbl.Append(1, row)
	require.NoError(t, err)
	require.NoError(t, flushAllReachable(deps, db))

	restored, err := Rollback(deps, db)
	require.NoError(t, err)

	restoredTbl, err := restored.GetTable("BOOKS0006")
	require.NoError(t, err)
	_, err = restoredTbl.Get(1, first)
	require.NoError(t, err)
}
