package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/j1sk1ss/cdbms/internal/blockfs"
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/container"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	dir := t.TempDir()
	c := cache.New(cache.Config{})
	deps := &container.Deps{
		FS:    blockfs.New(dir, nil, nil, c),
		Cache: c,
	}
	return NewContext(deps)
}

func createDBAndTable(t *testing.T, ctx *Context, dbName, tableName string) {
	t.Helper()
	ans, err := ProcessCommand(ctx, 1, []string{"create", "database", dbName})
	require.NoError(t, err)
	require.Equal(t, 0, ans.Code)

	ans, err = ProcessCommand(ctx, 1, []string{
		dbName, "create", "table", tableName, "columns",
		"(", "title", "8", "str", "np", "na", ")",
	})
	require.NoError(t, err)
	require.Equal(t, 1, ans.Code)
}

func TestCreateAppendGetByIndex(t *testing.T) {
	ctx := testContext(t)
	createDBAndTable(t, ctx, "db1", "items")

	ans, err := ProcessCommand(ctx, 1, []string{"db1", "append", "row", "items", "values", "The Sea"})
	require.NoError(t, err)
	require.Equal(t, 0, ans.Code)

	ans, err = ProcessCommand(ctx, 1, []string{"db1", "get", "row", "items", "by_index", "0"})
	require.NoError(t, err)
	require.Equal(t, 0, ans.Code)
	require.Equal(t, "The Sea\x00", string(ans.Body))
}

func TestDeleteThenGetByIndexReportsNotFound(t *testing.T) {
	ctx := testContext(t)
	createDBAndTable(t, ctx, "db2", "items")

	_, err := ProcessCommand(ctx, 1, []string{"db2", "append", "row", "items", "values", "Harbor"})
	require.NoError(t, err)

	ans, err := ProcessCommand(ctx, 1, []string{"db2", "delete", "row", "items", "by_index", "0"})
	require.NoError(t, err)
	require.Equal(t, 0, ans.Code)

	ans, err = ProcessCommand(ctx, 1, []string{"db2", "get", "row", "items", "by_index", "0"})
	require.Error(t, err)
	require.Less(t, ans.Code, 0)
}

func TestGetByExpWithLimit(t *testing.T) {
	ctx := testContext(t)
	createDBAndTable(t, ctx, "db3", "items")

	for _, name := range []string{"alpha", "alpha", "alpha"} {
		_, err := ProcessCommand(ctx, 1, []string{"db3", "append", "row", "items", "values", name})
		require.NoError(t, err)
	}

	ans, err := ProcessCommand(ctx, 1, []string{
		"db3", "get", "row", "items", "by_exp",
		"column", "title", "eq", "alpha", "limit", "2",
	})
	require.NoError(t, err)
	require.Equal(t, 16, ans.Size)
}

func TestFlushAndRollback(t *testing.T) {
	ctx := testContext(t)
	createDBAndTable(t, ctx, "db4", "items")

	_, err := ProcessCommand(ctx, 1, []string{"db4", "append", "row", "items", "values", "one"})
	require.NoError(t, err)

	ans, err := ProcessCommand(ctx, 1, []string{"db4", "flush"})
	require.NoError(t, err)
	require.Equal(t, 0, ans.Code)

	_, err = ProcessCommand(ctx, 1, []string{"db4", "update", "row", "items", "hacked!!", "by_index", "0"})
	require.NoError(t, err)

	ans, err = ProcessCommand(ctx, 1, []string{"db4", "rollback"})
	require.NoError(t, err)
	require.Equal(t, 0, ans.Code)

	ans, err = ProcessCommand(ctx, 1, []string{"db4", "get", "row", "items", "by_index", "0"})
	require.NoError(t, err)
	require.Equal(t, "one\x00\x00\x00\x00\x00", string(ans.Body))
}

func TestVersionCommandWithNoConnection(t *testing.T) {
	ctx := testContext(t)
	ans, err := ProcessCommand(ctx, 1, []string{"version"})
	require.NoError(t, err)
	require.Equal(t, KernelVersion, string(ans.Body))
}

func TestMigrateProjectsColumn(t *testing.T) {
	ctx := testContext(t)
	_, err := ProcessCommand(ctx, 1, []string{"create", "database", "db5"})
	require.NoError(t, err)

	_, err = ProcessCommand(ctx, 1, []string{
		"db5", "create", "table", "src", "columns",
		"(", "title", "8", "str", "np", "na", "pages", "4", "int", "np", "na", ")",
	})
	require.NoError(t, err)
	_, err = ProcessCommand(ctx, 1, []string{
		"db5", "create", "table", "dst", "columns",
		"(", "title", "8", "str", "np", "na", ")",
	})
	require.NoError(t, err)

	_, err = ProcessCommand(ctx, 1, []string{"db5", "append", "row", "src", "values", "The Sea "})
	require.NoError(t, err)

	ans, err := ProcessCommand(ctx, 1, []string{"db5", "migrate", "src", "dst", "nav", "(", "title", ")"})
	require.NoError(t, err)
	require.Equal(t, 0, ans.Code)

	ans, err = ProcessCommand(ctx, 1, []string{"db5", "get", "row", "dst", "by_index", "0"})
	require.NoError(t, err)
	require.Equal(t, "The Sea ", string(ans.Body))
}
