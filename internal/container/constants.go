// Package container implements the Database, Table, Directory, and Page
// entities: the hierarchy each persisted as a discrete, checksummed file
// addressed through internal/blockfs, deduplicated through internal/cache,
// and guarded by internal/lock. Parents own only the names of their
// children; bodies are rehydrated from the cache on demand.
package container

// Magic values identify a container kind on disk. Load rejects any file
// whose leading magic does not match the expected kind for that load path.
const (
	DatabaseMagic  uint32 = 0xC0FFEE01
	TableMagic     uint32 = 0xC0FFEE02
	DirectoryMagic uint32 = 0xC0FFEE03
	PageMagic      uint32 = 0xC0FFEE04
)

// Fixed-width name field sizes, in source bytes (before codec widening).
const (
	DatabaseNameSize  = 32
	TableNameSize     = 32
	DirectoryNameSize = 16
	PageNameSize      = 16
	ColumnNameSize    = 32
	ModuleNameSize    = 16
	ModuleQuerySize   = 64
)

// Capacity bounds for child-name arrays and page content.
const (
	MaxTablesPerDatabase    = 64
	MaxDirectoriesPerTable  = 128
	MaxPagesPerDirectory    = 128
	MaxColumnsPerTable      = 32
	PageContentSize         = 4096
	PageEmpty          byte = 0xFF
)

// Base path and extension per container kind. The base paths namespace each
// kind's entries in the global cache; every container file itself is stored
// directly under the blockfs base directory as <SHORTNAME>.<ext>.
const (
	DatabaseBasePath  = "databases"
	DatabaseExtension = "db"

	TableBasePath  = "tables"
	TableExtension = "tbl"

	DirectoryBasePath  = "directories"
	DirectoryExtension = "dir"

	PageBasePath  = "pages"
	PageExtension = "pag"
)

// ShadowPrefix namespaces the copy of every container file written by
// InitTransaction and restored by Rollback.
const ShadowPrefix = "shadow_"
