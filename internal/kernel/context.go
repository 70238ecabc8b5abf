package kernel

import (
	"github.com/j1sk1ss/cdbms/internal/container"
)

// Context factors the engine's process-wide active-database singleton
// into an explicit, caller-owned handle. Each Context holds at most one
// live database connection; ProcessCommand resolves it against the
// database name named in every call.
type Context struct {
	Deps *container.Deps

	db *container.Database
}

// NewContext creates a Context with no active connection.
func NewContext(deps *container.Deps) *Context {
	return &Context{Deps: deps}
}

// connect resolves name to the active database: reusing the current
// connection if it already matches, loading and replacing it if a
// different database is requested, or loading fresh if none is held.
func (c *Context) connect(name string) (*container.Database, error) {
	if c.db != nil && c.db.Name == name {
		return c.db, nil
	}
	c.db = nil

	db, err := container.LoadDatabase(c.Deps, name)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

// Disconnect drops the active connection without touching storage.
func (c *Context) Disconnect() {
	c.db = nil
}
