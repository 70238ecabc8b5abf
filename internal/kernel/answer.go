// Package kernel implements the positional-token query dispatcher: it
// resolves the active database connection, compiles and evaluates row
// predicates, and orchestrates CRUD, migration, and transaction commands
// against internal/container.
package kernel

// Answer is the kernel's response to a command stream: a status code (a
// negative code on failure; on success 0 for most commands, 1 for create
// table, the new row's index for append, and the row index for a by_index
// get), the byte length of Body
// (-1 when the command produces no body), and the body itself.
type Answer struct {
	Code int
	Size int
	Body []byte
}
