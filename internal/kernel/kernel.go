package kernel

import (
	"github.com/j1sk1ss/cdbms/internal/container"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
)

// KernelVersion is the body returned by the "version" command.
const KernelVersion = "cdbms/1.0"

// ProcessCommand is the kernel's single entry point. args[0] names the
// database to connect — reusing ctx's current connection if it already
// matches, loading and replacing it otherwise. If no database by that name
// exists, args is reinterpreted entirely as a command stream with no
// active connection, so "create database <name>" works before the
// database exists. args[1:] (or all of args, in the no-connection case) is
// then consumed as a stream of commands, each ending where the next
// command keyword begins.
func ProcessCommand(ctx *Context, workerID int, args []string) (*Answer, error) {
	answer := &Answer{}
	if len(args) == 0 {
		return answer, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "missing database name").
			WithComponent("kernel").WithOperation("ProcessCommand")
	}

	db, err := ctx.connect(args[0])
	tokens := args[1:]
	if err != nil {
		db = nil
		tokens = args
	}

	i := 0
commands:
	for i < len(tokens) {
		command := tokens[i]
		i++

		switch command {
		case "version":
			answer.Body = []byte(KernelVersion)
			answer.Size = len(KernelVersion)

		case "flush":
			if db == nil {
				answer.Code = errorCode(errNoConnection())
				continue commands
			}
			answer.Code = errorCode(container.InitTransaction(ctx.Deps, db))
			answer.Size = -1

		case "rollback":
			if db == nil {
				answer.Code = errorCode(errNoConnection())
				continue commands
			}
			restored, rerr := container.Rollback(ctx.Deps, db)
			if rerr == nil {
				db = restored
				ctx.db = restored
			}
			answer.Code = errorCode(rerr)
			answer.Size = -1

		case "create":
			next, cerr := handleCreate(ctx, db, tokens, i, answer)
			i = next
			if cerr != nil {
				return answer, cerr
			}

		case "append":
			next, cerr := handleAppend(db, workerID, tokens, i, answer)
			i = next
			if cerr != nil {
				return answer, cerr
			}

		case "get":
			next, cerr := handleGet(db, workerID, tokens, i, answer)
			i = next
			if cerr != nil {
				return answer, cerr
			}

		case "update":
			next, cerr := handleUpdate(db, workerID, tokens, i, answer)
			i = next
			if cerr != nil {
				return answer, cerr
			}

		case "delete":
			next, cerr := handleDelete(ctx, db, workerID, tokens, i, answer)
			i = next
			if cerr != nil {
				return answer, cerr
			}

		case "migrate":
			next, cerr := handleMigrate(db, workerID, tokens, i, answer)
			i = next
			if cerr != nil {
				return answer, cerr
			}

		default:
			return answer, cdbmserr.New(cdbmserr.CodeUnknownKeyword, "unrecognized command").
				WithComponent("kernel").WithOperation("ProcessCommand").WithContext("command", command)
		}
	}

	return answer, nil
}

func errNoConnection() error {
	return cdbmserr.New(cdbmserr.CodeNotFound, "no active database connection").
		WithComponent("kernel").WithOperation("ProcessCommand")
}

// errorCode maps a structured error to the kernel answer's status code: 0
// on success, a small negative code per §7's error taxonomy otherwise.
func errorCode(err error) int {
	if err == nil {
		return 0
	}
	e, ok := err.(*cdbmserr.Error)
	if !ok {
		return -99
	}
	switch e.Category {
	case cdbmserr.CategoryNotFound:
		return -1
	case cdbmserr.CategoryMagic:
		return -2
	case cdbmserr.CategoryLock:
		return -3
	case cdbmserr.CategoryCapacity:
		return -4
	case cdbmserr.CategorySchema:
		return -5
	case cdbmserr.CategoryAllocation:
		return -6
	case cdbmserr.CategoryMalformed:
		return -7
	case cdbmserr.CategoryIO:
		return -8
	default:
		return -99
	}
}

func expect(tokens []string, i int, literal string) (int, error) {
	if i >= len(tokens) || tokens[i] != literal {
		return i, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "expected token").
			WithComponent("kernel").WithOperation("expect").WithContext("want", literal)
	}
	return i + 1, nil
}

func takeToken(tokens []string, i int, what string) (string, int, error) {
	if i >= len(tokens) {
		return "", i, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "missing token").
			WithComponent("kernel").WithOperation("takeToken").WithContext("want", what)
	}
	return tokens[i], i + 1, nil
}
