package kernel

import (
	"github.com/j1sk1ss/cdbms/internal/container"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
)

// handleCreate parses "create database <name>" or
// "create table <name> [columns ( col-tokens... )]".
func handleCreate(ctx *Context, db *container.Database, tokens []string, i int, answer *Answer) (int, error) {
	var option string
	var err error
	option, i, err = takeToken(tokens, i, "create option")
	if err != nil {
		return i, err
	}

	switch option {
	case "database":
		var name string
		name, i, err = takeToken(tokens, i, "database name")
		if err != nil {
			return i, err
		}
		newDB := container.CreateDatabase(ctx.Deps, name)
		answer.Code = errorCode(newDB.Save())
		answer.Size = -1
		return i, nil

	case "table":
		var name string
		name, i, err = takeToken(tokens, i, "table name")
		if err != nil {
			return i, err
		}

		if db != nil {
			if existing, terr := db.GetTable(name); terr == nil {
				existing.Save()
				answer.Size = -1
				return i, nil
			}
		}

		var columns []*container.Column
		if i < len(tokens) && tokens[i] == "columns" {
			i++
			i, err = expect(tokens, i, "(")
			if err != nil {
				return i, err
			}

			var colTokens []string
			for i < len(tokens) && tokens[i] != ")" {
				colTokens = append(colTokens, tokens[i])
				i++
			}
			i, err = expect(tokens, i, ")")
			if err != nil {
				return i, err
			}

			columns, err = container.CompileColumns(colTokens)
			if err != nil {
				answer.Code = errorCode(err)
				answer.Size = -1
				return i, nil
			}
		}

		if db == nil {
			answer.Code = errorCode(errNoConnection())
			answer.Size = -1
			return i, nil
		}

		newTable, terr := container.NewTable(ctx.Deps, name, columns)
		if terr != nil {
			answer.Code = errorCode(terr)
			answer.Size = -1
			return i, nil
		}
		if lerr := db.LinkTable(newTable); lerr != nil {
			answer.Code = errorCode(lerr)
			answer.Size = -1
			return i, nil
		}
		newTable.Save()
		db.Save()
		answer.Code = 1
		answer.Size = -1
		return i, nil

	default:
		return i, cdbmserr.New(cdbmserr.CodeUnknownKeyword, "unknown create option").
			WithComponent("kernel").WithOperation("handleCreate").WithContext("option", option)
	}
}

// handleAppend parses "append row <table> values <data>".
func handleAppend(db *container.Database, workerID int, tokens []string, i int, answer *Answer) (int, error) {
	var err error
	i, err = expect(tokens, i, "row")
	if err != nil {
		return i, err
	}
	var tableName string
	tableName, i, err = takeToken(tokens, i, "table name")
	if err != nil {
		return i, err
	}
	i, err = expect(tokens, i, "values")
	if err != nil {
		return i, err
	}
	var data string
	data, i, err = takeToken(tokens, i, "row data")
	if err != nil {
		return i, err
	}

	answer.Size = -1
	if db == nil {
		answer.Code = errorCode(errNoConnection())
		return i, nil
	}

	idx, aerr := db.AppendRow(workerID, tableName, []byte(data))
	if aerr != nil {
		answer.Code = errorCode(aerr)
		return i, nil
	}
	answer.Code = idx
	return i, nil
}

// handleGet parses "get row <table> by_index <n>" or
// "get row <table> by_exp <expression tokens>".
func handleGet(db *container.Database, workerID int, tokens []string, i int, answer *Answer) (int, error) {
	var err error
	i, err = expect(tokens, i, "row")
	if err != nil {
		return i, err
	}
	var tableName string
	tableName, i, err = takeToken(tokens, i, "table name")
	if err != nil {
		return i, err
	}

	answer.Size = -1
	if db == nil {
		answer.Code = errorCode(errNoConnection())
		return i, nil
	}
	table, terr := db.GetTable(tableName)
	if terr != nil {
		answer.Code = errorCode(terr)
		return i, terr
	}

	var mode string
	mode, i, err = takeToken(tokens, i, "by_index or by_exp")
	if err != nil {
		return i, err
	}

	switch mode {
	case "by_index":
		var idxStr string
		idxStr, i, err = takeToken(tokens, i, "row index")
		if err != nil {
			return i, err
		}
		index := leadingInt(idxStr)
		row, gerr := table.Get(workerID, index)
		if gerr != nil {
			answer.Code = errorCode(gerr)
			return i, gerr
		}
		answer.Body = row
		answer.Size = len(row)
		answer.Code = index

	case "by_exp":
		exp, consumed, eerr := compileExpression(table, tokens[i:])
		if eerr != nil {
			answer.Code = errorCode(eerr)
			return i, eerr
		}
		i += consumed
		if perr := processTable(table, workerID, exp, logicGet, nil, answer); perr != nil {
			answer.Code = errorCode(perr)
		}

	default:
		return i, cdbmserr.New(cdbmserr.CodeUnknownKeyword, "expected by_index or by_exp").
			WithComponent("kernel").WithOperation("handleGet")
	}

	table.Save()
	return i, nil
}

// handleUpdate parses "update row <table> <data> by_index <n>" or
// "update row <table> <data> by_exp <expression tokens>".
func handleUpdate(db *container.Database, workerID int, tokens []string, i int, answer *Answer) (int, error) {
	var err error
	i, err = expect(tokens, i, "row")
	if err != nil {
		return i, err
	}
	var tableName, data string
	tableName, i, err = takeToken(tokens, i, "table name")
	if err != nil {
		return i, err
	}
	data, i, err = takeToken(tokens, i, "new row data")
	if err != nil {
		return i, err
	}

	answer.Size = -1
	var mode string
	mode, i, err = takeToken(tokens, i, "by_index or by_exp")
	if err != nil {
		return i, err
	}

	switch mode {
	case "by_index":
		var idxStr string
		idxStr, i, err = takeToken(tokens, i, "row index")
		if err != nil {
			return i, err
		}
		if db == nil {
			answer.Code = errorCode(errNoConnection())
			return i, nil
		}
		index := leadingInt(idxStr)
		answer.Code = errorCode(db.InsertRow(workerID, tableName, index, []byte(data)))

	case "by_exp":
		if db == nil {
			answer.Code = errorCode(errNoConnection())
			return i, nil
		}
		table, terr := db.GetTable(tableName)
		if terr != nil {
			answer.Code = errorCode(terr)
			return i, terr
		}
		exp, consumed, eerr := compileExpression(table, tokens[i:])
		if eerr != nil {
			answer.Code = errorCode(eerr)
			return i, eerr
		}
		i += consumed
		if perr := processTable(table, workerID, exp, logicInsert, []byte(data), answer); perr != nil {
			answer.Code = errorCode(perr)
		}
		table.Save()

	default:
		return i, cdbmserr.New(cdbmserr.CodeUnknownKeyword, "expected by_index or by_exp").
			WithComponent("kernel").WithOperation("handleUpdate")
	}

	return i, nil
}

// handleDelete parses "delete database", "delete table <name>", or
// "delete row <table> by_index <n>" / "delete row <table> by_exp <...>".
func handleDelete(ctx *Context, db *container.Database, workerID int, tokens []string, i int, answer *Answer) (int, error) {
	var option string
	var err error
	option, i, err = takeToken(tokens, i, "delete option")
	if err != nil {
		return i, err
	}

	answer.Size = -1
	if db == nil {
		answer.Code = errorCode(errNoConnection())
		return i, nil
	}

	switch option {
	case "database":
		derr := container.DeleteDatabase(ctx.Deps, db, workerID, true)
		if derr == nil {
			ctx.Disconnect()
		}
		answer.Code = errorCode(derr)
		return i, nil

	case "table":
		var name string
		name, i, err = takeToken(tokens, i, "table name")
		if err != nil {
			return i, err
		}
		table, terr := db.GetTable(name)
		if terr != nil {
			answer.Code = errorCode(terr)
			return i, nil
		}
		answer.Code = errorCode(container.DeleteTable(ctx.Deps, table, workerID, true))
		return i, nil

	case "row":
		var tableName string
		tableName, i, err = takeToken(tokens, i, "table name")
		if err != nil {
			return i, err
		}

		var mode string
		mode, i, err = takeToken(tokens, i, "by_index or by_exp")
		if err != nil {
			return i, err
		}

		switch mode {
		case "by_index":
			var idxStr string
			idxStr, i, err = takeToken(tokens, i, "row index")
			if err != nil {
				return i, err
			}
			index := leadingInt(idxStr)
			answer.Code = errorCode(db.DeleteRow(workerID, tableName, index))

		case "by_exp":
			table, terr := db.GetTable(tableName)
			if terr != nil {
				answer.Code = errorCode(terr)
				return i, terr
			}
			exp, consumed, eerr := compileExpression(table, tokens[i:])
			if eerr != nil {
				answer.Code = errorCode(eerr)
				return i, eerr
			}
			i += consumed
			if perr := processTable(table, workerID, exp, logicDelete, nil, answer); perr != nil {
				answer.Code = errorCode(perr)
			}
			table.Save()

		default:
			return i, cdbmserr.New(cdbmserr.CodeUnknownKeyword, "expected by_index or by_exp").
				WithComponent("kernel").WithOperation("handleDelete")
		}
		return i, nil

	default:
		return i, cdbmserr.New(cdbmserr.CodeUnknownKeyword, "unknown delete option").
			WithComponent("kernel").WithOperation("handleDelete").WithContext("option", option)
	}
}

// handleMigrate parses "migrate <src> <dst> nav ( col1 col2 ... )".
func handleMigrate(db *container.Database, workerID int, tokens []string, i int, answer *Answer) (int, error) {
	var err error
	var srcName, dstName string
	srcName, i, err = takeToken(tokens, i, "source table name")
	if err != nil {
		return i, err
	}
	dstName, i, err = takeToken(tokens, i, "destination table name")
	if err != nil {
		return i, err
	}
	i, err = expect(tokens, i, "nav")
	if err != nil {
		return i, err
	}
	i, err = expect(tokens, i, "(")
	if err != nil {
		return i, err
	}

	var projection []string
	for i < len(tokens) && tokens[i] != ")" {
		projection = append(projection, tokens[i])
		i++
	}
	i, err = expect(tokens, i, ")")
	if err != nil {
		return i, err
	}

	answer.Size = -1
	if db == nil {
		answer.Code = errorCode(errNoConnection())
		return i, nil
	}

	src, serr := db.GetTable(srcName)
	if serr != nil {
		answer.Code = errorCode(serr)
		return i, serr
	}
	dst, derr := db.GetTable(dstName)
	if derr != nil {
		answer.Code = errorCode(derr)
		return i, derr
	}

	answer.Code = errorCode(container.Migrate(src, dst, workerID, projection))
	src.Save()
	dst.Save()
	return i, nil
}
