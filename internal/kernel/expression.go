package kernel

import (
	"strconv"
	"strings"

	"github.com/j1sk1ss/cdbms/internal/container"
	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
	"golang.org/x/sync/errgroup"
)

// Recognized comparison operators: string ops compare after trimming
// leading spaces, integer ops parse a leading integer from each operand.
const (
	opStrEq  = "eq"
	opStrNeq = "neq"
	opNumEq  = "="
	opNumNeq = "!="
	opLess   = "<"
	opMore   = ">"
)

type condition struct {
	info  *container.ColumnInfo
	op    string
	value string
}

// Expression is a compiled row predicate: an ordered list of conditions
// folded left-to-right by operators (length one less than the condition
// count), with an optional scan offset and match limit.
type Expression struct {
	conditions []condition
	operators  []string
	Offset     int
	Limit      int
}

// compileExpression consumes the token stream
// `(column <name> <op> <value>)* (or|and)* (offset <n>)? (limit <n>)?`
// against table's schema, stopping at the first token it does not
// recognize or at end of stream. It returns the number of tokens consumed
// so the caller can resume parsing the remainder of the command stream.
func compileExpression(table *container.Table, tokens []string) (*Expression, int, error) {
	exp := &Expression{Limit: -1}

	i := 0
	for i < len(tokens) {
		switch tokens[i] {
		case "column":
			if i+3 >= len(tokens) {
				return nil, i, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "truncated column condition").
					WithComponent("kernel").WithOperation("compileExpression")
			}
			info, err := table.GetColumnInfo(tokens[i+1])
			if err != nil {
				return nil, i, err
			}
			exp.conditions = append(exp.conditions, condition{info: info, op: tokens[i+2], value: tokens[i+3]})
			i += 4

		case "or", "and":
			exp.operators = append(exp.operators, tokens[i])
			i++

		case "offset":
			if i+1 >= len(tokens) {
				return nil, i, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "offset missing value").
					WithComponent("kernel").WithOperation("compileExpression")
			}
			n, err := strconv.Atoi(tokens[i+1])
			if err != nil {
				return nil, i, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "offset is not an integer").WithCause(err).
					WithComponent("kernel").WithOperation("compileExpression")
			}
			exp.Offset = n
			i += 2

		case "limit":
			if i+1 >= len(tokens) {
				return nil, i, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "limit missing value").
					WithComponent("kernel").WithOperation("compileExpression")
			}
			n, err := strconv.Atoi(tokens[i+1])
			if err != nil {
				return nil, i, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "limit is not an integer").WithCause(err).
					WithComponent("kernel").WithOperation("compileExpression")
			}
			exp.Limit = n
			i += 2

		default:
			return exp, i, nil
		}
	}

	return exp, i, nil
}

// leadingInt parses the integer at the start of s, matching the source's
// atoi-from-field-start behavior rather than requiring the whole field to
// be numeric.
func leadingInt(s string) int {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

func compareData(op string, fieldData []byte, value string) bool {
	field := strings.TrimLeft(string(fieldData), " ")
	field = strings.TrimRight(field, "\x00")
	other := strings.TrimLeft(value, " ")

	switch op {
	case opStrEq:
		return field == other
	case opStrNeq:
		return field != other
	case opNumEq:
		return leadingInt(field) == leadingInt(other)
	case opNumNeq:
		return leadingInt(field) != leadingInt(other)
	case opLess:
		return leadingInt(field) < leadingInt(other)
	case opMore:
		return leadingInt(field) > leadingInt(other)
	default:
		return false
	}
}

// evaluate computes every condition's result in parallel, then folds them
// left-to-right by the operators list. There is no operator precedence and
// no short-circuit: `c0 and c1 or c2` is always `(c0 and c1) or c2`.
func (e *Expression) evaluate(row []byte) bool {
	if len(e.conditions) == 0 {
		return true
	}

	results := make([]bool, len(e.conditions))
	var g errgroup.Group
	for idx, cond := range e.conditions {
		idx, cond := idx, cond
		g.Go(func() error {
			field := row[cond.info.Offset : cond.info.Offset+cond.info.Column.Size]
			results[idx] = compareData(cond.op, field, cond.value)
			return nil
		})
	}
	_ = g.Wait()

	match := results[0]
	for i, op := range e.operators {
		if i+1 >= len(results) {
			break
		}
		if op == "and" {
			match = match && results[i+1]
		} else if op == "or" {
			match = match || results[i+1]
		}
	}
	return match
}
