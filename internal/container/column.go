package container

import (
	"strconv"
	"strings"

	"github.com/j1sk1ss/cdbms/pkg/cdbmserr"
)

// DataType is the column's data-type tag, packed alongside the primary and
// auto-increment flags into a single on-disk byte.
type DataType byte

const (
	TypeInt DataType = iota
	TypeString
	TypeAny
	TypeModule
)

// ModulePhase controls when a MODULE-typed column's external hook runs
// relative to the row operation it's attached to.
type ModulePhase byte

const (
	ModulePreload ModulePhase = iota
	ModulePostload
	ModuleBoth
)

// Column describes one field of a table's row layout. Size, Primary, and
// AutoIncrement apply to every data type; ModuleName/ModuleQuery/ModulePhase
// are populated only when Type == TypeModule.
type Column struct {
	Name          string
	Size          int
	Type          DataType
	Primary       bool
	AutoIncrement bool

	ModuleName  string
	ModuleQuery string
	ModulePhase ModulePhase
}

// columnRecordSize is the fixed on-disk size of one packed column
// descriptor: 1 type byte, 2 size bytes, name, module name, module query.
const columnRecordSize = 1 + 2 + ColumnNameSize + ModuleNameSize + ModuleQuerySize

func (c *Column) encode() []byte {
	buf := make([]byte, columnRecordSize)
	buf[0] = packColumnTypeByte(c.Primary, c.Type, c.AutoIncrement)
	buf[0] |= byte(c.ModulePhase&0x03) << 4
	putUint16(buf[1:3], uint16(c.Size))
	putFixedString(buf[3:3+ColumnNameSize], c.Name)
	off := 3 + ColumnNameSize
	putFixedString(buf[off:off+ModuleNameSize], c.ModuleName)
	off += ModuleNameSize
	putFixedString(buf[off:off+ModuleQuerySize], c.ModuleQuery)
	return buf
}

func decodeColumn(buf []byte) *Column {
	primary, dtype, autoinc := unpackColumnTypeByte(buf[0])
	size := int(getUint16(buf[1:3]))
	name := getFixedString(buf[3 : 3+ColumnNameSize])
	off := 3 + ColumnNameSize
	moduleName := getFixedString(buf[off : off+ModuleNameSize])
	off += ModuleNameSize
	moduleQuery := getFixedString(buf[off : off+ModuleQuerySize])
	return &Column{
		Name:          name,
		Size:          size,
		Type:          dtype,
		Primary:       primary,
		AutoIncrement: autoinc,
		ModuleName:    moduleName,
		ModuleQuery:   moduleQuery,
		ModulePhase:   ModulePhase((buf[0] >> 4) & 0x03),
	}
}

// packColumnTypeByte packs primary/data-type/auto-increment into one byte:
// bit 7 = primary, bits 2-0 = data type, bit 3 = auto-increment. encode
// stores the module phase in bits 5-4 of the same byte.
func packColumnTypeByte(primary bool, dtype DataType, autoinc bool) byte {
	var b byte
	if primary {
		b |= 0x80
	}
	if autoinc {
		b |= 0x08
	}
	b |= byte(dtype) & 0x07
	return b
}

func unpackColumnTypeByte(b byte) (primary bool, dtype DataType, autoinc bool) {
	primary = b&0x80 != 0
	autoinc = b&0x08 != 0
	dtype = DataType(b & 0x07)
	return
}

// ModuleHook lets a caller register behavior for MODULE-typed columns.
// Executing the hook itself is out of scope; cdbms only stores and
// round-trips the descriptor (module name, query string, phase).
type ModuleHook interface {
	Invoke(column *Column, phase ModulePhase, row []byte) error
}

// CompileColumns builds an ordered column list from the positional token
// stream `( name size typespec primary_flag autoinc_flag )*`, used by the
// "create table ... columns ( ... )" command.
func CompileColumns(tokens []string) ([]*Column, error) {
	if len(tokens)%5 != 0 {
		return nil, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "column token stream is not a multiple of 5").
			WithComponent("container").WithOperation("CompileColumns")
	}

	columns := make([]*Column, 0, len(tokens)/5)
	for i := 0; i < len(tokens); i += 5 {
		name := tokens[i]
		size, err := strconv.Atoi(tokens[i+1])
		if err != nil {
			return nil, cdbmserr.New(cdbmserr.CodeTruncatedTokens, "column size is not an integer").
				WithComponent("container").WithOperation("CompileColumns").WithContext("column", name)
		}
		if size <= 0 {
			return nil, cdbmserr.New(cdbmserr.CodeSchemaMismatch, "column size must be positive").
				WithComponent("container").WithOperation("CompileColumns").WithContext("column", name)
		}

		typespec := tokens[i+2]
		col := &Column{Name: name, Size: size}

		switch typespec {
		case "int":
			col.Type = TypeInt
		case "str":
			col.Type = TypeString
		case "any":
			col.Type = TypeAny
		default:
			col.Type = TypeModule
			moduleName, rest, found := strings.Cut(typespec, "=")
			if !found {
				return nil, cdbmserr.New(cdbmserr.CodeUnknownKeyword, "module column missing '=' separator").
					WithComponent("container").WithOperation("CompileColumns").WithContext("column", name)
			}
			query, phaseLit, _ := strings.Cut(rest, ",")
			col.ModuleName = moduleName
			col.ModuleQuery = query
			switch phaseLit {
			case "mpre":
				col.ModulePhase = ModulePreload
			case "both":
				col.ModulePhase = ModuleBoth
			default:
				col.ModulePhase = ModulePostload
			}
		}

		if tokens[i+3] == "primary" {
			col.Primary = true
		}
		if tokens[i+4] == "auto_inc" {
			col.AutoIncrement = true
		}

		columns = append(columns, col)
	}

	return columns, nil
}

// RowWidth sums the byte size of every column, the canonical row_size
// re-derived from columns at table load.
func RowWidth(columns []*Column) int {
	width := 0
	for _, c := range columns {
		width += c.Size
	}
	return width
}
