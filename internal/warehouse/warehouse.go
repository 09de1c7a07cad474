// Package warehouse persists call records to the analytical store. Batches
// go through one multi-row INSERT first and fall back to an append load.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"call-insights-go/internal/types"
)

// Warehouse is the append-only table the records land in.
type Warehouse interface {
	// LoadAppend appends rows without going through SQL text.
	LoadAppend(ctx context.Context, rows []types.WarehouseRow) error
	// Query executes one statement.
	Query(ctx context.Context, sql string) error
	// TableRef is the quoted table name used in statements.
	TableRef() string
}

// BuildInsertSQL renders one multi-row INSERT over the fixed columns.
func BuildInsertSQL(table string, rows []types.WarehouseRow) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(types.Columns, ", "))
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range r.Values() {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(Literal(v))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

var flatten = strings.NewReplacer("'", "''", "\n", " ", "\r", " ")

// Literal renders v as a SQL literal. Single quotes are doubled and line
// breaks become spaces.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case *string:
		if x == nil {
			return "NULL"
		}
		return "'" + flatten.Replace(*x) + "'"
	case string:
		return "'" + flatten.Replace(x) + "'"
	default:
		return "'" + flatten.Replace(fmt.Sprint(x)) + "'"
	}
}
