// Package target models the closed set of table/column pairs that topicsync
// is allowed to update.
package target

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Table is a remote table that can be updated.
type Table string

// Column is a list-valued column on one of the tables.
type Column string

const (
	TableCategories    Table = "categories"
	TableBooksMetadata Table = "books_metadata"

	ColumnTopics       Column = "topics"
	ColumnAITopics     Column = "ai_topics"
	ColumnAICategories Column = "ai_categories"
)

// columnsByTable lists, per table, the columns that may be written.
var columnsByTable = map[Table][]Column{
	TableCategories:    {ColumnTopics, ColumnAITopics, ColumnAICategories},
	TableBooksMetadata: {ColumnTopics, ColumnAITopics, ColumnAICategories},
}

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrInvalidColumn = errors.New("column not valid for table")
)

// Target is a validated table/column pair. The zero value is not valid;
// build one with Parse.
type Target struct {
	table  Table
	column Column
}

// Parse validates a table and column name and returns the pair.
func Parse(table, column string) (Target, error) {
	t := Table(strings.TrimSpace(table))
	columns, ok := columnsByTable[t]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownTable, table, strings.Join(TableNames(), ", "))
	}

	c := Column(strings.TrimSpace(column))
	for _, valid := range columns {
		if c == valid {
			return Target{table: t, column: c}, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %q on %s (valid: %s)", ErrInvalidColumn, column, t, strings.Join(ColumnNames(t), ", "))
}

// MustParse is like Parse but panics on an invalid pair.
func MustParse(table, column string) Target {
	t, err := Parse(table, column)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Target) Table() Table   { return t.table }
func (t Target) Column() Column { return t.column }

// IsZero reports whether t was never set.
func (t Target) IsZero() bool { return t.table == "" }

func (t Target) String() string {
	return fmt.Sprintf("%s.%s", t.table, t.column)
}

// TableNames returns the known tables in sorted order.
func TableNames() []string {
	names := make([]string, 0, len(columnsByTable))
	for t := range columnsByTable {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// ColumnNames returns the columns valid for table, or nil for an unknown table.
func ColumnNames(table Table) []string {
	columns := columnsByTable[table]
	if columns == nil {
		return nil
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = string(c)
	}
	return names
}
