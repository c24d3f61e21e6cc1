// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Package chschema implements the Table Schema and Schema Cache: mapping a
// (endpoint, table) pair to a parsed, immutable column list resolved via
// DESCRIBE TABLE, per spec.md §4.4.
package chschema

import (
	"strings"

	"github.com/columnaris/rowbinary-go/chtype"
)

// TableSchema is an ordered, immutable list of Column Descriptors plus a
// case-insensitive name-to-index map, per spec.md §3 "Table Schema".
type TableSchema struct {
	Table   string
	columns []*chtype.Descriptor
	nameIdx map[string]int
}

// NewTableSchema builds an immutable schema from the columns returned by a
// DESCRIBE TABLE query, in declared order.
func NewTableSchema(table string, columns []*chtype.Descriptor) *TableSchema {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[strings.ToLower(c.Name)] = i
	}
	return &TableSchema{Table: table, columns: columns, nameIdx: idx}
}

// Columns returns the schema's descriptors in declared (0-based) order. The
// returned slice must not be mutated.
func (s *TableSchema) Columns() []*chtype.Descriptor { return s.columns }

// Len returns the number of columns.
func (s *TableSchema) Len() int { return len(s.columns) }

// ColumnAt returns the descriptor at the given 0-based position.
func (s *TableSchema) ColumnAt(i int) *chtype.Descriptor { return s.columns[i] }

// IndexOf resolves a case-insensitive column name to its 0-based position,
// failing with SchemaError{UnknownColumn} if the table has no such column.
func (s *TableSchema) IndexOf(name string) (int, error) {
	i, ok := s.nameIdx[strings.ToLower(name)]
	if !ok {
		return 0, &chtype.SchemaError{Kind: chtype.UnknownColumn, Table: s.Table, Message: "unknown column " + name}
	}
	return i, nil
}

// Names returns the schema's column names in declared order.
func (s *TableSchema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}
