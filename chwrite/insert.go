// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Package chwrite implements the Table Schema Driver for Writes: staging
// rows by name or 1-based index, then flushing them through the RowBinary
// encoder in schema-declared order, per spec.md §4.6.
package chwrite

import (
	"bytes"
	"errors"
	"io"

	"github.com/columnaris/rowbinary-go/chschema"
	"github.com/columnaris/rowbinary-go/chvalue"
	"github.com/columnaris/rowbinary-go/rowbinary"
)

// RowBinaryInserter accumulates rows against a fixed TableSchema and flushes
// them as RowBinary (or RowBinaryWithDefaults) onto an underlying writer,
// per spec.md §4.6.
type RowBinaryInserter struct {
	schema     *chschema.TableSchema
	encoder    *rowbinary.RowEncoder
	staging    *chvalue.StagingBuffer
	rows       int64
	buf        *bytes.Buffer
	withDefault bool
}

// NewRowBinaryInserter builds an inserter for schema, buffering encoded
// rows in memory until Flush is called. withDefaults selects the
// RowBinaryWithDefaults wire variant of spec.md §4.2.
func NewRowBinaryInserter(schema *chschema.TableSchema, withDefaults bool) *RowBinaryInserter {
	buf := &bytes.Buffer{}
	return &RowBinaryInserter{
		schema:      schema,
		encoder:     rowbinary.NewRowEncoder(buf, schema.Columns(), withDefaults),
		staging:     chvalue.NewStagingBuffer(schema.Len()),
		buf:         buf,
		withDefault: withDefaults,
	}
}

// SetByIndex stages a value at the 1-based column position, per spec.md
// §4.6 "Callers set fields by name or 1-based index". An index outside
// [1, n] fails with *rowbinary.EncodeError{Kind: IndexOutOfRange}, per
// SPEC_FULL.md's Open Questions decision to reject bad indices with a typed
// error rather than a panic.
func (ins *RowBinaryInserter) SetByIndex(oneBased int, v chvalue.Value) error {
	return wrapIndexError(ins.staging.SetByIndex(oneBased, v))
}

// SetByName stages a value for the named column.
func (ins *RowBinaryInserter) SetByName(name string, v chvalue.Value) error {
	idx, err := ins.schema.IndexOf(name)
	if err != nil {
		return err
	}
	return wrapIndexError(ins.staging.SetByIndex(idx+1, v))
}

// wrapIndexError converts a StagingBuffer's ValueError{IndexOutOfRange} into
// the EncodeError family the rest of this package's callers already match
// on with errors.As, so a bad column index and a missing-required column
// surface through the same error taxonomy.
func wrapIndexError(err error) error {
	var ve *chvalue.ValueError
	if errors.As(err, &ve) && ve.Kind == chvalue.IndexOutOfRange {
		return &rowbinary.EncodeError{Kind: rowbinary.IndexOutOfRange, Message: ve.Message}
	}
	return err
}

// CommitRow encodes the currently staged row and resets the staging buffer
// for the next row. Per spec.md §8 invariant 3, a successful call increments
// the row count by exactly 1. The staging buffer is empty afterward whether
// or not this call errors; a failed call leaves the row count and the
// encoded bytes unchanged.
func (ins *RowBinaryInserter) CommitRow() error {
	defer ins.staging.Reset()
	values, set := ins.staging.Snapshot()
	start := ins.buf.Len()
	if err := ins.encoder.WriteRow(values, set); err != nil {
		ins.buf.Truncate(start)
		return err
	}
	ins.rows++
	return nil
}

// Rows reports how many rows have been committed since construction or the
// last Flush.
func (ins *RowBinaryInserter) Rows() int64 { return ins.rows }

// Buffered returns the number of bytes accumulated since the last Flush.
func (ins *RowBinaryInserter) Buffered() int { return ins.buf.Len() }

// Flush writes the buffered RowBinary bytes to w and resets the internal
// buffer and row counter, ready for the next batch.
func (ins *RowBinaryInserter) Flush(w io.Writer) (int64, error) {
	n, err := ins.buf.WriteTo(w)
	ins.rows = 0
	return n, err
}

// Reader returns an io.Reader over the currently buffered bytes without
// consuming the internal buffer, for callers that want to inspect the
// encoded payload before it is sent.
func (ins *RowBinaryInserter) Reader() io.Reader {
	return bytes.NewReader(ins.buf.Bytes())
}
