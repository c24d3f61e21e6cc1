// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

package rowbinary

import (
	"io"

	"github.com/columnaris/rowbinary-go/chtype"
)

// ReadNamesAndTypesHeader decodes the header prefix of the
// RowBinaryWithNamesAndTypes wire format: a column count, that many names,
// then that many type strings, each length-prefixed the same way a String
// column is encoded. It lets a caller decode an ad hoc query's result set
// without first resolving a Table Schema, per spec.md §4.2's "returned ...
// schema" case.
func ReadNamesAndTypesHeader(r io.Reader) ([]*chtype.Descriptor, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	names := make([]string, n)
	for i := range names {
		s, err := readLenPrefixedString(r)
		if err != nil {
			return nil, err
		}
		names[i] = s
	}
	cols := make([]*chtype.Descriptor, n)
	for i := range cols {
		typeSQL, err := readLenPrefixedString(r)
		if err != nil {
			return nil, err
		}
		d, err := chtype.Parse(typeSQL)
		if err != nil {
			return nil, &DecodeError{Kind: UnexpectedTag, Message: "column " + names[i] + ": " + err.Error()}
		}
		d.Name = names[i]
		cols[i] = d
	}
	return cols, nil
}

// WriteNamesAndTypesHeader encodes the RowBinaryWithNamesAndTypes header for
// columns: a count, their names, then their type expressions rendered via
// Descriptor.TypeSQL. It is the inverse of ReadNamesAndTypesHeader.
func WriteNamesAndTypesHeader(w io.Writer, columns []*chtype.Descriptor) error {
	if err := putUvarint(w, uint64(len(columns))); err != nil {
		return err
	}
	for _, c := range columns {
		if err := writeLenPrefixedString(w, c.Name); err != nil {
			return err
		}
	}
	for _, c := range columns {
		if err := writeLenPrefixedString(w, c.TypeSQL()); err != nil {
			return err
		}
	}
	return nil
}

func writeLenPrefixedString(w io.Writer, s string) error {
	if err := putUvarint(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readLenPrefixedString(r io.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := readFull(r, buf, ""); err != nil {
		return "", err
	}
	return string(buf), nil
}
