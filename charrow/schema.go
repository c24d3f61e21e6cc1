// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Package charrow exports resolved TableSchemas and decoded Records as
// Apache Arrow RecordBatches, per SPEC_FULL.md's domain-stack wiring of
// apache/arrow-go.
package charrow

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/columnaris/rowbinary-go/chschema"
	"github.com/columnaris/rowbinary-go/chtype"
)

// SchemaFromTable maps a resolved TableSchema onto an Arrow schema, one
// field per column in declared order.
func SchemaFromTable(t *chschema.TableSchema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, t.Len())
	for i, d := range t.Columns() {
		dt, nullable, err := arrowType(d)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", d.Name, err)
		}
		fields[i] = arrow.Field{Name: d.Name, Type: dt, Nullable: nullable}
	}
	return arrow.NewSchema(fields, nil), nil
}

// arrowType maps one Column Descriptor to an Arrow DataType, per the
// category dispatch also used by the rowbinary codec.
func arrowType(d *chtype.Descriptor) (arrow.DataType, bool, error) {
	nullable := d.Nullable
	base := d.Unwrap()
	if base.Category == chtype.CategoryNullable {
		nullable = true
		base = base.Elem().Unwrap()
	}

	switch base.Category {
	case chtype.CategoryInteger:
		return integerType(base), nullable, nil
	case chtype.CategoryFloat:
		if base.WidthBits == 32 {
			return arrow.PrimitiveTypes.Float32, nullable, nil
		}
		return arrow.PrimitiveTypes.Float64, nullable, nil
	case chtype.CategoryDecimal:
		// Arbitrary-precision decimals are exported as their canonical
		// fixed-point string to avoid float rounding; consumers that want
		// numeric Arrow decimal128/256 arrays can reparse.
		return arrow.BinaryTypes.String, nullable, nil
	case chtype.CategoryBool:
		return arrow.FixedWidthTypes.Boolean, nullable, nil
	case chtype.CategoryString, chtype.CategoryFixedString:
		return arrow.BinaryTypes.String, nullable, nil
	case chtype.CategoryDate:
		return arrow.FixedWidthTypes.Date32, nullable, nil
	case chtype.CategoryDateTime:
		unit := arrow.Second
		if base.WidthBits == 64 {
			unit = scaleToUnit(base.Scale)
		}
		return &arrow.TimestampType{Unit: unit, TimeZone: base.Timezone}, nullable, nil
	case chtype.CategoryUUID, chtype.CategoryIPv4, chtype.CategoryIPv6:
		return arrow.BinaryTypes.String, nullable, nil
	case chtype.CategoryEnum:
		return &arrow.DictionaryType{
			IndexType: arrow.PrimitiveTypes.Int16,
			ValueType: arrow.BinaryTypes.String,
		}, nullable, nil
	case chtype.CategoryArray:
		elemType, _, err := arrowType(base.Elem())
		if err != nil {
			return nil, false, err
		}
		return arrow.ListOf(elemType), nullable, nil
	case chtype.CategoryTuple, chtype.CategoryNested:
		fields := make([]arrow.Field, len(base.Children))
		for i, c := range base.Children {
			ct, cn, err := arrowType(c)
			if err != nil {
				return nil, false, err
			}
			name := c.Name
			if name == "" {
				name = fmt.Sprintf("f%d", i+1)
			}
			fields[i] = arrow.Field{Name: name, Type: ct, Nullable: cn}
		}
		return arrow.StructOf(fields...), nullable, nil
	case chtype.CategoryMap:
		keyType, _, err := arrowType(base.Children[0])
		if err != nil {
			return nil, false, err
		}
		valType, _, err := arrowType(base.Children[1])
		if err != nil {
			return nil, false, err
		}
		return arrow.MapOf(keyType, valType), nullable, nil
	case chtype.CategoryAggregateBitmap:
		return arrow.BinaryTypes.Binary, nullable, nil
	default:
		return nil, false, fmt.Errorf("unsupported category %s for column %s", base.Category, d.Name)
	}
}

func integerType(d *chtype.Descriptor) arrow.DataType {
	if d.WidthBits > 64 {
		// 128/256-bit integers are exported as their canonical decimal
		// string; Arrow has no native int256 array type.
		return arrow.BinaryTypes.String
	}
	switch {
	case d.WidthBits == 8 && d.Unsigned:
		return arrow.PrimitiveTypes.Uint8
	case d.WidthBits == 8:
		return arrow.PrimitiveTypes.Int8
	case d.WidthBits == 16 && d.Unsigned:
		return arrow.PrimitiveTypes.Uint16
	case d.WidthBits == 16:
		return arrow.PrimitiveTypes.Int16
	case d.WidthBits == 32 && d.Unsigned:
		return arrow.PrimitiveTypes.Uint32
	case d.WidthBits == 32:
		return arrow.PrimitiveTypes.Int32
	case d.Unsigned:
		return arrow.PrimitiveTypes.Uint64
	default:
		return arrow.PrimitiveTypes.Int64
	}
}

func scaleToUnit(scale int) arrow.TimeUnit {
	switch {
	case scale <= 0:
		return arrow.Second
	case scale <= 3:
		return arrow.Millisecond
	case scale <= 6:
		return arrow.Microsecond
	default:
		return arrow.Nanosecond
	}
}
