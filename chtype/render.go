// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

package chtype

import (
	"strconv"
	"strings"
)

// TypeSQL renders d back into the type-expression syntax Parse accepts,
// e.g. "Array(Nullable(Decimal(9, 3)))". It is the inverse of Parse, used
// by the RowBinaryWithNamesAndTypes header writer and by diagnostics, except
// for AggregateFunction and SimpleAggregateFunction, which render as their
// stored RawTypeSQL prefix (base name and function name only) and do not
// parse back.
func (d *Descriptor) TypeSQL() string {
	baseName := d.RawTypeSQL
	if i := strings.IndexByte(baseName, '('); i >= 0 {
		baseName = baseName[:i]
	}

	switch d.Category {
	case CategoryInteger, CategoryFloat, CategoryBool, CategoryString,
		CategoryDate, CategoryUUID, CategoryIPv4, CategoryIPv6:
		return baseName
	case CategoryFixedString:
		return baseName + "(" + strconv.Itoa(d.FixedLen) + ")"
	case CategoryDecimal:
		if baseName == "Decimal" {
			return baseName + "(" + strconv.Itoa(d.Precision) + ", " + strconv.Itoa(d.Scale) + ")"
		}
		return baseName + "(" + strconv.Itoa(d.Scale) + ")"
	case CategoryDateTime:
		if d.WidthBits == 32 {
			if d.Timezone == "" {
				return baseName
			}
			return baseName + "('" + d.Timezone + "')"
		}
		if d.Timezone == "" {
			return baseName + "(" + strconv.Itoa(d.Scale) + ")"
		}
		return baseName + "(" + strconv.Itoa(d.Scale) + ", '" + d.Timezone + "')"
	case CategoryEnum:
		parts := make([]string, len(d.Enum))
		for i, m := range d.Enum {
			parts[i] = "'" + m.Name + "' = " + strconv.FormatInt(m.Value, 10)
		}
		return baseName + "(" + strings.Join(parts, ", ") + ")"
	case CategoryArray:
		return baseName + "(" + d.Elem().TypeSQL() + ")"
	case CategoryNullable:
		return baseName + "(" + d.Elem().TypeSQL() + ")"
	case CategoryLowCardinality:
		return baseName + "(" + d.Elem().TypeSQL() + ")"
	case CategoryTuple, CategoryNested:
		parts := make([]string, len(d.Children))
		for i, c := range d.Children {
			if c.Name != "" {
				parts[i] = c.Name + " " + c.TypeSQL()
			} else {
				parts[i] = c.TypeSQL()
			}
		}
		return baseName + "(" + strings.Join(parts, ", ") + ")"
	case CategoryMap:
		return baseName + "(" + d.Children[0].TypeSQL() + ", " + d.Children[1].TypeSQL() + ")"
	case CategoryAggregateBitmap:
		return d.RawTypeSQL
	default:
		return d.RawTypeSQL
	}
}
