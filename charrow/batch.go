package charrow

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/columnaris/rowbinary-go/chschema"
	"github.com/columnaris/rowbinary-go/chtype"
	"github.com/columnaris/rowbinary-go/chvalue"
)

// BatchBuilder accumulates decoded Records into a single Arrow RecordBatch.
type BatchBuilder struct {
	schema  *arrow.Schema
	table   *chschema.TableSchema
	mem     memory.Allocator
	builder *array.RecordBuilder
	rows    int
}

// NewBatchBuilder builds a BatchBuilder for table, deriving its Arrow schema
// via SchemaFromTable.
func NewBatchBuilder(table *chschema.TableSchema) (*BatchBuilder, error) {
	schema, err := SchemaFromTable(table)
	if err != nil {
		return nil, err
	}
	mem := memory.NewGoAllocator()
	return &BatchBuilder{
		schema:  schema,
		table:   table,
		mem:     mem,
		builder: array.NewRecordBuilder(mem, schema),
	}, nil
}

// Schema returns the Arrow schema this builder produces batches against.
func (b *BatchBuilder) Schema() *arrow.Schema { return b.schema }

// Rows reports how many rows are staged since the last NewRecordBatch.
func (b *BatchBuilder) Rows() int { return b.rows }

// Append appends one decoded Record's columns, in schema order, to the
// underlying field builders.
func (b *BatchBuilder) Append(rec *chvalue.Record) error {
	cols := b.table.Columns()
	for i, d := range cols {
		if err := appendValue(b.builder.Field(i), d, rec.At(i)); err != nil {
			return fmt.Errorf("column %s: %w", d.Name, err)
		}
	}
	b.rows++
	return nil
}

// NewRecordBatch finalizes the currently staged rows into a RecordBatch and
// resets the builder for the next batch.
func (b *BatchBuilder) NewRecordBatch() arrow.RecordBatch {
	b.rows = 0
	return b.builder.NewRecordBatch()
}

// Release frees the builder's underlying Arrow memory.
func (b *BatchBuilder) Release() { b.builder.Release() }

// appendValue appends one decoded value to a field builder, dispatching on
// the column's wire category the same way the rowbinary encoder does.
func appendValue(fb array.Builder, d *chtype.Descriptor, v chvalue.Value) error {
	base := d.Unwrap()
	nullable := base.Nullable
	if base.Category == chtype.CategoryNullable {
		nullable = true
	}
	if nullable && v.IsNull() {
		fb.AppendNull()
		return nil
	}
	if base.Category == chtype.CategoryNullable {
		base = base.Elem().Unwrap()
	}

	switch base.Category {
	case chtype.CategoryInteger:
		return appendInteger(fb, base, v)
	case chtype.CategoryFloat:
		f, err := v.AsFloat64()
		if err != nil {
			return err
		}
		switch b := fb.(type) {
		case *array.Float32Builder:
			b.Append(float32(f))
		case *array.Float64Builder:
			b.Append(f)
		default:
			return fmt.Errorf("unexpected builder %T for float", fb)
		}
	case chtype.CategoryDecimal:
		dec, err := v.AsDecimal()
		if err != nil {
			return err
		}
		fb.(*array.StringBuilder).Append(dec.String())
	case chtype.CategoryBool:
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		fb.(*array.BooleanBuilder).Append(b)
	case chtype.CategoryString, chtype.CategoryFixedString:
		s, err := v.AsString()
		if err != nil {
			return err
		}
		fb.(*array.StringBuilder).Append(s)
	case chtype.CategoryDate:
		t, err := v.AsDate()
		if err != nil {
			return err
		}
		fb.(*array.Date32Builder).Append(arrow.Date32(t.UTC().Unix() / 86400))
	case chtype.CategoryDateTime:
		t, err := v.AsInstant()
		if err != nil {
			return err
		}
		tb := fb.(*array.TimestampBuilder)
		unit := tb.Type().(*arrow.TimestampType).Unit
		tb.Append(timestampFromTime(t, unit))
	case chtype.CategoryUUID:
		id, err := v.AsUUID()
		if err != nil {
			return err
		}
		fb.(*array.StringBuilder).Append(id.String())
	case chtype.CategoryIPv4, chtype.CategoryIPv6:
		addr, err := v.AsInet()
		if err != nil {
			return err
		}
		fb.(*array.StringBuilder).Append(addr.String())
	case chtype.CategoryEnum:
		name, err := v.EnumName()
		if err != nil {
			return err
		}
		fb.(*array.BinaryDictionaryBuilder).AppendString(name)
	case chtype.CategoryArray:
		items, err := v.AsList()
		if err != nil {
			return err
		}
		lb := fb.(*array.ListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder()
		elem := base.Elem()
		for _, item := range items {
			if err := appendValue(vb, elem, item); err != nil {
				return err
			}
		}
	case chtype.CategoryTuple, chtype.CategoryNested:
		items, err := v.AsTuple()
		if err != nil {
			return err
		}
		sb := fb.(*array.StructBuilder)
		sb.Append(true)
		for i, item := range items {
			if err := appendValue(sb.FieldBuilder(i), base.Children[i], item); err != nil {
				return err
			}
		}
	case chtype.CategoryMap:
		entries, err := v.AsMap()
		if err != nil {
			return err
		}
		mb := fb.(*array.MapBuilder)
		mb.Append(true)
		kb, ib := mb.KeyBuilder(), mb.ItemBuilder()
		keyType, valType := base.Children[0], base.Children[1]
		for _, e := range entries {
			if err := appendValue(kb, keyType, e.Key); err != nil {
				return err
			}
			if err := appendValue(ib, valType, e.Val); err != nil {
				return err
			}
		}
	case chtype.CategoryAggregateBitmap:
		b, err := v.AsBytes()
		if err != nil {
			return err
		}
		fb.(*array.BinaryBuilder).Append(b)
	default:
		return fmt.Errorf("unsupported category %s", base.Category)
	}
	return nil
}

func timestampFromTime(t time.Time, unit arrow.TimeUnit) arrow.Timestamp {
	switch unit {
	case arrow.Second:
		return arrow.Timestamp(t.Unix())
	case arrow.Millisecond:
		return arrow.Timestamp(t.UnixMilli())
	case arrow.Microsecond:
		return arrow.Timestamp(t.UnixMicro())
	default:
		return arrow.Timestamp(t.UnixNano())
	}
}

func appendInteger(fb array.Builder, d *chtype.Descriptor, v chvalue.Value) error {
	if d.WidthBits > 64 {
		big, err := v.AsBigInt()
		if err != nil {
			return err
		}
		fb.(*array.StringBuilder).Append(big.String())
		return nil
	}
	if d.Unsigned {
		u, err := v.AsUint64()
		if err != nil {
			return err
		}
		switch b := fb.(type) {
		case *array.Uint8Builder:
			b.Append(uint8(u))
		case *array.Uint16Builder:
			b.Append(uint16(u))
		case *array.Uint32Builder:
			b.Append(uint32(u))
		case *array.Uint64Builder:
			b.Append(u)
		default:
			return fmt.Errorf("unexpected builder %T for unsigned integer", fb)
		}
		return nil
	}
	i, err := v.AsInt64()
	if err != nil {
		return err
	}
	switch b := fb.(type) {
	case *array.Int8Builder:
		b.Append(int8(i))
	case *array.Int16Builder:
		b.Append(int16(i))
	case *array.Int32Builder:
		b.Append(int32(i))
	case *array.Int64Builder:
		b.Append(i)
	default:
		return fmt.Errorf("unexpected builder %T for integer", fb)
	}
	return nil
}
