package rowbinary

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/columnaris/rowbinary-go/chtype"
	"github.com/columnaris/rowbinary-go/chvalue"
)

// RowEncoder writes successive rows to w according to a fixed column list,
// per spec.md §4.2. It carries no schema-cache or HTTP knowledge; callers
// resolve columns via chschema and hand the resulting descriptors here.
type RowEncoder struct {
	w        io.Writer
	columns  []*chtype.Descriptor
	defaults bool // RowBinaryWithDefaults per-column default markers, spec.md §4.6
}

// NewRowEncoder builds an encoder for the given ordered column descriptors.
// When withDefaults is true, each column is preceded by a marker byte
// indicating whether the caller supplied a value or the server should apply
// the column's implicit default (RowBinaryWithDefaults, spec.md §4.6).
func NewRowEncoder(w io.Writer, columns []*chtype.Descriptor, withDefaults bool) *RowEncoder {
	return &RowEncoder{w: w, columns: columns, defaults: withDefaults}
}

// WriteRow encodes one row. values and set are 0-based and must have the
// same length as the encoder's column list. When the encoder was built with
// withDefaults, set[i] false writes the default marker (1) and omits the
// value so the server computes it. Without withDefaults, an unset nullable
// column is written as null and any other unset column fails with
// MissingRequired.
func (e *RowEncoder) WriteRow(values []chvalue.Value, set []bool) error {
	for i, col := range e.columns {
		if col.Default.Skipped() {
			continue
		}
		hasValue := set == nil || set[i]
		if e.defaults {
			marker := byte(0)
			if !hasValue {
				marker = 1
			}
			if err := writeFull(e.w, []byte{marker}); err != nil {
				return err
			}
			if !hasValue {
				continue
			}
		} else if !hasValue {
			if col.Unwrap().Category != chtype.CategoryNullable {
				return &EncodeError{Kind: MissingRequired, Column: col.Name, Message: "no value supplied and RowBinaryWithDefaults was not negotiated"}
			}
			if err := EncodeValue(e.w, col, chvalue.Null()); err != nil {
				return err
			}
			continue
		}
		if err := EncodeValue(e.w, col, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// EncodeValue writes a single value for the given descriptor.
func EncodeValue(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	if u := d.Unwrap(); u.Category == chtype.CategoryNullable {
		return encodeNullable(w, u, v)
	}
	if v.IsNull() {
		return &EncodeError{Kind: UnexpectedNull, Column: d.Name, Message: "null value for non-nullable column " + d.RawTypeSQL}
	}
	return encodeNonNull(w, d, v)
}

func encodeNullable(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	if v.IsNull() {
		return writeFull(w, []byte{1})
	}
	if err := writeFull(w, []byte{0}); err != nil {
		return err
	}
	return encodeNonNull(w, d.Elem(), v)
}

func encodeNonNull(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	d = d.Unwrap()
	switch d.Category {
	case chtype.CategoryInteger:
		return encodeInteger(w, d, v)
	case chtype.CategoryFloat:
		return encodeFloat(w, d, v)
	case chtype.CategoryDecimal:
		return encodeDecimal(w, d, v)
	case chtype.CategoryBool:
		return encodeBool(w, v)
	case chtype.CategoryString:
		return encodeString(w, v)
	case chtype.CategoryFixedString:
		return encodeFixedString(w, d, v)
	case chtype.CategoryDate:
		return encodeDate(w, d, v)
	case chtype.CategoryDateTime:
		return encodeDateTime(w, d, v)
	case chtype.CategoryUUID:
		return encodeUUID(w, v)
	case chtype.CategoryIPv4:
		return encodeIPv4(w, v)
	case chtype.CategoryIPv6:
		return encodeIPv6(w, v)
	case chtype.CategoryEnum:
		return encodeEnum(w, d, v)
	case chtype.CategoryArray:
		return encodeArray(w, d, v)
	case chtype.CategoryTuple:
		return encodeTuple(w, d, v)
	case chtype.CategoryNested:
		return encodeTuple(w, d, v)
	case chtype.CategoryMap:
		return encodeMap(w, d, v)
	case chtype.CategoryAggregateBitmap:
		return encodeAggregateBitmap(w, v)
	case chtype.CategorySimpleAggregate:
		return encodeNonNull(w, d.Elem(), v)
	default:
		return &EncodeError{Kind: MissingRequired, Column: d.Name, Message: "unsupported category " + d.Category.String()}
	}
}

func encodeInteger(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	if d.WidthBits > 64 {
		if d.Unsigned {
			u, err := v.AsBigInt()
			if err != nil {
				return err
			}
			uw, err := chvalue.UInt256FromBigInt(u)
			if err != nil {
				return err
			}
			return writeFull(w, chvalue.EncodeUintBytes(uw, d.WidthBits))
		}
		i, err := v.AsBigInt()
		if err != nil {
			return err
		}
		iw, err := chvalue.Int256FromBigInt(i)
		if err != nil {
			return err
		}
		return writeFull(w, chvalue.EncodeIntBytes(iw, d.WidthBits))
	}
	buf := make([]byte, d.WidthBits/8)
	if d.Unsigned {
		u, err := v.AsUint64()
		if err != nil {
			return err
		}
		putUintN(buf, u)
	} else {
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		putUintN(buf, uint64(i))
	}
	return writeFull(w, buf)
}

func putUintN(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func encodeFloat(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	f, err := v.AsFloat64()
	if err != nil {
		return err
	}
	if d.WidthBits == 32 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(f)))
		return writeFull(w, buf[:])
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	return writeFull(w, buf[:])
}

func encodeDecimal(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	dec, err := v.AsDecimal()
	if err != nil {
		return err
	}
	iw, err := chvalue.Int256FromBigInt(dec.Unscaled)
	if err != nil {
		return &EncodeError{Kind: MissingRequired, Column: d.Name, Message: "decimal unscaled value overflows " + d.RawTypeSQL}
	}
	return writeFull(w, chvalue.EncodeIntBytes(iw, d.WidthBits))
}

func encodeBool(w io.Writer, v chvalue.Value) error {
	b, err := v.AsBool()
	if err != nil {
		return err
	}
	if b {
		return writeFull(w, []byte{1})
	}
	return writeFull(w, []byte{0})
}

func encodeString(w io.Writer, v chvalue.Value) error {
	s, err := v.AsString()
	if err != nil {
		return err
	}
	if err := putUvarint(w, uint64(len(s))); err != nil {
		return err
	}
	return writeFull(w, []byte(s))
}

func encodeFixedString(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	b, err := v.AsBytes()
	if err != nil {
		return err
	}
	if len(b) > d.FixedLen {
		return &EncodeError{Kind: FixedStringOverflow, Column: d.Name, Message: "value longer than FixedString(" + itoa(d.FixedLen) + ")"}
	}
	buf := make([]byte, d.FixedLen)
	copy(buf, b)
	return writeFull(w, buf)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func encodeDate(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	t, err := v.AsDate()
	if err != nil {
		return err
	}
	days := daysSinceEpoch(t)
	if d.WidthBits == 16 {
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(days))
		return writeFull(w, buf[:])
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(days)))
	return writeFull(w, buf[:])
}

func encodeDateTime(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	t, err := v.AsInstant()
	if err != nil {
		return err
	}
	if d.WidthBits == 32 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(t.Unix()))
		return writeFull(w, buf[:])
	}
	scale := d.Scale
	ticks := datetime64Ticks(t, scale)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(ticks))
	return writeFull(w, buf[:])
}

// encodeUUID writes the RFC 4122 big-endian 16 bytes as two little-endian
// u64 halves (high, low), per spec.md §4.2.
func encodeUUID(w io.Writer, v chvalue.Value) error {
	id, err := v.AsUUID()
	if err != nil {
		return err
	}
	raw, _ := id.MarshalBinary()
	buf := make([]byte, 16)
	reverse8(buf[0:8], raw[0:8])
	reverse8(buf[8:16], raw[8:16])
	return writeFull(w, buf)
}

func reverse8(dst, src []byte) {
	for i := 0; i < 8; i++ {
		dst[i] = src[7-i]
	}
}

func encodeIPv4(w io.Writer, v chvalue.Value) error {
	addr, err := v.AsInet()
	if err != nil {
		return err
	}
	a4 := addr.As4()
	u := binary.BigEndian.Uint32(a4[:])
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], u)
	return writeFull(w, buf[:])
}

func encodeIPv6(w io.Writer, v chvalue.Value) error {
	addr, err := v.AsInet()
	if err != nil {
		return err
	}
	a16 := addr.As16()
	return writeFull(w, a16[:])
}

func encodeEnum(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	name, err := v.EnumName()
	var code int64
	if err == nil {
		found := false
		for _, m := range d.Enum {
			if m.Name == name {
				code = m.Value
				found = true
				break
			}
		}
		if !found {
			return &EncodeError{Kind: EnumValueOutOfRange, Column: d.Name, Message: "unknown enum member " + name}
		}
	} else {
		code, err = v.AsInt64()
		if err != nil {
			return err
		}
	}
	buf := make([]byte, d.WidthBits/8)
	putUintN(buf, uint64(code))
	return writeFull(w, buf)
}

func encodeArray(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	items, err := v.AsList()
	if err != nil {
		return err
	}
	if err := putUvarint(w, uint64(len(items))); err != nil {
		return err
	}
	elem := d.Elem()
	for _, item := range items {
		if err := EncodeValue(w, elem, item); err != nil {
			return err
		}
	}
	return nil
}

func encodeTuple(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	items, err := v.AsTuple()
	if err != nil {
		return err
	}
	if len(items) != len(d.Children) {
		return &EncodeError{Kind: MissingRequired, Column: d.Name, Message: "tuple arity mismatch"}
	}
	for i, item := range items {
		if err := EncodeValue(w, d.Children[i], item); err != nil {
			return err
		}
	}
	return nil
}

func encodeMap(w io.Writer, d *chtype.Descriptor, v chvalue.Value) error {
	entries, err := v.AsMap()
	if err != nil {
		return err
	}
	if err := putUvarint(w, uint64(len(entries))); err != nil {
		return err
	}
	keyType, valType := d.Children[0], d.Children[1]
	for _, e := range entries {
		if err := EncodeValue(w, keyType, e.Key); err != nil {
			return err
		}
		if err := EncodeValue(w, valType, e.Val); err != nil {
			return err
		}
	}
	return nil
}

func encodeAggregateBitmap(w io.Writer, v chvalue.Value) error {
	b, err := v.AsBytes()
	if err != nil {
		return err
	}
	if err := putUvarint(w, uint64(len(b))); err != nil {
		return err
	}
	return writeFull(w, b)
}
