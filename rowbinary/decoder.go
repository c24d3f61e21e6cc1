package rowbinary

import (
	"encoding/binary"
	"io"
	"math"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/columnaris/rowbinary-go/chtype"
	"github.com/columnaris/rowbinary-go/chvalue"
)

// RowDecoder reads successive rows from r according to a fixed column list.
// Callers in value-reuse mode pass the same *chvalue.Record to ReadRow on
// every call and read it before the next call overwrites it.
type RowDecoder struct {
	r        io.Reader
	columns  []*chtype.Descriptor
	defaults bool
}

// NewRowDecoder builds a decoder for the given ordered column descriptors.
func NewRowDecoder(r io.Reader, columns []*chtype.Descriptor, withDefaults bool) *RowDecoder {
	return &RowDecoder{r: r, columns: columns, defaults: withDefaults}
}

// ReadRow decodes one row into rec, which must have exactly as many slots as
// the decoder's column list. It returns io.EOF (and leaves rec untouched)
// when the stream ends cleanly on a row boundary.
func (d *RowDecoder) ReadRow(rec *chvalue.Record) error {
	first := true
	for i, col := range d.columns {
		if col.Default.Skipped() {
			continue
		}
		if d.defaults {
			var marker [1]byte
			if err := readFull(d.r, marker[:], col.Name); err != nil {
				if err == io.EOF && first {
					return io.EOF
				}
				return err
			}
			first = false
			if marker[0] == 1 {
				rec.Set(i, chvalue.Null())
				continue
			}
		}
		v, err := DecodeValue(d.r, col)
		if err != nil {
			if err == io.EOF && first {
				return io.EOF
			}
			return err
		}
		first = false
		rec.Set(i, v)
	}
	return nil
}

// DecodeValue reads a single value for the given descriptor.
func DecodeValue(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	if u := d.Unwrap(); u.Category == chtype.CategoryNullable {
		return decodeNullable(r, u)
	}
	return decodeNonNull(r, d)
}

func decodeNullable(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	var marker [1]byte
	if err := readFull(r, marker[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	if marker[0] == 1 {
		return chvalue.Null(), nil
	}
	return decodeNonNull(r, d.Elem())
}

func decodeNonNull(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	d = d.Unwrap()
	switch d.Category {
	case chtype.CategoryInteger:
		return decodeInteger(r, d)
	case chtype.CategoryFloat:
		return decodeFloat(r, d)
	case chtype.CategoryDecimal:
		return decodeDecimal(r, d)
	case chtype.CategoryBool:
		return decodeBool(r, d)
	case chtype.CategoryString:
		return decodeString(r, d)
	case chtype.CategoryFixedString:
		return decodeFixedString(r, d)
	case chtype.CategoryDate:
		return decodeDate(r, d)
	case chtype.CategoryDateTime:
		return decodeDateTime(r, d)
	case chtype.CategoryUUID:
		return decodeUUID(r, d)
	case chtype.CategoryIPv4:
		return decodeIPv4(r, d)
	case chtype.CategoryIPv6:
		return decodeIPv6(r, d)
	case chtype.CategoryEnum:
		return decodeEnum(r, d)
	case chtype.CategoryArray:
		return decodeArray(r, d)
	case chtype.CategoryTuple:
		return decodeTuple(r, d)
	case chtype.CategoryNested:
		return decodeTuple(r, d)
	case chtype.CategoryMap:
		return decodeMap(r, d)
	case chtype.CategoryAggregateBitmap:
		return decodeAggregateBitmap(r, d)
	case chtype.CategorySimpleAggregate:
		return decodeNonNull(r, d.Elem())
	default:
		return chvalue.Value{}, &DecodeError{Kind: UnexpectedTag, Column: d.Name, Message: "unsupported category " + d.Category.String()}
	}
}

func decodeInteger(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	buf := make([]byte, d.WidthBits/8)
	if err := readFull(r, buf, d.Name); err != nil {
		return chvalue.Value{}, err
	}
	if d.WidthBits > 64 {
		if d.Unsigned {
			return chvalue.NewBigUInt(chvalue.DecodeUintBytes(buf)), nil
		}
		return chvalue.NewBigInt(chvalue.DecodeIntBytes(buf)), nil
	}
	u := getUintN(buf)
	if d.Unsigned {
		return chvalue.NewUInt64(u), nil
	}
	return chvalue.NewInt64(signExtend(u, d.WidthBits)), nil
}

func getUintN(buf []byte) uint64 {
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (8 * uint(i))
	}
	return v
}

func signExtend(u uint64, width int) int64 {
	if width >= 64 {
		return int64(u)
	}
	shift := uint(64 - width)
	return int64(u<<shift) >> shift
}

func decodeFloat(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	if d.WidthBits == 32 {
		var buf [4]byte
		if err := readFull(r, buf[:], d.Name); err != nil {
			return chvalue.Value{}, err
		}
		return chvalue.NewFloat64(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))), nil
	}
	var buf [8]byte
	if err := readFull(r, buf[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	return chvalue.NewFloat64(math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))), nil
}

func decodeDecimal(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	buf := make([]byte, d.WidthBits/8)
	if err := readFull(r, buf, d.Name); err != nil {
		return chvalue.Value{}, err
	}
	unscaled := chvalue.DecodeIntBytes(buf).BigInt()
	return chvalue.NewDecimal(chvalue.Decimal{Unscaled: unscaled, Scale: d.Scale}), nil
}

func decodeBool(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	var buf [1]byte
	if err := readFull(r, buf[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	return chvalue.NewBool(buf[0] != 0), nil
}

func decodeString(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	n, err := readUvarint(r)
	if err != nil {
		return chvalue.Value{}, err
	}
	buf := make([]byte, n)
	if err := readFull(r, buf, d.Name); err != nil {
		return chvalue.Value{}, err
	}
	return chvalue.NewString(string(buf)), nil
}

func decodeFixedString(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	buf := make([]byte, d.FixedLen)
	if err := readFull(r, buf, d.Name); err != nil {
		return chvalue.Value{}, err
	}
	return chvalue.NewBytes(buf), nil
}

func decodeDate(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	if d.WidthBits == 16 {
		var buf [2]byte
		if err := readFull(r, buf[:], d.Name); err != nil {
			return chvalue.Value{}, err
		}
		return chvalue.NewDate(dateFromDays(int64(binary.LittleEndian.Uint16(buf[:])))), nil
	}
	var buf [4]byte
	if err := readFull(r, buf[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	return chvalue.NewDate(dateFromDays(int64(int32(binary.LittleEndian.Uint32(buf[:]))))), nil
}

// datetimeLocation resolves a DateTime/DateTime64 timezone name to a
// *time.Location, falling back to UTC for an empty name or one the local
// tzdata does not recognize (the server, not this client, is the source of
// truth for zone validity).
func datetimeLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func decodeDateTime(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	loc := datetimeLocation(d.Timezone)
	if d.WidthBits == 32 {
		var buf [4]byte
		if err := readFull(r, buf[:], d.Name); err != nil {
			return chvalue.Value{}, err
		}
		sec := int64(binary.LittleEndian.Uint32(buf[:]))
		return chvalue.NewDateTime(time.Unix(sec, 0).In(loc)), nil
	}
	var buf [8]byte
	if err := readFull(r, buf[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	ticks := int64(binary.LittleEndian.Uint64(buf[:]))
	t := instantFromDateTime64Ticks(ticks, d.Scale)
	return chvalue.NewDateTime(t.In(loc)), nil
}

func decodeUUID(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	var buf [16]byte
	if err := readFull(r, buf[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	var canonical [16]byte
	reverse8(canonical[0:8], buf[0:8])
	reverse8(canonical[8:16], buf[8:16])
	id, err := uuid.FromBytes(canonical[:])
	if err != nil {
		return chvalue.Value{}, &DecodeError{Kind: UnexpectedTag, Column: d.Name, Message: "malformed UUID bytes"}
	}
	return chvalue.NewUUID(id), nil
}

func decodeIPv4(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	var buf [4]byte
	if err := readFull(r, buf[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	u := binary.LittleEndian.Uint32(buf[:])
	var net4 [4]byte
	binary.BigEndian.PutUint32(net4[:], u)
	return chvalue.NewInet(netip.AddrFrom4(net4)), nil
}

func decodeIPv6(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	var buf [16]byte
	if err := readFull(r, buf[:], d.Name); err != nil {
		return chvalue.Value{}, err
	}
	return chvalue.NewInet(netip.AddrFrom16(buf)), nil
}

func decodeEnum(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	buf := make([]byte, d.WidthBits/8)
	if err := readFull(r, buf, d.Name); err != nil {
		return chvalue.Value{}, err
	}
	code := signExtend(getUintN(buf), d.WidthBits)
	for _, m := range d.Enum {
		if m.Value == code {
			return chvalue.NewEnum(m.Name, code), nil
		}
	}
	return chvalue.Value{}, &DecodeError{Kind: UnexpectedTag, Column: d.Name, Message: "enum code not declared in type"}
}

func decodeArray(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	n, err := readUvarint(r)
	if err != nil {
		return chvalue.Value{}, err
	}
	elem := d.Elem()
	items := make([]chvalue.Value, n)
	for i := range items {
		v, err := DecodeValue(r, elem)
		if err != nil {
			return chvalue.Value{}, err
		}
		items[i] = v
	}
	return chvalue.NewArray(items), nil
}

func decodeTuple(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	items := make([]chvalue.Value, len(d.Children))
	for i, child := range d.Children {
		v, err := DecodeValue(r, child)
		if err != nil {
			return chvalue.Value{}, err
		}
		items[i] = v
	}
	return chvalue.NewTuple(items), nil
}

func decodeMap(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	n, err := readUvarint(r)
	if err != nil {
		return chvalue.Value{}, err
	}
	keyType, valType := d.Children[0], d.Children[1]
	entries := make([]chvalue.MapEntry, n)
	for i := range entries {
		k, err := DecodeValue(r, keyType)
		if err != nil {
			return chvalue.Value{}, err
		}
		v, err := DecodeValue(r, valType)
		if err != nil {
			return chvalue.Value{}, err
		}
		entries[i] = chvalue.MapEntry{Key: k, Val: v}
	}
	return chvalue.NewMap(entries), nil
}

func decodeAggregateBitmap(r io.Reader, d *chtype.Descriptor) (chvalue.Value, error) {
	n, err := readUvarint(r)
	if err != nil {
		return chvalue.Value{}, err
	}
	buf := make([]byte, n)
	if err := readFull(r, buf, d.Name); err != nil {
		return chvalue.Value{}, err
	}
	return chvalue.NewAggregateBitmap(buf), nil
}
