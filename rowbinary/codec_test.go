package rowbinary

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/columnaris/rowbinary-go/chtype"
	"github.com/columnaris/rowbinary-go/chvalue"
)

func mustParse(t *testing.T, sql string) *chtype.Descriptor {
	t.Helper()
	d, err := chtype.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	return d
}

func TestRowBinaryScalarRoundTrip(t *testing.T) {
	cases := []struct {
		sql string
		v   chvalue.Value
	}{
		{"UInt8", chvalue.NewUInt64(255)},
		{"Int32", chvalue.NewInt64(-12345)},
		{"Float64", chvalue.NewFloat64(3.5)},
		{"Bool", chvalue.NewBool(true)},
		{"String", chvalue.NewString("hello, world")},
		{"FixedString(4)", chvalue.NewBytes([]byte("ab"))},
	}
	for _, tc := range cases {
		t.Run(tc.sql, func(t *testing.T) {
			d := mustParse(t, tc.sql)
			var buf bytes.Buffer
			if err := EncodeValue(&buf, d, tc.v); err != nil {
				t.Fatalf("EncodeValue: %v", err)
			}
			got, err := DecodeValue(&buf, d)
			if err != nil {
				t.Fatalf("DecodeValue: %v", err)
			}
			if got.Kind != tc.v.Kind && !(d.Category == chtype.CategoryFixedString && got.Kind == chvalue.KindBytes) {
				t.Fatalf("kind = %v, want %v", got.Kind, tc.v.Kind)
			}
		})
	}
}

func TestRowBinaryNullableRoundTrip(t *testing.T) {
	d := mustParse(t, "Nullable(Int32)")
	var buf bytes.Buffer
	if err := EncodeValue(&buf, d, chvalue.Null()); err != nil {
		t.Fatalf("encode null: %v", err)
	}
	if err := EncodeValue(&buf, d, chvalue.NewInt64(7)); err != nil {
		t.Fatalf("encode value: %v", err)
	}
	v1, err := DecodeValue(&buf, d)
	if err != nil || !v1.IsNull() {
		t.Fatalf("first decode: %v, %v", v1, err)
	}
	v2, err := DecodeValue(&buf, d)
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}
	got, err := v2.AsInt64()
	if err != nil || got != 7 {
		t.Fatalf("value = %d, %v", got, err)
	}
}

func TestRowBinaryUUIDRoundTrip(t *testing.T) {
	d := mustParse(t, "UUID")
	id := uuid.MustParse("12345678-1234-5678-1234-567812345678")
	var buf bytes.Buffer
	if err := EncodeValue(&buf, d, chvalue.NewUUID(id)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 16 {
		t.Fatalf("len = %d, want 16", buf.Len())
	}
	got, err := DecodeValue(&buf, d)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotID, err := got.AsUUID()
	if err != nil || gotID != id {
		t.Fatalf("uuid = %v, want %v", gotID, id)
	}
}

func TestRowBinaryDecimalRoundTrip(t *testing.T) {
	d := mustParse(t, "Decimal64(3)")
	unscaled, _ := new(big.Int).SetString("12345", 10)
	dec := chvalue.Decimal{Unscaled: unscaled, Scale: 3}
	var buf bytes.Buffer
	if err := EncodeValue(&buf, d, chvalue.NewDecimal(dec)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("len = %d, want 8", buf.Len())
	}
	got, err := DecodeValue(&buf, d)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotDec, err := got.AsDecimal()
	if err != nil {
		t.Fatalf("AsDecimal: %v", err)
	}
	if gotDec.String() != "12.345" {
		t.Fatalf("decimal = %s, want 12.345", gotDec.String())
	}
}

func TestRowBinaryDateTimeRoundTrip(t *testing.T) {
	d := mustParse(t, "DateTime")
	now := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	if err := EncodeValue(&buf, d, chvalue.NewDateTime(now)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeValue(&buf, d)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotT, err := got.AsInstant()
	if err != nil || !gotT.Equal(now) {
		t.Fatalf("time = %v, want %v (%v)", gotT, now, err)
	}
}

// TestRowBinarySimpleAggregateFunctionIsTransparent asserts
// SimpleAggregateFunction(sum, UInt64) is wire-encoded exactly like a plain
// UInt64 — 8 bytes, no LEB128 length prefix — unlike the opaque
// length-prefixed blob AggregateFunction uses.
func TestRowBinarySimpleAggregateFunctionIsTransparent(t *testing.T) {
	d := mustParse(t, "SimpleAggregateFunction(sum, UInt64)")
	var buf bytes.Buffer
	if err := EncodeValue(&buf, d, chvalue.NewUInt64(9)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("len = %d, want 8 (plain UInt64, no length prefix)", buf.Len())
	}
	got, err := DecodeValue(&buf, d)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	u, err := got.AsUint64()
	if err != nil || u != 9 {
		t.Fatalf("value = %d, %v, want 9", u, err)
	}
}

// TestRowBinaryUnsetNullableColumnEncodesAsNull asserts that an unset column
// in a non-defaults row is only an error when the column is non-nullable; an
// unset nullable column instead encodes as null.
func TestRowBinaryUnsetNullableColumnEncodesAsNull(t *testing.T) {
	columns := []*chtype.Descriptor{mustParse(t, "Nullable(Int32)")}
	columns[0].Name = "a"
	var buf bytes.Buffer
	enc := NewRowEncoder(&buf, columns, false)
	if err := enc.WriteRow([]chvalue.Value{{}}, []bool{false}); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	rec := chvalue.NewRecord([]string{"a"})
	dec := NewRowDecoder(&buf, columns, false)
	if err := dec.ReadRow(rec); err != nil {
		t.Fatalf("ReadRow: %v", err)
	}
	if !rec.At(0).IsNull() {
		t.Fatalf("a = %v, want null", rec.At(0))
	}
}

// TestRowBinaryUnsetNonNullableColumnFails keeps the non-nullable branch of
// the same rule covered alongside the nullable case above.
func TestRowBinaryUnsetNonNullableColumnFails(t *testing.T) {
	columns := []*chtype.Descriptor{{Name: "a", Category: chtype.CategoryInteger, WidthBits: 32}}
	var buf bytes.Buffer
	enc := NewRowEncoder(&buf, columns, false)
	err := enc.WriteRow([]chvalue.Value{{}}, []bool{false})
	ee, ok := err.(*EncodeError)
	if !ok || ee.Kind != MissingRequired {
		t.Fatalf("err = %v, want EncodeError{MissingRequired}", err)
	}
}

// TestRowScenarioS6 encodes the row (42, [1, null, 7], 12.345) against the
// schema (a UInt64, b Array(Nullable(Int32)), c Decimal64(3)) and checks the
// exact wire length: 8 (UInt64) + 1 (array length varint) +
// (1+4) + (1+0) + (1+4) (three nullable Int32 elements) + 8 (Decimal64).
func TestRowScenarioS6(t *testing.T) {
	columns := []*chtype.Descriptor{
		{Name: "a", Category: chtype.CategoryInteger, WidthBits: 64, Unsigned: true},
		mustParse(t, "Array(Nullable(Int32))"),
		mustParse(t, "Decimal64(3)"),
	}
	columns[1].Name = "b"
	columns[2].Name = "c"

	unscaled, _ := new(big.Int).SetString("12345", 10)
	values := []chvalue.Value{
		chvalue.NewUInt64(42),
		chvalue.NewArray([]chvalue.Value{
			chvalue.NewInt64(1),
			chvalue.Null(),
			chvalue.NewInt64(7),
		}),
		chvalue.NewDecimal(chvalue.Decimal{Unscaled: unscaled, Scale: 3}),
	}

	var buf bytes.Buffer
	enc := NewRowEncoder(&buf, columns, false)
	if err := enc.WriteRow(values, nil); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}

	want := 8 + 1 + (1 + 4) + (1 + 0) + (1 + 4) + 8
	if buf.Len() != want {
		t.Fatalf("encoded length = %d, want %d", buf.Len(), want)
	}

	rec := chvalue.NewRecord([]string{"a", "b", "c"})
	dec := NewRowDecoder(&buf, columns, false)
	if err := dec.ReadRow(rec); err != nil {
		t.Fatalf("ReadRow: %v", err)
	}
	a, _ := rec.At(0).AsUint64()
	if a != 42 {
		t.Fatalf("a = %d, want 42", a)
	}
	list, err := rec.At(1).AsList()
	if err != nil || len(list) != 3 {
		t.Fatalf("b = %+v, %v", list, err)
	}
	if !list[1].IsNull() {
		t.Fatalf("b[1] should be null")
	}
	v0, _ := list[0].AsInt64()
	v2, _ := list[2].AsInt64()
	if v0 != 1 || v2 != 7 {
		t.Fatalf("b = [%d, null, %d], want [1, null, 7]", v0, v2)
	}
	c, err := rec.At(2).AsDecimal()
	if err != nil || c.String() != "12.345" {
		t.Fatalf("c = %v, %v", c, err)
	}
}
