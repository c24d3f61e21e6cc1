// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Package chvalue implements the Value Model: an in-memory, tagged
// representation of a single decoded column value, independent of both the
// wire format (package rowbinary) and the type registry (package chtype).
// Values are produced by the decoder and consumed by callers through typed
// As* accessors; each accessor fails with a *ValueError rather than
// panicking when the requested shape does not match.
package chvalue

import (
	"math/big"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which field of a Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindInt64
	KindUInt64
	KindBigInt
	KindBigUInt
	KindFloat64
	KindDecimal
	KindBool
	KindString
	KindBytes
	KindDate
	KindDateTime
	KindUUID
	KindInet
	KindEnum
	KindArray
	KindTuple
	KindMap
	KindAggregateBitmap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int64"
	case KindUInt64:
		return "uint64"
	case KindBigInt:
		return "bigint"
	case KindBigUInt:
		return "biguint"
	case KindFloat64:
		return "float64"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindUUID:
		return "uuid"
	case KindInet:
		return "inet"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	case KindMap:
		return "map"
	case KindAggregateBitmap:
		return "aggregate_bitmap"
	default:
		return "unknown"
	}
}

// Decimal is an exact fixed-point number: unscaled * 10^-scale.
type Decimal struct {
	Unscaled *big.Int
	Scale    int
}

// Float64 renders the decimal as a float64, losing precision beyond 53 bits.
func (d Decimal) Float64() float64 {
	f := new(big.Float).SetInt(d.Unscaled)
	if d.Scale > 0 {
		div := new(big.Float).SetInt(pow10(d.Scale))
		f.Quo(f, div)
	}
	out, _ := f.Float64()
	return out
}

// String renders the decimal in fixed-point notation with no locale-specific
// formatting (spec.md §4.3).
func (d Decimal) String() string {
	neg := d.Unscaled.Sign() < 0
	mag := new(big.Int).Abs(d.Unscaled)
	digits := mag.String()
	if d.Scale == 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	for len(digits) <= d.Scale {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-d.Scale]
	fracPart := digits[len(digits)-d.Scale:]
	out := intPart + "." + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MapEntry is a single key/value pair carried by a KindMap Value.
type MapEntry struct {
	Key Value
	Val Value
}

// Value is a decoded column value. The zero Value is KindNull.
type Value struct {
	Kind Kind

	i64     int64
	u64     uint64
	f64     float64
	boolean bool
	bigInt  Int256
	bigUint UInt256
	decimal Decimal
	str     string
	bytes   []byte
	t       time.Time
	id      uuid.UUID
	addr    netip.Addr

	enumName  string
	enumValue int64

	list  []Value
	tuple []Value
	kvs   []MapEntry
}

func Null() Value                    { return Value{Kind: KindNull} }
func NewInt64(v int64) Value         { return Value{Kind: KindInt64, i64: v} }
func NewUInt64(v uint64) Value       { return Value{Kind: KindUInt64, u64: v} }
func NewBigInt(v Int256) Value       { return Value{Kind: KindBigInt, bigInt: v} }
func NewBigUInt(v UInt256) Value     { return Value{Kind: KindBigUInt, bigUint: v} }
func NewFloat64(v float64) Value     { return Value{Kind: KindFloat64, f64: v} }
func NewDecimal(v Decimal) Value     { return Value{Kind: KindDecimal, decimal: v} }
func NewBool(v bool) Value           { return Value{Kind: KindBool, boolean: v} }
func NewString(v string) Value       { return Value{Kind: KindString, str: v} }
func NewBytes(v []byte) Value        { return Value{Kind: KindBytes, bytes: v} }
func NewDate(v time.Time) Value      { return Value{Kind: KindDate, t: v} }
func NewDateTime(v time.Time) Value  { return Value{Kind: KindDateTime, t: v} }
func NewUUID(v uuid.UUID) Value      { return Value{Kind: KindUUID, id: v} }
func NewInet(v netip.Addr) Value     { return Value{Kind: KindInet, addr: v} }
func NewArray(v []Value) Value       { return Value{Kind: KindArray, list: v} }
func NewTuple(v []Value) Value       { return Value{Kind: KindTuple, tuple: v} }
func NewMap(v []MapEntry) Value      { return Value{Kind: KindMap, kvs: v} }
func NewAggregateBitmap(v []byte) Value {
	return Value{Kind: KindAggregateBitmap, bytes: v}
}

// NewEnum records both the symbolic name and the underlying integer code,
// since either may be the more useful representation to a caller.
func NewEnum(name string, value int64) Value {
	return Value{Kind: KindEnum, enumName: name, enumValue: value}
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) AsInt64() (int64, error) {
	switch v.Kind {
	case KindInt64:
		return v.i64, nil
	case KindEnum:
		return v.enumValue, nil
	case KindBigInt:
		return v.bigInt.Int64()
	case KindNull:
		return 0, &ValueError{Kind: NullAccess, Message: "value is null"}
	default:
		return 0, wrongKind("int64", v)
	}
}

func (v Value) AsUint64() (uint64, error) {
	switch v.Kind {
	case KindUInt64:
		return v.u64, nil
	case KindBigUInt:
		return v.bigUint.Uint64()
	case KindNull:
		return 0, &ValueError{Kind: NullAccess, Message: "value is null"}
	default:
		return 0, wrongKind("uint64", v)
	}
}

func (v Value) AsBigInt() (*big.Int, error) {
	switch v.Kind {
	case KindBigInt:
		return v.bigInt.BigInt(), nil
	case KindBigUInt:
		return v.bigUint.BigInt(), nil
	case KindInt64:
		return big.NewInt(v.i64), nil
	case KindUInt64:
		return new(big.Int).SetUint64(v.u64), nil
	case KindNull:
		return nil, &ValueError{Kind: NullAccess, Message: "value is null"}
	default:
		return nil, wrongKind("bigint", v)
	}
}

func (v Value) AsFloat64() (float64, error) {
	switch v.Kind {
	case KindFloat64:
		return v.f64, nil
	case KindDecimal:
		return v.decimal.Float64(), nil
	case KindNull:
		return 0, &ValueError{Kind: NullAccess, Message: "value is null"}
	default:
		return 0, wrongKind("float64", v)
	}
}

func (v Value) AsDecimal() (Decimal, error) {
	if v.Kind == KindNull {
		return Decimal{}, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindDecimal {
		return Decimal{}, wrongKind("decimal", v)
	}
	return v.decimal, nil
}

func (v Value) AsBool() (bool, error) {
	if v.Kind == KindNull {
		return false, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindBool {
		return false, wrongKind("bool", v)
	}
	return v.boolean, nil
}

func (v Value) AsString() (string, error) {
	switch v.Kind {
	case KindString:
		return v.str, nil
	case KindEnum:
		return v.enumName, nil
	case KindBytes:
		return string(v.bytes), nil
	case KindNull:
		return "", &ValueError{Kind: NullAccess, Message: "value is null"}
	default:
		return "", wrongKind("string", v)
	}
}

func (v Value) AsBytes() ([]byte, error) {
	switch v.Kind {
	case KindBytes, KindAggregateBitmap:
		return v.bytes, nil
	case KindString:
		return []byte(v.str), nil
	case KindNull:
		return nil, &ValueError{Kind: NullAccess, Message: "value is null"}
	default:
		return nil, wrongKind("bytes", v)
	}
}

func (v Value) AsDate() (time.Time, error) {
	if v.Kind == KindNull {
		return time.Time{}, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindDate {
		return time.Time{}, wrongKind("date", v)
	}
	return v.t, nil
}

func (v Value) AsInstant() (time.Time, error) {
	if v.Kind == KindNull {
		return time.Time{}, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindDateTime {
		return time.Time{}, wrongKind("datetime", v)
	}
	return v.t, nil
}

func (v Value) AsUUID() (uuid.UUID, error) {
	if v.Kind == KindNull {
		return uuid.UUID{}, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindUUID {
		return uuid.UUID{}, wrongKind("uuid", v)
	}
	return v.id, nil
}

func (v Value) AsInet() (netip.Addr, error) {
	if v.Kind == KindNull {
		return netip.Addr{}, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindInet {
		return netip.Addr{}, wrongKind("inet", v)
	}
	return v.addr, nil
}

func (v Value) AsList() ([]Value, error) {
	if v.Kind == KindNull {
		return nil, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindArray {
		return nil, wrongKind("array", v)
	}
	return v.list, nil
}

func (v Value) AsTuple() ([]Value, error) {
	if v.Kind == KindNull {
		return nil, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindTuple {
		return nil, wrongKind("tuple", v)
	}
	return v.tuple, nil
}

func (v Value) AsMap() ([]MapEntry, error) {
	if v.Kind == KindNull {
		return nil, &ValueError{Kind: NullAccess, Message: "value is null"}
	}
	if v.Kind != KindMap {
		return nil, wrongKind("map", v)
	}
	return v.kvs, nil
}

// EnumName returns the symbolic member name for a KindEnum value.
func (v Value) EnumName() (string, error) {
	if v.Kind != KindEnum {
		return "", wrongKind("enum", v)
	}
	return v.enumName, nil
}
