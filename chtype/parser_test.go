package chtype

import "testing"

func TestParseSimple(t *testing.T) {
	cases := []struct {
		sql      string
		category Category
		width    int
	}{
		{"UInt64", CategoryInteger, 64},
		{"Int8", CategoryInteger, 8},
		{"Float64", CategoryFloat, 64},
		{"String", CategoryString, 0},
		{"Date", CategoryDate, 16},
		{"UUID", CategoryUUID, 128},
	}
	for _, tc := range cases {
		t.Run(tc.sql, func(t *testing.T) {
			d, err := Parse(tc.sql)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.sql, err)
			}
			if d.Category != tc.category {
				t.Errorf("category = %v, want %v", d.Category, tc.category)
			}
			if d.WidthBits != tc.width {
				t.Errorf("width = %d, want %d", d.WidthBits, tc.width)
			}
		})
	}
}

func TestParseUnknownType(t *testing.T) {
	_, err := Parse("Frobnicate")
	var se *SchemaError
	if err == nil {
		t.Fatal("expected error")
	}
	if !castSchemaError(err, &se) || se.Kind != UnknownType {
		t.Fatalf("expected UnknownType SchemaError, got %v", err)
	}
}

func castSchemaError(err error, out **SchemaError) bool {
	se, ok := err.(*SchemaError)
	if !ok {
		return false
	}
	*out = se
	return true
}

func TestParseNestedComposite(t *testing.T) {
	d, err := Parse("Array(Nullable(Decimal(9,3)))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Category != CategoryArray {
		t.Fatalf("outer category = %v", d.Category)
	}
	inner := d.Elem()
	if inner.Category != CategoryNullable || !inner.Nullable {
		t.Fatalf("inner category = %v", inner.Category)
	}
	dec := inner.Elem()
	if dec.Category != CategoryDecimal || dec.Precision != 9 || dec.Scale != 3 || dec.WidthBits != 32 {
		t.Fatalf("decimal descriptor = %+v", dec)
	}
}

func TestParseIllegalNullable(t *testing.T) {
	_, err := Parse("Nullable(Array(Int32))")
	var se *SchemaError
	if !castSchemaError(err, &se) || se.Kind != IllegalNullable {
		t.Fatalf("expected IllegalNullable, got %v", err)
	}

	_, err = Parse("Nullable(Nullable(Int32))")
	if !castSchemaError(err, &se) || se.Kind != IllegalNullable {
		t.Fatalf("expected IllegalNullable for double-nullable, got %v", err)
	}
}

func TestParseLowCardinality(t *testing.T) {
	d, err := Parse("LowCardinality(String)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Category != CategoryLowCardinality || d.Elem().Category != CategoryString {
		t.Fatalf("descriptor = %+v", d)
	}

	_, err = Parse("LowCardinality(Array(Int32))")
	var se *SchemaError
	if !castSchemaError(err, &se) || se.Kind != IllegalLowCardinality {
		t.Fatalf("expected IllegalLowCardinality, got %v", err)
	}
}

func TestParseEnum(t *testing.T) {
	d, err := Parse("Enum8('reading' = 1, 'writing' = 2)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Enum) != 2 || d.Enum[0].Name != "reading" || d.Enum[0].Value != 1 {
		t.Fatalf("enum members = %+v", d.Enum)
	}
}

func TestParseDateTime64WithZone(t *testing.T) {
	d, err := Parse("DateTime64(3, 'UTC')")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Scale != 3 || d.Timezone != "UTC" {
		t.Fatalf("descriptor = %+v", d)
	}
}

func TestParseTuple(t *testing.T) {
	d, err := Parse("Tuple(UInt64, String)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Children) != 2 || d.Children[1].Category != CategoryString {
		t.Fatalf("descriptor = %+v", d)
	}
}

func TestParseMap(t *testing.T) {
	d, err := Parse("Map(String, Int32)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Category != CategoryMap || len(d.Children) != 2 {
		t.Fatalf("descriptor = %+v", d)
	}
}

func TestParseSimpleAggregateFunction(t *testing.T) {
	d, err := Parse("SimpleAggregateFunction(sum, UInt64)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Category != CategorySimpleAggregate {
		t.Fatalf("descriptor = %+v", d)
	}
	elem := d.Elem()
	if elem == nil || elem.Category != CategoryInteger || elem.WidthBits != 64 || !elem.Unsigned {
		t.Fatalf("Elem() = %+v", elem)
	}
}

func TestParseAggregateFunctionStaysOpaque(t *testing.T) {
	d, err := Parse("AggregateFunction(uniq, String)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Category != CategoryAggregateBitmap {
		t.Fatalf("descriptor = %+v", d)
	}
	if d.Elem() != nil {
		t.Fatalf("Elem() = %+v, want nil (opaque blob has no wrapped type)", d.Elem())
	}
}
