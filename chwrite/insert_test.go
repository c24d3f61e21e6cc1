package chwrite

import (
	"bytes"
	"testing"

	"github.com/columnaris/rowbinary-go/chschema"
	"github.com/columnaris/rowbinary-go/chtype"
	"github.com/columnaris/rowbinary-go/chvalue"
	"github.com/columnaris/rowbinary-go/rowbinary"
)

func mustParse(t *testing.T, sql string) *chtype.Descriptor {
	t.Helper()
	d, err := chtype.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	return d
}

func idCol(name, sql string, t *testing.T) *chtype.Descriptor {
	d := mustParse(t, sql)
	d.Name = name
	return d
}

func TestInserterCommitAndFlush(t *testing.T) {
	schema := chschema.NewTableSchema("events", []*chtype.Descriptor{
		idCol("id", "UInt64", t),
		idCol("name", "String", t),
	})
	ins := NewRowBinaryInserter(schema, false)

	if err := ins.SetByIndex(1, chvalue.NewUInt64(1)); err != nil {
		t.Fatalf("SetByIndex: %v", err)
	}
	if err := ins.SetByName("name", chvalue.NewString("alpha")); err != nil {
		t.Fatalf("SetByName: %v", err)
	}
	if err := ins.CommitRow(); err != nil {
		t.Fatalf("CommitRow: %v", err)
	}
	if ins.Rows() != 1 {
		t.Fatalf("Rows() = %d, want 1", ins.Rows())
	}

	if err := ins.SetByIndex(1, chvalue.NewUInt64(2)); err != nil {
		t.Fatalf("SetByIndex: %v", err)
	}
	if err := ins.SetByIndex(2, chvalue.NewString("beta")); err != nil {
		t.Fatalf("SetByIndex: %v", err)
	}
	if err := ins.CommitRow(); err != nil {
		t.Fatalf("CommitRow: %v", err)
	}
	if ins.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", ins.Rows())
	}

	var out bytes.Buffer
	n, err := ins.Flush(&out)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n == 0 {
		t.Fatal("Flush wrote no bytes")
	}
	if ins.Rows() != 0 {
		t.Fatalf("Rows() after Flush = %d, want 0", ins.Rows())
	}

	dec := rowbinary.NewRowDecoder(&out, schema.Columns(), false)
	rec := chvalue.NewRecord(schema.Names())
	if err := dec.ReadRow(rec); err != nil {
		t.Fatalf("ReadRow 1: %v", err)
	}
	id, err := rec.At(0).AsUint64()
	if err != nil || id != 1 {
		t.Fatalf("row 1 id = %d, %v, want 1", id, err)
	}
	if err := dec.ReadRow(rec); err != nil {
		t.Fatalf("ReadRow 2: %v", err)
	}
	name, err := rec.At(1).AsString()
	if err != nil || name != "beta" {
		t.Fatalf("row 2 name = %q, %v, want beta", name, err)
	}
}

func TestInserterMissingRequiredFails(t *testing.T) {
	schema := chschema.NewTableSchema("events", []*chtype.Descriptor{
		idCol("id", "UInt64", t),
	})
	ins := NewRowBinaryInserter(schema, false)
	if err := ins.CommitRow(); err == nil {
		t.Fatal("expected MissingRequired error for unset column")
	}
	if ins.Rows() != 0 {
		t.Fatalf("Rows() after failed commit = %d, want 0", ins.Rows())
	}
}

func TestInserterUnsetNullableColumnCommitsAsNull(t *testing.T) {
	schema := chschema.NewTableSchema("events", []*chtype.Descriptor{
		idCol("id", "UInt64", t),
		idCol("note", "Nullable(String)", t),
	})
	ins := NewRowBinaryInserter(schema, false)
	if err := ins.SetByIndex(1, chvalue.NewUInt64(1)); err != nil {
		t.Fatalf("SetByIndex: %v", err)
	}
	if err := ins.CommitRow(); err != nil {
		t.Fatalf("CommitRow with nullable column left unset: %v", err)
	}
	if ins.Rows() != 1 {
		t.Fatalf("Rows() = %d, want 1", ins.Rows())
	}

	var out bytes.Buffer
	if _, err := ins.Flush(&out); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	dec := rowbinary.NewRowDecoder(&out, schema.Columns(), false)
	rec := chvalue.NewRecord(schema.Names())
	if err := dec.ReadRow(rec); err != nil {
		t.Fatalf("ReadRow: %v", err)
	}
	if !rec.At(1).IsNull() {
		t.Fatalf("note = %v, want null", rec.At(1))
	}
}

func TestInserterUnknownColumnByName(t *testing.T) {
	schema := chschema.NewTableSchema("events", []*chtype.Descriptor{
		idCol("id", "UInt64", t),
	})
	ins := NewRowBinaryInserter(schema, false)
	if err := ins.SetByName("missing", chvalue.NewUInt64(1)); err == nil {
		t.Fatal("expected SchemaError for unknown column")
	}
}
