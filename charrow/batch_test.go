package charrow

import (
	"testing"

	"github.com/columnaris/rowbinary-go/chschema"
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

func TestSchemaFromTable(t *testing.T) {
	idCol := mustParse(t, "UInt64")
	idCol.Name = "id"
	nameCol := mustParse(t, "String")
	nameCol.Name = "name"
	table := chschema.NewTableSchema("t", []*chtype.Descriptor{idCol, nameCol})

	schema, err := SchemaFromTable(table)
	if err != nil {
		t.Fatalf("SchemaFromTable: %v", err)
	}
	if schema.NumFields() != 2 {
		t.Fatalf("NumFields = %d, want 2", schema.NumFields())
	}
	if schema.Field(0).Name != "id" || schema.Field(1).Name != "name" {
		t.Fatalf("unexpected field names: %v", schema.Fields())
	}
}

func TestBatchBuilderAppend(t *testing.T) {
	idCol := mustParse(t, "UInt64")
	idCol.Name = "id"
	nameCol := mustParse(t, "String")
	nameCol.Name = "name"
	table := chschema.NewTableSchema("t", []*chtype.Descriptor{idCol, nameCol})

	b, err := NewBatchBuilder(table)
	if err != nil {
		t.Fatalf("NewBatchBuilder: %v", err)
	}
	defer b.Release()

	rec := chvalue.NewRecord(table.Names())
	rec.Set(0, chvalue.NewUInt64(1))
	rec.Set(1, chvalue.NewString("alpha"))
	if err := b.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if b.Rows() != 1 {
		t.Fatalf("Rows() = %d, want 1", b.Rows())
	}

	batch := b.NewRecordBatch()
	defer batch.Release()
	if batch.NumRows() != 1 {
		t.Fatalf("NumRows() = %d, want 1", batch.NumRows())
	}
	if b.Rows() != 0 {
		t.Fatalf("Rows() after NewRecordBatch = %d, want 0", b.Rows())
	}
}
