package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func constructorEntity() Entity {
	return Entity{
		Name:   "constructor",
		Kind:   KindDimension,
		Policy: PolicyMutable,
		Target: "dim_constructor",
		Key:    []string{"constructor_name"},
		Attributes: []Attribute{
			{Name: "constructor_name", Type: TypeString, Expr: "c.name"},
			{Name: "constructor_full_name", Type: TypeString, Expr: "c.full_name"},
			{Name: "country_id", Type: TypeRef},
		},
		Hash: []string{"constructor_full_name", "country_id"},
		Parents: []ParentRef{
			{Attribute: "country_id", Entity: "country", Join: JoinInner},
		},
		Source: SourceSpec{
			From: TableRef{Table: "constructors", Alias: "c"},
			Joins: []SourceJoin{
				{TableRef: TableRef{Table: "countries", Alias: "n", ValidTo: NoColumn}, On: "n.id = c.country_id", Kind: JoinInner},
			},
		},
	}
}

func TestEntityIndexes(t *testing.T) {
	e := constructorEntity()

	assert.Equal(t, []int{0}, e.KeyIndexes())
	assert.Equal(t, []int{1, 2}, e.HashIndexes())
	assert.Equal(t, -1, e.AttributeIndex("missing"))
}

func TestEntityLookups(t *testing.T) {
	e := constructorEntity()

	a, ok := e.Attribute("country_id")
	assert.True(t, ok)
	assert.Equal(t, TypeRef, a.Type)

	p, ok := e.Parent("country_id")
	assert.True(t, ok)
	assert.Equal(t, "country", p.Entity)

	_, ok = e.Parent("constructor_name")
	assert.False(t, ok)

	assert.Equal(t, []string{"country"}, e.ParentEntities())
}

func TestTableRefColumns(t *testing.T) {
	tables := constructorEntity().Source.Tables()

	assert.Len(t, tables, 2)
	assert.Equal(t, "modified_at", tables[0].ModifiedAtColumn())
	assert.Equal(t, "valid_to", tables[0].ValidToColumn())
	assert.Equal(t, "", tables[1].ValidToColumn())

	custom := TableRef{Table: "t", Alias: "t", ModifiedAt: "updated_on", ValidTo: "deleted_on"}
	assert.Equal(t, "updated_on", custom.ModifiedAtColumn())
	assert.Equal(t, "deleted_on", custom.ValidToColumn())
}

func TestAttrTypeSQLType(t *testing.T) {
	assert.Equal(t, "INTEGER", TypeRef.SQLType())
	assert.Equal(t, "INTEGER", TypeBool.SQLType())
	assert.Equal(t, "TEXT", TypeDecimal.SQLType())
	assert.Equal(t, "TEXT", TypeTimestamp.SQLType())
}

func TestCandidateKeyValues(t *testing.T) {
	e := constructorEntity()
	c := Candidate{Values: []Value{String("Ferrari"), String("Scuderia Ferrari"), Int(3)}}

	assert.Equal(t, []Value{String("Ferrari")}, c.KeyValues(&e))
	assert.False(t, c.Ended())

	end := "2024-01-01 00:00:00.000000"
	c.SourceValidTo = &end
	assert.True(t, c.Ended())
}
