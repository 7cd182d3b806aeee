package queryir

import "github.com/roach88/pitwall/internal/ir"

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - ModifiedSince: change-window filter over the max modified time
//   - KeyIn: natural key tuple membership
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Source is one source table of an extraction. The first source of an
// Extract is the driving table and its Join is ignored.
type Source struct {
	Table      string
	Alias      string
	Join       ir.JoinKind
	On         string
	ModifiedAt string // column holding the row's last modification
	ValidTo    string // end-marker column, "" when the table has none
}

// ParentLookup joins a warehouse target table to resolve a ref attribute
// to the parent's surrogate dwh_id.
//
// Semantics:
//
//	<join> JOIN <table> AS <alias> ON <alias>.<col> = (<expr>) AND ...
//
// An inner lookup drops source records whose parent is not yet loaded;
// a left lookup keeps them with a null ref.
type ParentLookup struct {
	Alias string
	Table string
	Match []ir.MatchClause
	Join  ir.JoinKind
	Track bool // parent dwh_modified_at widens the change window
}

// Column binds an output column name to a SQL expression.
type Column struct {
	Name string
	Expr string
}

// Extract is the change-extraction query of one entity.
//
// Semantics:
//
//	SELECT <columns>, <max modified>, <coalesced valid_to>
//	FROM <sources> JOIN <parents>
//	WHERE <filter>
//	ORDER BY <order>
//
// The max modified time spans every source table (and tracked parents);
// the end marker is the first non-null valid_to across source tables.
type Extract struct {
	Sources []Source
	Parents []ParentLookup
	Columns []Column
	Filter  Predicate // usually ModifiedSince; nil = full extraction
	OrderBy []string  // output column names
}

func (*Extract) queryNode() {}

// KeyLookup fetches stored bookkeeping rows for a batch of natural keys.
//
// Semantics:
//
//	SELECT dwh_id, <key columns>, dwh_hash, dwh_valid_from,
//	       dwh_modified_at, dwh_valid_to
//	FROM <table> WHERE <key columns> IN (<keys>) ORDER BY dwh_id
type KeyLookup struct {
	Table      string
	KeyColumns []string
	Keys       [][]ir.Value
}

func (*KeyLookup) queryNode() {}

// ModifiedSince keeps records whose max modified time is strictly after
// Since (a TimeLayout timestamp).
type ModifiedSince struct {
	Since string
}

func (ModifiedSince) predicateNode() {}

// KeyIn keeps rows whose key tuple is one of Keys.
type KeyIn struct {
	Columns []string
	Keys    [][]ir.Value
}

func (KeyIn) predicateNode() {}

// And represents a conjunction of predicates.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
