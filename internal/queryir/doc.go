// Package queryir provides the abstract query representation for change
// extraction and stored-row lookup.
//
// QueryIR is the boundary between the entity descriptor and the SQL
// backend:
//
//	[ir.Entity] → [Query IR] → [SQL Backend]
//
// Two queries exist:
//   - Extract: joins source tables, resolves parent surrogates against
//     warehouse target tables and filters on the change window
//   - KeyLookup: fetches the bookkeeping columns of stored rows for a batch
//     of natural keys
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backends can switch
// exhaustively:
//
//	switch q := query.(type) {
//	case *Extract:
//	    // change extraction
//	case *KeyLookup:
//	    // stored row lookup
//	}
//
// Literal values in predicates are ir.Value types and are always bound as
// parameters. Expressions (attribute sources, join conditions) come from the
// entity catalog and are trusted SQL fragments over the source aliases.
package queryir
