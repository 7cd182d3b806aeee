package queryir

import "github.com/roach88/pitwall/internal/ir"

// parentAliasPrefix names parent lookup joins: p_<attribute>.
const parentAliasPrefix = "p_"

// ParentAlias returns the join alias used to resolve a ref attribute.
func ParentAlias(attribute string) string {
	return parentAliasPrefix + attribute
}

// ForEntity builds the change-extraction query for an entity. since is the
// window start (watermark minus skew); an empty since extracts everything.
//
// Columns are the entity attributes in declaration order. Ref attributes
// select the dwh_id of their parent lookup.
func ForEntity(e *ir.Entity, since string) *Extract {
	q := &Extract{}

	for i, t := range e.Source.Tables() {
		src := Source{
			Table:      t.Table,
			Alias:      t.Alias,
			ModifiedAt: t.ModifiedAtColumn(),
			ValidTo:    t.ValidToColumn(),
		}
		if i > 0 {
			j := e.Source.Joins[i-1]
			src.Join = j.Kind
			src.On = j.On
		}
		q.Sources = append(q.Sources, src)
	}

	for _, p := range e.Parents {
		q.Parents = append(q.Parents, ParentLookup{
			Alias: ParentAlias(p.Attribute),
			Table: p.Target,
			Match: p.Match,
			Join:  p.Join,
			Track: e.TrackParents,
		})
	}

	for _, a := range e.Attributes {
		expr := a.Expr
		if a.Type == ir.TypeRef {
			expr = ParentAlias(a.Name) + ".dwh_id"
		}
		q.Columns = append(q.Columns, Column{Name: a.Name, Expr: expr})
	}

	if since != "" {
		q.Filter = ModifiedSince{Since: since}
	}
	q.OrderBy = append(q.OrderBy, e.Key...)

	return q
}

// Lookup builds the stored-row lookup for a batch of natural keys.
func Lookup(e *ir.Entity, keys [][]ir.Value) *KeyLookup {
	return &KeyLookup{
		Table:      e.Target,
		KeyColumns: e.Key,
		Keys:       keys,
	}
}
