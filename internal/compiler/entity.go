package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/pitwall/internal/ir"
)

// CompileEntity parses a CUE value into an Entity descriptor.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: country: { ... }`)
//	e, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.country")))
//
// Attribute and match order follow CUE declaration order. The default hash
// subset is every attribute in declaration order.
func CompileEntity(v cue.Value) (*ir.Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	e := &ir.Entity{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		e.Name = labels[len(labels)-1].Unquoted()
	}

	kind, err := optionalString(v, "kind", string(ir.KindDimension))
	if err != nil {
		return nil, err
	}
	e.Kind = ir.Kind(kind)

	policy, err := optionalString(v, "policy", "")
	if err != nil {
		return nil, err
	}
	if policy == "" {
		return nil, &CompileError{Field: "policy", Message: "policy is required", Pos: v.Pos()}
	}
	e.Policy = ir.Policy(policy)

	if e.Target, err = optionalString(v, "target", ""); err != nil {
		return nil, err
	}

	if e.Key, err = stringList(v, "key"); err != nil {
		return nil, err
	}

	if e.Attributes, e.Parents, err = parseAttributes(v); err != nil {
		return nil, err
	}

	hashVal := v.LookupPath(cue.ParsePath("hash"))
	if hashVal.Exists() {
		if e.Hash, err = stringList(v, "hash"); err != nil {
			return nil, err
		}
	} else {
		for _, a := range e.Attributes {
			e.Hash = append(e.Hash, a.Name)
		}
	}

	if e.Source, err = parseSource(v); err != nil {
		return nil, err
	}

	trackVal := v.LookupPath(cue.ParsePath("track_parents"))
	if trackVal.Exists() {
		if e.TrackParents, err = trackVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	return e, nil
}

// parseAttributes parses the attributes struct. An attribute is either a
// bare string (a string-typed source expression) or a struct with type,
// from and, for refs, a parent block.
func parseAttributes(v cue.Value) ([]ir.Attribute, []ir.ParentRef, error) {
	attrVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrVal.Exists() {
		return nil, nil, &CompileError{Field: "attributes", Message: "attributes are required", Pos: v.Pos()}
	}

	iter, err := attrVal.Fields()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}

	var (
		attrs   []ir.Attribute
		parents []ir.ParentRef
	)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		av := iter.Value()

		if expr, err := av.String(); err == nil {
			attrs = append(attrs, ir.Attribute{Name: name, Type: ir.TypeString, Expr: expr})
			continue
		}

		typ, err := optionalString(av, "type", string(ir.TypeString))
		if err != nil {
			return nil, nil, err
		}
		expr, err := optionalString(av, "from", "")
		if err != nil {
			return nil, nil, err
		}
		attrs = append(attrs, ir.Attribute{Name: name, Type: ir.AttrType(typ), Expr: expr})

		parentVal := av.LookupPath(cue.ParsePath("parent"))
		if parentVal.Exists() {
			p, err := parseParent(name, parentVal)
			if err != nil {
				return nil, nil, err
			}
			parents = append(parents, p)
		}
	}

	return attrs, parents, nil
}

func parseParent(attr string, v cue.Value) (ir.ParentRef, error) {
	p := ir.ParentRef{Attribute: attr}

	var err error
	if p.Entity, err = optionalString(v, "entity", ""); err != nil {
		return p, err
	}
	if p.Entity == "" {
		return p, &CompileError{Field: "parent.entity", Message: fmt.Sprintf("parent of %q must name an entity", attr), Pos: v.Pos()}
	}

	join, err := optionalString(v, "join", string(ir.JoinInner))
	if err != nil {
		return p, err
	}
	p.Join = ir.JoinKind(join)

	matchVal := v.LookupPath(cue.ParsePath("match"))
	if !matchVal.Exists() {
		return p, &CompileError{Field: "parent.match", Message: fmt.Sprintf("parent of %q must declare match columns", attr), Pos: v.Pos()}
	}
	iter, err := matchVal.Fields()
	if err != nil {
		return p, formatCUEError(err)
	}
	for iter.Next() {
		expr, err := iter.Value().String()
		if err != nil {
			return p, formatCUEError(err)
		}
		p.Match = append(p.Match, ir.MatchClause{Column: iter.Selector().Unquoted(), Expr: expr})
	}

	return p, nil
}

func parseSource(v cue.Value) (ir.SourceSpec, error) {
	var src ir.SourceSpec

	srcVal := v.LookupPath(cue.ParsePath("source"))
	if !srcVal.Exists() {
		return src, &CompileError{Field: "source", Message: "source is required", Pos: v.Pos()}
	}

	fromVal := srcVal.LookupPath(cue.ParsePath("from"))
	if !fromVal.Exists() {
		return src, &CompileError{Field: "source.from", Message: "source.from is required", Pos: srcVal.Pos()}
	}
	from, err := parseTableRef(fromVal)
	if err != nil {
		return src, err
	}
	src.From = from

	joinVal := srcVal.LookupPath(cue.ParsePath("join"))
	if !joinVal.Exists() {
		return src, nil
	}
	iter, err := joinVal.List()
	if err != nil {
		return src, formatCUEError(err)
	}
	for iter.Next() {
		jv := iter.Value()
		ref, err := parseTableRef(jv)
		if err != nil {
			return src, err
		}
		on, err := optionalString(jv, "on", "")
		if err != nil {
			return src, err
		}
		kind, err := optionalString(jv, "kind", string(ir.JoinInner))
		if err != nil {
			return src, err
		}
		src.Joins = append(src.Joins, ir.SourceJoin{TableRef: ref, On: on, Kind: ir.JoinKind(kind)})
	}

	return src, nil
}

func parseTableRef(v cue.Value) (ir.TableRef, error) {
	var (
		ref ir.TableRef
		err error
	)
	if ref.Table, err = optionalString(v, "table", ""); err != nil {
		return ref, err
	}
	if ref.Alias, err = optionalString(v, "as", ref.Table); err != nil {
		return ref, err
	}
	if ref.ModifiedAt, err = optionalString(v, "modified_at", ""); err != nil {
		return ref, err
	}
	if ref.ValidTo, err = optionalString(v, "valid_to", ""); err != nil {
		return ref, err
	}
	return ref, nil
}

// optionalString returns the string at path, or def when the field is absent.
func optionalString(v cue.Value, path, def string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return def, nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
