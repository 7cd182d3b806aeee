package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/pitwall/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Entity errors (E101-E110)
	ErrMissingTarget     = "E101" // target table is required
	ErrMissingKey        = "E102" // natural key is required
	ErrMissingSource     = "E103" // source.from table is required
	ErrUnknownKeyAttr    = "E104" // key names an undeclared attribute
	ErrUnknownHashAttr   = "E105" // hash names an undeclared attribute
	ErrDuplicateName     = "E106" // duplicate attribute, alias or entity name
	ErrInvalidType       = "E107" // invalid attribute type (float is rejected here)
	ErrInvalidKindPolicy = "E108" // invalid kind or policy
	ErrInvalidJoin       = "E109" // invalid join kind or missing join condition
	ErrRefWithoutParent  = "E110" // ref attribute without parent, or parent on a non-ref

	// Catalog errors (E111-E119)
	ErrUnknownParent     = "E111" // parent references an unknown entity
	ErrFactAsParent      = "E112" // dimension references a fact
	ErrDependencyCycle   = "E113" // parent references form a cycle
	ErrMissingExpr       = "E114" // non-ref attribute without a source expression
	ErrInvalidName       = "E115" // identifier is not a plain SQL name
	ErrRefInKey          = "E116" // ref attributes cannot be part of the natural key
	ErrInvalidPhaseOrder = "E117" // phase order repeats a kind or omits one in use
)

// identPattern restricts table, alias and column names. They are
// interpolated into generated SQL, so nothing else is accepted.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedColumns are the bookkeeping columns of every target table.
var reservedColumns = map[string]bool{
	"dwh_id":          true,
	"dwh_hash":        true,
	"dwh_valid_from":  true,
	"dwh_modified_at": true,
	"dwh_valid_to":    true,
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateEntity validates one entity descriptor in isolation.
// Returns all errors found (does not fail-fast).
func ValidateEntity(e *ir.Entity) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{
			Entity:  e.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if !identPattern.MatchString(e.Name) {
		add(ErrInvalidName, "name", "entity name %q is not a valid identifier", e.Name)
	}

	// E108: kind and policy
	if !ir.ValidKinds[e.Kind] {
		add(ErrInvalidKindPolicy, "kind", "invalid kind %q, must be dimension or fact", e.Kind)
	}
	if !ir.ValidPolicies[e.Policy] {
		add(ErrInvalidKindPolicy, "policy", "invalid policy %q, must be mutable or immutable", e.Policy)
	}

	// E101: target table
	if e.Target == "" {
		add(ErrMissingTarget, "target", "target table is required")
	} else if !identPattern.MatchString(e.Target) {
		add(ErrInvalidName, "target", "target %q is not a valid identifier", e.Target)
	}

	// E106/E107/E114: attributes
	names := make(map[string]bool)
	for i, a := range e.Attributes {
		field := fmt.Sprintf("attributes[%d]", i)
		if names[a.Name] {
			add(ErrDuplicateName, field, "duplicate attribute %q", a.Name)
		}
		names[a.Name] = true

		if !identPattern.MatchString(a.Name) {
			add(ErrInvalidName, field, "attribute name %q is not a valid identifier", a.Name)
		}
		if reservedColumns[a.Name] {
			add(ErrInvalidName, field, "attribute name %q is reserved", a.Name)
		}
		if !ir.ValidTypes[a.Type] {
			add(ErrInvalidType, field+".type", "invalid type %q for %q, must be one of: string, int, bool, decimal, date, timestamp, ref", a.Type, a.Name)
		}
		if a.Type != ir.TypeRef && a.Expr == "" {
			add(ErrMissingExpr, field+".from", "attribute %q needs a source expression", a.Name)
		}

		_, hasParent := e.Parent(a.Name)
		if a.Type == ir.TypeRef && !hasParent {
			add(ErrRefWithoutParent, field, "ref attribute %q must declare a parent", a.Name)
		}
		if a.Type != ir.TypeRef && hasParent {
			add(ErrRefWithoutParent, field, "attribute %q declares a parent but is not a ref", a.Name)
		}
	}

	// E102/E104: natural key
	if len(e.Key) == 0 {
		add(ErrMissingKey, "key", "at least one natural key attribute is required")
	}
	for i, k := range e.Key {
		a, ok := e.Attribute(k)
		if !ok {
			add(ErrUnknownKeyAttr, fmt.Sprintf("key[%d]", i), "key attribute %q is not declared", k)
			continue
		}
		if a.Type == ir.TypeRef {
			add(ErrRefInKey, fmt.Sprintf("key[%d]", i), "key attribute %q cannot be a ref", k)
		}
	}

	// E105: hash subset
	seenHash := make(map[string]bool)
	for i, h := range e.Hash {
		if _, ok := e.Attribute(h); !ok {
			add(ErrUnknownHashAttr, fmt.Sprintf("hash[%d]", i), "hash attribute %q is not declared", h)
		}
		if seenHash[h] {
			add(ErrDuplicateName, fmt.Sprintf("hash[%d]", i), "hash attribute %q listed twice", h)
		}
		seenHash[h] = true
	}

	// E103/E109: source
	if e.Source.From.Table == "" {
		add(ErrMissingSource, "source.from", "source.from.table is required")
	}
	aliases := make(map[string]bool)
	for i, t := range e.Source.Tables() {
		field := "source.from"
		if i > 0 {
			field = fmt.Sprintf("source.join[%d]", i-1)
		}
		for _, id := range []string{t.Table, t.Alias, t.ModifiedAtColumn()} {
			if id != "" && !identPattern.MatchString(id) {
				add(ErrInvalidName, field, "%q is not a valid identifier", id)
			}
		}
		if vt := t.ValidToColumn(); vt != "" && !identPattern.MatchString(vt) {
			add(ErrInvalidName, field, "%q is not a valid identifier", vt)
		}
		if aliases[t.Alias] {
			add(ErrDuplicateName, field, "duplicate source alias %q", t.Alias)
		}
		aliases[t.Alias] = true
	}
	for i, j := range e.Source.Joins {
		field := fmt.Sprintf("source.join[%d]", i)
		if !ir.ValidJoins[j.Kind] {
			add(ErrInvalidJoin, field+".kind", "invalid join kind %q, must be inner or left", j.Kind)
		}
		if j.On == "" {
			add(ErrInvalidJoin, field+".on", "join with %q needs an on condition", j.Table)
		}
	}

	// E109/E110: parents
	for i, p := range e.Parents {
		field := fmt.Sprintf("parents[%d]", i)
		if a, ok := e.Attribute(p.Attribute); !ok || a.Type != ir.TypeRef {
			add(ErrRefWithoutParent, field, "parent must resolve a declared ref attribute, got %q", p.Attribute)
		}
		if !ir.ValidJoins[p.Join] {
			add(ErrInvalidJoin, field+".join", "invalid join kind %q, must be inner or left", p.Join)
		}
		if len(p.Match) == 0 {
			add(ErrRefWithoutParent, field+".match", "parent of %q needs at least one match column", p.Attribute)
		}
		for _, m := range p.Match {
			if !identPattern.MatchString(m.Column) {
				add(ErrInvalidName, field+".match", "%q is not a valid identifier", m.Column)
			}
		}
	}

	return errs
}

// ValidateCatalog validates every entity and the references between them.
// Returns all errors found (does not fail-fast).
func ValidateCatalog(entities []ir.Entity) []ValidationError {
	var errs []ValidationError

	byName := make(map[string]*ir.Entity, len(entities))
	targets := make(map[string]string, len(entities))
	for i := range entities {
		e := &entities[i]
		errs = append(errs, ValidateEntity(e)...)

		if _, dup := byName[e.Name]; dup {
			errs = append(errs, ValidationError{
				Entity:  e.Name,
				Field:   "name",
				Message: fmt.Sprintf("duplicate entity %q", e.Name),
				Code:    ErrDuplicateName,
			})
		}
		byName[e.Name] = e

		if other, dup := targets[e.Target]; dup && e.Target != "" {
			errs = append(errs, ValidationError{
				Entity:  e.Name,
				Field:   "target",
				Message: fmt.Sprintf("target %q is already used by entity %q", e.Target, other),
				Code:    ErrDuplicateName,
			})
		}
		targets[e.Target] = e.Name
	}

	for i := range entities {
		e := &entities[i]
		for j, p := range e.Parents {
			field := fmt.Sprintf("parents[%d].entity", j)
			parent, ok := byName[p.Entity]
			if !ok {
				errs = append(errs, ValidationError{
					Entity:  e.Name,
					Field:   field,
					Message: fmt.Sprintf("parent entity %q is not defined", p.Entity),
					Code:    ErrUnknownParent,
				})
				continue
			}
			if e.Kind == ir.KindDimension && parent.Kind == ir.KindFact {
				errs = append(errs, ValidationError{
					Entity:  e.Name,
					Field:   field,
					Message: fmt.Sprintf("dimension cannot reference fact %q", p.Entity),
					Code:    ErrFactAsParent,
				})
			}
		}
	}

	for _, c := range AnalyzeCycles(entities) {
		errs = append(errs, ValidationError{
			Field:   "parents",
			Message: c.Message,
			Code:    ErrDependencyCycle,
		})
	}

	return errs
}
