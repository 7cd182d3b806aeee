package queryir

import "fmt"

// Validate checks the structural rules a backend relies on and returns
// every violation found. Validate is a pure function with no side effects.
//
// Rules:
//  1. An Extract has at least one source and one column
//  2. Every joined source has an ON condition and a valid join kind
//  3. Every parent lookup has a table and at least one match column
//  4. A KeyLookup has key columns and every key tuple matches their width
func Validate(query Query) []string {
	v := &validator{problems: []string{}}
	v.validateQuery(query)
	return v.problems
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case *Extract:
		v.validateExtract(query)
	case *KeyLookup:
		v.validateKeyLookup(query)
	case nil:
		v.addProblem("query is nil")
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateExtract(q *Extract) {
	if len(q.Sources) == 0 {
		v.addProblem("extract has no source tables")
	}
	if len(q.Columns) == 0 {
		v.addProblem("extract selects no columns")
	}
	for i, s := range q.Sources {
		if s.Table == "" || s.Alias == "" {
			v.addProblem("source %d needs a table and alias", i)
		}
		if i == 0 {
			continue
		}
		if s.On == "" {
			v.addProblem("source %s joined without ON condition", s.Alias)
		}
		if s.Join != "inner" && s.Join != "left" {
			v.addProblem("source %s has invalid join kind %q", s.Alias, s.Join)
		}
	}
	for _, p := range q.Parents {
		if p.Table == "" {
			v.addProblem("parent lookup %s has no target table (unlinked parent)", p.Alias)
		}
		if len(p.Match) == 0 {
			v.addProblem("parent lookup %s has no match columns", p.Alias)
		}
	}
	if q.Filter != nil {
		v.validatePredicate(q.Filter)
	}
}

func (v *validator) validateKeyLookup(q *KeyLookup) {
	if q.Table == "" {
		v.addProblem("key lookup has no table")
	}
	if len(q.KeyColumns) == 0 {
		v.addProblem("key lookup has no key columns")
	}
	v.validatePredicate(KeyIn{Columns: q.KeyColumns, Keys: q.Keys})
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case ModifiedSince:
		if pred.Since == "" {
			v.addProblem("modified-since predicate has no time")
		}
	case KeyIn:
		for i, k := range pred.Keys {
			if len(k) != len(pred.Columns) {
				v.addProblem("key %d has %d values for %d columns", i, len(k), len(pred.Columns))
			}
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}
