package ir

// Kind is the orchestration phase an entity belongs to.
type Kind string

const (
	KindDimension Kind = "dimension"
	KindFact      Kind = "fact"
)

// DefaultPhaseOrder loads every dimension before any fact.
var DefaultPhaseOrder = []Kind{KindDimension, KindFact}

// ValidKinds defines allowed entity kinds.
var ValidKinds = map[Kind]bool{
	KindDimension: true,
	KindFact:      true,
}

// Policy is the mutation policy applied when a candidate matches a stored row.
type Policy string

const (
	// PolicyMutable overwrites attributes on hash change.
	PolicyMutable Policy = "mutable"
	// PolicyImmutable appends only; the closing transition is the only legal update.
	PolicyImmutable Policy = "immutable"
)

// ValidPolicies defines allowed mutation policies.
var ValidPolicies = map[Policy]bool{
	PolicyMutable:   true,
	PolicyImmutable: true,
}

// AttrType is the declared type of an entity attribute.
type AttrType string

const (
	TypeString    AttrType = "string"
	TypeInt       AttrType = "int"
	TypeBool      AttrType = "bool"
	TypeDecimal   AttrType = "decimal"
	TypeDate      AttrType = "date"
	TypeTimestamp AttrType = "timestamp"
	TypeRef       AttrType = "ref" // parent surrogate key
)

// ValidTypes defines the allowed attribute types.
// NO "float" - fractional numbers are declared as decimal.
var ValidTypes = map[AttrType]bool{
	TypeString:    true,
	TypeInt:       true,
	TypeBool:      true,
	TypeDecimal:   true,
	TypeDate:      true,
	TypeTimestamp: true,
	TypeRef:       true,
}

// SQLType returns the column affinity used for the attribute in target tables.
// Dates and timestamps are TEXT so the driver hands them back verbatim.
func (t AttrType) SQLType() string {
	switch t {
	case TypeInt, TypeBool, TypeRef:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// JoinKind selects inner or left join semantics.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
)

// ValidJoins defines allowed join kinds.
var ValidJoins = map[JoinKind]bool{
	JoinInner: true,
	JoinLeft:  true,
}

// Entity is the descriptor that parametrizes the generic load engine.
// One Entity replaces one bespoke loader.
type Entity struct {
	Name         string      `json:"name"` // also the process name for watermark and run log
	Kind         Kind        `json:"kind"`
	Policy       Policy      `json:"policy"`
	Target       string      `json:"target"`
	Key          []string    `json:"key"`
	Attributes   []Attribute `json:"attributes"`
	Hash         []string    `json:"hash"` // ordered hash subset
	Parents      []ParentRef `json:"parents,omitempty"`
	Source       SourceSpec  `json:"source"`
	TrackParents bool        `json:"track_parents,omitempty"`
}

// Attribute is one business attribute of an entity.
// Expr is a SQL expression over the source aliases; ref attributes have no
// Expr, their value comes from the matching ParentRef.
type Attribute struct {
	Name string   `json:"name"`
	Type AttrType `json:"type"`
	Expr string   `json:"expr,omitempty"`
}

// ParentRef resolves a ref attribute to the surrogate dwh_id of a row in
// a parent entity's target table.
type ParentRef struct {
	Attribute string        `json:"attribute"`
	Entity    string        `json:"entity"`
	Target    string        `json:"target"` // filled in by the compiler
	Match     []MatchClause `json:"match"`
	Join      JoinKind      `json:"join"`
}

// MatchClause equates a parent target column with a source expression.
type MatchClause struct {
	Column string `json:"column"`
	Expr   string `json:"expr"`
}

// SourceSpec is the declarative join specification over source tables.
type SourceSpec struct {
	From  TableRef     `json:"from"`
	Joins []SourceJoin `json:"joins,omitempty"`
}

// TableRef names a source table and the alias expressions use for it.
// Every source table carries modified_at and valid_to columns unless
// overridden.
type TableRef struct {
	Table      string `json:"table"`
	Alias      string `json:"alias"`
	ModifiedAt string `json:"modified_at,omitempty"` // default "modified_at"
	ValidTo    string `json:"valid_to,omitempty"`    // default "valid_to"; "-" disables
}

// SourceJoin joins one more source table into the extraction.
type SourceJoin struct {
	TableRef
	On   string   `json:"on"`
	Kind JoinKind `json:"kind"`
}

// Default source bookkeeping column names.
const (
	DefaultModifiedAtColumn = "modified_at"
	DefaultValidToColumn    = "valid_to"
	NoColumn                = "-"
)

// ModifiedAtColumn returns the effective modified-at column of a source table.
func (r TableRef) ModifiedAtColumn() string {
	if r.ModifiedAt == "" {
		return DefaultModifiedAtColumn
	}
	return r.ModifiedAt
}

// ValidToColumn returns the effective end-marker column, or "" when the
// table carries none.
func (r TableRef) ValidToColumn() string {
	switch r.ValidTo {
	case "":
		return DefaultValidToColumn
	case NoColumn:
		return ""
	default:
		return r.ValidTo
	}
}

// Tables returns every source table in join order, starting with From.
func (s SourceSpec) Tables() []TableRef {
	out := make([]TableRef, 0, len(s.Joins)+1)
	out = append(out, s.From)
	for _, j := range s.Joins {
		out = append(out, j.TableRef)
	}
	return out
}

// Attribute returns the named attribute.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Parent returns the parent ref resolving the named ref attribute.
func (e *Entity) Parent(attribute string) (ParentRef, bool) {
	for _, p := range e.Parents {
		if p.Attribute == attribute {
			return p, true
		}
	}
	return ParentRef{}, false
}

// AttributeIndex returns the position of the named attribute, or -1.
func (e *Entity) AttributeIndex(name string) int {
	for i, a := range e.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// KeyIndexes returns attribute positions of the natural key columns.
func (e *Entity) KeyIndexes() []int {
	return e.indexes(e.Key)
}

// HashIndexes returns attribute positions of the hash columns in hash order.
func (e *Entity) HashIndexes() []int {
	return e.indexes(e.Hash)
}

func (e *Entity) indexes(names []string) []int {
	out := make([]int, len(names))
	for i, n := range names {
		out[i] = e.AttributeIndex(n)
	}
	return out
}

// ParentEntities returns the distinct parent entity names in declaration order.
func (e *Entity) ParentEntities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range e.Parents {
		if !seen[p.Entity] {
			seen[p.Entity] = true
			out = append(out, p.Entity)
		}
	}
	return out
}
