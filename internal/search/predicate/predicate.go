// internal/search/predicate/predicate.go

// Package predicate holds the structured form of a listing search condition.
// Nodes are plain values; they are rendered to parameterized SQL by Render and
// are never mutated once built.
package predicate

// Kind tags each node type.
type Kind string

const (
	KindEquals        Kind = "equals"
	KindInList        Kind = "in_list"
	KindRange         Kind = "range"
	KindCompare       Kind = "compare"
	KindColumnCompare Kind = "column_compare"
	KindLike          Kind = "like"
	KindNotEmpty      Kind = "not_empty"
	KindAnd           Kind = "and"
	KindOr            Kind = "or"
	KindRaw           Kind = "raw"
)

// Operator is a comparison operator accepted by Compare and ColumnCompare.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
)

var validOperators = map[Operator]bool{
	OpGreater: true, OpGreaterEqual: true, OpLess: true, OpLessEqual: true,
}

// Node is any predicate node.
type Node interface {
	Kind() Kind
}

// Equals matches a column against a single value. Fold compares
// case-insensitively.
type Equals struct {
	Column string
	Value  interface{}
	Fold   bool
}

// InList matches a column against a set of values.
type InList struct {
	Column string
	Values []interface{}
}

// Range applies inclusive bounds to a column. A nil bound is open.
type Range struct {
	Column string
	Min    interface{}
	Max    interface{}
}

// Compare compares a column with a value.
type Compare struct {
	Column string
	Op     Operator
	Value  interface{}
}

// ColumnCompare compares two columns of the same row.
type ColumnCompare struct {
	Left  string
	Op    Operator
	Right string
}

// Like is a case-insensitive substring match. Term is matched literally.
type Like struct {
	Column string
	Term   string
}

// NotEmpty matches rows where a text column is present and non-blank.
type NotEmpty struct {
	Column string
}

// And is a conjunction.
type And struct {
	Nodes []Node
}

// Or is a disjunction.
type Or struct {
	Nodes []Node
}

// Raw is an opaque condition produced outside the compiler, typically by
// the geocoding collaborator. Expr uses ? for each entry of Args.
type Raw struct {
	Expr string
	Args []interface{}
}

func (Equals) Kind() Kind        { return KindEquals }
func (InList) Kind() Kind        { return KindInList }
func (Range) Kind() Kind         { return KindRange }
func (Compare) Kind() Kind       { return KindCompare }
func (ColumnCompare) Kind() Kind { return KindColumnCompare }
func (Like) Kind() Kind          { return KindLike }
func (NotEmpty) Kind() Kind      { return KindNotEmpty }
func (And) Kind() Kind           { return KindAnd }
func (Or) Kind() Kind            { return KindOr }
func (Raw) Kind() Kind           { return KindRaw }

// AllOf builds a conjunction, flattening nested conjunctions and dropping nil
// nodes. A single remaining node is returned as is.
func AllOf(nodes ...Node) Node {
	flat := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch v := n.(type) {
		case nil:
			continue
		case And:
			flat = append(flat, v.Nodes...)
		default:
			flat = append(flat, n)
		}
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return And{Nodes: flat}
}

// AnyOf builds a disjunction, flattening nested disjunctions. A single
// remaining node is returned as is.
func AnyOf(nodes ...Node) Node {
	flat := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch v := n.(type) {
		case nil:
			continue
		case Or:
			flat = append(flat, v.Nodes...)
		default:
			flat = append(flat, n)
		}
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return Or{Nodes: flat}
}

// Walk visits n and its children depth first. Returning false from fn skips
// the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case And:
		for _, c := range v.Nodes {
			Walk(c, fn)
		}
	case Or:
		for _, c := range v.Nodes {
			Walk(c, fn)
		}
	}
}

// Conjuncts returns the top-level terms of n: the children of an And, or n
// itself.
func Conjuncts(n Node) []Node {
	if n == nil {
		return nil
	}
	if and, ok := n.(And); ok {
		return and.Nodes
	}
	return []Node{n}
}
