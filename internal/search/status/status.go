// internal/search/status/status.go

// Package status maps user-facing listing status tokens to the archived flag
// and standard status values stored on the listings table.
package status

import (
	"sort"
	"strings"

	"listing-workers/internal/search/predicate"
)

const (
	ColumnArchived = "is_archived"
	ColumnStatus   = "standard_status"
)

// Category is one row of the status taxonomy.
type Category struct {
	Name     string
	Archived bool
	Statuses []string
}

var (
	active = Category{Name: "Active", Archived: false, Statuses: []string{"Active"}}
	// Pending and Under Agreement share one category.
	pending = Category{Name: "Pending", Archived: false, Statuses: []string{"Pending", "Active Under Contract"}}
	sold    = Category{Name: "Sold", Archived: true, Statuses: []string{"Closed"}}
)

var categories = map[string]Category{
	"active":          active,
	"pending":         pending,
	"under agreement": pending,
	"sold":            sold,
}

// Default is used for absent, empty or unrecognised tokens.
func Default() Category {
	return active
}

// Tokens lists the recognised status tokens in sorted order.
func Tokens() []string {
	out := make([]string, 0, len(categories))
	for t := range categories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Lookup finds a category by token, case-insensitively.
func Lookup(token string) (Category, bool) {
	c, ok := categories[normalize(token)]
	if ok {
		c.Statuses = append([]string(nil), c.Statuses...)
	}
	return c, ok
}

// Categories resolves raw (a comma-separated string or a list) into distinct
// categories in input order. Unrecognised entries fall back to Active.
func Categories(raw interface{}) []Category {
	tokens := tokens(raw)
	out := make([]Category, 0, len(tokens))
	seen := make(map[string]bool)
	for _, t := range tokens {
		c, ok := Lookup(t)
		if !ok {
			c = Default()
		}
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		out = append(out, Default())
	}
	return out
}

// Resolve builds the status condition for raw. Each category contributes
// (archived flag AND status in set); several categories are OR-combined.
func Resolve(raw interface{}) predicate.Node {
	cats := Categories(raw)
	clauses := make([]predicate.Node, 0, len(cats))
	for _, c := range cats {
		clauses = append(clauses, c.Clause())
	}
	return predicate.AnyOf(clauses...)
}

// IncludesArchived reports whether raw asks for archived (sold) listings.
func IncludesArchived(raw interface{}) bool {
	for _, c := range Categories(raw) {
		if c.Archived {
			return true
		}
	}
	return false
}

// Clause is the condition selecting listings of this category.
func (c Category) Clause() predicate.Node {
	values := make([]interface{}, len(c.Statuses))
	for i, s := range c.Statuses {
		values[i] = s
	}
	return predicate.And{Nodes: []predicate.Node{
		predicate.Equals{Column: ColumnArchived, Value: c.Archived},
		predicate.InList{Column: ColumnStatus, Values: values},
	}}
}

func tokens(raw interface{}) []string {
	var out []string
	switch v := raw.(type) {
	case string:
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	case []string:
		for _, s := range v {
			out = append(out, tokens(s)...)
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, tokens(s)...)
			}
		}
	}
	return out
}

func normalize(token string) string {
	return strings.Join(strings.Fields(strings.ToLower(token)), " ")
}
