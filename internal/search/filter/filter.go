// internal/search/filter/filter.go

// Package filter compiles untrusted listing search parameters into a single
// predicate over the listings table plus an ordering directive.
//
// Compilation is pure: it performs no I/O, reads no clock and never mutates
// its input. The same input always yields an equal Result.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"listing-workers/internal/search/predicate"
	"listing-workers/internal/search/sortkey"
	"listing-workers/internal/search/status"
)

const (
	// SchoolOverfetchMultiplier is applied when school criteria are present,
	// since no listing column encodes school quality.
	SchoolOverfetchMultiplier = 10

	SquareFeetPerAcre = 43560.0

	// lot sizes above this are taken to be square feet
	lotSizeSquareFeetThreshold = 100.0

	schoolKeyPrefix = "school_"
)

// ErrInvalidFilter is the sentinel behind every ValidationError.
var ErrInvalidFilter = errors.New("INVALID_FILTER_FORMAT")

// RawInput is the flat, untrusted parameter mapping. Values may be strings,
// numbers, booleans or lists, as decoded from JSON or query strings.
type RawInput map[string]interface{}

// ValidationError reports structurally malformed input for one field.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFilter
}

func invalid(field string, value interface{}, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// Result is the compiled form of one search request. It is not modified after
// Compile returns.
type Result struct {
	Predicate           predicate.Node
	OrderBy             sortkey.Order
	IsDirectLookup      bool
	HasSchoolFilters    bool
	SchoolCriteria      map[string]interface{}
	OverfetchMultiplier int

	// IncludesArchived is set when the predicate can match archived rows:
	// Sold was requested, or a direct lookup bypassed the status filter.
	IncludesArchived bool

	// Polygon is the parsed polygon filter, nil when none was given.
	Polygon orb.Polygon
}

// Where renders the predicate with placeholders starting at $start.
func (r *Result) Where(start int) (string, []interface{}, error) {
	return predicate.Render(r.Predicate, start)
}

// Compiler turns RawInput into a Result. The zero value is ready to use and
// safe for concurrent use.
type Compiler struct{}

func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile is a convenience for NewCompiler().Compile(raw).
func Compile(raw RawInput) (*Result, error) {
	return NewCompiler().Compile(raw)
}

// Compile builds the Result for raw. Keys are handled in a fixed order:
// direct lookup, status, facets, spatial, school capture, sort. A direct
// lookup suppresses everything but the sort.
func (c *Compiler) Compile(raw RawInput) (*Result, error) {
	if raw == nil {
		raw = RawInput{}
	}

	result := &Result{
		OverfetchMultiplier: 1,
		OrderBy:             sortkey.Resolve(stringOrEmpty(raw["sort"])),
	}

	if lookup := directLookup(raw); lookup != nil {
		result.Predicate = lookup
		result.IsDirectLookup = true
		result.IncludesArchived = true
		return result, nil
	}

	nodes := []predicate.Node{status.Resolve(raw["status"])}
	result.IncludesArchived = status.IncludesArchived(raw["status"])

	for _, f := range facets {
		node, err := f.build(raw)
		if err != nil {
			return nil, err
		}
		if node != nil {
			nodes = append(nodes, node)
		}
	}

	spatial, polygon, err := spatialConditions(raw)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, spatial...)
	result.Polygon = polygon

	if criteria := schoolCriteria(raw); len(criteria) > 0 {
		result.SchoolCriteria = criteria
		result.HasSchoolFilters = true
		result.OverfetchMultiplier = SchoolOverfetchMultiplier
	}

	result.Predicate = predicate.And{Nodes: nodes}
	return result, nil
}

// directLookup returns the identity condition, or nil. MLS number wins over
// address.
func directLookup(raw RawInput) predicate.Node {
	if id, ok := stringValue(raw["mls_number"]); ok {
		return predicate.Equals{Column: "listing_id", Value: id}
	}
	if addr, ok := stringValue(raw["address"]); ok {
		return predicate.Equals{Column: "unparsed_address", Value: addr, Fold: true}
	}
	return nil
}

// schoolCriteria copies every school_* key verbatim. Nil and blank values
// count as absent.
func schoolCriteria(raw RawInput) map[string]interface{} {
	var out map[string]interface{}
	for k, v := range raw {
		if !strings.HasPrefix(k, schoolKeyPrefix) || isBlank(v) {
			continue
		}
		if out == nil {
			out = make(map[string]interface{})
		}
		out[k] = v
	}
	return out
}

// toAcres applies lot size unit detection.
func toAcres(v float64) float64 {
	if v > lotSizeSquareFeetThreshold {
		return v / SquareFeetPerAcre
	}
	return v
}
