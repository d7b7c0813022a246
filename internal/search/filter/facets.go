// internal/search/filter/facets.go
package filter

import (
	"math"

	"listing-workers/internal/models"
	"listing-workers/internal/search/predicate"
)

type facet struct {
	name  string
	build func(raw RawInput) (predicate.Node, error)
}

// facets in compilation order. The order only affects the shape of the
// rendered SQL, never its meaning.
var facets = []facet{
	{"city", inListFacet("city", "city")},
	{"zip", inListFacet("zip", "postal_code")},
	{"neighborhood", neighborhoodFacet},
	{"street_name", containsFacet("street_name", "street_name")},
	{"property_type", equalsFacet("property_type", "property_type")},
	{"property_sub_type", equalsFacet("property_sub_type", "property_sub_type")},
	{"price", rangeFacet("min_price", "max_price", "list_price", decimalBound)},
	{"price_reduced", flagFacet("price_reduced", predicate.ColumnCompare{
		Left: "original_list_price", Op: predicate.OpGreater, Right: "list_price",
	})},
	{"beds", minimumFacet("beds", "bedrooms_total", wholeMinimum)},
	{"baths", minimumFacet("baths", "bathrooms_total", decimalBound)},
	{"sqft", rangeFacet("sqft_min", "sqft_max", "living_area", decimalBound)},
	{"lot_size", minimumFacet("lot_size_min", "lot_size_acres", func(v float64) (interface{}, bool) {
		return toAcres(v), true
	})},
	{"year_built", rangeFacet("year_built_min", "year_built_max", "year_built", nil)},
	{"dom", rangeFacet("min_dom", "max_dom", "days_on_market", nil)},
	{"new_listing_days", newListingFacet},
	{"garage_spaces", minimumFacet("garage_spaces_min", "garage_spaces", wholeMinimum)},
	{"parking_total", minimumFacet("parking_total_min", "parking_total", wholeMinimum)},
	{"has_virtual_tour", flagFacet("has_virtual_tour", predicate.NotEmpty{Column: "virtual_tour_url"})},
	{"has_garage", flagFacet("has_garage", predicate.Compare{
		Column: "garage_spaces", Op: predicate.OpGreater, Value: int64(0),
	})},
	{"has_fireplace", flagFacet("has_fireplace", predicate.Compare{
		Column: "fireplaces_total", Op: predicate.OpGreater, Value: int64(0),
	})},
	{"open_house_only", flagFacet("open_house_only", OpenHouseCondition)},
	{"exclusive_only", flagFacet("exclusive_only", ExclusiveCondition)},
}

var (
	// OpenHouseCondition matches listings with an open house today or later.
	OpenHouseCondition = predicate.Raw{
		Expr: `"listing_id" IN (SELECT listing_id FROM open_houses WHERE open_house_date >= CURRENT_DATE)`,
	}

	// ExclusiveCondition matches internally originated listings: purely
	// numeric identifiers below the watermark.
	ExclusiveCondition = predicate.Raw{
		Expr: `CASE WHEN "listing_id" ~ ? THEN CAST("listing_id" AS NUMERIC) < ? ELSE FALSE END`,
		Args: []interface{}{"^[0-9]+$", models.ExclusiveListingWatermark},
	}
)

func inListFacet(key, column string) func(RawInput) (predicate.Node, error) {
	return func(raw RawInput) (predicate.Node, error) {
		values := stringList(raw[key])
		if len(values) == 0 {
			return nil, nil
		}
		list := make([]interface{}, len(values))
		for i, v := range values {
			list[i] = v
		}
		return predicate.InList{Column: column, Values: list}, nil
	}
}

func equalsFacet(key, column string) func(RawInput) (predicate.Node, error) {
	return func(raw RawInput) (predicate.Node, error) {
		values := stringList(raw[key])
		switch len(values) {
		case 0:
			return nil, nil
		case 1:
			return predicate.Equals{Column: column, Value: values[0]}, nil
		}
		list := make([]interface{}, len(values))
		for i, v := range values {
			list[i] = v
		}
		return predicate.InList{Column: column, Values: list}, nil
	}
}

func containsFacet(key, column string) func(RawInput) (predicate.Node, error) {
	return func(raw RawInput) (predicate.Node, error) {
		term, ok := stringValue(raw[key])
		if !ok {
			return nil, nil
		}
		return predicate.Like{Column: column, Term: term}, nil
	}
}

func neighborhoodFacet(raw RawInput) (predicate.Node, error) {
	term, ok := stringValue(raw["neighborhood"])
	if !ok {
		return nil, nil
	}
	return predicate.Or{Nodes: []predicate.Node{
		predicate.Like{Column: "subdivision_name", Term: term},
		predicate.Like{Column: "mls_area_major", Term: term},
		predicate.Like{Column: "mls_area_minor", Term: term},
	}}, nil
}

func flagFacet(key string, node predicate.Node) func(RawInput) (predicate.Node, error) {
	return func(raw RawInput) (predicate.Node, error) {
		if !truthy(raw[key]) {
			return nil, nil
		}
		return node, nil
	}
}

// bound converts a parsed value to the argument bound into the query,
// reporting false when the value cannot be represented. A nil bound function
// keeps integer columns integral: lower bounds round up and upper bounds
// round down.
type bound func(v float64) (interface{}, bool)

// wholeLimit is 2^63; rounded values at or beyond it do not fit an int64.
const wholeLimit = float64(1 << 63)

func decimalBound(v float64) (interface{}, bool) { return v, true }

func wholeMinimum(v float64) (interface{}, bool) { return whole(math.Ceil(v)) }

func wholeMaximum(v float64) (interface{}, bool) { return whole(math.Floor(v)) }

func whole(v float64) (interface{}, bool) {
	if v >= wholeLimit || v < -wholeLimit {
		return nil, false
	}
	return int64(v), true
}

func rangeFacet(minKey, maxKey, column string, conv bound) func(RawInput) (predicate.Node, error) {
	minConv, maxConv := conv, conv
	if conv == nil {
		minConv, maxConv = wholeMinimum, wholeMaximum
	}
	return func(raw RawInput) (predicate.Node, error) {
		lo, hasLo, err := number(minKey, raw[minKey])
		if err != nil {
			return nil, err
		}
		hi, hasHi, err := number(maxKey, raw[maxKey])
		if err != nil {
			return nil, err
		}
		if !hasLo && !hasHi {
			return nil, nil
		}
		if hasLo && hasHi && lo > hi {
			return nil, invalid(minKey, raw[minKey], "%v exceeds %s %v", lo, maxKey, hi)
		}

		r := predicate.Range{Column: column}
		if hasLo {
			v, ok := minConv(lo)
			if !ok {
				return nil, invalid(minKey, raw[minKey], "out of range")
			}
			r.Min = v
		}
		if hasHi {
			v, ok := maxConv(hi)
			if !ok {
				return nil, invalid(maxKey, raw[maxKey], "out of range")
			}
			r.Max = v
		}
		return r, nil
	}
}

func minimumFacet(key, column string, conv bound) func(RawInput) (predicate.Node, error) {
	return func(raw RawInput) (predicate.Node, error) {
		v, ok, err := number(key, raw[key])
		if err != nil || !ok {
			return nil, err
		}
		value, ok := conv(v)
		if !ok {
			return nil, invalid(key, raw[key], "out of range")
		}
		return predicate.Compare{Column: column, Op: predicate.OpGreaterEqual, Value: value}, nil
	}
}

func newListingFacet(raw RawInput) (predicate.Node, error) {
	days, ok, err := number("new_listing_days", raw["new_listing_days"])
	if err != nil || !ok {
		return nil, err
	}
	if days < 0 {
		return nil, invalid("new_listing_days", raw["new_listing_days"], "must not be negative")
	}
	// make_interval takes an int4 day count
	if days > math.MaxInt32 {
		return nil, invalid("new_listing_days", raw["new_listing_days"], "out of range")
	}
	return predicate.Raw{
		Expr: `"listing_contract_date" >= CURRENT_DATE - make_interval(days => ?)`,
		Args: []interface{}{int64(math.Ceil(days))},
	}, nil
}

// FacetNames lists the facets in compilation order.
func FacetNames() []string {
	names := make([]string, len(facets))
	for i, f := range facets {
		names[i] = f.name
	}
	return names
}
