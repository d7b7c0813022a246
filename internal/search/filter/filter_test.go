package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-workers/internal/search/predicate"
	"listing-workers/internal/search/sortkey"
	"listing-workers/internal/search/status"
)

var activeClause = status.Resolve(nil)

func conjuncts(t *testing.T, r *Result) []predicate.Node {
	t.Helper()
	and, ok := r.Predicate.(predicate.And)
	require.True(t, ok, "predicate is %T", r.Predicate)
	return and.Nodes
}

func TestCompile_Defaults(t *testing.T) {
	r, err := Compile(RawInput{})
	require.NoError(t, err)

	assert.Equal(t, []predicate.Node{activeClause}, conjuncts(t, r))
	assert.Equal(t, sortkey.Order{Column: "listing_contract_date", Direction: sortkey.Desc}, r.OrderBy)
	assert.False(t, r.IsDirectLookup)
	assert.False(t, r.HasSchoolFilters)
	assert.Nil(t, r.SchoolCriteria)
	assert.Equal(t, 1, r.OverfetchMultiplier)
	assert.False(t, r.IncludesArchived)
	assert.Nil(t, r.Polygon)

	nilInput, err := Compile(nil)
	require.NoError(t, err)
	assert.Equal(t, r, nilInput)
}

func TestCompile_Idempotent(t *testing.T) {
	raw := RawInput{
		"status":       "active,sold",
		"city":         "Boston, Cambridge",
		"min_price":    "500000",
		"beds":         3.0,
		"polygon":      `[[42.35,-71.09],[42.35,-71.07],[42.34,-71.07]]`,
		"school_grade": "A",
		"sort":         "price_desc",
	}
	first, err := Compile(raw)
	require.NoError(t, err)
	second, err := Compile(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Boston, Cambridge", raw["city"], "input is not modified")
}

func TestCompile_DirectLookup(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawInput
		expected predicate.Node
	}{
		{
			name:     "mls number suppresses other filters",
			raw:      RawInput{"mls_number": "73012345", "city": "Boston", "beds": 3, "status": "sold", "school_grade": "A"},
			expected: predicate.Equals{Column: "listing_id", Value: "73012345"},
		},
		{
			name:     "numeric mls number",
			raw:      RawInput{"mls_number": 73012345.0},
			expected: predicate.Equals{Column: "listing_id", Value: "73012345"},
		},
		{
			name:     "address",
			raw:      RawInput{"address": " 12 Beacon St, Boston MA ", "zip": "02108"},
			expected: predicate.Equals{Column: "unparsed_address", Value: "12 Beacon St, Boston MA", Fold: true},
		},
		{
			name:     "mls number wins over address",
			raw:      RawInput{"mls_number": "1", "address": "12 Beacon St"},
			expected: predicate.Equals{Column: "listing_id", Value: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compile(tt.raw)
			require.NoError(t, err)
			assert.True(t, r.IsDirectLookup)
			assert.Equal(t, tt.expected, r.Predicate)
			assert.False(t, r.HasSchoolFilters)
			assert.Equal(t, 1, r.OverfetchMultiplier)
		})
	}
}

func TestCompile_DirectLookupIgnoresInvalidFilters(t *testing.T) {
	r, err := Compile(RawInput{"mls_number": "42", "polygon": "not json", "min_price": "abc"})
	require.NoError(t, err)
	assert.True(t, r.IsDirectLookup)
}

func TestCompile_BlankDirectLookupKeys(t *testing.T) {
	r, err := Compile(RawInput{"mls_number": "  ", "address": "", "city": "Boston"})
	require.NoError(t, err)
	assert.False(t, r.IsDirectLookup)
	assert.Len(t, conjuncts(t, r), 2)
}

func TestCompile_Status(t *testing.T) {
	r, err := Compile(RawInput{"status": "Pending"})
	require.NoError(t, err)
	assert.Equal(t, status.Resolve("pending"), conjuncts(t, r)[0])
	assert.False(t, r.IncludesArchived)

	r, err = Compile(RawInput{"status": []interface{}{"active", "sold"}})
	require.NoError(t, err)
	assert.Equal(t, status.Resolve("active,sold"), conjuncts(t, r)[0])
	assert.True(t, r.IncludesArchived)

	r, err = Compile(RawInput{"status": "bogus"})
	require.NoError(t, err)
	assert.Equal(t, activeClause, conjuncts(t, r)[0])
}

func TestCompile_Facets(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawInput
		expected predicate.Node
	}{
		{"city", RawInput{"city": "Boston,Cambridge"},
			predicate.InList{Column: "city", Values: []interface{}{"Boston", "Cambridge"}}},
		{"zip", RawInput{"zip": []interface{}{"02116", "02115"}},
			predicate.InList{Column: "postal_code", Values: []interface{}{"02116", "02115"}}},
		{"neighborhood", RawInput{"neighborhood": "Back Bay"},
			predicate.Or{Nodes: []predicate.Node{
				predicate.Like{Column: "subdivision_name", Term: "Back Bay"},
				predicate.Like{Column: "mls_area_major", Term: "Back Bay"},
				predicate.Like{Column: "mls_area_minor", Term: "Back Bay"},
			}}},
		{"street name", RawInput{"street_name": "Beacon"}, predicate.Like{Column: "street_name", Term: "Beacon"}},
		{"property type", RawInput{"property_type": "Residential"},
			predicate.Equals{Column: "property_type", Value: "Residential"}},
		{"property sub type list", RawInput{"property_sub_type": "Condominium,Townhouse"},
			predicate.InList{Column: "property_sub_type", Values: []interface{}{"Condominium", "Townhouse"}}},
		{"price range", RawInput{"min_price": "$500,000", "max_price": 900000.0},
			predicate.Range{Column: "list_price", Min: 500000.0, Max: 900000.0}},
		{"min price only", RawInput{"min_price": 500000},
			predicate.Range{Column: "list_price", Min: 500000.0}},
		{"max price only", RawInput{"max_price": "900000", "min_price": ""},
			predicate.Range{Column: "list_price", Max: 900000.0}},
		{"price reduced", RawInput{"price_reduced": "true"},
			predicate.ColumnCompare{Left: "original_list_price", Op: predicate.OpGreater, Right: "list_price"}},
		{"beds", RawInput{"beds": "3"},
			predicate.Compare{Column: "bedrooms_total", Op: predicate.OpGreaterEqual, Value: int64(3)}},
		{"fractional beds round up", RawInput{"beds": 2.5},
			predicate.Compare{Column: "bedrooms_total", Op: predicate.OpGreaterEqual, Value: int64(3)}},
		{"largest representable beds", RawInput{"beds": 9.2e18},
			predicate.Compare{Column: "bedrooms_total", Op: predicate.OpGreaterEqual, Value: int64(9.2e18)}},
		{"baths", RawInput{"baths": 1.5},
			predicate.Compare{Column: "bathrooms_total", Op: predicate.OpGreaterEqual, Value: 1.5}},
		{"sqft", RawInput{"sqft_min": 1200, "sqft_max": "2,400"},
			predicate.Range{Column: "living_area", Min: 1200.0, Max: 2400.0}},
		{"year built", RawInput{"year_built_min": "1990", "year_built_max": 2010.0},
			predicate.Range{Column: "year_built", Min: int64(1990), Max: int64(2010)}},
		{"days on market", RawInput{"min_dom": 1, "max_dom": 30},
			predicate.Range{Column: "days_on_market", Min: int64(1), Max: int64(30)}},
		{"new listings", RawInput{"new_listing_days": "7"},
			predicate.Raw{Expr: `"listing_contract_date" >= CURRENT_DATE - make_interval(days => ?)`, Args: []interface{}{int64(7)}}},
		{"garage spaces", RawInput{"garage_spaces_min": 2},
			predicate.Compare{Column: "garage_spaces", Op: predicate.OpGreaterEqual, Value: int64(2)}},
		{"parking", RawInput{"parking_total_min": "1"},
			predicate.Compare{Column: "parking_total", Op: predicate.OpGreaterEqual, Value: int64(1)}},
		{"virtual tour", RawInput{"has_virtual_tour": true}, predicate.NotEmpty{Column: "virtual_tour_url"}},
		{"garage", RawInput{"has_garage": "yes"},
			predicate.Compare{Column: "garage_spaces", Op: predicate.OpGreater, Value: int64(0)}},
		{"fireplace", RawInput{"has_fireplace": 1.0},
			predicate.Compare{Column: "fireplaces_total", Op: predicate.OpGreater, Value: int64(0)}},
		{"open house", RawInput{"open_house_only": "on"}, OpenHouseCondition},
		{"exclusive", RawInput{"exclusive_only": "1"}, ExclusiveCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compile(tt.raw)
			require.NoError(t, err)
			nodes := conjuncts(t, r)
			require.Len(t, nodes, 2)
			assert.Equal(t, activeClause, nodes[0])
			assert.Equal(t, tt.expected, nodes[1])

			_, _, err = r.Where(1)
			assert.NoError(t, err)
		})
	}
}

func TestCompile_FalsyFlagsIgnored(t *testing.T) {
	for _, v := range []interface{}{false, "false", "0", "no", "", nil, 0.0, "maybe"} {
		r, err := Compile(RawInput{"has_garage": v, "open_house_only": v, "price_reduced": v})
		require.NoError(t, err)
		assert.Len(t, conjuncts(t, r), 1, "value %#v", v)
	}
}

func TestCompile_ConjunctiveComposition(t *testing.T) {
	inputs := []RawInput{
		{"city": "Boston"},
		{"beds": 3},
		{"min_price": 400000, "max_price": 800000},
		{"has_fireplace": true},
		{"neighborhood": "South End"},
		{"lot_size_min": 0.25},
		{"bounds": "42.4,42.3,-71.0,-71.1"},
	}

	combined := RawInput{}
	var expected []predicate.Node
	for _, in := range inputs {
		r, err := Compile(in)
		require.NoError(t, err)
		nodes := conjuncts(t, r)
		require.Len(t, nodes, 2)
		expected = append(expected, nodes[1])
		for k, v := range in {
			combined[k] = v
		}
	}

	r, err := Compile(combined)
	require.NoError(t, err)
	nodes := conjuncts(t, r)
	assert.Len(t, nodes, len(inputs)+1)
	for _, e := range expected {
		assert.Contains(t, nodes, e)
	}
}

func TestCompile_LotSizeUnits(t *testing.T) {
	tests := []struct {
		value interface{}
		acres float64
	}{
		{43560, 1.0},
		{"21780", 0.5},
		{0.5, 0.5},
		{100, 100},
		{100.5, 100.5 / SquareFeetPerAcre},
	}

	for _, tt := range tests {
		r, err := Compile(RawInput{"lot_size_min": tt.value})
		require.NoError(t, err)
		node := conjuncts(t, r)[1].(predicate.Compare)
		assert.Equal(t, "lot_size_acres", node.Column)
		assert.Equal(t, predicate.OpGreaterEqual, node.Op)
		assert.InDelta(t, tt.acres, node.Value.(float64), 1e-9, "value %v", tt.value)
	}
}

func TestCompile_SchoolCriteria(t *testing.T) {
	r, err := Compile(RawInput{"school_grade": "A"})
	require.NoError(t, err)
	assert.True(t, r.HasSchoolFilters)
	assert.Equal(t, map[string]interface{}{"school_grade": "A"}, r.SchoolCriteria)
	assert.Equal(t, SchoolOverfetchMultiplier, r.OverfetchMultiplier)
	assert.Equal(t, []predicate.Node{activeClause}, conjuncts(t, r), "school criteria never reach the predicate")

	r, err = Compile(RawInput{"school_rating_min": 8.0, "school_district": "Newton", "school_unknown": "x", "city": "Newton"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"school_rating_min": 8.0,
		"school_district":   "Newton",
		"school_unknown":    "x",
	}, r.SchoolCriteria)
	assert.Len(t, conjuncts(t, r), 2)

	r, err = Compile(RawInput{"city": "Boston"})
	require.NoError(t, err)
	assert.False(t, r.HasSchoolFilters)
	assert.Equal(t, 1, r.OverfetchMultiplier)

	r, err = Compile(RawInput{"school_grade": ""})
	require.NoError(t, err)
	assert.False(t, r.HasSchoolFilters)
}

func TestCompile_MultiValueEquivalence(t *testing.T) {
	forms := []RawInput{
		{"city": "Boston,Cambridge", "zip": "02116, 02139"},
		{"city": []interface{}{"Boston", "Cambridge"}, "zip": []string{"02116", "02139"}},
		{"city": []string{"Boston", "Cambridge", "Boston"}, "zip": []interface{}{"02116", " 02139 "}},
	}

	first, err := Compile(forms[0])
	require.NoError(t, err)
	for _, f := range forms[1:] {
		r, err := Compile(f)
		require.NoError(t, err)
		assert.Equal(t, first.Predicate, r.Predicate)
	}
}

func TestCompile_Sort(t *testing.T) {
	r, err := Compile(RawInput{"sort": "PRICE_ASC"})
	require.NoError(t, err)
	assert.Equal(t, sortkey.Order{Column: "list_price", Direction: sortkey.Asc}, r.OrderBy)

	r, err = Compile(RawInput{"sort": "nonsense"})
	require.NoError(t, err)
	assert.Equal(t, sortkey.Default(), r.OrderBy)

	r, err = Compile(RawInput{"mls_number": "1", "sort": "oldest"})
	require.NoError(t, err)
	assert.Equal(t, sortkey.Order{Column: "listing_contract_date", Direction: sortkey.Asc}, r.OrderBy)
}

func TestCompile_Spatial(t *testing.T) {
	r, err := Compile(RawInput{"bounds": []interface{}{42.4, 42.3, -71.0, -71.1}})
	require.NoError(t, err)
	raw, ok := conjuncts(t, r)[1].(predicate.Raw)
	require.True(t, ok)
	assert.Equal(t, []interface{}{-71.1, 42.3, -71.0, 42.4}, raw.Args)

	r, err = Compile(RawInput{"polygon": `[[42.35,-71.09],[42.35,-71.07],[42.34,-71.07]]`})
	require.NoError(t, err)
	require.NotNil(t, r.Polygon)
	assert.Len(t, r.Polygon[0], 4)
	_, ok = conjuncts(t, r)[1].(predicate.Raw)
	assert.True(t, ok)

	r, err = Compile(RawInput{"center_lat": "42.35", "center_lng": -71.06, "radius_miles": 2})
	require.NoError(t, err)
	raw, ok = conjuncts(t, r)[1].(predicate.Raw)
	require.True(t, ok)
	assert.Equal(t, []interface{}{42.35, -71.06, 42.35, 2.0}, raw.Args)
}

func TestCompile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawInput
		field string
	}{
		{"malformed polygon json", RawInput{"polygon": `[[42.3,-71.0],`}, "polygon"},
		{"polygon too small", RawInput{"polygon": `[[42.3,-71.0],[42.4,-71.1]]`}, "polygon"},
		{"non numeric bounds", RawInput{"bounds": "north,42.3,-71.0,-71.1"}, "bounds"},
		{"three bounds", RawInput{"bounds": "42.4,42.3,-71.0"}, "bounds"},
		{"inverted bounds", RawInput{"bounds": "42.3,42.4,-71.0,-71.1"}, "bounds"},
		{"bounds of wrong type", RawInput{"bounds": 42.0}, "bounds"},
		{"unparsable price", RawInput{"min_price": "cheap"}, "min_price"},
		{"min above max", RawInput{"min_price": 900000, "max_price": 500000}, "min_price"},
		{"unparsable beds", RawInput{"beds": "three"}, "beds"},
		{"boolean lot size", RawInput{"lot_size_min": true}, "lot_size_min"},
		{"negative new listing days", RawInput{"new_listing_days": -3}, "new_listing_days"},
		{"incomplete radius", RawInput{"center_lat": 42.3, "center_lng": -71.0}, "radius_miles"},
		{"zero radius", RawInput{"center_lat": 42.3, "center_lng": -71.0, "radius_miles": 0}, "radius_miles"},
		{"beds beyond int64", RawInput{"beds": 1e20}, "beds"},
		{"garage spaces beyond int64", RawInput{"garage_spaces_min": "99999999999999999999"}, "garage_spaces_min"},
		{"parking beyond int64", RawInput{"parking_total_min": -1e19}, "parking_total_min"},
		{"year built min beyond int64", RawInput{"year_built_min": 1e19}, "year_built_min"},
		{"max dom beyond int64", RawInput{"max_dom": 9.3e18}, "max_dom"},
		{"min dom below int64", RawInput{"min_dom": -1e19, "max_dom": 30}, "min_dom"},
		{"new listing days beyond int4", RawInput{"new_listing_days": 1e12}, "new_listing_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compile(tt.raw)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.True(t, errors.Is(err, ErrInvalidFilter))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.NotEmpty(t, verr.Reason)
		})
	}
}

func TestCompile_UnknownKeysIgnored(t *testing.T) {
	r, err := Compile(RawInput{"color": "blue", "page": 3})
	require.NoError(t, err)
	assert.Equal(t, []predicate.Node{activeClause}, conjuncts(t, r))
}

func TestCompile_RendersEndToEnd(t *testing.T) {
	r, err := Compile(RawInput{"city": "Boston", "beds": 2, "sort": "price_asc"})
	require.NoError(t, err)

	sql, args, err := r.Where(1)
	require.NoError(t, err)
	assert.Equal(t, `"is_archived" = $1 AND "standard_status" IN ($2) AND "city" IN ($3) AND "bedrooms_total" >= $4`, sql)
	assert.Equal(t, []interface{}{false, "Active", "Boston", int64(2)}, args)
}

func TestFacetNames(t *testing.T) {
	names := FacetNames()
	assert.Equal(t, "city", names[0])
	assert.Contains(t, names, "exclusive_only")
	assert.Len(t, names, len(facets))
}
