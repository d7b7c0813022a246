// internal/search/filter/spatial.go
package filter

import (
	"strings"

	"github.com/paulmach/orb"

	"listing-workers/internal/search/geo"
	"listing-workers/internal/search/predicate"
)

const (
	latitudeColumn   = "latitude"
	longitudeColumn  = "longitude"
	coordinateColumn = "coordinates"
)

var radiusKeys = []string{"center_lat", "center_lng", "radius_miles"}

// spatialConditions delegates bounds, polygon and radius filters to geo. The
// returned nodes are opaque and ANDed in unchanged.
func spatialConditions(raw RawInput) ([]predicate.Node, orb.Polygon, error) {
	var nodes []predicate.Node

	if v, ok := raw["bounds"]; ok && !isBlank(v) {
		node, err := boundsCondition(v)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, node)
	}

	var polygon orb.Polygon
	if v, ok := raw["polygon"]; ok && !isBlank(v) {
		p, err := geo.ParsePolygon(v)
		if err != nil {
			return nil, nil, invalid("polygon", v, "%v", err)
		}
		node, err := geo.BuildPolygonCondition(p, latitudeColumn, longitudeColumn)
		if err != nil {
			return nil, nil, invalid("polygon", v, "%v", err)
		}
		polygon = p
		nodes = append(nodes, node)
	}

	node, err := radiusCondition(raw)
	if err != nil {
		return nil, nil, err
	}
	if node != nil {
		nodes = append(nodes, node)
	}

	return nodes, polygon, nil
}

// boundsCondition accepts "north,south,east,west" or a four element list.
func boundsCondition(v interface{}) (predicate.Node, error) {
	var parts []interface{}
	switch b := v.(type) {
	case string:
		for _, p := range strings.Split(b, ",") {
			parts = append(parts, p)
		}
	case []interface{}:
		parts = b
	case []string:
		for _, p := range b {
			parts = append(parts, p)
		}
	default:
		return nil, invalid("bounds", v, "expected north,south,east,west")
	}
	if len(parts) != 4 {
		return nil, invalid("bounds", v, "expected 4 coordinates, got %d", len(parts))
	}

	coords := make([]float64, 4)
	for i, p := range parts {
		f, ok, err := number("bounds", p)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalid("bounds", v, "coordinate %d is empty", i+1)
		}
		coords[i] = f
	}

	node, err := geo.BuildSpatialBoundsCondition(coords[0], coords[1], coords[2], coords[3], coordinateColumn)
	if err != nil {
		return nil, invalid("bounds", v, "%v", err)
	}
	return node, nil
}

// radiusCondition needs all of center_lat, center_lng and radius_miles, or
// none of them.
func radiusCondition(raw RawInput) (predicate.Node, error) {
	values := make([]float64, len(radiusKeys))
	present := 0
	missing := ""
	for i, k := range radiusKeys {
		f, ok, err := number(k, raw[k])
		if err != nil {
			return nil, err
		}
		if !ok {
			if missing == "" {
				missing = k
			}
			continue
		}
		values[i] = f
		present++
	}
	switch present {
	case 0:
		return nil, nil
	case len(radiusKeys):
	default:
		return nil, invalid(missing, nil, "radius search needs center_lat, center_lng and radius_miles")
	}

	node, err := geo.BuildRadiusCondition(values[0], values[1], values[2], latitudeColumn, longitudeColumn)
	if err != nil {
		return nil, invalid("radius_miles", raw["radius_miles"], "%v", err)
	}
	return node, nil
}
