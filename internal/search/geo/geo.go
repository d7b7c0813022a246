// internal/search/geo/geo.go

// Package geo builds spatial conditions over the listings table. Every
// builder returns an opaque predicate.Raw; callers must not inspect it.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"listing-workers/internal/common/validation"
	"listing-workers/internal/search/predicate"
)

const (
	// SRID of stored coordinates (WGS 84).
	SRID = 4326

	EarthRadiusMiles = 3959.0
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidPolygon    = errors.New("invalid polygon")
	ErrInvalidRadius     = errors.New("invalid radius")
)

var polygonSchema = validation.MustSchema(`{
	"type": "array",
	"minItems": 3,
	"items": {
		"type": "array",
		"minItems": 2,
		"maxItems": 2,
		"items": [
			{"type": "number", "minimum": -90, "maximum": 90},
			{"type": "number", "minimum": -180, "maximum": 180}
		]
	}
}`)

// BuildRadiusCondition matches rows within radiusMiles of (lat, lng) by
// great-circle distance over the given latitude and longitude columns.
func BuildRadiusCondition(lat, lng, radiusMiles float64, latCol, lngCol string) (predicate.Raw, error) {
	if err := checkPoint(lat, lng); err != nil {
		return predicate.Raw{}, err
	}
	if math.IsNaN(radiusMiles) || radiusMiles <= 0 {
		return predicate.Raw{}, fmt.Errorf("%w: %v", ErrInvalidRadius, radiusMiles)
	}
	la, err := predicate.QuoteColumn(latCol)
	if err != nil {
		return predicate.Raw{}, err
	}
	ln, err := predicate.QuoteColumn(lngCol)
	if err != nil {
		return predicate.Raw{}, err
	}

	expr := fmt.Sprintf(
		"%g * acos(GREATEST(-1.0, LEAST(1.0, cos(radians(?)) * cos(radians(%s)) * cos(radians(%s) - radians(?)) + sin(radians(?)) * sin(radians(%s))))) <= ?",
		EarthRadiusMiles, la, ln, la,
	)
	return predicate.Raw{Expr: expr, Args: []interface{}{lat, lng, lat, radiusMiles}}, nil
}

// BuildSpatialBoundsCondition matches rows whose stored point lies inside the
// box. Boxes crossing the antimeridian are rejected.
func BuildSpatialBoundsCondition(maxLat, minLat, maxLng, minLng float64, coordCol string) (predicate.Raw, error) {
	if err := checkPoint(maxLat, maxLng); err != nil {
		return predicate.Raw{}, err
	}
	if err := checkPoint(minLat, minLng); err != nil {
		return predicate.Raw{}, err
	}
	if minLat > maxLat {
		return predicate.Raw{}, fmt.Errorf("%w: south %v is above north %v", ErrInvalidCoordinate, minLat, maxLat)
	}
	if minLng > maxLng {
		return predicate.Raw{}, fmt.Errorf("%w: west %v is east of %v", ErrInvalidCoordinate, minLng, maxLng)
	}
	col, err := predicate.QuoteColumn(coordCol)
	if err != nil {
		return predicate.Raw{}, err
	}

	expr := fmt.Sprintf("ST_Intersects(%s, ST_MakeEnvelope(?, ?, ?, ?, %d))", col, SRID)
	return predicate.Raw{Expr: expr, Args: []interface{}{minLng, minLat, maxLng, maxLat}}, nil
}

// BuildPolygonCondition matches rows whose (lat, lng) falls inside polygon.
func BuildPolygonCondition(polygon orb.Polygon, latCol, lngCol string) (predicate.Raw, error) {
	if len(polygon) == 0 || len(polygon[0]) < 4 {
		return predicate.Raw{}, fmt.Errorf("%w: outer ring needs at least 3 vertices", ErrInvalidPolygon)
	}
	la, err := predicate.QuoteColumn(latCol)
	if err != nil {
		return predicate.Raw{}, err
	}
	ln, err := predicate.QuoteColumn(lngCol)
	if err != nil {
		return predicate.Raw{}, err
	}

	expr := fmt.Sprintf("ST_Within(ST_SetSRID(ST_MakePoint(%s, %s), %d), ST_GeomFromText(?, %d))", ln, la, SRID, SRID)
	return predicate.Raw{Expr: expr, Args: []interface{}{wkt.MarshalString(polygon)}}, nil
}

// IsPointInPolygon reports whether (lat, lng) lies inside polygon.
func IsPointInPolygon(lat, lng float64, polygon orb.Polygon) bool {
	if len(polygon) == 0 {
		return false
	}
	return planar.PolygonContains(polygon, orb.Point{lng, lat})
}

// ParsePolygon decodes a list of [lat, lng] vertices, given either as a JSON
// string or as an already decoded list, into a closed polygon.
func ParsePolygon(raw interface{}) (orb.Polygon, error) {
	doc := raw
	if s, ok := raw.(string); ok {
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
		}
	}

	if result := polygonSchema.Validate(doc); !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolygon, result.Error())
	}

	// the schema guarantees the shape; re-encode to get uniform float pairs
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}
	var vertices [][2]float64
	if err := json.Unmarshal(b, &vertices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}

	ring := make(orb.Ring, 0, len(vertices)+1)
	distinct := make(map[orb.Point]bool)
	for _, v := range vertices {
		p := orb.Point{v[1], v[0]}
		ring = append(ring, p)
		distinct[p] = true
	}
	if len(distinct) < 3 {
		return nil, fmt.Errorf("%w: needs at least 3 distinct vertices", ErrInvalidPolygon)
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}

func checkPoint(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, lng)
	}
	return nil
}
