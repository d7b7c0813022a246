// internal/schools/criteria.go
package schools

import (
	"strconv"
	"strings"

	"listing-workers/internal/models"
)

const (
	KeyGrade     = "school_grade"
	KeyRatingMin = "school_rating_min"
	KeyDistrict  = "school_district"
)

var gradeRank = map[string]int{"A": 5, "B": 4, "C": 3, "D": 2, "F": 1}

// Criteria is the understood subset of captured school_* keys.
type Criteria struct {
	MinGrade  string
	MinRating int
	Districts []string
}

// ParseCriteria reads the keys it knows. Malformed values are ignored.
func ParseCriteria(raw map[string]interface{}) Criteria {
	var c Criteria
	if s, ok := raw[KeyGrade].(string); ok {
		if g := letter(s); gradeRank[g] > 0 {
			c.MinGrade = g
		}
	}

	switch v := raw[KeyRatingMin].(type) {
	case float64:
		c.MinRating = int(v)
	case int:
		c.MinRating = v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.MinRating = n
		}
	}
	if c.MinRating < 0 {
		c.MinRating = 0
	}

	switch v := raw[KeyDistrict].(type) {
	case string:
		c.Districts = splitNames(v)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				c.Districts = append(c.Districts, splitNames(s)...)
			}
		}
	}
	return c
}

func (c Criteria) Empty() bool {
	return c.MinGrade == "" && c.MinRating == 0 && len(c.Districts) == 0
}

func (c Criteria) matchesDistrict(name string) bool {
	for _, d := range c.Districts {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

func (c Criteria) accepts(d *models.SchoolDistrict) bool {
	if c.MinGrade != "" && gradeRank[letter(d.Grade)] < gradeRank[c.MinGrade] {
		return false
	}
	if c.MinRating > 0 && d.Rating < c.MinRating {
		return false
	}
	return true
}

// letter reduces "A-", "b+" and similar to the bare upper-case letter.
func letter(grade string) string {
	g := strings.ToUpper(strings.TrimSpace(grade))
	if g == "" {
		return ""
	}
	return g[:1]
}

func splitNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
