// internal/search/filter/coerce.go
package filter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var numberCleaner = strings.NewReplacer(" ", "", "$", "", ",", "")

func isBlank(raw interface{}) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

// stringValue returns a trimmed scalar as a string. Numbers are formatted
// without exponent so numeric identifiers survive JSON decoding.
func stringValue(raw interface{}) (string, bool) {
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case json.Number:
		s = v.String()
	}
	return s, s != ""
}

func stringOrEmpty(raw interface{}) string {
	s, _ := stringValue(raw)
	return s
}

// stringList accepts a comma-separated string or a list and returns the
// distinct non-empty entries in input order.
func stringList(raw interface{}) []string {
	var items []string
	switch v := raw.(type) {
	case string:
		items = strings.Split(v, ",")
	case []string:
		for _, s := range v {
			items = append(items, strings.Split(s, ",")...)
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, strings.Split(s, ",")...)
			} else if s, ok := stringValue(item); ok {
				items = append(items, s)
			}
		}
	default:
		if s, ok := stringValue(raw); ok {
			items = []string{s}
		}
	}

	result := []string{}
	seen := make(map[string]bool)
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		result = append(result, s)
	}
	return result
}

// number parses a numeric value. Absent and blank values report ok=false
// with no error; anything else that is not a finite number is an error.
func number(field string, raw interface{}) (float64, bool, error) {
	var f float64
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false, invalid(field, raw, "not a number")
		}
		f = parsed
	case string:
		cleaned := numberCleaner.Replace(strings.TrimSpace(v))
		if cleaned == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false, invalid(field, raw, "%q is not a number", v)
		}
		f = parsed
	default:
		return 0, false, invalid(field, raw, "unsupported value type %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, invalid(field, raw, "not a finite number")
	}
	return f, true, nil
}

// truthy never fails; anything unrecognised is false.
func truthy(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true
		}
	}
	return false
}
