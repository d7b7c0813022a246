// internal/search/sortkey/sortkey.go

// Package sortkey maps search sort keys to an ORDER BY column and direction.
package sortkey

import "strings"

type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is a resolved ordering directive.
type Order struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// DefaultKey names the default ordering, newest listings first.
const DefaultKey = "newest"

var table = map[string]Order{
	"newest":        {Column: "listing_contract_date", Direction: Desc},
	"oldest":        {Column: "listing_contract_date", Direction: Asc},
	"price_asc":     {Column: "list_price", Direction: Asc},
	"price_desc":    {Column: "list_price", Direction: Desc},
	"beds_desc":     {Column: "bedrooms_total", Direction: Desc},
	"sqft_desc":     {Column: "living_area", Direction: Desc},
	"dom_asc":       {Column: "days_on_market", Direction: Asc},
	"lot_size_desc": {Column: "lot_size_acres", Direction: Desc},
}

var keys = []string{
	"newest", "oldest", "price_asc", "price_desc",
	"beds_desc", "sqft_desc", "dom_asc", "lot_size_desc",
}

// Default returns the ordering used when no valid key is given.
func Default() Order {
	return table[DefaultKey]
}

// Resolve looks key up case-insensitively. Unknown or empty keys resolve to
// Default.
func Resolve(key string) Order {
	if o, ok := table[strings.ToLower(strings.TrimSpace(key))]; ok {
		return o
	}
	return Default()
}

// Keys lists the supported sort keys in a stable order.
func Keys() []string {
	return append([]string(nil), keys...)
}
