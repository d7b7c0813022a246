// internal/models/listing.go
package models

import (
	"strconv"
	"time"
)

// ExclusiveListingWatermark separates internally originated listings from
// MLS-sourced ones. Internal listings are assigned purely numeric identifiers
// below this value; changing it reclassifies historical listings.
const ExclusiveListingWatermark = 1000000

// Listing is a row of the listings table as returned to search callers.
type Listing struct {
	ListingID           string     `json:"listingId"`
	UnparsedAddress     string     `json:"address"`
	City                string     `json:"city"`
	PostalCode          string     `json:"postalCode"`
	PropertyType        string     `json:"propertyType"`
	StandardStatus      string     `json:"status"`
	ListPrice           float64    `json:"listPrice"`
	BedroomsTotal       int        `json:"bedrooms"`
	BathroomsTotal      float64    `json:"bathrooms"`
	LivingArea          float64    `json:"livingArea"`
	LotSizeAcres        float64    `json:"lotSizeAcres"`
	YearBuilt           int        `json:"yearBuilt,omitempty"`
	DaysOnMarket        int        `json:"daysOnMarket"`
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	SchoolDistrict      string     `json:"schoolDistrict,omitempty"`
	ListingContractDate *time.Time `json:"listingContractDate,omitempty"`
	IsExclusive         bool       `json:"isExclusive"`
}

// IsExclusiveListingID reports whether id follows the internal identifier
// scheme: digits only and numerically below ExclusiveListingWatermark.
func IsExclusiveListingID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		// too many digits to be below the watermark
		return false
	}
	return n < ExclusiveListingWatermark
}

// SchoolDistrict is a rated district from the school_districts table.
type SchoolDistrict struct {
	Name   string `json:"name"`
	Grade  string `json:"grade"`
	Rating int    `json:"rating"`
}
