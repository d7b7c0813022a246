// internal/workers/search/query-listings/models.go
package querylistings

import "listing-workers/internal/models"

type Input struct {
	RawFilters map[string]interface{} `json:"rawFilters"`
	Page       int                    `json:"page,omitempty"`
	PageSize   int                    `json:"pageSize,omitempty"`
}

type Output struct {
	SearchID           string           `json:"searchId"`
	Listings           []models.Listing `json:"listings"`
	RowCount           int              `json:"rowCount"`
	Page               int              `json:"page"`
	PageSize           int              `json:"pageSize"`
	IsDirectLookup     bool             `json:"isDirectLookup"`
	Attempts           int              `json:"attempts"`
	QueryExecutionTime int64            `json:"queryExecutionTime"` // milliseconds
}
