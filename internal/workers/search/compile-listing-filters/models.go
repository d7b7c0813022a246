// internal/workers/search/compile-listing-filters/models.go
package compilelistingfilters

type Input struct {
	RawFilters map[string]interface{} `json:"rawFilters"`
}

type OrderBy struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

type Output struct {
	Where               string                 `json:"where"`
	Args                []interface{}          `json:"args"`
	OrderBy             OrderBy                `json:"orderBy"`
	IsDirectLookup      bool                   `json:"isDirectLookup"`
	HasSchoolFilters    bool                   `json:"hasSchoolFilters"`
	SchoolCriteria      map[string]interface{} `json:"schoolCriteria,omitempty"`
	OverfetchMultiplier int                    `json:"overfetchMultiplier"`
	IncludesArchived    bool                   `json:"includesArchived"`
}
