// internal/search/executor/executor.go

// Package executor runs compiled listing searches against Postgres and owns
// the overfetch and post-filter paging for criteria the predicate cannot
// express.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/metrics"
	"listing-workers/internal/models"
	"listing-workers/internal/search/filter"
	"listing-workers/internal/search/geo"
	"listing-workers/internal/search/predicate"
	"listing-workers/internal/search/sortkey"
)

var (
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
	ErrQueryTimeout         = errors.New("QUERY_TIMEOUT")
	ErrSchoolLookupFailed   = errors.New("SCHOOL_LOOKUP_FAILED")
	ErrInvalidPage          = errors.New("invalid page")
)

const (
	DefaultMaxOverfetchMultiplier = 40

	discardSchool  = "school"
	discardPolygon = "polygon"
)

var listingColumns = []string{
	"listing_id", "unparsed_address", "city", "postal_code", "property_type",
	"standard_status", "list_price", "bedrooms_total", "bathrooms_total",
	"living_area", "lot_size_acres", "year_built", "days_on_market",
	"latitude", "longitude", "school_district", "listing_contract_date",
}

// SchoolEvaluator decides per listing whether captured school criteria hold.
type SchoolEvaluator interface {
	Evaluate(ctx context.Context, criteria map[string]interface{}, listing *models.Listing) (bool, error)
}

type Config struct {
	// MaxOverfetchMultiplier caps the window growth when post-filtering
	// under-fills a page.
	MaxOverfetchMultiplier int
}

// Page selects a 1-based page of Size listings.
type Page struct {
	Number int
	Size   int
}

type SearchResult struct {
	Listings   []models.Listing
	Attempts   int
	Multiplier int
	// Scanned counts raw rows read across all attempts.
	Scanned   int
	Discarded map[string]int
	Duration  time.Duration
}

type Executor struct {
	config  *Config
	db      *sql.DB
	schools SchoolEvaluator
	logger  logger.Logger
}

// New returns an Executor. schools may be nil when no search carries school
// criteria.
func New(config *Config, db *sql.DB, schools SchoolEvaluator, log logger.Logger) *Executor {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.MaxOverfetchMultiplier < 1 {
		cfg.MaxOverfetchMultiplier = DefaultMaxOverfetchMultiplier
	}
	return &Executor{
		config:  &cfg,
		db:      db,
		schools: schools,
		logger:  log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Search runs result for one page.
//
// Without post-filtering the page maps directly onto LIMIT and OFFSET. With
// polygon or school checks the page is taken by position among the rows that
// pass them: rows are read in order from the start of the result in windows
// of Size times the overfetch multiplier, skipping survivors that belong to
// earlier pages. Each window continues where the last one ended, and the
// multiplier doubles between windows up to the configured cap.
func (e *Executor) Search(ctx context.Context, result *filter.Result, page Page) (*SearchResult, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil filter result", ErrQueryExecutionFailed)
	}
	if page.Size < 1 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidPage, page.Size)
	}
	if page.Number < 1 {
		page.Number = 1
	}
	if result.HasSchoolFilters && e.schools == nil {
		return nil, fmt.Errorf("%w: no school evaluator configured", ErrSchoolLookupFailed)
	}

	start := time.Now()
	var (
		out *SearchResult
		err error
	)
	if result.HasSchoolFilters || result.Polygon != nil {
		out, err = e.scan(ctx, result, page)
	} else {
		out, err = e.direct(ctx, result, page)
	}
	if err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)
	return out, nil
}

// FirstWindow returns the LIMIT and OFFSET of the first query Search issues
// for page.
func FirstWindow(result *filter.Result, page Page) (limit, offset int) {
	if result.HasSchoolFilters || result.Polygon != nil {
		return page.Size * max(result.OverfetchMultiplier, 1), 0
	}
	return page.Size, (page.Number - 1) * page.Size
}

func (e *Executor) direct(ctx context.Context, result *filter.Result, page Page) (*SearchResult, error) {
	limit, offset := FirstWindow(result, page)
	rows, err := e.fetch(ctx, result, limit, offset)
	if err != nil {
		return nil, e.classify(ctx, err)
	}
	return &SearchResult{
		Listings:   rows,
		Attempts:   1,
		Multiplier: 1,
		Scanned:    len(rows),
		Discarded:  map[string]int{},
	}, nil
}

func (e *Executor) scan(ctx context.Context, result *filter.Result, page Page) (*SearchResult, error) {
	base := result.OverfetchMultiplier
	if base < 1 {
		base = 1
	}
	maxMultiplier := e.config.MaxOverfetchMultiplier
	if maxMultiplier < base {
		maxMultiplier = base
	}

	out := &SearchResult{
		Listings:  make([]models.Listing, 0, page.Size),
		Discarded: map[string]int{},
	}
	skip := (page.Number - 1) * page.Size
	offset := 0

	for multiplier := base; ; multiplier *= 2 {
		if multiplier > maxMultiplier {
			multiplier = maxMultiplier
		}
		limit := page.Size * multiplier
		if out.Attempts > 0 {
			metrics.SearchRequeries.Inc()
			e.logger.Debug("page under-filled, reading next window", map[string]interface{}{
				"kept":       len(out.Listings),
				"pageSize":   page.Size,
				"offset":     offset,
				"multiplier": multiplier,
			})
		}
		out.Attempts++
		out.Multiplier = multiplier

		rows, err := e.fetch(ctx, result, limit, offset)
		if err != nil {
			return nil, e.classify(ctx, err)
		}
		out.Scanned += len(rows)
		offset += len(rows)

		for i := range rows {
			if len(out.Listings) == page.Size {
				break
			}
			reason, err := e.check(ctx, result, &rows[i])
			if err != nil {
				return nil, err
			}
			switch {
			case reason != "":
				out.Discarded[reason]++
			case skip > 0:
				skip--
			default:
				out.Listings = append(out.Listings, rows[i])
			}
		}

		if len(out.Listings) == page.Size || len(rows) < limit {
			break
		}
	}

	for reason, n := range out.Discarded {
		metrics.SearchRowsDiscarded.WithLabelValues(reason).Add(float64(n))
	}
	return out, nil
}

// BuildQuery renders the SELECT for result with the given window.
func BuildQuery(result *filter.Result, limit, offset int) (string, []interface{}, error) {
	where, args, err := result.Where(1)
	if err != nil {
		return "", nil, err
	}
	order, err := orderClause(result.OrderBy)
	if err != nil {
		return "", nil, err
	}

	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM listings WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(listingColumns, ", "), where, order, n+1, n+2)
	return query, append(args, limit, offset), nil
}

func orderClause(o sortkey.Order) (string, error) {
	col, err := predicate.QuoteColumn(o.Column)
	if err != nil {
		return "", err
	}
	if o.Direction != sortkey.Asc && o.Direction != sortkey.Desc {
		return "", fmt.Errorf("invalid sort direction %q", o.Direction)
	}
	if o.Column == "listing_id" {
		return fmt.Sprintf("%s %s", col, o.Direction), nil
	}
	// listing_id breaks ties so pages are stable
	return fmt.Sprintf(`%s %s NULLS LAST, "listing_id" ASC`, col, o.Direction), nil
}

func (e *Executor) fetch(ctx context.Context, result *filter.Result, limit, offset int) ([]models.Listing, error) {
	query, args, err := BuildQuery(result, limit, offset)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// check applies the polygon and school checks to l and returns the discard
// reason, or "" when l passes.
func (e *Executor) check(ctx context.Context, result *filter.Result, l *models.Listing) (string, error) {
	if result.Polygon != nil && !geo.IsPointInPolygon(l.Latitude, l.Longitude, result.Polygon) {
		return discardPolygon, nil
	}
	if !result.HasSchoolFilters {
		return "", nil
	}

	ok, err := e.schools.Evaluate(ctx, result.SchoolCriteria, l)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrQueryTimeout, err)
		}
		return "", fmt.Errorf("%w: listing %s: %v", ErrSchoolLookupFailed, l.ListingID, err)
	}
	if !ok {
		return discardSchool, nil
	}
	return "", nil
}

func (e *Executor) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrQueryTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(s scanner) (models.Listing, error) {
	var (
		l                                       models.Listing
		address, city, postal, propType, status sql.NullString
		district                                sql.NullString
		price, baths, area, lot, lat, lng       sql.NullFloat64
		beds, yearBuilt, dom                    sql.NullInt64
		contractDate                            sql.NullTime
	)
	err := s.Scan(
		&l.ListingID, &address, &city, &postal, &propType,
		&status, &price, &beds, &baths,
		&area, &lot, &yearBuilt, &dom,
		&lat, &lng, &district, &contractDate,
	)
	if err != nil {
		return l, err
	}

	l.UnparsedAddress = address.String
	l.City = city.String
	l.PostalCode = postal.String
	l.PropertyType = propType.String
	l.StandardStatus = status.String
	l.ListPrice = price.Float64
	l.BedroomsTotal = int(beds.Int64)
	l.BathroomsTotal = baths.Float64
	l.LivingArea = area.Float64
	l.LotSizeAcres = lot.Float64
	l.YearBuilt = int(yearBuilt.Int64)
	l.DaysOnMarket = int(dom.Int64)
	l.Latitude = lat.Float64
	l.Longitude = lng.Float64
	l.SchoolDistrict = district.String
	if contractDate.Valid {
		t := contractDate.Time
		l.ListingContractDate = &t
	}
	l.IsExclusive = models.IsExclusiveListingID(l.ListingID)
	return l, nil
}
