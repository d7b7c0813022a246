// internal/schools/service.go

// Package schools evaluates captured school criteria against a listing's
// district. District ratings live in Postgres and are cached in Redis.
package schools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"listing-workers/internal/common/logger"
	"listing-workers/internal/models"
)

const cacheKeyPrefix = "school:district:"

var (
	ErrDistrictNotFound = errors.New("school district not found")
	ErrLookupFailed     = errors.New("SCHOOL_LOOKUP_FAILED")
)

type Config struct {
	CacheTTL time.Duration
}

type Service struct {
	config *Config
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

// NewService returns a Service. rdb may be nil, in which case every lookup
// goes to Postgres.
func NewService(config *Config, db *sql.DB, rdb *redis.Client, log logger.Logger) *Service {
	if config == nil {
		config = &Config{CacheTTL: 15 * time.Minute}
	}
	return &Service{
		config: config,
		db:     db,
		redis:  rdb,
		logger: log.WithFields(map[string]interface{}{"component": "schools"}),
	}
}

// Evaluate reports whether listing satisfies criteria. Criteria the service
// does not understand pass. A listing without a known district fails any
// criterion that needs one.
func (s *Service) Evaluate(ctx context.Context, criteria map[string]interface{}, listing *models.Listing) (bool, error) {
	c := ParseCriteria(criteria)
	if c.Empty() {
		return true, nil
	}

	name := strings.TrimSpace(listing.SchoolDistrict)
	if name == "" {
		return false, nil
	}
	if len(c.Districts) > 0 && !c.matchesDistrict(name) {
		return false, nil
	}
	if c.MinGrade == "" && c.MinRating == 0 {
		return true, nil
	}

	district, err := s.District(ctx, name)
	if errors.Is(err, ErrDistrictNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return c.accepts(district), nil
}

// District loads a district rating, from cache when possible.
func (s *Service) District(ctx context.Context, name string) (*models.SchoolDistrict, error) {
	key := cacheKey(name)
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			var d models.SchoolDistrict
			if jerr := json.Unmarshal([]byte(cached), &d); jerr == nil {
				return &d, nil
			}
			s.logger.Warn("discarding unreadable cached district", map[string]interface{}{"key": key})
		case !errors.Is(err, redis.Nil):
			s.logger.Warn("district cache read failed", map[string]interface{}{"key": key, "error": err})
		}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT district, grade, rating
		FROM school_districts
		WHERE LOWER(district) = LOWER($1)`, name)

	var d models.SchoolDistrict
	if err := row.Scan(&d.Name, &d.Grade, &d.Rating); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDistrictNotFound, name)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if s.redis != nil {
		payload, _ := json.Marshal(d)
		if err := s.redis.Set(ctx, key, payload, s.config.CacheTTL).Err(); err != nil {
			s.logger.Warn("district cache write failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	return &d, nil
}

func cacheKey(name string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(name))
}
