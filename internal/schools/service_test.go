package schools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-workers/internal/common/logger"
	"listing-workers/internal/models"
)

const districtQuery = `SELECT district, grade, rating FROM school_districts WHERE LOWER\(district\) = LOWER\(\$1\)`

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestService(t *testing.T, db *sql.DB, rdb *redis.Client) *Service {
	return NewService(&Config{CacheTTL: 10 * time.Minute}, db, rdb, logger.NewTestLogger(t))
}

func districtRows(name, grade string, rating int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"district", "grade", "rating"}).AddRow(name, grade, rating)
}

func TestService_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		criteria map[string]interface{}
		grade    string
		rating   int
		expected bool
	}{
		{"grade met", map[string]interface{}{"school_grade": "B"}, "A", 9, true},
		{"grade equal", map[string]interface{}{"school_grade": "b+"}, "B-", 7, true},
		{"grade not met", map[string]interface{}{"school_grade": "A"}, "B", 7, false},
		{"rating met", map[string]interface{}{"school_rating_min": 8.0}, "B", 8, true},
		{"rating not met", map[string]interface{}{"school_rating_min": "9"}, "A", 8, false},
		{"both met", map[string]interface{}{"school_grade": "A", "school_rating_min": 9}, "A", 10, true},
		{"unknown district grade", map[string]interface{}{"school_grade": "C"}, "", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			rdb, _ := setupRedis(t)
			svc := newTestService(t, db, rdb)

			mock.ExpectQuery(districtQuery).
				WithArgs("Newton").
				WillReturnRows(districtRows("Newton", tt.grade, tt.rating))

			ok, err := svc.Evaluate(context.Background(), tt.criteria, &models.Listing{SchoolDistrict: "Newton"})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestService_Evaluate_NoLookupNeeded(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	ok, err := svc.Evaluate(ctx, map[string]interface{}{"school_unknown": "x"}, &models.Listing{})
	require.NoError(t, err)
	assert.True(t, ok, "unknown criteria pass")

	ok, err = svc.Evaluate(ctx, map[string]interface{}{"school_grade": "A"}, &models.Listing{})
	require.NoError(t, err)
	assert.False(t, ok, "listing without district fails")

	ok, err = svc.Evaluate(ctx, map[string]interface{}{"school_district": "Newton, Brookline"}, &models.Listing{SchoolDistrict: "brookline"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Evaluate(ctx, map[string]interface{}{"school_district": []interface{}{"Newton"}, "school_grade": "A"}, &models.Listing{SchoolDistrict: "Boston"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Evaluate_DistrictNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(t, db, nil)

	mock.ExpectQuery(districtQuery).WithArgs("Nowhere").WillReturnError(sql.ErrNoRows)

	ok, err := svc.Evaluate(context.Background(), map[string]interface{}{"school_grade": "C"}, &models.Listing{SchoolDistrict: "Nowhere"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Evaluate_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(t, db, nil)

	mock.ExpectQuery(districtQuery).WithArgs("Newton").WillReturnError(errors.New("connection reset"))

	ok, err := svc.Evaluate(context.Background(), map[string]interface{}{"school_grade": "C"}, &models.Listing{SchoolDistrict: "Newton"})
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrLookupFailed))
}

func TestService_District_Cache(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, mr := setupRedis(t)
	svc := newTestService(t, db, rdb)
	ctx := context.Background()

	mock.ExpectQuery(districtQuery).
		WithArgs("Newton").
		WillReturnRows(districtRows("Newton", "A", 9))

	first, err := svc.District(ctx, "Newton")
	require.NoError(t, err)
	assert.Equal(t, &models.SchoolDistrict{Name: "Newton", Grade: "A", Rating: 9}, first)

	assert.True(t, mr.Exists("school:district:newton"))
	assert.InDelta(t, (10 * time.Minute).Seconds(), mr.TTL("school:district:newton").Seconds(), 1)

	// served from cache, no second query expected
	second, err := svc.District(ctx, " NEWTON ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_District_PrimedCache(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, _ := setupRedis(t)
	svc := newTestService(t, db, rdb)

	payload, err := json.Marshal(models.SchoolDistrict{Name: "Wellesley", Grade: "A", Rating: 10})
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), "school:district:wellesley", payload, time.Minute).Err())

	ok, err := svc.Evaluate(context.Background(), map[string]interface{}{"school_rating_min": 10}, &models.Listing{SchoolDistrict: "Wellesley"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_District_CorruptCacheFallsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	rdb, _ := setupRedis(t)
	svc := newTestService(t, db, rdb)

	require.NoError(t, rdb.Set(context.Background(), "school:district:newton", "{not json", time.Minute).Err())
	mock.ExpectQuery(districtQuery).
		WithArgs("Newton").
		WillReturnRows(districtRows("Newton", "B", 7))

	d, err := svc.District(context.Background(), "Newton")
	require.NoError(t, err)
	assert.Equal(t, "B", d.Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseCriteria(t *testing.T) {
	c := ParseCriteria(map[string]interface{}{
		"school_grade":      " a- ",
		"school_rating_min": "7",
		"school_district":   "Newton,  Brookline ,",
	})
	assert.Equal(t, Criteria{MinGrade: "A", MinRating: 7, Districts: []string{"Newton", "Brookline"}}, c)

	c = ParseCriteria(map[string]interface{}{"school_grade": "Z", "school_rating_min": "high"})
	assert.True(t, c.Empty())

	c = ParseCriteria(nil)
	assert.True(t, c.Empty())
}
