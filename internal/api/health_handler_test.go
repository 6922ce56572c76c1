package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHeadBucket struct {
	err    error
	bucket string
}

func (f *fakeHeadBucket) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.bucket = *in.Bucket
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadBucketOutput{}, nil
}

var backlogQuery = `SELECT COUNT\(\*\) FROM send_jobs WHERE status = 'pending'`

func TestHealth_AllUp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(backlogQuery).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s3c := &fakeHeadBucket{}
	hc := NewHealthChecker(db, rdb, nil, "rejects")
	hc.s3Client = s3c

	rec := httptest.NewRecorder()
	hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["redis"].Status)
	assert.Equal(t, "up", status.Checks["archive"].Status)
	assert.Equal(t, "12 overdue jobs", status.Checks["backlog"].Message)
	assert.Equal(t, "rejects", s3c.bucket)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealth_NothingConfigured(t *testing.T) {
	hc := NewHealthChecker(nil, nil, nil, "")
	checks := hc.runAllChecks(context.Background())
	for name, c := range checks {
		assert.Equal(t, "not_configured", c.Status, name)
	}
	assert.Equal(t, "healthy", determineOverallStatus(checks))
}

func TestHealth_BacklogOverThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(backlogQuery).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	hc := NewHealthChecker(db, nil, nil, "")
	hc.BacklogWarn = 4
	hc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }

	c := hc.checkBacklog(context.Background())
	assert.Equal(t, "degraded", c.Status)
	assert.Equal(t, "5 overdue jobs", c.Message)
}

func TestReadiness_UnhealthyWhenDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(backlogQuery).WithArgs(sqlmock.AnyArg()).WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(db, nil, nil, "")
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, "unhealthy", body["status"])
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"}, "archive": {Status: "down"},
	}))
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down"},
	}))
}
