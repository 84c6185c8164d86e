package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/observability"
	scoring "github.com/smallbiznis/storepulse/internal/scoring/domain"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type mockScoring struct {
	scoring.Service
	mock.Mock
}

func (m *mockScoring) Score(ctx context.Context, storeID snowflake.ID, date time.Time) (*scoring.CompositeHealthRecord, error) {
	args := m.Called(ctx, storeID, date)
	record, _ := args.Get(0).(*scoring.CompositeHealthRecord)
	return record, args.Error(1)
}

func newTestServer(t *testing.T, scorer scoring.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := db.NewTest()
	require.NoError(t, err)

	engine := NewEngine(observability.Config{Environment: "test"})
	NewServer(ServerParams{
		Gin:     engine,
		DB:      conn,
		Scoring: scorer,
		Holder:  config.NewStaticScoringConfigHolder(config.DefaultScoringConfig()),
	})
	return engine
}

func do(engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	engine := newTestServer(t, &mockScoring{})

	assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/readyz", nil).Code)

	rec := do(engine, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScoringConfigEndpoint(t *testing.T) {
	engine := newTestServer(t, &mockScoring{})

	rec := do(engine, http.MethodGet, "/ops/scoring-config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Scoring config.ScoringConfig `json:"scoring"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, config.DefaultScoringConfig(), body.Scoring)
}

func TestScoreEndpoint(t *testing.T) {
	scorer := &mockScoring{}
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	scorer.On("Score", mock.Anything, snowflake.ID(42), date).
		Return(&scoring.CompositeHealthRecord{StoreID: 42, Date: date, OverallScore: 64.32375}, nil)
	scorer.On("Score", mock.Anything, snowflake.ID(7), date).
		Return(nil, fmt.Errorf("resolve: %w", healtherr.ErrUnknownStore))
	scorer.On("Score", mock.Anything, snowflake.ID(8), date).
		Return(nil, fmt.Errorf("score: %w", healtherr.ErrInsufficientData))
	engine := newTestServer(t, scorer)

	rec := do(engine, http.MethodPost, "/ops/score", map[string]string{"store_id": "42", "date": "2024-03-04"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "64.32375")

	rec = do(engine, http.MethodPost, "/ops/score", map[string]string{"store_id": "7", "date": "2024-03-04"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_store")

	rec = do(engine, http.MethodPost, "/ops/score", map[string]string{"store_id": "8", "date": "2024-03-04"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(engine, http.MethodPost, "/ops/score", map[string]string{"store_id": "42", "date": "04/03/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(engine, http.MethodPost, "/ops/score", map[string]string{"store_id": "abc", "date": "2024-03-04"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := map[error]int{
		healtherr.ErrInvalidRange:     http.StatusBadRequest,
		healtherr.ErrScopeViolation:   http.StatusForbidden,
		healtherr.ErrUnknownStore:     http.StatusNotFound,
		scoring.ErrRecordNotFound:     http.StatusNotFound,
		scoring.ErrStaleRecord:        http.StatusConflict,
		healtherr.ErrInsufficientData: http.StatusUnprocessableEntity,
		context.DeadlineExceeded:      http.StatusServiceUnavailable,
		fmt.Errorf("boom"):            http.StatusInternalServerError,
	}
	for err, want := range cases {
		got, _ := mapError(err)
		assert.Equal(t, want, got, err.Error())
	}
}

func TestRemoteSpanHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RemoteSpan())
	var traceID string
	engine.GET("/x", func(c *gin.Context) {
		traceID = traceIDFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerTraceID, "4bf92f3577b34da6a3ce929d0e0e4736")
	req.Header.Set(headerSpanID, "00f067aa0ba902b7")
	engine.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
}

func traceIDFrom(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
