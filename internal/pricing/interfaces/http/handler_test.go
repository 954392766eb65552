package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/codec"
	pricinghttp "github.com/wyfcoding/optionpricing/internal/pricing/interfaces/http"
)

type memRepo struct {
	mu      sync.Mutex
	results []*domain.PricingResult
}

func (r *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memRepo) SavePricingResult(_ context.Context, res *domain.PricingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *memRepo) GetLatestPricingResult(_ context.Context, symbol string) (*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].Symbol == symbol {
			return r.results[i], nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetPricingResultHistory(_ context.Context, symbol string, offset, limit int) ([]*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PricingResult
	for i := len(r.results) - 1; i >= 0 && len(out) < offset+limit; i-- {
		if r.results[i].Symbol == symbol {
			out = append(out, r.results[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:], nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, maxBody int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	app := application.NewPricingService(&memRepo{}, nil, nil, nil, application.Defaults{
		Paths: 500, Steps: 10, Seed: 1, MaxGridCells: 100_000, BatchConcurrency: 2, HistoryLimit: 20,
	})
	r := gin.New()
	pricinghttp.NewPricingHandler(app, maxBody, 100_000).RegisterRoutes(&r.RouterGroup)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, contentType string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

var identicalRows = [][]float64{
	{1, 0.9, 0.8, 0.85},
	{1, 0.9, 0.8, 0.85},
	{1, 0.9, 0.8, 0.85},
	{1, 0.9, 0.8, 0.85},
}

func TestPriceGridJSON(t *testing.T) {
	r := newRouter(t, 0)
	rec, env := do(t, r, http.MethodPost, "/api/v1/pricing/american/grid", "application/json", mustJSON(t, map[string]any{
		"symbol":      "TEST",
		"option_type": "PUT",
		"strike":      1,
		"rate":        0.05,
		"maturity":    1,
		"diagnostics": true,
		"grid":        identicalRows,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Result struct {
			OptionPrice string `json:"option_price"`
		} `json:"result"`
		Reports []domain.StepReport `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	price, err := json.Number(out.Result.OptionPrice).Float64()
	require.NoError(t, err)
	assert.InDelta(t, 0.2*math.Exp(-0.1/3), price, 1e-9)
	assert.Len(t, out.Reports, 2)
}

func TestPriceGridBinary(t *testing.T) {
	r := newRouter(t, 0)
	grid, err := domain.NewPathGridFromRows(identicalRows)
	require.NoError(t, err)

	zstdBody, err := codec.Encode(grid, codec.CompressionZstd)
	require.NoError(t, err)
	rawBody, err := codec.Encode(grid, codec.CompressionNone)
	require.NoError(t, err)

	rec, _ := do(t, r, http.MethodPost,
		"/api/v1/pricing/american/grid?symbol=TEST&option_type=put&strike=1&rate=0.05&maturity=1",
		codec.ContentType, zstdBody)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = do(t, r, http.MethodPost,
		"/api/v1/pricing/american/grid?symbol=TEST&option_type=put&strike=abc&maturity=1",
		codec.ContentType, rawBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodPost,
		"/api/v1/pricing/american/grid?symbol=TEST&option_type=put&strike=1&maturity=1",
		codec.ContentType, []byte("garbage"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPriceGridValidationErrors(t *testing.T) {
	r := newRouter(t, 0)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing grid", map[string]any{"symbol": "X", "option_type": "PUT", "maturity": 1}},
		{"ragged grid", map[string]any{"symbol": "X", "option_type": "PUT", "maturity": 1, "grid": [][]float64{{1, 2}, {1}}}},
		{"single column", map[string]any{"symbol": "X", "option_type": "PUT", "maturity": 1, "grid": [][]float64{{1}, {1}}}},
		{"bad type", map[string]any{"symbol": "X", "option_type": "BINARY", "maturity": 1, "grid": identicalRows}},
		{"zero maturity", map[string]any{"symbol": "X", "option_type": "PUT", "grid": identicalRows}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, r, http.MethodPost, "/api/v1/pricing/american/grid", "application/json", mustJSON(t, tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, http.StatusBadRequest, env.Code)
		})
	}
}

func TestPriceGridBodyLimit(t *testing.T) {
	r := newRouter(t, 64)
	rec, _ := do(t, r, http.MethodPost, "/api/v1/pricing/american/grid", "application/json", mustJSON(t, map[string]any{
		"symbol": "X", "option_type": "PUT", "maturity": 1, "grid": identicalRows,
	}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPriceOptionAndQueries(t *testing.T) {
	r := newRouter(t, 0)

	rec, _ := do(t, r, http.MethodGet, "/api/v1/pricing/results/SPY", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, model := range []string{"BlackScholes", "Binomial", ""} {
		rec, _ = do(t, r, http.MethodPost, "/api/v1/pricing/option/price", "application/json", mustJSON(t, map[string]any{
			"contract":         map[string]any{"symbol": "SPY", "type": "PUT", "strike_price": 100, "maturity": 0.5},
			"underlying_price": 100,
			"volatility":       0.25,
			"risk_free_rate":   0.03,
			"pricing_model":    model,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec, env := do(t, r, http.MethodGet, "/api/v1/pricing/results/SPY", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest domain.PricingResult
	require.NoError(t, json.Unmarshal(env.Data, &latest))
	assert.Equal(t, domain.PricingModelLSM, latest.PricingModel)

	rec, env = do(t, r, http.MethodGet, "/api/v1/pricing/results/SPY/history?page=1&page_size=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Results    []domain.PricingResult `json:"results"`
		Pagination struct {
			Page     int `json:"page"`
			PageSize int `json:"page_size"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Len(t, hist.Results, 2)
	assert.Equal(t, 2, hist.Pagination.PageSize)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/pricing/option/price", "application/json", mustJSON(t, map[string]any{
		"contract":         map[string]any{"symbol": "SPY", "type": "PUT", "strike_price": 100, "maturity": 0.5},
		"underlying_price": 100,
		"pricing_model":    "Heston",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPriceOptionRejectsOversizedWork(t *testing.T) {
	r := newRouter(t, 0)
	tests := []struct {
		name  string
		model string
		paths int
		steps int
		grid  bool
	}{
		{"lsm cell overflow", "", 1 << 62, 3, false},
		{"binomial steps", "Binomial", 0, 1_000_000_000, false},
		{"grid huge degree", "", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.grid {
				rec, _ := do(t, r, http.MethodPost, "/api/v1/pricing/american/grid", "application/json", mustJSON(t, map[string]any{
					"symbol": "X", "option_type": "PUT", "strike": 1, "maturity": 1,
					"degree": math.MaxInt, "grid": identicalRows,
				}))
				assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
				return
			}
			rec, env := do(t, r, http.MethodPost, "/api/v1/pricing/option/price", "application/json", mustJSON(t, map[string]any{
				"contract":         map[string]any{"symbol": "SPY", "type": "PUT", "strike_price": 100, "maturity": 1},
				"underlying_price": 100,
				"volatility":       0.2,
				"risk_free_rate":   0.05,
				"pricing_model":    tt.model,
				"paths":            tt.paths,
				"steps":            tt.steps,
			}))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, http.StatusBadRequest, env.Code)
		})
	}
}

func TestBatchPriceOptions(t *testing.T) {
	r := newRouter(t, 0)
	contract := func(symbol string, strike float64) map[string]any {
		return map[string]any{
			"contract":         map[string]any{"symbol": symbol, "type": "CALL", "strike_price": strike, "maturity": 1},
			"underlying_price": 100,
			"volatility":       0.2,
			"risk_free_rate":   0.05,
			"pricing_model":    "BlackScholes",
		}
	}
	rec, env := do(t, r, http.MethodPost, "/api/v1/pricing/option/batch", "application/json", mustJSON(t, map[string]any{
		"batch_id":  "b-1",
		"contracts": []any{contract("A", 90), contract("B", 110)},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out application.BatchPricingResult
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "b-1", out.BatchID)
	assert.Equal(t, 2, out.SuccessCount)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/pricing/option/batch", "application/json", mustJSON(t, map[string]any{"contracts": []any{}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
