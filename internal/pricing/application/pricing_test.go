package application_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/utils"
)

type txKey struct{}

type fakeRepo struct {
	mu      sync.Mutex
	results []*domain.PricingResult
	saveErr error
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	snapshot := len(r.results)
	r.mu.Unlock()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		r.mu.Lock()
		r.results = r.results[:snapshot]
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepo) SavePricingResult(_ context.Context, result *domain.PricingResult) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result.ID = uint(len(r.results) + 1)
	r.results = append(r.results, result)
	return nil
}

func (r *fakeRepo) GetLatestPricingResult(_ context.Context, symbol string) (*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].Symbol == symbol {
			return r.results[i], nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetPricingResultHistory(_ context.Context, symbol string, offset, limit int) ([]*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PricingResult
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].Symbol == symbol {
			out = append(out, r.results[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.PricingResult
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*domain.PricingResult{}}
}

func (c *fakeCache) GetLatest(_ context.Context, symbol string) (*domain.PricingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[symbol], nil
}

func (c *fakeCache) SetLatest(_ context.Context, result *domain.PricingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[result.Symbol] = result
	return nil
}

type publishedEvent struct {
	eventType string
	key       string
	inTx      bool
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, eventType, key string, _ any) error {
	if p.err != nil {
		return p.err
	}
	inTx, _ := ctx.Value(txKey{}).(bool)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, key: key, inTx: inTx})
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

var testDefaults = application.Defaults{
	Degree:           utils.Ptr(2),
	Paths:            4000,
	Steps:            25,
	Seed:             7,
	Workers:          2,
	MaxGridCells:     1_000_000,
	MaxTreeSteps:     2000,
	BatchConcurrency: 3,
	HistoryLimit:     10,
}

func newService(t *testing.T) (*application.PricingService, *fakeRepo, *fakeCache, *fakePublisher) {
	t.Helper()
	repo := &fakeRepo{}
	cache := newFakeCache()
	pub := &fakePublisher{}
	return application.NewPricingService(repo, cache, pub, nil, testDefaults), repo, cache, pub
}

func identicalPathGrid(t *testing.T) *domain.PathGrid {
	t.Helper()
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = []float64{1, 0.9, 0.8, 0.85}
	}
	g, err := domain.NewPathGridFromRows(rows)
	require.NoError(t, err)
	return g
}

func TestPriceGridPersistsAndPublishesInTx(t *testing.T) {
	svc, repo, cache, pub := newService(t)

	out, err := svc.PriceGrid(context.Background(), application.PriceGridCommand{
		Symbol:      "TEST-PUT",
		OptionType:  "put",
		Grid:        identicalPathGrid(t),
		Strike:      1,
		Rate:        0.05,
		Maturity:    1,
		Diagnostics: true,
	})
	require.NoError(t, err)

	want := 0.2 * math.Exp(-0.1/3)
	assert.InDelta(t, want, out.Result.OptionPrice.InexactFloat64(), 1e-9)
	assert.Equal(t, domain.PricingModelLSM, out.Result.PricingModel)
	assert.Equal(t, 2, out.Result.Degree)
	assert.Equal(t, 4, out.Result.Paths)
	assert.Equal(t, 3, out.Result.Steps)
	assert.Len(t, out.Reports, 2)

	require.Len(t, repo.results, 1)
	assert.Same(t, out.Result, cache.entries["TEST-PUT"])
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.OptionPricedEventType, pub.events[0].eventType)
	assert.True(t, pub.events[0].inTx)
}

func TestPriceGridRejectsInvalidInput(t *testing.T) {
	svc, repo, _, pub := newService(t)
	ctx := context.Background()

	_, err := svc.PriceGrid(ctx, application.PriceGridCommand{OptionType: "put", Grid: identicalPathGrid(t), Maturity: 1})
	assert.ErrorIs(t, err, domain.ErrSymbolRequired)

	_, err = svc.PriceGrid(ctx, application.PriceGridCommand{Symbol: "X", OptionType: "straddle", Grid: identicalPathGrid(t), Maturity: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownOptionType)

	_, err = svc.PriceGrid(ctx, application.PriceGridCommand{Symbol: "X", OptionType: "put", Grid: identicalPathGrid(t), Strike: 1})
	assert.ErrorIs(t, err, domain.ErrNonPositiveMaturity)

	neg := -1
	_, err = svc.PriceGrid(ctx, application.PriceGridCommand{Symbol: "X", OptionType: "put", Grid: identicalPathGrid(t), Strike: 1, Maturity: 1, Degree: &neg})
	assert.ErrorIs(t, err, domain.ErrNegativeDegree)

	_, err = svc.PriceGrid(ctx, application.PriceGridCommand{Symbol: "X", OptionType: "put", Grid: identicalPathGrid(t), Strike: math.NaN(), Maturity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Empty(t, repo.results)
	for _, e := range pub.events {
		assert.Equal(t, domain.PricingErrorEventType, e.eventType)
		assert.False(t, e.inTx)
	}
}

func TestPriceGridEnforcesCellLimit(t *testing.T) {
	defaults := testDefaults
	defaults.MaxGridCells = 10
	svc := application.NewPricingService(&fakeRepo{}, nil, nil, nil, defaults)

	_, err := svc.PriceGrid(context.Background(), application.PriceGridCommand{
		Symbol: "X", OptionType: "put", Grid: identicalPathGrid(t), Strike: 1, Maturity: 1,
	})
	assert.ErrorIs(t, err, domain.ErrGridTooLarge)
}

func TestPriceGridRollsBackWhenPublishFails(t *testing.T) {
	repo := &fakeRepo{}
	cache := newFakeCache()
	pub := &fakePublisher{err: errors.New("outbox down")}
	svc := application.NewPricingService(repo, cache, pub, nil, testDefaults)

	_, err := svc.PriceGrid(context.Background(), application.PriceGridCommand{
		Symbol: "X", OptionType: "put", Grid: identicalPathGrid(t), Strike: 1, Rate: 0.05, Maturity: 1,
	})
	require.Error(t, err)
	assert.Empty(t, repo.results)
	assert.Zero(t, cache.sets)
}

func TestPriceOptionBlackScholes(t *testing.T) {
	svc, _, _, pub := newService(t)

	res, err := svc.PriceOption(context.Background(), application.PriceOptionCommand{
		Symbol:          "SPX-C-100",
		OptionType:      "CALL",
		StrikePrice:     100,
		Maturity:        1,
		UnderlyingPrice: 100,
		Volatility:      0.2,
		RiskFreeRate:    0.05,
		PricingModel:    string(domain.PricingModelBlackScholes),
	})
	require.NoError(t, err)
	assert.InDelta(t, 10.4506, res.OptionPrice.InexactFloat64(), 1e-3)
	assert.True(t, res.Delta.IsPositive())
	assert.Equal(t, []string{domain.OptionPricedEventType, domain.GreeksCalculatedEventType}, pub.types())
}

func TestPriceOptionLSMAgainstBinomial(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	base := application.PriceOptionCommand{
		Symbol:          "PUT-40",
		OptionType:      "PUT",
		StrikePrice:     40,
		Maturity:        1,
		UnderlyingPrice: 36,
		Volatility:      0.2,
		RiskFreeRate:    0.06,
	}

	lsm, err := svc.PriceOption(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, domain.PricingModelLSM, lsm.PricingModel)
	assert.Equal(t, testDefaults.Paths, lsm.Paths)
	assert.True(t, lsm.StdError.IsPositive())

	base.PricingModel = string(domain.PricingModelBinomial)
	base.Steps = 500
	tree, err := svc.PriceOption(ctx, base)
	require.NoError(t, err)

	assert.InDelta(t, tree.OptionPrice.InexactFloat64(), lsm.OptionPrice.InexactFloat64(), 0.3)
}

func TestPriceOptionDeterministicWithSeed(t *testing.T) {
	svc, _, _, _ := newService(t)
	seed := uint64(99)
	cmd := application.PriceOptionCommand{
		Symbol: "P", OptionType: "PUT", StrikePrice: 40, Maturity: 1,
		UnderlyingPrice: 40, Volatility: 0.3, RiskFreeRate: 0.05,
		Paths: 500, Steps: 10, Seed: &seed,
	}
	a, err := svc.PriceOption(context.Background(), cmd)
	require.NoError(t, err)
	b, err := svc.PriceOption(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, a.OptionPrice.Equal(b.OptionPrice))
}

func TestPriceOptionMaturityFromExpiryDate(t *testing.T) {
	svc, _, _, _ := newService(t)
	expiry := time.Now().Add(365 * 24 * time.Hour).UnixMilli()

	res, err := svc.PriceOption(context.Background(), application.PriceOptionCommand{
		Symbol: "E", OptionType: "CALL", StrikePrice: 100, ExpiryDate: expiry,
		UnderlyingPrice: 100, Volatility: 0.2, RiskFreeRate: 0.05,
		PricingModel: string(domain.PricingModelBlackScholes),
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Maturity, 1e-3)
}

func TestPriceOptionValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	base := application.PriceOptionCommand{
		Symbol: "V", OptionType: "PUT", StrikePrice: 40, Maturity: 1,
		UnderlyingPrice: 40, Volatility: 0.2, RiskFreeRate: 0.05,
	}

	tests := []struct {
		name   string
		mutate func(*application.PriceOptionCommand)
		want   error
	}{
		{"unknown model", func(c *application.PriceOptionCommand) { c.PricingModel = "Heston" }, domain.ErrUnknownPricingModel},
		{"bad option type", func(c *application.PriceOptionCommand) { c.OptionType = "" }, domain.ErrUnknownOptionType},
		{"zero strike", func(c *application.PriceOptionCommand) { c.StrikePrice = 0 }, domain.ErrNonPositiveStrike},
		{"zero spot bs", func(c *application.PriceOptionCommand) {
			c.UnderlyingPrice = 0
			c.PricingModel = string(domain.PricingModelBlackScholes)
		}, domain.ErrNonPositiveSpot},
		{"zero vol binomial", func(c *application.PriceOptionCommand) {
			c.Volatility = 0
			c.PricingModel = string(domain.PricingModelBinomial)
		}, domain.ErrNonPositiveVolatility},
		{"too many cells", func(c *application.PriceOptionCommand) { c.Paths = 1_000_000 }, domain.ErrGridTooLarge},
		{"cell count overflow", func(c *application.PriceOptionCommand) { c.Paths, c.Steps = 1 << 62, 3 }, domain.ErrGridTooLarge},
		{"too many tree steps", func(c *application.PriceOptionCommand) {
			c.Steps = 1_000_000_000
			c.PricingModel = string(domain.PricingModelBinomial)
		}, domain.ErrTooManySteps},
		{"nan rate", func(c *application.PriceOptionCommand) { c.RiskFreeRate = math.NaN() }, domain.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := base
			tt.mutate(&cmd)
			_, err := svc.PriceOption(ctx, cmd)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestPriceOptionWithoutCellLimitStillRejectsOverflow(t *testing.T) {
	defaults := testDefaults
	defaults.MaxGridCells = 0
	svc := application.NewPricingService(&fakeRepo{}, nil, nil, nil, defaults)

	require.NotPanics(t, func() {
		_, err := svc.PriceOption(context.Background(), application.PriceOptionCommand{
			Symbol: "O", OptionType: "PUT", StrikePrice: 100, Maturity: 1,
			UnderlyingPrice: 100, Volatility: 0.2, RiskFreeRate: 0.05,
			Paths: 1 << 62, Steps: 3,
		})
		assert.ErrorIs(t, err, domain.ErrGridTooLarge)
	})
}

func TestPriceOptionDefaultDegree(t *testing.T) {
	cmd := application.PriceOptionCommand{
		Symbol: "D", OptionType: "PUT", StrikePrice: 40, Maturity: 1,
		UnderlyingPrice: 40, Volatility: 0.2, RiskFreeRate: 0.05,
		Paths: 200, Steps: 5,
	}
	tests := []struct {
		name     string
		defaults *int
		want     int
	}{
		{"unset falls back", nil, domain.DefaultRegressionDegree},
		{"zero is kept", utils.Ptr(0), 0},
		{"explicit", utils.Ptr(3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaults := testDefaults
			defaults.Degree = tt.defaults
			svc := application.NewPricingService(&fakeRepo{}, nil, nil, nil, defaults)

			res, err := svc.PriceOption(context.Background(), cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Degree)
		})
	}
}

func TestBatchPriceOptions(t *testing.T) {
	svc, repo, _, pub := newService(t)
	contracts := []application.PriceOptionCommand{
		{Symbol: "A", OptionType: "CALL", StrikePrice: 100, Maturity: 1, UnderlyingPrice: 100, Volatility: 0.2, RiskFreeRate: 0.05, PricingModel: "BlackScholes"},
		{Symbol: "B", OptionType: "PUT", StrikePrice: 0, Maturity: 1, UnderlyingPrice: 100, Volatility: 0.2, RiskFreeRate: 0.05, PricingModel: "BlackScholes"},
		{Symbol: "C", OptionType: "PUT", StrikePrice: 100, Maturity: 1, UnderlyingPrice: 100, Volatility: 0.2, RiskFreeRate: 0.05, PricingModel: "Binomial", Steps: 100},
	}

	out, err := svc.BatchPriceOptions(context.Background(), application.BatchPriceOptionsCommand{Contracts: contracts})
	require.NoError(t, err)
	assert.NotEmpty(t, out.BatchID)
	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, 1, out.Failures[0].Index)
	assert.Equal(t, "B", out.Failures[0].Symbol)
	assert.Equal(t, "A", out.Results[0].Symbol)
	assert.Equal(t, "C", out.Results[1].Symbol)
	assert.Len(t, repo.results, 2)
	assert.Contains(t, pub.types(), domain.BatchPricingCompletedEventType)

	_, err = svc.BatchPriceOptions(context.Background(), application.BatchPriceOptionsCommand{})
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}

func TestGetLatestResultCacheThenRepo(t *testing.T) {
	repo := &fakeRepo{}
	cache := newFakeCache()
	svc := application.NewPricingService(repo, cache, nil, nil, testDefaults)
	ctx := context.Background()

	_, err := svc.GetLatestResult(ctx, "MISSING")
	assert.ErrorIs(t, err, domain.ErrPricingResultNotFound)

	_, err = svc.GetLatestResult(ctx, "")
	assert.ErrorIs(t, err, domain.ErrSymbolRequired)

	stored := &domain.PricingResult{Symbol: "S", PricingModel: domain.PricingModelLSM}
	require.NoError(t, repo.SavePricingResult(ctx, stored))

	got, err := svc.GetLatestResult(ctx, "S")
	require.NoError(t, err)
	assert.Same(t, stored, got)
	assert.Same(t, stored, cache.entries["S"], "repository hit backfills the cache")

	fresher := &domain.PricingResult{Symbol: "S", PricingModel: domain.PricingModelBinomial}
	cache.entries["S"] = fresher
	got, err = svc.GetLatestResult(ctx, "S")
	require.NoError(t, err)
	assert.Same(t, fresher, got)
}

func TestGetHistoryPaginates(t *testing.T) {
	repo := &fakeRepo{}
	svc := application.NewPricingService(repo, nil, nil, nil, testDefaults)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.SavePricingResult(ctx, &domain.PricingResult{Symbol: "H", CalculatedAt: int64(i)}))
	}

	page1, p, err := svc.GetHistory(ctx, application.HistoryQuery{Symbol: "H", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, p.PageSize)
	require.Len(t, page1, 2)
	assert.Equal(t, int64(4), page1[0].CalculatedAt)

	page3, _, err := svc.GetHistory(ctx, application.HistoryQuery{Symbol: "H", Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, int64(0), page3[0].CalculatedAt)

	all, p, err := svc.GetHistory(ctx, application.HistoryQuery{Symbol: "H"})
	require.NoError(t, err)
	assert.Equal(t, testDefaults.HistoryLimit, p.PageSize)
	got := make([]int, 0, len(all))
	for _, r := range all {
		got = append(got, int(r.CalculatedAt))
	}
	assert.True(t, sort.IsSorted(sort.Reverse(sort.IntSlice(got))))
}
