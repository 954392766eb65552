package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/utils"
)

var tracer = otel.Tracer("github.com/wyfcoding/optionpricing/internal/pricing/application")

// PricingCommandService 处理定价相关的命令操作
// 定价结果与领域事件在同一事务内落库（Outbox），缓存写入尽力而为
type PricingCommandService struct {
	repo      domain.PricingRepository
	cache     domain.PricingCache
	publisher domain.EventPublisher
	recorder  metrics.Recorder
	defaults  Defaults
	now       func() time.Time
}

// NewPricingCommandService 创建新的 PricingCommandService 实例，cache/publisher 可为 nil
func NewPricingCommandService(repo domain.PricingRepository, cache domain.PricingCache, publisher domain.EventPublisher, recorder metrics.Recorder, defaults Defaults) *PricingCommandService {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &PricingCommandService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		recorder:  recorder,
		defaults:  defaults,
		now:       time.Now,
	}
}

// PriceGrid 在调用方提供的网格上做 LSM 定价并保存结果
func (c *PricingCommandService) PriceGrid(ctx context.Context, cmd PriceGridCommand) (outcome *PriceGridOutcome, err error) {
	ctx, span := tracer.Start(ctx, "PricingCommandService.PriceGrid", trace.WithAttributes(
		attribute.String("pricing.symbol", cmd.Symbol),
	))
	start := time.Now()
	defer func() { c.finish(span, domain.PricingModelLSM, start, err) }()

	if cmd.Symbol == "" {
		return nil, domain.ErrSymbolRequired
	}
	optType, err := domain.ParseOptionType(cmd.OptionType)
	if err != nil {
		return nil, err
	}
	if cmd.Grid == nil {
		return nil, domain.ErrEmptyGrid
	}
	if !finite(cmd.Strike, cmd.Rate, cmd.Maturity) {
		return nil, fmt.Errorf("%w: strike, rate and maturity must be finite", domain.ErrInvalidArgument)
	}
	if err = c.checkGridSize(cmd.Grid.Paths(), cmd.Grid.Steps()); err != nil {
		return nil, err
	}
	degree := c.degree(cmd.Degree)
	span.SetAttributes(
		attribute.Int("lsm.paths", cmd.Grid.Paths()),
		attribute.Int("lsm.steps", cmd.Grid.Steps()),
		attribute.Int("lsm.degree", degree),
	)

	lsm, err := domain.RunLSMContext(ctx, cmd.Grid, domain.LSMParams{
		Strike:   cmd.Strike,
		Rate:     cmd.Rate,
		Maturity: cmd.Maturity,
		IsCall:   optType.IsCall(),
		Degree:   degree,
	})
	if err != nil {
		c.publishFailure(ctx, cmd.Symbol, optType, cmd.Strike, domain.PricingModelLSM, err)
		return nil, err
	}
	c.recorder.RecordLSM(lsm.Paths, lsm.SkippedRegressions())

	result := &domain.PricingResult{
		Symbol:          cmd.Symbol,
		OptionType:      optType,
		StrikePrice:     decimal.NewFromFloat(cmd.Strike),
		Maturity:        cmd.Maturity,
		OptionPrice:     decimal.NewFromFloat(lsm.Price),
		UnderlyingPrice: decimal.NewFromFloat(cmd.Grid.At(0, 0)),
		StdError:        decimal.NewFromFloat(lsm.Estimate.StdErr),
		Paths:           lsm.Paths,
		Steps:           lsm.Steps,
		Degree:          degree,
		CalculatedAt:    c.now().UnixMilli(),
		PricingModel:    domain.PricingModelLSM,
	}
	event := domain.OptionPricedEvent{
		Symbol:          cmd.Symbol,
		OptionType:      optType,
		StrikePrice:     cmd.Strike,
		Maturity:        cmd.Maturity,
		OptionPrice:     lsm.Price,
		StdError:        lsm.Estimate.StdErr,
		UnderlyingPrice: cmd.Grid.At(0, 0),
		RiskFreeRate:    cmd.Rate,
		PricingModel:    domain.PricingModelLSM,
		Paths:           lsm.Paths,
		Steps:           lsm.Steps,
		Degree:          degree,
		CalculatedAt:    result.CalculatedAt,
		OccurredOn:      c.now(),
	}
	if err = c.persist(ctx, result, outboxEvent{domain.OptionPricedEventType, event}); err != nil {
		return nil, err
	}

	outcome = &PriceGridOutcome{
		Result:             result,
		Estimate:           lsm.Estimate,
		SkippedRegressions: lsm.SkippedRegressions(),
	}
	if cmd.Diagnostics {
		outcome.Reports = lsm.Reports
	}
	return outcome, nil
}

// PriceOption 期权定价，按 PricingModel 分派到 LSM、Black-Scholes 或 CRR 二叉树
func (c *PricingCommandService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (result *domain.PricingResult, err error) {
	ctx, span := tracer.Start(ctx, "PricingCommandService.PriceOption", trace.WithAttributes(
		attribute.String("pricing.symbol", cmd.Symbol),
		attribute.String("pricing.model", cmd.PricingModel),
	))
	start := time.Now()
	model := domain.PricingModel(cmd.PricingModel)
	defer func() { c.finish(span, model, start, err) }()

	if cmd.Symbol == "" {
		return nil, domain.ErrSymbolRequired
	}
	if model, err = domain.ParsePricingModel(cmd.PricingModel); err != nil {
		return nil, err
	}
	optType, err := domain.ParseOptionType(cmd.OptionType)
	if err != nil {
		return nil, err
	}

	maturity := cmd.Maturity
	if maturity == 0 && cmd.ExpiryDate > 0 {
		maturity = yearsUntil(cmd.ExpiryDate, c.now())
	}
	if !finite(cmd.UnderlyingPrice, cmd.StrikePrice, maturity, cmd.RiskFreeRate, cmd.DividendYield, cmd.Volatility) {
		return nil, fmt.Errorf("%w: option parameters must be finite", domain.ErrInvalidArgument)
	}

	result = &domain.PricingResult{
		Symbol:          cmd.Symbol,
		OptionType:      optType,
		StrikePrice:     decimal.NewFromFloat(cmd.StrikePrice),
		Maturity:        maturity,
		UnderlyingPrice: decimal.NewFromFloat(cmd.UnderlyingPrice),
		PricingModel:    model,
	}
	var stdErr float64

	switch model {
	case domain.PricingModelBlackScholes:
		input := domain.BlackScholesInput{
			S: cmd.UnderlyingPrice,
			K: cmd.StrikePrice,
			T: maturity,
			R: cmd.RiskFreeRate,
			Q: cmd.DividendYield,
			V: cmd.Volatility,
		}
		if err = input.Validate(); err != nil {
			break
		}
		bs := domain.CalculateBlackScholes(optType, input)
		result.OptionPrice = bs.Price
		result.Greeks = bs.Greeks
	case domain.PricingModelBinomial:
		steps := c.steps(cmd.Steps)
		if c.defaults.MaxTreeSteps > 0 && steps > c.defaults.MaxTreeSteps {
			err = fmt.Errorf("%w: %d > %d", domain.ErrTooManySteps, steps, c.defaults.MaxTreeSteps)
			break
		}
		price, calcErr := domain.AmericanBinomialCRRContext(ctx, domain.BinomialParams{
			S0:     cmd.UnderlyingPrice,
			K:      cmd.StrikePrice,
			T:      maturity,
			R:      cmd.RiskFreeRate,
			Q:      cmd.DividendYield,
			Sigma:  cmd.Volatility,
			Steps:  steps,
			IsCall: optType.IsCall(),
		})
		if calcErr != nil {
			err = calcErr
			break
		}
		result.OptionPrice = decimal.NewFromFloat(price)
		result.Steps = steps
	default:
		paths, steps, degree := c.paths(cmd.Paths), c.steps(cmd.Steps), c.degree(cmd.Degree)
		if err = c.checkGridSize(paths, steps); err != nil {
			break
		}
		seed := c.defaults.Seed
		if cmd.Seed != nil {
			seed = *cmd.Seed
		}
		span.SetAttributes(
			attribute.Int("lsm.paths", paths),
			attribute.Int("lsm.steps", steps),
			attribute.Int("lsm.degree", degree),
		)
		lsm, calcErr := domain.NewLSMPricer(c.defaults.Workers).Price(ctx, domain.AmericanOptionParams{
			S0:     cmd.UnderlyingPrice,
			K:      cmd.StrikePrice,
			T:      maturity,
			R:      cmd.RiskFreeRate,
			Q:      cmd.DividendYield,
			Sigma:  cmd.Volatility,
			IsPut:  !optType.IsCall(),
			Paths:  paths,
			Steps:  steps,
			Degree: degree,
			Seed:   seed,
		})
		if calcErr != nil {
			err = calcErr
			break
		}
		c.recorder.RecordLSM(lsm.Paths, lsm.SkippedRegressions())
		stdErr = lsm.Estimate.StdErr
		result.OptionPrice = decimal.NewFromFloat(lsm.Price)
		result.StdError = decimal.NewFromFloat(stdErr)
		result.Paths, result.Steps, result.Degree = paths, steps, degree
	}
	if err != nil {
		c.publishFailure(ctx, cmd.Symbol, optType, cmd.StrikePrice, model, err)
		return nil, err
	}

	result.CalculatedAt = c.now().UnixMilli()
	events := []outboxEvent{{domain.OptionPricedEventType, domain.OptionPricedEvent{
		Symbol:          cmd.Symbol,
		OptionType:      optType,
		StrikePrice:     cmd.StrikePrice,
		Maturity:        maturity,
		OptionPrice:     result.OptionPrice.InexactFloat64(),
		StdError:        stdErr,
		UnderlyingPrice: cmd.UnderlyingPrice,
		Volatility:      cmd.Volatility,
		RiskFreeRate:    cmd.RiskFreeRate,
		DividendYield:   cmd.DividendYield,
		PricingModel:    model,
		Paths:           result.Paths,
		Steps:           result.Steps,
		Degree:          result.Degree,
		CalculatedAt:    result.CalculatedAt,
		OccurredOn:      c.now(),
	}}}
	if model == domain.PricingModelBlackScholes {
		events = append(events, outboxEvent{domain.GreeksCalculatedEventType, domain.GreeksCalculatedEvent{
			Symbol:          cmd.Symbol,
			OptionType:      optType,
			StrikePrice:     cmd.StrikePrice,
			Maturity:        maturity,
			UnderlyingPrice: cmd.UnderlyingPrice,
			Delta:           result.Delta.InexactFloat64(),
			Gamma:           result.Gamma.InexactFloat64(),
			Theta:           result.Theta.InexactFloat64(),
			Vega:            result.Vega.InexactFloat64(),
			Rho:             result.Rho.InexactFloat64(),
			CalculatedAt:    result.CalculatedAt,
			OccurredOn:      c.now(),
		}})
	}
	if err = c.persist(ctx, result, events...); err != nil {
		return nil, err
	}
	return result, nil
}

// BatchPriceOptions 批量定价，单个合约失败不影响其余合约
func (c *PricingCommandService) BatchPriceOptions(ctx context.Context, cmd BatchPriceOptionsCommand) (*BatchPricingResult, error) {
	if len(cmd.Contracts) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if cmd.BatchID == "" {
		cmd.BatchID = uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "PricingCommandService.BatchPriceOptions", trace.WithAttributes(
		attribute.String("batch.id", cmd.BatchID),
		attribute.Int("batch.size", len(cmd.Contracts)),
	))
	defer span.End()

	results := make([]*domain.PricingResult, len(cmd.Contracts))
	errs := make([]error, len(cmd.Contracts))
	var (
		mu        sync.Mutex
		totalTime time.Duration
	)

	var g errgroup.Group
	g.SetLimit(max(c.defaults.BatchConcurrency, 1))
	for i, contract := range cmd.Contracts {
		g.Go(func() error {
			begin := time.Now()
			results[i], errs[i] = c.PriceOption(ctx, contract)
			mu.Lock()
			totalTime += time.Since(begin)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchPricingResult{BatchID: cmd.BatchID, Results: make([]*domain.PricingResult, 0, len(results))}
	for i, err := range errs {
		if err != nil {
			out.Failures = append(out.Failures, BatchFailure{Index: i, Symbol: cmd.Contracts[i].Symbol, Error: err.Error()})
			continue
		}
		out.Results = append(out.Results, results[i])
	}
	out.SuccessCount = len(out.Results)
	out.FailureCount = len(out.Failures)
	out.AverageTime = totalTime.Seconds() / float64(len(cmd.Contracts))

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, domain.BatchPricingCompletedEventType, cmd.BatchID, domain.BatchPricingCompletedEvent{
			BatchID:        cmd.BatchID,
			Symbols:        extractSymbols(cmd.Contracts),
			TotalContracts: len(cmd.Contracts),
			SuccessCount:   out.SuccessCount,
			FailureCount:   out.FailureCount,
			AverageTime:    out.AverageTime,
			CompletedAt:    c.now().UnixMilli(),
			OccurredOn:     c.now(),
		}); err != nil {
			logger.Warn(ctx, "failed to publish batch completed event", "batch_id", cmd.BatchID, "error", err)
		}
	}
	return out, nil
}

type outboxEvent struct {
	eventType string
	payload   any
}

// persist 保存结果并在同一事务内写入事件，提交后回填缓存
func (c *PricingCommandService) persist(ctx context.Context, result *domain.PricingResult, events ...outboxEvent) error {
	err := c.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := c.repo.SavePricingResult(txCtx, result); err != nil {
			return err
		}
		if c.publisher == nil {
			return nil
		}
		for _, e := range events {
			if err := c.publisher.Publish(txCtx, e.eventType, result.Symbol, e.payload); err != nil {
				return fmt.Errorf("publish %s: %w", e.eventType, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.SetLatest(ctx, result); err != nil {
			logger.Warn(ctx, "failed to cache pricing result", "symbol", result.Symbol, "error", err)
		}
	}
	return nil
}

// publishFailure 计算失败时尽力发布 PricingError 事件
func (c *PricingCommandService) publishFailure(ctx context.Context, symbol string, optType domain.OptionType, strike float64, model domain.PricingModel, cause error) {
	if c.publisher == nil {
		return
	}
	code := "INTERNAL"
	if errors.Is(cause, domain.ErrInvalidArgument) {
		code = "INVALID_ARGUMENT"
	}
	now := c.now()
	if err := c.publisher.Publish(ctx, domain.PricingErrorEventType, symbol, domain.PricingErrorEvent{
		Symbol:       symbol,
		OptionType:   optType,
		StrikePrice:  strike,
		PricingModel: model,
		Error:        cause.Error(),
		ErrorCode:    code,
		OccurredAt:   now.UnixMilli(),
		OccurredOn:   now,
	}); err != nil {
		logger.Warn(ctx, "failed to publish pricing error event", "symbol", symbol, "error", err)
	}
}

func (c *PricingCommandService) finish(span trace.Span, model domain.PricingModel, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, domain.ErrInvalidArgument) {
			status = "invalid"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if model == "" {
		model = "unknown"
	}
	c.recorder.RecordPricing(string(model), status, time.Since(start))
	span.End()
}

// checkGridSize 用除法比较 paths × (steps+1)，避免乘法溢出
func (c *PricingCommandService) checkGridSize(paths, steps int) error {
	limit := c.defaults.MaxGridCells
	if limit <= 0 {
		limit = math.MaxInt
	}
	if steps >= limit || paths > limit/(steps+1) {
		return fmt.Errorf("%w: %d paths × %d steps > %d cells", domain.ErrGridTooLarge, paths, steps, limit)
	}
	return nil
}

func (c *PricingCommandService) degree(d *int) int {
	if d != nil {
		return *d
	}
	return utils.Deref(c.defaults.Degree, domain.DefaultRegressionDegree)
}

func (c *PricingCommandService) paths(n int) int {
	if n > 0 {
		return n
	}
	return max(c.defaults.Paths, 1)
}

func (c *PricingCommandService) steps(n int) int {
	if n > 0 {
		return n
	}
	return max(c.defaults.Steps, 1)
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// extractSymbols 按出现顺序去重提取合约符号
func extractSymbols(contracts []PriceOptionCommand) []string {
	symbols := make([]string, 0, len(contracts))
	seen := make(map[string]bool)
	for _, contract := range contracts {
		if !seen[contract.Symbol] {
			symbols = append(symbols, contract.Symbol)
			seen[contract.Symbol] = true
		}
	}
	return symbols
}
