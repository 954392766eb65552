package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/utils"
)

// PricingQueryService 处理所有定价相关的查询操作（Queries）。
type PricingQueryService struct {
	repo         domain.PricingRepository
	cache        domain.PricingCache
	recorder     metrics.Recorder
	historyLimit int
}

// NewPricingQueryService 构造函数，cache 可为 nil。
func NewPricingQueryService(repo domain.PricingRepository, cache domain.PricingCache, recorder metrics.Recorder, historyLimit int) *PricingQueryService {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &PricingQueryService{
		repo:         repo,
		cache:        cache,
		recorder:     recorder,
		historyLimit: historyLimit,
	}
}

// GetLatestResult 获取最新定价结果：先查缓存，未命中查库并回填
func (s *PricingQueryService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	if symbol == "" {
		return nil, domain.ErrSymbolRequired
	}
	ctx, span := tracer.Start(ctx, "PricingQueryService.GetLatestResult", trace.WithAttributes(
		attribute.String("pricing.symbol", symbol),
	))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.GetLatest(ctx, symbol)
		if err != nil {
			logger.Warn(ctx, "pricing cache lookup failed", "symbol", symbol, "error", err)
		} else if cached != nil {
			s.recorder.RecordCache(true)
			return cached, nil
		}
		s.recorder.RecordCache(false)
	}

	result, err := s.repo.GetLatestPricingResult(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.ErrPricingResultNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, result); err != nil {
			logger.Warn(ctx, "failed to backfill pricing cache", "symbol", symbol, "error", err)
		}
	}
	return result, nil
}

// GetHistory 按计算时间倒序分页返回历史结果
func (s *PricingQueryService) GetHistory(ctx context.Context, q HistoryQuery) ([]*domain.PricingResult, utils.Pagination, error) {
	page := utils.NewPagination(q.Page, q.PageSize, s.historyLimit)
	if q.Symbol == "" {
		return nil, page, domain.ErrSymbolRequired
	}
	ctx, span := tracer.Start(ctx, "PricingQueryService.GetHistory", trace.WithAttributes(
		attribute.String("pricing.symbol", q.Symbol),
		attribute.Int("page", page.Page),
	))
	defer span.End()

	results, err := s.repo.GetPricingResultHistory(ctx, q.Symbol, page.Offset(), page.Limit())
	if err != nil {
		return nil, page, err
	}
	return results, page, nil
}
