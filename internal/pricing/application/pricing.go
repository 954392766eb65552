// Package application 编排定价命令与查询：参数默认值、事务、Outbox 事件、缓存与指标
package application

import (
	"context"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/utils"
)

// PricingService 定价门面服务。
type PricingService struct {
	Command *PricingCommandService
	Query   *PricingQueryService
}

// NewPricingService 构造函数。
func NewPricingService(repo domain.PricingRepository, cache domain.PricingCache, publisher domain.EventPublisher, recorder metrics.Recorder, defaults Defaults) *PricingService {
	return &PricingService{
		Command: NewPricingCommandService(repo, cache, publisher, recorder, defaults),
		Query:   NewPricingQueryService(repo, cache, recorder, defaults.HistoryLimit),
	}
}

// --- Command Facade ---

func (s *PricingService) PriceGrid(ctx context.Context, cmd PriceGridCommand) (*PriceGridOutcome, error) {
	return s.Command.PriceGrid(ctx, cmd)
}

func (s *PricingService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (*domain.PricingResult, error) {
	return s.Command.PriceOption(ctx, cmd)
}

func (s *PricingService) BatchPriceOptions(ctx context.Context, cmd BatchPriceOptionsCommand) (*BatchPricingResult, error) {
	return s.Command.BatchPriceOptions(ctx, cmd)
}

// --- Query Facade ---

func (s *PricingService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	return s.Query.GetLatestResult(ctx, symbol)
}

func (s *PricingService) GetHistory(ctx context.Context, q HistoryQuery) ([]*domain.PricingResult, utils.Pagination, error) {
	return s.Query.GetHistory(ctx, q)
}
