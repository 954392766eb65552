package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/codec"
)

// GRPCHandler gRPC 处理器
// 负责处理与定价相关的 gRPC 请求
type GRPCHandler struct {
	app          *application.PricingService // 定价应用服务
	maxGridCells int
}

// NewGRPCHandler 创建 gRPC 处理器实例
func NewGRPCHandler(app *application.PricingService, maxGridCells int) *GRPCHandler {
	return &GRPCHandler{app: app, maxGridCells: maxGridCells}
}

// PriceGrid 在请求携带的价格网格上做 LSM 定价
func (h *GRPCHandler) PriceGrid(ctx context.Context, req *PriceGridRequest) (*PriceGridResponse, error) {
	var (
		grid *domain.PathGrid
		err  error
	)
	switch {
	case len(req.EncodedGrid) > 0 && len(req.Grid) > 0:
		return nil, status.Error(codes.InvalidArgument, "grid and encoded_grid are mutually exclusive")
	case len(req.EncodedGrid) > 0:
		grid, err = codec.Decode(req.EncodedGrid, h.maxGridCells)
	default:
		grid, err = domain.NewPathGridFromRows(req.Grid)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	outcome, err := h.app.PriceGrid(ctx, application.PriceGridCommand{
		Symbol:      req.Symbol,
		OptionType:  req.OptionType,
		Grid:        grid,
		Strike:      req.Strike,
		Rate:        req.Rate,
		Maturity:    req.Maturity,
		Degree:      req.Degree,
		Diagnostics: req.Diagnostics,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &PriceGridResponse{
		Result:             toProto(outcome.Result),
		CILower:            outcome.Estimate.CILower,
		CIUpper:            outcome.Estimate.CIUpper,
		SkippedRegressions: outcome.SkippedRegressions,
	}
	for _, r := range outcome.Reports {
		resp.Reports = append(resp.Reports, StepReport{
			Step:         r.Step,
			InTheMoney:   r.InTheMoney,
			Regressed:    r.Regressed,
			Exercised:    r.Exercised,
			Coefficients: r.Coefficients,
		})
	}
	return resp, nil
}

// PriceOption 期权定价
func (h *GRPCHandler) PriceOption(ctx context.Context, req *PriceOptionRequest) (*PriceOptionResponse, error) {
	result, err := h.app.PriceOption(ctx, application.PriceOptionCommand{
		Symbol:          req.Symbol,
		OptionType:      req.OptionType,
		StrikePrice:     req.StrikePrice,
		Maturity:        req.Maturity,
		ExpiryDate:      req.ExpiryDate,
		UnderlyingPrice: req.UnderlyingPrice,
		Volatility:      req.Volatility,
		RiskFreeRate:    req.RiskFreeRate,
		DividendYield:   req.DividendYield,
		PricingModel:    req.PricingModel,
		Paths:           req.Paths,
		Steps:           req.Steps,
		Degree:          req.Degree,
		Seed:            req.Seed,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &PriceOptionResponse{Result: toProto(result)}, nil
}

// GetLatestResult 获取最新定价结果
func (h *GRPCHandler) GetLatestResult(ctx context.Context, req *GetLatestResultRequest) (*GetLatestResultResponse, error) {
	result, err := h.app.GetLatestResult(ctx, req.Symbol)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetLatestResultResponse{Result: toProto(result)}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrPricingResultNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func toProto(r *domain.PricingResult) *PricingResult {
	if r == nil {
		return nil
	}
	return &PricingResult{
		Symbol:          r.Symbol,
		OptionType:      string(r.OptionType),
		PricingModel:    string(r.PricingModel),
		Price:           r.OptionPrice.InexactFloat64(),
		StdError:        r.StdError.InexactFloat64(),
		StrikePrice:     r.StrikePrice.InexactFloat64(),
		UnderlyingPrice: r.UnderlyingPrice.InexactFloat64(),
		Maturity:        r.Maturity,
		Delta:           r.Delta.InexactFloat64(),
		Gamma:           r.Gamma.InexactFloat64(),
		Theta:           r.Theta.InexactFloat64(),
		Vega:            r.Vega.InexactFloat64(),
		Rho:             r.Rho.InexactFloat64(),
		Paths:           r.Paths,
		Steps:           r.Steps,
		Degree:          r.Degree,
		CalculatedAt:    r.CalculatedAt,
	}
}
