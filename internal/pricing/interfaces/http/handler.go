package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/codec"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/response"
)

// PricingHandler 定价 HTTP 处理器，请求转换为应用层命令
type PricingHandler struct {
	app          *application.PricingService
	maxBodyBytes int64
	maxGridCells int
}

// NewPricingHandler maxBodyBytes 为 0 时不限制请求体，maxGridCells 限制二进制网格解码
func NewPricingHandler(app *application.PricingService, maxBodyBytes int64, maxGridCells int) *PricingHandler {
	return &PricingHandler{app: app, maxBodyBytes: maxBodyBytes, maxGridCells: maxGridCells}
}

// RegisterRoutes 在 /api/v1/pricing 下注册全部路由
func (h *PricingHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/pricing")
	{
		api.POST("/american/grid", h.PriceGrid)
		api.POST("/option/price", h.PriceOption)
		api.POST("/option/batch", h.BatchPriceOptions)
		api.GET("/results/:symbol", h.GetLatestResult)
		api.GET("/results/:symbol/history", h.GetHistory)
	}
}

// GridPricingRequest 网格定价请求（JSON 形式）
type GridPricingRequest struct {
	Symbol      string      `json:"symbol" binding:"required"`
	OptionType  string      `json:"option_type" binding:"required"`
	Strike      float64     `json:"strike"`
	Rate        float64     `json:"rate"`
	Maturity    float64     `json:"maturity"`
	Degree      *int        `json:"degree"`
	Diagnostics bool        `json:"diagnostics"`
	Grid        [][]float64 `json:"grid" binding:"required"`
}

// OptionContractRequest 期权合约请求
type OptionContractRequest struct {
	Symbol      string     `json:"symbol" binding:"required"`
	Type        string     `json:"type" binding:"required"`
	StrikePrice float64    `json:"strike_price" binding:"required"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	// Maturity 到期年限，优先于 ExpiryDate
	Maturity float64 `json:"maturity"`
}

// PricingRequest 定价请求
type PricingRequest struct {
	Contract        OptionContractRequest `json:"contract" binding:"required"`
	UnderlyingPrice float64               `json:"underlying_price" binding:"required"`
	Volatility      float64               `json:"volatility"`
	RiskFreeRate    float64               `json:"risk_free_rate"`
	DividendYield   float64               `json:"dividend_yield"`
	PricingModel    string                `json:"pricing_model"`
	Paths           int                   `json:"paths"`
	Steps           int                   `json:"steps"`
	Degree          *int                  `json:"degree"`
	Seed            *uint64               `json:"seed"`
}

// BatchPricingRequest 批量定价请求
type BatchPricingRequest struct {
	BatchID   string           `json:"batch_id"`
	Contracts []PricingRequest `json:"contracts" binding:"required,min=1,dive"`
}

func (r PricingRequest) toCommand() application.PriceOptionCommand {
	cmd := application.PriceOptionCommand{
		Symbol:          r.Contract.Symbol,
		OptionType:      r.Contract.Type,
		StrikePrice:     r.Contract.StrikePrice,
		Maturity:        r.Contract.Maturity,
		UnderlyingPrice: r.UnderlyingPrice,
		Volatility:      r.Volatility,
		RiskFreeRate:    r.RiskFreeRate,
		DividendYield:   r.DividendYield,
		PricingModel:    r.PricingModel,
		Paths:           r.Paths,
		Steps:           r.Steps,
		Degree:          r.Degree,
		Seed:            r.Seed,
	}
	if r.Contract.ExpiryDate != nil {
		cmd.ExpiryDate = r.Contract.ExpiryDate.UnixMilli()
	}
	return cmd
}

// PriceGrid 在上传的价格网格上定价，支持 JSON 与二进制 (application/x-lsm-grid) 两种格式
func (h *PricingHandler) PriceGrid(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	var cmd application.PriceGridCommand
	if c.ContentType() == codec.ContentType {
		parsed, err := h.gridCommandFromBinary(c)
		if err != nil {
			h.writeError(c, err)
			return
		}
		cmd = parsed
	} else {
		var req GridPricingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeError(c, bindError(err))
			return
		}
		grid, err := domain.NewPathGridFromRows(req.Grid)
		if err != nil {
			h.writeError(c, err)
			return
		}
		cmd = application.PriceGridCommand{
			Symbol:      req.Symbol,
			OptionType:  req.OptionType,
			Grid:        grid,
			Strike:      req.Strike,
			Rate:        req.Rate,
			Maturity:    req.Maturity,
			Degree:      req.Degree,
			Diagnostics: req.Diagnostics,
		}
	}

	outcome, err := h.app.PriceGrid(c.Request.Context(), cmd)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to price grid", "symbol", cmd.Symbol, "error", err)
		h.writeError(c, err)
		return
	}
	response.Success(c, outcome)
}

// gridCommandFromBinary 合约参数来自 query，网格来自请求体
func (h *PricingHandler) gridCommandFromBinary(c *gin.Context) (application.PriceGridCommand, error) {
	var cmd application.PriceGridCommand
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return cmd, err
	}
	grid, err := codec.Decode(body, h.maxGridCells)
	if err != nil {
		return cmd, err
	}

	cmd = application.PriceGridCommand{
		Symbol:      c.Query("symbol"),
		OptionType:  c.Query("option_type"),
		Grid:        grid,
		Diagnostics: c.Query("diagnostics") == "true",
	}
	for name, dst := range map[string]*float64{"strike": &cmd.Strike, "rate": &cmd.Rate, "maturity": &cmd.Maturity} {
		if raw := c.Query(name); raw != "" {
			if *dst, err = strconv.ParseFloat(raw, 64); err != nil {
				return cmd, fmt.Errorf("%w: query %s: %v", domain.ErrInvalidArgument, name, err)
			}
		}
	}
	if raw := c.Query("degree"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			return cmd, fmt.Errorf("%w: query degree: %v", domain.ErrInvalidArgument, err)
		}
		cmd.Degree = &d
	}
	return cmd, nil
}

// PriceOption 期权定价
func (h *PricingHandler) PriceOption(c *gin.Context) {
	var req PricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	result, err := h.app.PriceOption(c.Request.Context(), req.toCommand())
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to calculate option price", "symbol", req.Contract.Symbol, "error", err)
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// BatchPriceOptions 批量定价
func (h *PricingHandler) BatchPriceOptions(c *gin.Context) {
	var req BatchPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	cmd := application.BatchPriceOptionsCommand{BatchID: req.BatchID}
	for _, r := range req.Contracts {
		cmd.Contracts = append(cmd.Contracts, r.toCommand())
	}

	result, err := h.app.BatchPriceOptions(c.Request.Context(), cmd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// GetLatestResult 获取最新定价结果
func (h *PricingHandler) GetLatestResult(c *gin.Context) {
	result, err := h.app.GetLatestResult(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// GetHistory 分页获取历史定价结果
func (h *PricingHandler) GetHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	results, p, err := h.app.GetHistory(c.Request.Context(), application.HistoryQuery{
		Symbol:   c.Param("symbol"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"results":    results,
		"pagination": p,
	})
}

func (h *PricingHandler) writeError(c *gin.Context, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large", err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid argument", err.Error())
	case errors.Is(err, domain.ErrPricingResultNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, "pricing result not found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.ErrorWithStatus(c, http.StatusGatewayTimeout, "pricing timed out", err.Error())
	case errors.Is(err, context.Canceled):
		response.ErrorWithStatus(c, 499, "request cancelled", err.Error())
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// bindError 请求体解析错误归入参数错误，超限错误原样保留
func bindError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
}
