// Package grpc 定价服务的 gRPC 接口：optionpricing.v1.PricingService，消息使用 JSON 编解码
package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "optionpricing.v1.PricingService"

	PriceGridFullMethod       = "/" + ServiceName + "/PriceGrid"
	PriceOptionFullMethod     = "/" + ServiceName + "/PriceOption"
	GetLatestResultFullMethod = "/" + ServiceName + "/GetLatestResult"
)

// PriceGridRequest 网格定价请求；Grid 与 EncodedGrid 二选一，后者为 codec 二进制格式
type PriceGridRequest struct {
	Symbol      string      `json:"symbol"`
	OptionType  string      `json:"option_type"`
	Strike      float64     `json:"strike"`
	Rate        float64     `json:"rate"`
	Maturity    float64     `json:"maturity"`
	Degree      *int        `json:"degree,omitempty"`
	Diagnostics bool        `json:"diagnostics,omitempty"`
	Grid        [][]float64 `json:"grid,omitempty"`
	EncodedGrid []byte      `json:"encoded_grid,omitempty"`
}

// PriceGridResponse 网格定价响应
type PriceGridResponse struct {
	Result             *PricingResult `json:"result"`
	CILower            float64        `json:"ci_lower"`
	CIUpper            float64        `json:"ci_upper"`
	SkippedRegressions int            `json:"skipped_regressions"`
	Reports            []StepReport   `json:"reports,omitempty"`
}

// StepReport 单步回归诊断
type StepReport struct {
	Step         int       `json:"step"`
	InTheMoney   int       `json:"in_the_money"`
	Regressed    bool      `json:"regressed"`
	Exercised    int       `json:"exercised"`
	Coefficients []float64 `json:"coefficients,omitempty"`
}

// PriceOptionRequest 期权定价请求
type PriceOptionRequest struct {
	Symbol          string  `json:"symbol"`
	OptionType      string  `json:"option_type"`
	StrikePrice     float64 `json:"strike_price"`
	Maturity        float64 `json:"maturity"`
	ExpiryDate      int64   `json:"expiry_date,omitempty"`
	UnderlyingPrice float64 `json:"underlying_price"`
	Volatility      float64 `json:"volatility"`
	RiskFreeRate    float64 `json:"risk_free_rate"`
	DividendYield   float64 `json:"dividend_yield"`
	PricingModel    string  `json:"pricing_model"`
	Paths           int     `json:"paths,omitempty"`
	Steps           int     `json:"steps,omitempty"`
	Degree          *int    `json:"degree,omitempty"`
	Seed            *uint64 `json:"seed,omitempty"`
}

// PriceOptionResponse 期权定价响应
type PriceOptionResponse struct {
	Result *PricingResult `json:"result"`
}

// GetLatestResultRequest 查询请求
type GetLatestResultRequest struct {
	Symbol string `json:"symbol"`
}

// GetLatestResultResponse 查询响应
type GetLatestResultResponse struct {
	Result *PricingResult `json:"result"`
}

// PricingResult 定价结果
type PricingResult struct {
	Symbol          string  `json:"symbol"`
	OptionType      string  `json:"option_type"`
	PricingModel    string  `json:"pricing_model"`
	Price           float64 `json:"price"`
	StdError        float64 `json:"std_error"`
	StrikePrice     float64 `json:"strike_price"`
	UnderlyingPrice float64 `json:"underlying_price"`
	Maturity        float64 `json:"maturity"`
	Delta           float64 `json:"delta"`
	Gamma           float64 `json:"gamma"`
	Theta           float64 `json:"theta"`
	Vega            float64 `json:"vega"`
	Rho             float64 `json:"rho"`
	Paths           int     `json:"paths"`
	Steps           int     `json:"steps"`
	Degree          int     `json:"degree"`
	CalculatedAt    int64   `json:"calculated_at"`
}

// PricingServiceServer 服务端接口
type PricingServiceServer interface {
	PriceGrid(context.Context, *PriceGridRequest) (*PriceGridResponse, error)
	PriceOption(context.Context, *PriceOptionRequest) (*PriceOptionResponse, error)
	GetLatestResult(context.Context, *GetLatestResultRequest) (*GetLatestResultResponse, error)
}

// RegisterPricingServiceServer 注册服务
func RegisterPricingServiceServer(s grpc.ServiceRegistrar, srv PricingServiceServer) {
	s.RegisterService(&PricingServiceDesc, srv)
}

// PricingServiceDesc 服务描述
var PricingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PricingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PriceGrid", Handler: priceGridHandler},
		{MethodName: "PriceOption", Handler: priceOptionHandler},
		{MethodName: "GetLatestResult", Handler: getLatestResultHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "optionpricing/v1/pricing.json",
}

func priceGridHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PriceGridRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PricingServiceServer).PriceGrid(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PriceGridFullMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PricingServiceServer).PriceGrid(ctx, req.(*PriceGridRequest))
	})
}

func priceOptionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PriceOptionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PricingServiceServer).PriceOption(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PriceOptionFullMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PricingServiceServer).PriceOption(ctx, req.(*PriceOptionRequest))
	})
}

func getLatestResultHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetLatestResultRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PricingServiceServer).GetLatestResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetLatestResultFullMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PricingServiceServer).GetLatestResult(ctx, req.(*GetLatestResultRequest))
	})
}

// PricingServiceClient 客户端
type PricingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPricingServiceClient 所有调用默认使用 JSON 编解码
func NewPricingServiceClient(cc grpc.ClientConnInterface) *PricingServiceClient {
	return &PricingServiceClient{cc: cc}
}

func (c *PricingServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *PricingServiceClient) PriceGrid(ctx context.Context, in *PriceGridRequest, opts ...grpc.CallOption) (*PriceGridResponse, error) {
	out := new(PriceGridResponse)
	if err := c.invoke(ctx, PriceGridFullMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PricingServiceClient) PriceOption(ctx context.Context, in *PriceOptionRequest, opts ...grpc.CallOption) (*PriceOptionResponse, error) {
	out := new(PriceOptionResponse)
	if err := c.invoke(ctx, PriceOptionFullMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PricingServiceClient) GetLatestResult(ctx context.Context, in *GetLatestResultRequest, opts ...grpc.CallOption) (*GetLatestResultResponse, error) {
	out := new(GetLatestResultResponse)
	if err := c.invoke(ctx, GetLatestResultFullMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
