package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// PricingResultModel 定价结果数据库模型，金额列以 decimal 字符串存储
type PricingResultModel struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
	Symbol          string    `gorm:"column:symbol;type:varchar(32);index:idx_symbol_calc,priority:1;not null"`
	OptionType      string    `gorm:"column:option_type;type:varchar(8);not null"`
	StrikePrice     string    `gorm:"column:strike_price;type:decimal(32,18);not null"`
	Maturity        float64   `gorm:"column:maturity"`
	OptionPrice     string    `gorm:"column:option_price;type:decimal(32,18);not null"`
	UnderlyingPrice string    `gorm:"column:underlying_price;type:decimal(32,18);not null"`
	StdError        string    `gorm:"column:std_error;type:decimal(32,18)"`
	Delta           string    `gorm:"column:delta;type:decimal(32,18)"`
	Gamma           string    `gorm:"column:gamma;type:decimal(32,18)"`
	Theta           string    `gorm:"column:theta;type:decimal(32,18)"`
	Vega            string    `gorm:"column:vega;type:decimal(32,18)"`
	Rho             string    `gorm:"column:rho;type:decimal(32,18)"`
	Paths           int       `gorm:"column:paths"`
	Steps           int       `gorm:"column:steps"`
	Degree          int       `gorm:"column:degree"`
	CalculatedAt    int64     `gorm:"column:calculated_at;type:bigint;not null;index:idx_symbol_calc,priority:2"`
	PricingModel    string    `gorm:"column:pricing_model;type:varchar(32)"`
}

func (PricingResultModel) TableName() string { return "pricing_results" }

// mapping helpers

func toPricingResultModel(res *domain.PricingResult) *PricingResultModel {
	if res == nil {
		return nil
	}
	return &PricingResultModel{
		ID:              res.ID,
		CreatedAt:       res.CreatedAt,
		UpdatedAt:       res.UpdatedAt,
		Symbol:          res.Symbol,
		OptionType:      string(res.OptionType),
		StrikePrice:     res.StrikePrice.String(),
		Maturity:        res.Maturity,
		OptionPrice:     res.OptionPrice.String(),
		UnderlyingPrice: res.UnderlyingPrice.String(),
		StdError:        res.StdError.String(),
		Delta:           res.Delta.String(),
		Gamma:           res.Gamma.String(),
		Theta:           res.Theta.String(),
		Vega:            res.Vega.String(),
		Rho:             res.Rho.String(),
		Paths:           res.Paths,
		Steps:           res.Steps,
		Degree:          res.Degree,
		CalculatedAt:    res.CalculatedAt,
		PricingModel:    string(res.PricingModel),
	}
}

func toPricingResult(m *PricingResultModel) *domain.PricingResult {
	if m == nil {
		return nil
	}
	return &domain.PricingResult{
		ID:              m.ID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Symbol:          m.Symbol,
		OptionType:      domain.OptionType(m.OptionType),
		StrikePrice:     parseDecimal(m.StrikePrice),
		Maturity:        m.Maturity,
		OptionPrice:     parseDecimal(m.OptionPrice),
		UnderlyingPrice: parseDecimal(m.UnderlyingPrice),
		StdError:        parseDecimal(m.StdError),
		Greeks: domain.Greeks{
			Delta: parseDecimal(m.Delta),
			Gamma: parseDecimal(m.Gamma),
			Theta: parseDecimal(m.Theta),
			Vega:  parseDecimal(m.Vega),
			Rho:   parseDecimal(m.Rho),
		},
		Paths:        m.Paths,
		Steps:        m.Steps,
		Degree:       m.Degree,
		CalculatedAt: m.CalculatedAt,
		PricingModel: domain.PricingModel(m.PricingModel),
	}
}

// parseDecimal 空串或非法值视为 0
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
