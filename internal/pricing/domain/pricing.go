package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingResult 定价结果实体
type PricingResult struct {
	ID              uint            `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Symbol          string          `json:"symbol"`
	OptionType      OptionType      `json:"option_type"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	TimeToExpiry    float64         `json:"time_to_expiry"`
	Volatility      float64         `json:"volatility"`
	InterestRate    float64         `json:"interest_rate"`
	CostOfCarry     float64         `json:"cost_of_carry"`
	OptionPrice     decimal.Decimal `json:"option_price"`
	Delta           decimal.Decimal `json:"delta"`
	Gamma           decimal.Decimal `json:"gamma"`
	Theta           decimal.Decimal `json:"theta"`
	Vega            decimal.Decimal `json:"vega"`
	Rho             decimal.Decimal `json:"rho"`
	PricingModel    string          `json:"pricing_model"`
	CalculatedAt    int64           `json:"calculated_at"`
}

// ImpliedVolRecord 隐含波动率求解记录
type ImpliedVolRecord struct {
	ID              uint            `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	Symbol          string          `json:"symbol"`
	OptionType      OptionType      `json:"option_type"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	TimeToExpiry    float64         `json:"time_to_expiry"`
	InterestRate    float64         `json:"interest_rate"`
	CostOfCarry     float64         `json:"cost_of_carry"`
	ObservedPrice   decimal.Decimal `json:"observed_price"`
	Volatility      float64         `json:"volatility"`
	Iterations      int             `json:"iterations"`
	Residual        float64         `json:"residual"`
	Converged       bool            `json:"converged"`
	CalculatedAt    int64           `json:"calculated_at"`
}

// NewPricingResult 由输入和计算值组装定价结果
func NewPricingResult(symbol string, t OptionType, m MarketInputs, r RateInputs, price float64, g *Greeks, at time.Time) *PricingResult {
	res := &PricingResult{
		Symbol:          symbol,
		OptionType:      t,
		UnderlyingPrice: decimal.NewFromFloat(m.AssetPrice),
		StrikePrice:     decimal.NewFromFloat(m.StrikePrice),
		TimeToExpiry:    m.TimeToExpiry,
		Volatility:      m.Volatility,
		InterestRate:    r.InterestRate,
		CostOfCarry:     r.CostOfCarry,
		OptionPrice:     decimal.NewFromFloat(price),
		PricingModel:    ModelGBSM,
		CalculatedAt:    at.UnixMilli(),
	}
	if g != nil {
		res.Delta, res.Gamma, res.Theta, res.Vega, res.Rho = g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho
	}
	return res
}

// NewImpliedVolRecord 组装求解记录
func NewImpliedVolRecord(symbol string, t OptionType, m MarketInputs, r RateInputs, observed float64, res *ImpliedVolResult, at time.Time) *ImpliedVolRecord {
	return &ImpliedVolRecord{
		Symbol:          symbol,
		OptionType:      t,
		UnderlyingPrice: decimal.NewFromFloat(m.AssetPrice),
		StrikePrice:     decimal.NewFromFloat(m.StrikePrice),
		TimeToExpiry:    m.TimeToExpiry,
		InterestRate:    r.InterestRate,
		CostOfCarry:     r.CostOfCarry,
		ObservedPrice:   decimal.NewFromFloat(observed),
		Volatility:      res.Volatility,
		Iterations:      res.Iterations,
		Residual:        res.Residual,
		Converged:       res.Converged,
		CalculatedAt:    at.UnixMilli(),
	}
}
