package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
)

// PricingResultModel 定价结果数据库模型
type PricingResultModel struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
	Symbol          string    `gorm:"column:symbol;type:varchar(32);index:idx_pricing_symbol_calc,priority:1;not null"`
	OptionType      string    `gorm:"column:option_type;type:varchar(8);not null"`
	UnderlyingPrice string    `gorm:"column:underlying_price;type:decimal(32,18);not null"`
	StrikePrice     string    `gorm:"column:strike_price;type:decimal(32,18);not null"`
	TimeToExpiry    float64   `gorm:"column:time_to_expiry;not null"`
	Volatility      float64   `gorm:"column:volatility;not null"`
	InterestRate    float64   `gorm:"column:interest_rate"`
	CostOfCarry     float64   `gorm:"column:cost_of_carry"`
	OptionPrice     string    `gorm:"column:option_price;type:decimal(32,18);not null"`
	Delta           string    `gorm:"column:delta;type:decimal(32,18)"`
	Gamma           string    `gorm:"column:gamma;type:decimal(32,18)"`
	Theta           string    `gorm:"column:theta;type:decimal(32,18)"`
	Vega            string    `gorm:"column:vega;type:decimal(32,18)"`
	Rho             string    `gorm:"column:rho;type:decimal(32,18)"`
	PricingModel    string    `gorm:"column:pricing_model;type:varchar(32)"`
	CalculatedAt    int64     `gorm:"column:calculated_at;type:bigint;index:idx_pricing_symbol_calc,priority:2;not null"`
}

func (PricingResultModel) TableName() string { return "pricing_results" }

// ImpliedVolRecordModel 隐含波动率求解记录数据库模型
type ImpliedVolRecordModel struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	Symbol          string    `gorm:"column:symbol;type:varchar(32);index:idx_iv_symbol_calc,priority:1;not null"`
	OptionType      string    `gorm:"column:option_type;type:varchar(8);not null"`
	UnderlyingPrice string    `gorm:"column:underlying_price;type:decimal(32,18);not null"`
	StrikePrice     string    `gorm:"column:strike_price;type:decimal(32,18);not null"`
	TimeToExpiry    float64   `gorm:"column:time_to_expiry;not null"`
	InterestRate    float64   `gorm:"column:interest_rate"`
	CostOfCarry     float64   `gorm:"column:cost_of_carry"`
	ObservedPrice   string    `gorm:"column:observed_price;type:decimal(32,18);not null"`
	Volatility      float64   `gorm:"column:volatility"`
	Iterations      int       `gorm:"column:iterations"`
	Residual        float64   `gorm:"column:residual"`
	Converged       bool      `gorm:"column:converged;index"`
	CalculatedAt    int64     `gorm:"column:calculated_at;type:bigint;index:idx_iv_symbol_calc,priority:2;not null"`
}

func (ImpliedVolRecordModel) TableName() string { return "implied_vol_records" }

// Models 需要自动迁移的模型
func Models() []any {
	return []any{&PricingResultModel{}, &ImpliedVolRecordModel{}}
}

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
		UnderlyingPrice: res.UnderlyingPrice.String(),
		StrikePrice:     res.StrikePrice.String(),
		TimeToExpiry:    res.TimeToExpiry,
		Volatility:      res.Volatility,
		InterestRate:    res.InterestRate,
		CostOfCarry:     res.CostOfCarry,
		OptionPrice:     res.OptionPrice.String(),
		Delta:           res.Delta.String(),
		Gamma:           res.Gamma.String(),
		Theta:           res.Theta.String(),
		Vega:            res.Vega.String(),
		Rho:             res.Rho.String(),
		PricingModel:    res.PricingModel,
		CalculatedAt:    res.CalculatedAt,
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
		UnderlyingPrice: parseDecimal(m.UnderlyingPrice),
		StrikePrice:     parseDecimal(m.StrikePrice),
		TimeToExpiry:    m.TimeToExpiry,
		Volatility:      m.Volatility,
		InterestRate:    m.InterestRate,
		CostOfCarry:     m.CostOfCarry,
		OptionPrice:     parseDecimal(m.OptionPrice),
		Delta:           parseDecimal(m.Delta),
		Gamma:           parseDecimal(m.Gamma),
		Theta:           parseDecimal(m.Theta),
		Vega:            parseDecimal(m.Vega),
		Rho:             parseDecimal(m.Rho),
		PricingModel:    m.PricingModel,
		CalculatedAt:    m.CalculatedAt,
	}
}

func toImpliedVolRecordModel(rec *domain.ImpliedVolRecord) *ImpliedVolRecordModel {
	if rec == nil {
		return nil
	}
	return &ImpliedVolRecordModel{
		ID:              rec.ID,
		CreatedAt:       rec.CreatedAt,
		Symbol:          rec.Symbol,
		OptionType:      string(rec.OptionType),
		UnderlyingPrice: rec.UnderlyingPrice.String(),
		StrikePrice:     rec.StrikePrice.String(),
		TimeToExpiry:    rec.TimeToExpiry,
		InterestRate:    rec.InterestRate,
		CostOfCarry:     rec.CostOfCarry,
		ObservedPrice:   rec.ObservedPrice.String(),
		Volatility:      rec.Volatility,
		Iterations:      rec.Iterations,
		Residual:        rec.Residual,
		Converged:       rec.Converged,
		CalculatedAt:    rec.CalculatedAt,
	}
}

func toImpliedVolRecord(m *ImpliedVolRecordModel) *domain.ImpliedVolRecord {
	if m == nil {
		return nil
	}
	return &domain.ImpliedVolRecord{
		ID:              m.ID,
		CreatedAt:       m.CreatedAt,
		Symbol:          m.Symbol,
		OptionType:      domain.OptionType(m.OptionType),
		UnderlyingPrice: parseDecimal(m.UnderlyingPrice),
		StrikePrice:     parseDecimal(m.StrikePrice),
		TimeToExpiry:    m.TimeToExpiry,
		InterestRate:    m.InterestRate,
		CostOfCarry:     m.CostOfCarry,
		ObservedPrice:   parseDecimal(m.ObservedPrice),
		Volatility:      m.Volatility,
		Iterations:      m.Iterations,
		Residual:        m.Residual,
		Converged:       m.Converged,
		CalculatedAt:    m.CalculatedAt,
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
