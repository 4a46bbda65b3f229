package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
)

// daysPerYear 到期时间折算使用的年天数
const daysPerYear = 365.0

// ContractParams 期权合约与市场参数
// TimeToExpiry 为年化期限，未提供时由 ExpiryDate（毫秒时间戳）折算。
// CostOfCarry 未提供时按 r - DividendYield 推导。
type ContractParams struct {
	OptionType      string
	UnderlyingPrice float64
	StrikePrice     float64
	TimeToExpiry    float64
	ExpiryDate      int64
	InterestRate    float64
	CostOfCarry     *float64
	DividendYield   float64
}

// PriceOptionCommand 期权定价命令
type PriceOptionCommand struct {
	Symbol string
	ContractParams
	Volatility float64
}

// SolveImpliedVolCommand 隐含波动率求解命令
type SolveImpliedVolCommand struct {
	Symbol string
	ContractParams
	// OptionPrice 市场观察到的期权价格
	OptionPrice float64
}

// VegaQuery Vega 查询
type VegaQuery struct {
	ContractParams
	Volatility float64
}

// GreeksQuery 希腊字母查询
type GreeksQuery struct {
	ContractParams
	Volatility float64
}

// VegaDTO Vega 计算结果
type VegaDTO struct {
	Vega         float64 `json:"vega"`
	TimeToExpiry float64 `json:"time_to_expiry"`
}

// GreeksDTO 希腊字母计算结果
type GreeksDTO struct {
	OptionType   domain.OptionType `json:"option_type"`
	TimeToExpiry float64           `json:"time_to_expiry"`
	*domain.Greeks
}

// ExpiryToYears 将到期时间折算为年化期限，一年按 365 天计
func ExpiryToYears(expiry, now time.Time) float64 {
	return expiry.Sub(now).Hours() / 24 / daysPerYear
}

// resolve 解析期权类型并组装领域输入，数值校验交给领域函数
func (p ContractParams) resolve(volatility float64, now time.Time) (domain.OptionType, domain.MarketInputs, domain.RateInputs, error) {
	optionType, err := domain.ParseOptionType(p.OptionType)
	if err != nil {
		return "", domain.MarketInputs{}, domain.RateInputs{}, err
	}

	t := p.TimeToExpiry
	if t == 0 && p.ExpiryDate != 0 {
		t = ExpiryToYears(time.UnixMilli(p.ExpiryDate), now)
	}

	rates := domain.CarryFromDividendYield(p.InterestRate, p.DividendYield)
	if p.CostOfCarry != nil {
		rates.CostOfCarry = *p.CostOfCarry
	}

	market := domain.MarketInputs{
		AssetPrice:   p.UnderlyingPrice,
		StrikePrice:  p.StrikePrice,
		TimeToExpiry: t,
		Volatility:   volatility,
	}
	return optionType, market, rates, nil
}

func requireSymbol(symbol string) (string, error) {
	s := strings.TrimSpace(symbol)
	if s == "" {
		return "", fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	return s, nil
}
