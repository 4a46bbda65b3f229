package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"
)

// stdNormal 标准正态分布，CDF 基于 erfc
var stdNormal = distuv.UnitNormal

// ModelGBSM 广义 Black-Scholes-Merton 模型名称
const ModelGBSM = "GeneralizedBlackScholes"

// gbsmTerms 定价与希腊字母共用的中间量
type gbsmTerms struct {
	d1       float64
	d2       float64
	sqrtT    float64
	carry    float64 // exp((b-r)T)
	discount float64 // exp(-rT)
}

func newTerms(m MarketInputs, r RateInputs, vol float64) gbsmTerms {
	sqrtT := math.Sqrt(m.TimeToExpiry)
	d1 := (math.Log(m.AssetPrice/m.StrikePrice) + (r.CostOfCarry+vol*vol/2)*m.TimeToExpiry) / (vol * sqrtT)
	return gbsmTerms{
		d1:       d1,
		d2:       d1 - vol*sqrtT,
		sqrtT:    sqrtT,
		carry:    math.Exp((r.CostOfCarry - r.InterestRate) * m.TimeToExpiry),
		discount: math.Exp(-r.InterestRate * m.TimeToExpiry),
	}
}

// gbsmPrice 不做校验的定价公式，供求解器在迭代中调用
func gbsmPrice(t OptionType, m MarketInputs, r RateInputs, vol float64) float64 {
	x := newTerms(m, r, vol)
	if t == OptionTypeCall {
		return m.AssetPrice*x.carry*stdNormal.CDF(x.d1) - m.StrikePrice*x.discount*stdNormal.CDF(x.d2)
	}
	return -m.AssetPrice*x.carry*stdNormal.CDF(-x.d1) + m.StrikePrice*x.discount*stdNormal.CDF(-x.d2)
}

// gbsmVega 每 1 个百分点波动率变化对应的价格变化
func gbsmVega(m MarketInputs, r RateInputs, vol float64) float64 {
	x := newTerms(m, r, vol)
	return m.AssetPrice * x.carry * stdNormal.Prob(x.d1) * x.sqrtT / 100
}

// Price 计算欧式期权的 GBSM 理论价格。
// CostOfCarry 统一了股票 (b=r)、连续股息 (b=r-q)、期货 (b=0) 与外汇 (b=r-rf) 期权。
func Price(optionType OptionType, market MarketInputs, rates RateInputs) (float64, error) {
	if !optionType.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOptionType, string(optionType))
	}
	if err := market.Validate(); err != nil {
		return 0, err
	}
	if err := rates.validate(); err != nil {
		return 0, err
	}
	return gbsmPrice(optionType, market, rates, market.Volatility), nil
}

// Vega 计算价格对波动率的一阶导数，按 1.00 = 100% 缩放后除以 100。
// 看涨与看跌的 Vega 相同，因此不需要期权类型。
func Vega(market MarketInputs, rates RateInputs) (float64, error) {
	if err := market.Validate(); err != nil {
		return 0, err
	}
	if err := rates.validate(); err != nil {
		return 0, err
	}
	return gbsmVega(market, rates, market.Volatility), nil
}

// Greeks 希腊字母
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"` // 每自然日
	Vega  decimal.Decimal `json:"vega"`  // 每 1% 波动率
	Rho   decimal.Decimal `json:"rho"`   // 每 1% 利率
}

// CalculateGreeks 计算 GBSM 希腊字母。
// Rho 假定持有成本随利率同步变动 (b = r - q，q 不变)；期货期权 (b=0) 时 Rho = -T*价格。
func CalculateGreeks(optionType OptionType, market MarketInputs, rates RateInputs) (*Greeks, error) {
	price, err := Price(optionType, market, rates)
	if err != nil {
		return nil, err
	}

	s, k, t, vol := market.AssetPrice, market.StrikePrice, market.TimeToExpiry, market.Volatility
	b, r := rates.CostOfCarry, rates.InterestRate
	x := newTerms(market, rates, vol)
	pdf := stdNormal.Prob(x.d1)

	gamma := x.carry * pdf / (s * vol * x.sqrtT)
	vega := s * x.carry * pdf * x.sqrtT / 100
	decay := -s * x.carry * pdf * vol / (2 * x.sqrtT)

	var delta, theta, rho float64
	if optionType == OptionTypeCall {
		delta = x.carry * stdNormal.CDF(x.d1)
		theta = decay - (b-r)*s*x.carry*stdNormal.CDF(x.d1) - r*k*x.discount*stdNormal.CDF(x.d2)
		rho = t * k * x.discount * stdNormal.CDF(x.d2)
	} else {
		delta = x.carry * (stdNormal.CDF(x.d1) - 1)
		theta = decay + (b-r)*s*x.carry*stdNormal.CDF(-x.d1) + r*k*x.discount*stdNormal.CDF(-x.d2)
		rho = -t * k * x.discount * stdNormal.CDF(-x.d2)
	}
	if b == 0 {
		rho = -t * price
	}

	return &Greeks{
		Delta: decimal.NewFromFloat(delta),
		Gamma: decimal.NewFromFloat(gamma),
		Theta: decimal.NewFromFloat(theta / 365),
		Vega:  decimal.NewFromFloat(vega),
		Rho:   decimal.NewFromFloat(rho / 100),
	}, nil
}
