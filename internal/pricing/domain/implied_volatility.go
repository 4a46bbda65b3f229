package domain

import (
	"fmt"
	"math"
)

const (
	// ImpliedVolTolerance 价格残差容差
	ImpliedVolTolerance = 1e-5
	// MaxIterations 牛顿迭代上限，防止 vega 为零或残差停滞时无法终止
	MaxIterations = 100
	// SeedFloor 初始猜测的下限
	SeedFloor = 0.01
)

// ImpliedVolResult 隐含波动率求解结果
type ImpliedVolResult struct {
	Volatility float64 `json:"volatility"`
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"`
	Converged  bool    `json:"converged"`
}

// SeedVolatility 基于价内程度与期限的初始猜测 sqrt(|2(ln(S/K)+rT)|/T)。
// 结果为 NaN、无穷或低于 SeedFloor 时取 SeedFloor。
func SeedVolatility(market MarketInputs, rates RateInputs) float64 {
	seed := math.Sqrt(math.Abs(2*(math.Log(market.AssetPrice/market.StrikePrice)+rates.InterestRate*market.TimeToExpiry)) / market.TimeToExpiry)
	if math.IsNaN(seed) || math.IsInf(seed, 0) || seed < SeedFloor {
		return SeedFloor
	}
	return seed
}

// ImpliedVolatility 用阻尼牛顿法反解市场价格对应的波动率，market.Volatility 被忽略。
//
// 每一步 sigma -= (price - optionPrice) / (vega * 100)，vega 按百分点缩放，乘 100 还原为单位步长。
// 残差低于 ImpliedVolTolerance 时收敛；任何一步使残差变大时立即停止并保留此前最好的 sigma。
// 牛顿步得到非正的 sigma、vega 为零或非有限值、达到 MaxIterations 时同样停止，返回此前最好的 sigma。
// 未收敛时同时返回结果与包装了 ErrNotConverged 的错误，调用方可用 errors.Is 区分。
func ImpliedVolatility(optionType OptionType, market MarketInputs, rates RateInputs, optionPrice float64) (*ImpliedVolResult, error) {
	if !optionType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOptionType, string(optionType))
	}
	if err := market.validateContract(); err != nil {
		return nil, err
	}
	if err := rates.validate(); err != nil {
		return nil, err
	}
	if !positive(optionPrice) {
		return nil, fmt.Errorf("%w: option price must be positive, got %v", ErrInvalidInput, optionPrice)
	}

	return solveNewton(optionPrice, SeedVolatility(market, rates),
		func(sigma float64) float64 { return gbsmPrice(optionType, market, rates, sigma) },
		func(sigma float64) float64 { return gbsmVega(market, rates, sigma) },
	)
}

// solveNewton 牛顿迭代本体，price 与 vega 为 sigma 的函数
func solveNewton(optionPrice, seed float64, price, vega func(sigma float64) float64) (*ImpliedVolResult, error) {
	sigma := seed
	p := price(sigma)
	v := vega(sigma)
	best := math.Abs(optionPrice - p)

	iterations := 0
	for best >= ImpliedVolTolerance && iterations < MaxIterations {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			break
		}
		next := sigma - (p-optionPrice)/(v*100)
		iterations++
		if !(next > 0) {
			break
		}
		nextPrice := price(next)
		diff := math.Abs(optionPrice - nextPrice)
		// NaN 也走这里
		if !(diff <= best) {
			break
		}
		sigma, p, best = next, nextPrice, diff
		v = vega(sigma)
	}

	res := &ImpliedVolResult{
		Volatility: sigma,
		Iterations: iterations,
		Residual:   best,
		Converged:  best < ImpliedVolTolerance,
	}
	if !res.Converged {
		return res, fmt.Errorf("%w: residual %.3g after %d iterations", ErrNotConverged, best, iterations)
	}
	return res, nil
}
