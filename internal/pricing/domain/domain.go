// 包 定价服务的领域模型：广义 Black-Scholes-Merton (GBSM) 定价、Vega 与隐含波动率求解。
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidOptionType 期权类型不是 call/put
	ErrInvalidOptionType = errors.New("invalid option type")
	// ErrInvalidInput 输入使公式在数学上无定义（非正价格、期限、波动率等）
	ErrInvalidInput = errors.New("invalid pricing input")
	// ErrNotConverged 隐含波动率迭代在达到容差前停止
	ErrNotConverged = errors.New("implied volatility did not converge")
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("pricing record not found")
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL" // 看涨期权
	OptionTypePut  OptionType = "PUT"  // 看跌期权
)

// ParseOptionType 在边界处解析期权类型，大小写不敏感，接受 c/call/p/put。
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "call":
		return OptionTypeCall, nil
	case "p", "put":
		return OptionTypePut, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOptionType, s)
	}
}

// Valid 是否为已知类型
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

func (t OptionType) String() string {
	return string(t)
}

// MarketInputs 市场与合约参数
type MarketInputs struct {
	AssetPrice   float64 // 标的资产价格
	StrikePrice  float64 // 执行价格
	TimeToExpiry float64 // 到期时间 (年)
	Volatility   float64 // 年化波动率，隐含波动率求解时忽略
}

// RateInputs 利率参数。CostOfCarry 由调用方给出，通常为 InterestRate - 连续股息率。
type RateInputs struct {
	InterestRate float64
	CostOfCarry  float64
}

// CarryFromDividendYield 由无风险利率和连续股息率构造 RateInputs
func CarryFromDividendYield(rate, dividendYield float64) RateInputs {
	return RateInputs{InterestRate: rate, CostOfCarry: rate - dividendYield}
}

// Validate 校验所有输入严格为正且有限
func (m MarketInputs) Validate() error {
	if err := m.validateContract(); err != nil {
		return err
	}
	if !positive(m.Volatility) {
		return fmt.Errorf("%w: volatility must be positive, got %v", ErrInvalidInput, m.Volatility)
	}
	return nil
}

// validateContract 只校验价格与期限，隐含波动率求解不需要波动率
func (m MarketInputs) validateContract() error {
	if !positive(m.AssetPrice) {
		return fmt.Errorf("%w: asset price must be positive, got %v", ErrInvalidInput, m.AssetPrice)
	}
	if !positive(m.StrikePrice) {
		return fmt.Errorf("%w: strike price must be positive, got %v", ErrInvalidInput, m.StrikePrice)
	}
	if !positive(m.TimeToExpiry) {
		return fmt.Errorf("%w: time to expiry must be positive, got %v", ErrInvalidInput, m.TimeToExpiry)
	}
	return nil
}

func (r RateInputs) validate() error {
	if math.IsNaN(r.InterestRate) || math.IsInf(r.InterestRate, 0) ||
		math.IsNaN(r.CostOfCarry) || math.IsInf(r.CostOfCarry, 0) {
		return fmt.Errorf("%w: rates must be finite", ErrInvalidInput)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
