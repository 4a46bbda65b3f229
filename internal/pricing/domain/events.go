package domain

import (
	"errors"
	"time"
)

const (
	OptionPricedEventType            = "pricing.option_priced"
	ImpliedVolatilitySolvedEventType = "pricing.implied_volatility_solved"
	PricingErrorEventType            = "pricing.error"
)

// OptionPricedEvent 期权定价完成事件
type OptionPricedEvent struct {
	Symbol          string     `json:"symbol"`
	OptionType      OptionType `json:"option_type"`
	StrikePrice     float64    `json:"strike_price"`
	TimeToExpiry    float64    `json:"time_to_expiry"`
	OptionPrice     float64    `json:"option_price"`
	UnderlyingPrice float64    `json:"underlying_price"`
	Volatility      float64    `json:"volatility"`
	InterestRate    float64    `json:"interest_rate"`
	CostOfCarry     float64    `json:"cost_of_carry"`
	Vega            float64    `json:"vega"`
	PricingModel    string     `json:"pricing_model"`
	CalculatedAt    int64      `json:"calculated_at"`
	OccurredOn      time.Time  `json:"occurred_on"`
}

// ImpliedVolatilitySolvedEvent 隐含波动率求解完成事件，未收敛也会发布
type ImpliedVolatilitySolvedEvent struct {
	Symbol          string     `json:"symbol"`
	OptionType      OptionType `json:"option_type"`
	StrikePrice     float64    `json:"strike_price"`
	TimeToExpiry    float64    `json:"time_to_expiry"`
	UnderlyingPrice float64    `json:"underlying_price"`
	ObservedPrice   float64    `json:"observed_price"`
	Volatility      float64    `json:"volatility"`
	Iterations      int        `json:"iterations"`
	Converged       bool       `json:"converged"`
	CalculatedAt    int64      `json:"calculated_at"`
	OccurredOn      time.Time  `json:"occurred_on"`
}

// PricingErrorEvent 定价错误事件
type PricingErrorEvent struct {
	Symbol     string    `json:"symbol"`
	OptionType string    `json:"option_type"`
	Operation  string    `json:"operation"`
	Error      string    `json:"error"`
	ErrorCode  string    `json:"error_code"`
	OccurredAt int64     `json:"occurred_at"`
	OccurredOn time.Time `json:"occurred_on"`
}

// ErrorCode 领域错误对应的事件错误码
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidOptionType):
		return "INVALID_OPTION_TYPE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotConverged):
		return "NOT_CONVERGED"
	default:
		return "INTERNAL"
	}
}
