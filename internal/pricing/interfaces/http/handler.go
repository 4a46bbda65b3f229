package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/application"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/logger"
	"github.com/wyfcoding/gbsmpricing/pkg/response"
)

// PricingHandler HTTP 处理器
// 负责处理与定价相关的 HTTP 请求
type PricingHandler struct {
	svc *application.PricingService
}

// NewPricingHandler 创建 HTTP 处理器实例
func NewPricingHandler(svc *application.PricingService) *PricingHandler {
	return &PricingHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *PricingHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/pricing")
	{
		api.POST("/option/price", h.PriceOption)
		api.POST("/option/vega", h.GetVega)
		api.POST("/option/greeks", h.GetGreeks)
		api.POST("/option/implied-volatility", h.SolveImpliedVolatility)

		api.GET("/results/:symbol", h.GetLatestResult)
		api.GET("/results/:symbol/history", h.GetResultHistory)
		api.GET("/implied-volatility/:symbol/history", h.GetImpliedVolHistory)
	}
}

// MarketRequest 合约与市场数值参数
// time_to_expiry 与 expiry_date 二选一，均提供时以 time_to_expiry 为准
type MarketRequest struct {
	UnderlyingPrice float64    `json:"underlying_price" binding:"required"`
	StrikePrice     float64    `json:"strike_price" binding:"required"`
	TimeToExpiry    float64    `json:"time_to_expiry"`
	ExpiryDate      *time.Time `json:"expiry_date"`
	InterestRate    float64    `json:"interest_rate"`
	CostOfCarry     *float64   `json:"cost_of_carry"`
	DividendYield   float64    `json:"dividend_yield"`
}

// ContractRequest 期权类型必填的合约参数
type ContractRequest struct {
	OptionType string `json:"option_type" binding:"required"`
	MarketRequest
}

// PriceRequest 定价请求
type PriceRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	ContractRequest
	Volatility float64 `json:"volatility" binding:"required"`
}

// GreeksRequest 希腊字母请求
type GreeksRequest struct {
	ContractRequest
	Volatility float64 `json:"volatility" binding:"required"`
}

// VegaRequest Vega 与期权类型无关，option_type 可省略
type VegaRequest struct {
	OptionType string `json:"option_type"`
	MarketRequest
	Volatility float64 `json:"volatility" binding:"required"`
}

// ImpliedVolRequest 隐含波动率求解请求
type ImpliedVolRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	ContractRequest
	OptionPrice float64 `json:"option_price" binding:"required"`
}

func (r MarketRequest) params(optionType string) application.ContractParams {
	p := application.ContractParams{
		OptionType:      optionType,
		UnderlyingPrice: r.UnderlyingPrice,
		StrikePrice:     r.StrikePrice,
		TimeToExpiry:    r.TimeToExpiry,
		InterestRate:    r.InterestRate,
		CostOfCarry:     r.CostOfCarry,
		DividendYield:   r.DividendYield,
	}
	if r.ExpiryDate != nil {
		p.ExpiryDate = r.ExpiryDate.UnixMilli()
	}
	return p
}

func (r ContractRequest) params() application.ContractParams {
	return r.MarketRequest.params(r.OptionType)
}

// PriceOption 期权定价并持久化
func (h *PricingHandler) PriceOption(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := h.svc.PriceOption(c.Request.Context(), application.PriceOptionCommand{
		Symbol:         req.Symbol,
		ContractParams: req.params(),
		Volatility:     req.Volatility,
	})
	if err != nil {
		h.fail(c, "failed to price option", err)
		return
	}
	response.Success(c, result)
}

// GetVega 计算 Vega
func (h *PricingHandler) GetVega(c *gin.Context) {
	var req VegaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	optionType := req.OptionType
	if optionType == "" {
		optionType = string(domain.OptionTypeCall)
	}

	dto, err := h.svc.GetVega(c.Request.Context(), application.VegaQuery{
		ContractParams: req.params(optionType),
		Volatility:     req.Volatility,
	})
	if err != nil {
		h.fail(c, "failed to calculate vega", err)
		return
	}
	response.Success(c, dto)
}

// GetGreeks 计算希腊字母
func (h *PricingHandler) GetGreeks(c *gin.Context) {
	var req GreeksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	dto, err := h.svc.GetGreeks(c.Request.Context(), application.GreeksQuery{
		ContractParams: req.params(),
		Volatility:     req.Volatility,
	})
	if err != nil {
		h.fail(c, "failed to calculate greeks", err)
		return
	}
	response.Success(c, dto)
}

// SolveImpliedVolatility 求解隐含波动率，未收敛时返回 converged=false
func (h *PricingHandler) SolveImpliedVolatility(c *gin.Context) {
	var req ImpliedVolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	record, err := h.svc.SolveImpliedVolatility(c.Request.Context(), application.SolveImpliedVolCommand{
		Symbol:         req.Symbol,
		ContractParams: req.params(),
		OptionPrice:    req.OptionPrice,
	})
	if err != nil {
		h.fail(c, "failed to solve implied volatility", err)
		return
	}
	response.Success(c, record)
}

// GetLatestResult 获取最新定价结果
func (h *PricingHandler) GetLatestResult(c *gin.Context) {
	result, err := h.svc.GetLatestResult(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, "failed to get latest pricing result", err)
		return
	}
	response.Success(c, result)
}

// GetResultHistory 获取定价历史
func (h *PricingHandler) GetResultHistory(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	results, err := h.svc.GetResultHistory(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		h.fail(c, "failed to get pricing history", err)
		return
	}
	response.SuccessWithPagination(c, results, int64(len(results)), limit)
}

// GetImpliedVolHistory 获取隐含波动率求解历史
func (h *PricingHandler) GetImpliedVolHistory(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	records, err := h.svc.GetImpliedVolHistory(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		h.fail(c, "failed to get implied volatility history", err)
		return
	}
	response.SuccessWithPagination(c, records, int64(len(records)), limit)
}

// parseLimit 解析 limit 参数，缺省为 0 由查询服务取默认值
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid limit", raw)
		return 0, false
	}
	return limit, true
}

// fail 将领域错误映射为 HTTP 状态码并输出
func (h *PricingHandler) fail(c *gin.Context, msg string, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, domain.ErrInvalidOptionType), errors.Is(err, domain.ErrInvalidInput):
		err = response.WithStatus(http.StatusBadRequest, err)
		logger.Warn(ctx, msg, "error", err)
	case errors.Is(err, domain.ErrNotFound):
		err = response.WithStatus(http.StatusNotFound, err)
	default:
		logger.Error(ctx, msg, "error", err)
	}
	response.Error(c, err)
}
