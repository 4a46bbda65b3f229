// Package response 提供统一的 HTTP 响应封装，约定 {code,msg,data} 结构并支持错误到状态码的映射。
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTPStatusProvider 定义了能够提供 HTTP 状态码的错误接口。
type HTTPStatusProvider interface {
	HTTPStatus() int
}

// Success 发送一个标准的成功响应。
// 默认：HTTP 200，业务码 0，消息 "success"。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "success",
		"data": data,
	})
}

// SuccessWithPagination 发送一个包含条数信息的列表响应。
func SuccessWithPagination(c *gin.Context, data any, total int64, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"code":  0,
		"msg":   "success",
		"data":  data,
		"total": total,
		"limit": limit,
	})
}

// Error 发送错误响应。
// 实现了 HTTPStatusProvider 的错误使用其状态码，否则返回 500。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	statusCode := http.StatusInternalServerError
	var sp HTTPStatusProvider
	if errors.As(err, &sp) {
		statusCode = sp.HTTPStatus()
	}

	ErrorWithStatus(c, statusCode, http.StatusText(statusCode), err.Error())
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, gin.H{
		"code":   status,
		"msg":    msg,
		"detail": detail,
	})
}

// StatusError 为任意错误附加 HTTP 状态码。
type StatusError struct {
	Status int
	Err    error
}

// WithStatus 包装错误并指定状态码。
func WithStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Status: status, Err: err}
}

func (e *StatusError) Error() string   { return e.Err.Error() }
func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) HTTPStatus() int { return e.Status }
