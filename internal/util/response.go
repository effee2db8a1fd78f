package util

import (
	"assessment_backend/pkg/logger"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构，code 与 HTTP 状态码一致
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func write(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Code: status, Message: message, Data: data})
}

func Success(c *gin.Context, data any) { write(c, http.StatusOK, "success", data) }

func Created(c *gin.Context, data any) { write(c, http.StatusCreated, "created", data) }

func Error(c *gin.Context, status int, message string) { write(c, status, message, nil) }

// 中间件中使用，写入响应后中止后续处理
func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Code: http.StatusUnauthorized, Message: "Unauthorized"})
}

func Forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, Response{Code: http.StatusForbidden, Message: "Forbidden"})
}

func BadRequest(c *gin.Context, message string) { Error(c, http.StatusBadRequest, message) }

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("request failed",
		zap.Error(err),
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()))
	Error(c, http.StatusInternalServerError, "Internal server error")
}

// StatusFor 将领域错误映射为 HTTP 状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrParse), errors.Is(err, ErrAlreadySubmitted):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredential):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrAccountPending), errors.Is(err, ErrAccountRejected):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmailRegistered):
		return http.StatusConflict
	case errors.Is(err, ErrModelOutput), errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleError 客户端错误原样返回，服务端错误只记录日志
func HandleError(c *gin.Context, err error) {
	status := StatusFor(err)
	switch {
	case status == http.StatusInternalServerError:
		LogInternalError(c, err)
	case status == http.StatusBadGateway:
		logger.Log.Error("Upstream failure", zap.Error(err), zap.String("path", c.FullPath()))
		Error(c, status, rootMessage(err))
	default:
		Error(c, status, err.Error())
	}
}

func rootMessage(err error) string {
	switch {
	case errors.Is(err, ErrModelOutput):
		return ErrModelOutput.Error()
	default:
		return ErrExternalService.Error()
	}
}
