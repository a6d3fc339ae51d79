// Package middleware 提供 Gin 通用中间件（日志、trace、panic recover、限流）
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/riskgateway/pkg/logger"
)

// RequestIDKey context key for request ID
const RequestIDKey = "request_id"

// TraceIDKey context key for trace ID
const TraceIDKey = "trace_id"

// SpanIDKey context key for span ID
const SpanIDKey = "span_id"

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	traceIDContextKey   contextKey = "trace_id"
	spanIDContextKey    contextKey = "span_id"
)

// GinLoggingMiddleware Gin 日志中间件
func GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 生成 request ID 和 trace ID
		requestID := uuid.New().String()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		spanID := uuid.New().String()

		// 将 ID 存储到 context
		c.Set(RequestIDKey, requestID)
		c.Set(TraceIDKey, traceID)
		c.Set(SpanIDKey, spanID)

		// 记录请求开始
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		clientIP := c.ClientIP()

		// 创建带有 trace info 的 context
		ctx := context.WithValue(c.Request.Context(), traceIDContextKey, traceID)
		ctx = context.WithValue(ctx, spanIDContextKey, spanID)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		logger.Debug(ctx, "HTTP request started",
			"request_id", requestID,
			"method", method,
			"path", path,
			"client_ip", clientIP,
		)

		// 处理请求
		c.Next()

		// 记录响应
		duration := time.Since(start)
		statusCode := c.Writer.Status()
		responseSize := c.Writer.Size()

		logger.Info(ctx, "HTTP request completed",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status_code", statusCode,
			"response_size", responseSize,
			"duration", duration,
		)
	}
}

// GinRecoveryMiddleware Gin panic 恢复中间件
func GinRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(RequestIDKey)
				traceID, _ := c.Get(TraceIDKey)
				spanID, _ := c.Get(SpanIDKey)

				ctx := context.WithValue(c.Request.Context(), traceIDContextKey, traceID)
				ctx = context.WithValue(ctx, spanIDContextKey, spanID)
				ctx = context.WithValue(ctx, requestIDContextKey, requestID)

				logger.Error(ctx, "HTTP request panicked",
					"request_id", requestID,
					"panic", err,
				)

				c.JSON(500, gin.H{
					"error":      "Internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

// GinCORSMiddleware Gin CORS 中间件
func GinCORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
