package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"
	"avatarsignal/cmd/signal-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger 日志接口
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// ReadinessChecker 就绪探针依赖
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// HTTPServer HTTP 服务器
type HTTPServer struct {
	engine  *gin.Engine
	service *service.SignalService
	cache   ReadinessChecker
	logger  Logger
}

// NewHTTPServer 创建 HTTP 服务器。cache 可为 nil（不启用快照缓存时）。
func NewHTTPServer(srv *service.SignalService, cache ReadinessChecker, logger Logger) *HTTPServer {
	// 设置 Gin 模式
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	s := &HTTPServer{
		engine:  engine,
		service: srv,
		cache:   cache,
		logger:  logger,
	}

	// 注册中间件
	s.registerMiddlewares()

	// 注册路由
	s.registerRoutes()

	return s
}

// registerMiddlewares 注册中间件
func (s *HTTPServer) registerMiddlewares() {
	// Recovery 中间件
	s.engine.Use(gin.Recovery())

	// 请求日志中间件
	s.engine.Use(s.requestLogger())

	// CORS 中间件
	s.engine.Use(s.corsMiddleware())

	// 错误处理中间件
	s.engine.Use(s.errorHandler())
}

// requestLogger 请求日志中间件
func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware CORS 中间件
func (s *HTTPServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// errorHandler 错误处理中间件
func (s *HTTPServer) errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			s.logger.Error("Request error",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}
	}
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api/v1")

	// 会话接口
	sessions := api.Group("/sessions")
	{
		sessions.POST("", s.createSession)
		sessions.GET("/:id", s.getSession)
		sessions.DELETE("/:id", s.deleteSession)
		sessions.POST("/:id/reset", s.resetSession)
		sessions.POST("/:id/end", s.endSession)

		sessions.POST("/:id/events", s.handleEvent)
		sessions.POST("/:id/messages", s.analyzeMessage)
		sessions.POST("/:id/activity", s.analyzeActivity)
		sessions.POST("/:id/analyze", s.score)
		sessions.POST("/:id/reanalyze", s.reanalyze)

		sessions.GET("/:id/timeline", s.getTimeline)
		sessions.GET("/:id/metrics", s.getMetrics)
		sessions.GET("/:id/insights", s.getInsights)
		sessions.GET("/:id/messages", s.getMessages)
		sessions.GET("/:id/summary", s.getSummary)

		sessions.GET("/:id/stream", s.handleStream)
	}

	// 健康检查
	s.engine.GET("/health", s.healthCheck)
	s.engine.GET("/ready", s.readinessCheck)
}

// createSession 创建会话
func (s *HTTPServer) createSession(c *gin.Context) {
	info := s.service.CreateSession(c.Request.Context())
	c.JSON(http.StatusCreated, info)
}

// getSession 获取会话元信息
func (s *HTTPServer) getSession(c *gin.Context) {
	info, err := s.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// deleteSession 删除会话
func (s *HTTPServer) deleteSession(c *gin.Context) {
	if err := s.service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// resetSession 重置会话
func (s *HTTPServer) resetSession(c *gin.Context) {
	if err := s.service.ResetSession(c.Request.Context(), c.Param("id")); err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// endSession 结束会话
func (s *HTTPServer) endSession(c *gin.Context) {
	if err := s.service.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleEvent 处理生命周期事件
func (s *HTTPServer) handleEvent(c *gin.Context) {
	var req struct {
		Type string                 `json:"type" binding:"required"`
		Data map[string]interface{} `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	node, err := s.service.HandleEvent(c.Request.Context(), c.Param("id"), req.Type, req.Data)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"node": node})
}

// analyzeMessage 分析转写文本
func (s *HTTPServer) analyzeMessage(c *gin.Context) {
	var req struct {
		Text     string `json:"text" binding:"required"`
		Sender   string `json:"sender" binding:"required"`
		Deferred bool   `json:"deferred"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	analysis, err := s.service.AnalyzeMessage(c.Request.Context(), c.Param("id"), req.Text, req.Sender, req.Deferred)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	if analysis == nil {
		c.JSON(http.StatusAccepted, gin.H{"stored": true})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// analyzeActivity 活动线索检测
func (s *HTTPServer) analyzeActivity(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	node, err := s.service.AnalyzeActivity(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"node": node})
}

// score 按评分器评分
func (s *HTTPServer) score(c *gin.Context) {
	var req struct {
		Scorer string `json:"scorer"`
	}
	// body 可省略，默认模式评分
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := s.service.Score(c.Request.Context(), c.Param("id"), req.Scorer)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// reanalyze 批量分析暂存消息
func (s *HTTPServer) reanalyze(c *gin.Context) {
	analyses, err := s.service.Reanalyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// getTimeline 推理时间线
func (s *HTTPServer) getTimeline(c *gin.Context) {
	steps, err := s.service.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

// getMetrics 满意度指标
func (s *HTTPServer) getMetrics(c *gin.Context) {
	metrics, err := s.service.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// getInsights 最近洞察
func (s *HTTPServer) getInsights(c *gin.Context) {
	insights, err := s.service.Insights(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

// getMessages 消息日志
func (s *HTTPServer) getMessages(c *gin.Context) {
	messages, err := s.service.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.respondError(c, http.StatusBadRequest, "invalid limit, must be positive")
			return
		}
		limit = parsed
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"total":    len(messages),
	})
}

// getSummary 会话汇总
func (s *HTTPServer) getSummary(c *gin.Context) {
	summary, err := s.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Engine 返回 Gin 引擎
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

// Start 启动服务器
func (s *HTTPServer) Start(addr string) error {
	return s.engine.Run(addr)
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// respondError 响应错误
func (s *HTTPServer) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Code:    statusCode,
		Message: message,
	})
}

// handleServiceError 处理服务层错误
func (s *HTTPServer) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s.respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidSender), errors.Is(err, domain.ErrUnknownScorer):
		s.respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionEnded):
		s.respondError(c, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Service error", zap.Error(err))
		s.respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

// healthCheck 健康检查
func (s *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "signal-service",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// readinessCheck 就绪检查
func (s *HTTPServer) readinessCheck(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "disabled"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":  ready,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}
