package router

import (
	"time"

	"github.com/blues/ilr/internal/handler"
	"github.com/blues/ilr/internal/logger"
	"github.com/gin-gonic/gin"
)

// Ledger 路由依赖的只读账本能力
type Ledger interface {
	handler.EntryReader
	handler.RaisedReader
	handler.Pinger
}

// Deps 路由依赖
type Deps struct {
	Intents handler.IntentService
	Ledger  Ledger
	Chain   handler.HeightReader
}

func Setup(deps Deps) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(requestLogger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	healthHandler := handler.NewHealthHandler(deps.Ledger, deps.Chain)
	r.GET("/health", healthHandler.Health)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		intentHandler := handler.NewIntentHandler(deps.Intents, deps.Ledger)
		intents := v1.Group("/intents")
		{
			intents.POST("", intentHandler.CreateIntent)
			intents.GET("/:id", intentHandler.GetIntent)
			intents.POST("/:id/transaction", intentHandler.SubmitTransaction)
			intents.GET("/:id/entries", intentHandler.GetIntentEntries)
		}

		projectHandler := handler.NewProjectHandler(deps.Ledger)
		projects := v1.Group("/projects")
		{
			projects.GET("/:id/raised", projectHandler.GetProjectRaised)
		}
	}

	return r
}

// requestLogger 使用统一日志器记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := "%s %s %d %s"
		args := []interface{}{c.Request.Method, c.Request.URL.Path, status, time.Since(start)}
		switch {
		case status >= 500:
			logger.Error(line, args...)
		case status >= 400:
			logger.Warn(line, args...)
		default:
			logger.Debug(line, args...)
		}
	}
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, "+handler.UserIdHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
