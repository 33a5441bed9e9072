package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const logLevelPath = "/log/level"

// RegisterRoutes регистрирует маршруты экрана настроек. limiter может быть nil.
func (h *SettingHandler) RegisterRoutes(router gin.IRouter, limiter gin.HandlerFunc) {
	var middleware []gin.HandlerFunc
	if limiter != nil {
		middleware = append(middleware, limiter)
	}

	// HTML форма
	pages := router.Group(settingsPath, middleware...)
	{
		pages.GET("", h.ShowSettings)
		pages.POST("/save", h.SaveSettings)
		pages.POST("/reset", h.ResetSettings)
	}

	api := router.Group("/api/settings", middleware...)
	{
		api.GET("", h.GetSettingsAPI)
		api.PUT("", h.UpdateSettingsAPI)
		api.POST("/reset", h.ResetSettingsAPI)
	}
}

// RegisterHealth — проверка состояния для оркестратора.
func RegisterHealth(router gin.IRouter) {
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
}

// RegisterLogLevel отдает (GET) и меняет (PUT {"level":"debug"}) уровень
// логов без перезапуска.
func RegisterLogLevel(router gin.IRouter, level http.Handler) {
	router.GET(logLevelPath, gin.WrapH(level))
	router.PUT(logLevelPath, gin.WrapH(level))
}
