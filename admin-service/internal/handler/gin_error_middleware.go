package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const notFoundTemplate = "404.html"

// CustomErrorMiddleware логирует ошибки из c.Errors и отдает страницу 404
// из шаблонов для HTML маршрутов. JSON маршруты получают JSON.
func CustomErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ErrorMiddleware")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors {
				log.Error("Handler error",
					zap.Error(ginErr.Err),
					zap.Any("meta", ginErr.Meta),
					zap.Int("type", int(ginErr.Type)),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
			}
			if !c.Writer.Written() {
				c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}
			return
		}

		status := c.Writer.Status()
		if status == http.StatusNotFound && !c.Writer.Written() {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.HTML(http.StatusNotFound, notFoundTemplate, gin.H{"title": "Not Found", "path": c.Request.URL.Path})
			return
		}

		if status >= http.StatusInternalServerError {
			log.Warn("Request resulted in server error status",
				zap.Int("status", status),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		}
	}
}
