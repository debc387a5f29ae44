package http

import (
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	core "taxcallback/ingestion/service/core"
	"taxcallback/storage/store"
)

// NewRouter wires every receiver route onto a gin engine.
func NewRouter(h *CallbackHandler, logger *log.Logger) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(
		gin.LoggerWithConfig(gin.LoggerConfig{
			Output:    logger.Writer(),
			SkipPaths: []string{"/health"},
		}),
		gin.CustomRecoveryWithWriter(logger.Writer(), h.recovered),
		cors(),
	)

	router.GET("/", h.Root)
	router.GET("/health", h.HealthCheck)
	router.GET("/docs", h.Docs)

	for _, s := range core.Schemas() {
		router.POST(s.Path, h.Callback(s.Kind))
		router.POST(s.MockPath, h.Mock(s.Kind))
	}

	router.GET("/logs", h.Logs)
	router.DELETE("/logs", h.ClearLogs)
	router.GET("/logs/stats", h.Stats)
	router.POST("/test/validate-callback", h.ValidateCallback)

	allowed := allowedMethods(router.Routes())
	router.NoRoute(h.notFound)
	router.NoMethod(func(c *gin.Context) {
		h.methodNotAllowed(c, allowed[c.Request.URL.Path])
	})

	return router
}

func allowedMethods(routes gin.RoutesInfo) map[string][]string {
	out := make(map[string][]string)
	for _, r := range routes {
		out[r.Path] = append(out[r.Path], r.Method)
	}
	for _, methods := range out {
		sort.Strings(methods)
	}
	return out
}

// cors allows every origin and answers preflight requests directly.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *CallbackHandler) notFound(c *gin.Context) {
	h.logger.Printf("HTTP Handler: 404 %s not found", c.Request.URL.Path)

	available := []string{}
	for _, s := range core.Schemas() {
		available = append(available, s.Path)
	}
	available = append(available, "/health", "/docs", "/logs", "/logs/stats")

	c.JSON(http.StatusNotFound, gin.H{
		"status":              "error",
		"message":             "Endpoint not found",
		"requested_url":       requestedURL(c.Request),
		"available_endpoints": available,
		"timestamp":           h.now(),
	})
}

func (h *CallbackHandler) methodNotAllowed(c *gin.Context, allowed []string) {
	h.logger.Printf("HTTP Handler: 405 method %s not allowed for %s", c.Request.Method, c.Request.URL.Path)

	if len(allowed) > 0 {
		c.Header("Allow", strings.Join(allowed, ", "))
	}
	c.JSON(http.StatusMethodNotAllowed, gin.H{
		"status":          "error",
		"message":         fmt.Sprintf("Method %s not allowed for this endpoint", c.Request.Method),
		"allowed_methods": allowed,
		"timestamp":       h.now(),
	})
}

func (h *CallbackHandler) recovered(c *gin.Context, recovered any) {
	errorID := store.ShortID()
	h.logger.Printf("HTTP Handler: 500 error - Error ID: %s, Method: %s, URL: %s, Error: %v",
		errorID, c.Request.Method, requestedURL(c.Request), recovered)

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"status":    "error",
		"message":   "Internal server error",
		"error_id":  errorID,
		"timestamp": h.now(),
	})
}

func requestedURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
