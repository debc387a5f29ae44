package http

import (
	"net/http"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"

	core "taxcallback/ingestion/service/core"
	"taxcallback/storage/store"
)

const apiVersion = "1.0.0"

// Root handles GET / with service info and the endpoint map
func (h *CallbackHandler) Root(c *gin.Context) {
	endpoints := gin.H{}
	for _, s := range core.Schemas() {
		endpoints[underscored(string(s.Kind))] = s.Path
	}
	endpoints["health"] = "/health"
	endpoints["logs"] = "/logs"
	endpoints["stats"] = "/logs/stats"

	c.JSON(http.StatusOK, gin.H{
		"message":       "IRAS Callback API Server",
		"status":        "healthy",
		"service":       h.opts.ServiceName,
		"version":       apiVersion,
		"framework":     "gin",
		"endpoints":     endpoints,
		"documentation": "Visit /docs for endpoint documentation",
	})
}

// HealthCheck handles GET /health requests
func (h *CallbackHandler) HealthCheck(c *gin.Context) {
	count, capacity := h.svc.Count(), h.svc.Capacity()
	usage := "normal"
	if count*5 >= capacity*4 {
		usage = "high"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "healthy",
		"timestamp":            h.now(),
		"service":              h.opts.ServiceName,
		"logs_count":           count,
		"max_logs":             capacity,
		"memory_usage":         usage,
		"event_stream_dropped": h.svc.StreamDropped(),
		"go_version":           runtime.Version(),
	})
}

// Docs handles GET /docs with the schema table
func (h *CallbackHandler) Docs(c *gin.Context) {
	endpoints := make([]gin.H, 0, len(core.Schemas()))
	for _, s := range core.Schemas() {
		endpoints = append(endpoints, gin.H{
			"path":            s.Path,
			"method":          http.MethodPost,
			"description":     s.Description,
			"required_fields": s.Required,
			"optional_fields": s.OptionalFields(),
			"mock_endpoint":   s.MockPath,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"title":       "IRAS Callback API Documentation",
		"version":     apiVersion,
		"description": "Mock receiver for IRAS submission callbacks",
		"endpoints":   endpoints,
		"example_payload": gin.H{
			"submissionId":          "GST202501001234",
			"submissionStatus":      "SUCCESS",
			"submissionDateTime":    "2025-01-15T14:30:00+08:00",
			"companyUEN":            "201234567D",
			"formType":              "F5",
			"taxPeriod":             "202412",
			"acknowledgementNumber": "ACK123456789",
			"totalTaxAmount":        15000.50,
		},
	})
}

// Logs handles GET /logs?limit=N
func (h *CallbackHandler) Logs(c *gin.Context) {
	limit := h.opts.DefaultReadLimit
	if raw, ok := c.GetQuery("limit"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":    "error",
				"message":   "limit must be an integer",
				"error_id":  store.ShortID(),
				"timestamp": h.now(),
			})
			return
		}
		limit = n
	}
	limit = max(0, min(limit, h.opts.MaxReadLimit))

	logs := h.svc.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"total_callbacks": h.svc.Count(),
		"returned_logs":   len(logs),
		"logs":            logs,
	})
}

// Stats handles GET /logs/stats
func (h *CallbackHandler) Stats(c *gin.Context) {
	stats := h.svc.Stats()
	if stats.Total == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No callbacks received yet"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ClearLogs handles DELETE /logs
func (h *CallbackHandler) ClearLogs(c *gin.Context) {
	removed := h.svc.Clear()
	c.JSON(http.StatusOK, gin.H{
		"message":   "Cleared " + strconv.Itoa(removed) + " callback logs",
		"removed":   removed,
		"timestamp": h.now(),
	})
}

func underscored(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}
