package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	core "taxcallback/ingestion/service/core"
	"taxcallback/internal/validation"
	"taxcallback/storage/store"
)

var errBodyTooLarge = errors.New("request body too large")

// Options tunes the handler's limits.
type Options struct {
	ServiceName      string
	MaxBodyBytes     int64
	DefaultReadLimit int
	MaxReadLimit     int
}

// CallbackHandler serves the callback, read/admin and mock endpoints
type CallbackHandler struct {
	svc    *core.Service
	logger *log.Logger
	opts   Options
	now    func() time.Time
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler(s *core.Service, l *log.Logger, opts Options) *CallbackHandler {
	if opts.ServiceName == "" {
		opts.ServiceName = "tax-callback-receiver"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.DefaultReadLimit <= 0 {
		opts.DefaultReadLimit = 10
	}
	if opts.MaxReadLimit <= 0 {
		opts.MaxReadLimit = 50
	}
	return &CallbackHandler{svc: s, logger: l, opts: opts, now: time.Now}
}

// Callback returns the POST handler for one callback kind.
func (h *CallbackHandler) Callback(kind core.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := h.readJSONObject(c)
		if err != nil {
			h.respondSubmissionError(c, err, "")
			return
		}

		ack, err := h.svc.Submit(c.Request.Context(), kind, data, h.origin(c))
		if err != nil {
			var subErr *core.SubmissionError
			submissionID := ""
			if errors.As(err, &subErr) {
				submissionID = subErr.SubmissionID
			}
			h.respondSubmissionError(c, err, submissionID)
			return
		}

		c.JSON(http.StatusOK, ack)
	}
}

// ValidateCallback handles POST /test/validate-callback?type=<kind>
func (h *CallbackHandler) ValidateCallback(c *gin.Context) {
	kind := core.Kind(c.DefaultQuery("type", string(core.DefaultKind)))

	data, err := h.readJSONObject(c)
	if err == nil {
		var validated map[string]any
		validated, err = h.svc.Validate(kind, data)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{
				"status":         "valid",
				"message":        fmt.Sprintf("Callback data validation passed for %s", kind),
				"validated_data": validated,
				"timestamp":      h.now(),
			})
			return
		}
	}

	f, ok := validation.AsFailure(err)
	if !ok {
		h.respondSubmissionError(c, err, "")
		return
	}
	var field any
	if f.Field != "" {
		field = f.Field
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"status":    "invalid",
		"message":   "Validation failed",
		"error":     f.Message,
		"field":     field,
		"timestamp": h.now(),
	})
}

// Mock returns the POST handler that generates and submits a sample callback.
func (h *CallbackHandler) Mock(kind core.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.svc.SubmitMock(c.Request.Context(), kind, h.origin(c))
		if err != nil {
			h.respondInternal(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// readJSONObject enforces the JSON content type, the body limit and a
// top-level object.
func (h *CallbackHandler) readJSONObject(c *gin.Context) (map[string]any, error) {
	if !isJSONContentType(c.GetHeader("Content-Type")) {
		return nil, validation.Fail("Content-Type must be application/json")
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, validation.Fail("Request body must contain valid JSON")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, validation.Fail("Invalid JSON payload: " + err.Error())
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, validation.Fail("Invalid JSON payload: unexpected data after top-level value")
	}
	if decoded == nil {
		return nil, validation.Fail("Request body must contain valid JSON")
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, validation.Fail("Request body must be a JSON object")
	}
	return obj, nil
}

func isJSONContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func (h *CallbackHandler) origin(c *gin.Context) core.Origin {
	headers := make(map[string]string, len(c.Request.Header))
	for k, v := range c.Request.Header {
		headers[k] = strings.Join(v, ", ")
	}
	return core.Origin{
		ClientIP: clientAddress(c.Request),
		Method:   c.Request.Method,
		Headers:  headers,
	}
}

// clientAddress prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// respondSubmissionError maps validation failures to 400 and everything else to 500.
func (h *CallbackHandler) respondSubmissionError(c *gin.Context, err error, submissionID string) {
	var sid any
	if submissionID != "" {
		sid = submissionID
	}

	if errors.Is(err, errBodyTooLarge) {
		errorID := store.ShortID()
		h.logger.Printf("HTTP Handler: Error ID %s: body over %d bytes on %s", errorID, h.opts.MaxBodyBytes, c.Request.URL.Path)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"status":       "error",
			"message":      fmt.Sprintf("Request body exceeds %d bytes", h.opts.MaxBodyBytes),
			"error_id":     errorID,
			"submissionId": sid,
			"timestamp":    h.now(),
		})
		return
	}

	f, ok := validation.AsFailure(err)
	if !ok {
		h.respondInternal(c, err, sid)
		return
	}

	errorID := store.ShortID()
	h.logger.Printf("HTTP Handler: Callback rejected - Error ID: %s, Submission ID: %s, Path: %s, Client IP: %s, Error: %s",
		errorID, orNA(submissionID), c.Request.URL.Path, clientAddress(c.Request), f.Message)

	resp := gin.H{
		"status":       "error",
		"message":      f.Message,
		"error_id":     errorID,
		"submissionId": sid,
		"timestamp":    h.now(),
		"error_detail": f.Message,
	}
	if f.Field != "" {
		resp["field"] = f.Field
	}
	c.JSON(http.StatusBadRequest, resp)
}

func (h *CallbackHandler) respondInternal(c *gin.Context, err error, submissionID any) {
	errorID := store.ShortID()
	h.logger.Printf("HTTP Handler: Callback processing error - Error ID: %s, Method: %s, Path: %s, Client IP: %s, Error: %v",
		errorID, c.Request.Method, c.Request.URL.Path, clientAddress(c.Request), err)

	c.JSON(http.StatusInternalServerError, gin.H{
		"status":       "error",
		"message":      "Error processing callback",
		"error_id":     errorID,
		"submissionId": submissionID,
		"timestamp":    h.now(),
	})
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
