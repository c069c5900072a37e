// Package server exposes a scan session over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// Session is the part of engine.Session the API drives.
type Session interface {
	Start(ctx context.Context, dir string) error
	Delete(ctx context.Context, filename string) error
	Results() []model.ClassificationResult
	IsBusy() bool
	State() model.ScanState
	Directory() string
	ScanID() string
	LastSummary() (engine.Summary, bool)
}

// ScanRequest starts a scan of Directory.
type ScanRequest struct {
	Directory string `json:"directory" binding:"required"`
}

// ScanResponse acknowledges an accepted scan.
type ScanResponse struct {
	ScanID    string `json:"scan_id"`
	Directory string `json:"directory"`
}

// StatusResponse describes the session.
type StatusResponse struct {
	LastSummary *engine.Summary `json:"last_summary,omitempty"`
	State       string          `json:"state"`
	Directory   string          `json:"directory,omitempty"`
	ScanID      string          `json:"scan_id,omitempty"`
	Results     int             `json:"results"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewHandler builds the routes. Scans started through the API run under
// baseCtx rather than the request context so they outlive the request.
func NewHandler(baseCtx context.Context, session Session, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{ctx: baseCtx, session: session, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/health", healthCheck)
	r.GET("/status", h.status)
	r.GET("/results", h.results)
	r.POST("/scans", h.startScan)
	r.DELETE("/results/:filename", h.deleteResult)

	return r
}

type handler struct {
	ctx     context.Context
	session Session
	logger  *slog.Logger
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "available",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) status(c *gin.Context) {
	resp := StatusResponse{
		State:     h.session.State().String(),
		Directory: h.session.Directory(),
		ScanID:    h.session.ScanID(),
		Results:   len(h.session.Results()),
	}
	if summary, ok := h.session.LastSummary(); ok {
		resp.LastSummary = &summary
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) results(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"busy":    h.session.IsBusy(),
		"results": h.session.Results(),
	})
}

func (h *handler) startScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	if err := h.session.Start(h.ctx, req.Directory); err != nil {
		if errors.Is(err, common.ErrScanInProgress) {
			h.respondError(c, http.StatusConflict, "scan not started", err)
			return
		}
		h.respondError(c, http.StatusInternalServerError, "scan not started", err)
		return
	}

	c.JSON(http.StatusAccepted, ScanResponse{
		ScanID:    h.session.ScanID(),
		Directory: h.session.Directory(),
	})
}

func (h *handler) deleteResult(c *gin.Context) {
	filename := c.Param("filename")

	if err := h.session.Delete(c.Request.Context(), filename); err != nil {
		h.respondError(c, deleteStatusCode(err), "delete failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func deleteStatusCode(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidFilename):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrNoDirectory):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (h *handler) respondError(c *gin.Context, code int, message string, err error) {
	h.logger.Warn("Request failed",
		"status_code", code,
		"message", message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"error", err)

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}

// Serve runs an HTTP server on addr until ctx is canceled, then shuts it
// down gracefully. A non-nil tlsConfig serves HTTPS.
func Serve(ctx context.Context, addr string, h http.Handler, tlsConfig *tls.Config, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", addr, "tls", tlsConfig != nil)
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
