// Package api exposes the fetch client, the crawl runner and the journal
// over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"crawlfetch/internal/crawl"
	"crawlfetch/internal/journal"
	"crawlfetch/internal/platform/httpclient"
	"crawlfetch/internal/shared"
)

const (
	maxBodyBytes  = 1 << 20
	maxCrawlBatch = 500
)

// Runner executes a batch of requests.
type Runner interface {
	Run(ctx context.Context, reqs []*httpclient.Request) []crawl.Result
}

// Handler serves the API.
type Handler struct {
	fetcher crawl.Fetcher
	runner  Runner
	journal journal.Journal
	log     *slog.Logger
	now     func() time.Time
}

// NewHandler creates a handler. A nil journal disables history.
func NewHandler(f crawl.Fetcher, r Runner, j journal.Journal, log *slog.Logger) *Handler {
	if j == nil {
		j = journal.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{fetcher: f, runner: r, journal: j, log: log, now: time.Now}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log), bodyLimit(maxBodyBytes))
	r.GET("/healthz", h.health)
	r.POST("/fetch", h.fetch)
	r.POST("/crawl", h.crawl)
	r.GET("/history", h.history)
	r.GET("/history/:id", h.historyEntry)
	return r
}

func (h *Handler) health(c *gin.Context) {
	if err := h.journal.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) fetch(c *gin.Context) {
	var in FetchRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.abort(c, shared.MarkKind(err, shared.KindValidation))
		return
	}
	req, err := in.toRequest()
	if err != nil {
		h.abort(c, err)
		return
	}

	ctx := c.Request.Context()
	resp, err := h.fetcher.Fetch(ctx, req)
	if rerr := h.journal.Record(ctx, journal.NewEntry(req, resp, err, h.now())); rerr != nil {
		h.log.Error("journal record failed", "error", rerr)
	}
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) crawl(c *gin.Context) {
	var in CrawlRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.abort(c, shared.MarkKind(err, shared.KindValidation))
		return
	}
	if len(in.Requests) == 0 || len(in.Requests) > maxCrawlBatch {
		h.abort(c, shared.MarkKind(errors.New("requests must contain 1 to "+strconv.Itoa(maxCrawlBatch)+" items"), shared.KindValidation))
		return
	}
	reqs := make([]*httpclient.Request, len(in.Requests))
	for i, r := range in.Requests {
		req, err := r.toRequest()
		if err != nil {
			h.abort(c, shared.Wrapf(err, "requests[%d]", i))
			return
		}
		reqs[i] = req
	}
	c.JSON(http.StatusOK, gin.H{"results": crawlItems(h.runner.Run(c.Request.Context(), reqs))})
}

func (h *Handler) history(c *gin.Context) {
	limit := journal.DefaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.abort(c, shared.MarkKind(errors.New("limit must be a positive integer"), shared.KindValidation))
			return
		}
		limit = n
	}
	entries, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		h.abort(c, shared.MarkKind(err, shared.KindDependencyFailure))
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) historyEntry(c *gin.Context) {
	e, err := h.journal.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) abort(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse(err))
}

// StatusFor maps an error to the HTTP status returned by the API.
func StatusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindDecode, shared.KindParse:
		return http.StatusUnprocessableEntity
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	case shared.KindTransport, shared.KindEmptyResponse:
		return http.StatusBadGateway
	case shared.KindCanceled:
		return 499
	case shared.KindDependencyFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
