package handler

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/repository"
	"github.com/stemsi/interview-coach/internal/response"
	"github.com/stemsi/interview-coach/internal/service"
)

const (
	metricsInterval = 5 * time.Second
	queueTimeout    = 2 * time.Second
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LiveLister lists the interviews currently running on any instance.
type LiveLister interface {
	ListInProgress(ctx context.Context, limit int) ([]repository.LiveInterview, error)
}

// SystemHandler reports health, process, queue and monitor counters.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	live      LiveLister
	monitor   *service.MonitorService
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(db Pinger, rdb *redis.Client, live LiveLister, monitor *service.MonitorService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		live:      live,
		monitor:   monitor,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
	GoVersion   string `json:"go_version"`

	LiveSessions int                     `json:"live_sessions"`
	Monitor      service.MetricsSnapshot `json:"monitor"`

	QueueIntegrityEvents int64 `json:"queue_integrity_events"`
	QueueAnswers         int64 `json:"queue_answers"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queueTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	healthy := true
	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		h.log.Warn().Interface("checks", checks).Msg("Health check failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

// SystemMetrics godoc
// GET /api/v1/system/metrics
func (h *SystemHandler) SystemMetrics(c *gin.Context) {
	response.Success(c, http.StatusOK, h.collect(c.Request.Context()))
}

// LiveInterviews godoc
// GET /api/v1/system/live
// Lists in-progress interviews with their last published state.
func (h *SystemHandler) LiveInterviews(c *gin.Context) {
	items, err := h.live.ListInProgress(c.Request.Context(), maxPerPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list live interviews")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"interviews": items})
}

// SystemMetricsSSE godoc
// GET /api/v1/system/metrics/stream
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	c.SSEvent("metrics", h.collect(reqCtx))
	c.Writer.Flush()

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-ticker.C:
			c.SSEvent("metrics", h.collect(reqCtx))
			c.Writer.Flush()
		}
	}
}

func (h *SystemHandler) collect(parent context.Context) systemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := systemMetrics{
		Timestamp:    time.Now().Unix(),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    ms.HeapAlloc,
		NumGC:        ms.NumGC,
		GoVersion:    runtime.Version(),
		LiveSessions: h.monitor.LiveCount(),
		Monitor:      h.monitor.Metrics().Snapshot(),
	}
	m.AppRSSBytes, _ = readProcessRSS()

	ctx, cancel := context.WithTimeout(parent, queueTimeout)
	defer cancel()
	pipe := h.rdb.Pipeline()
	eventsCmd := pipe.LLen(ctx, config.WorkerKey.PersistIntegrityEventsQueue)
	answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to read queue lengths")
		return m
	}
	m.QueueIntegrityEvents = eventsCmd.Val()
	m.QueueAnswers = answersCmd.Val()
	return m
}

// readProcessRSS reads VmRSS from /proc/self/status. Zero off Linux.
func readProcessRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rest, found := strings.CutPrefix(scanner.Text(), "VmRSS:")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			break
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, scanner.Err()
}
