package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/middleware"
	"github.com/stemsi/interview-coach/internal/response"
	"github.com/stemsi/interview-coach/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second
)

// MonitorHandler streams the live integrity feed of one interview.
type MonitorHandler struct {
	rdb     *redis.Client
	monitor *service.MonitorService
	log     zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, monitor *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:     rdb,
		monitor: monitor,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorInterviewSSE godoc
// GET /api/v1/interviews/:id/monitor?token=
// Sends the last known state, then forwards every session event published
// on the interview's channel.
func (h *MonitorHandler) MonitorInterviewSSE(c *gin.Context) {
	id, ok := middleware.GetSessionID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()

	// Subscribe before reading the snapshot so no event falls in between.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.InterviewMonitorChannel(id.String()))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Str("session_id", id.String()).Msg("Subscribe failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.sendSnapshot(c, reqCtx, id)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("session_id", id.String()).Msg("Monitor attached")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("session_id", id.String()).Msg("Monitor detached")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSE(c, []byte(msg.Payload))

		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(parent, snapshotTimeout)
	defer cancel()

	state, err := h.monitor.Snapshot(ctx, id)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to read live snapshot")
		state = map[string]string{}
	}
	live := true
	if _, err := h.monitor.Live(id); err != nil {
		live = false
	}

	payload, _ := json.Marshal(map[string]any{
		"type":       "snapshot",
		"session_id": id.String(),
		"data": map[string]any{
			"state":         state,
			"live_here":     live,
			"live_sessions": h.monitor.LiveCount(),
		},
	})
	writeSSE(c, payload)
}

func writeSSE(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
