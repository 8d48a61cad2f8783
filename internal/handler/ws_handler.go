package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/interview"
	"github.com/stemsi/interview-coach/internal/middleware"
	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stemsi/interview-coach/internal/response"
	"github.com/stemsi/interview-coach/internal/service"
	"github.com/stemsi/interview-coach/internal/validator"
	ws "github.com/stemsi/interview-coach/internal/websocket"
)

// clientQueue bounds pushes waiting for a slow client.
const clientQueue = 64

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamAPI is what a live stream needs from the interview lifecycle.
type StreamAPI interface {
	interview.FlowController
	LoadForStream(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error)
	Start(ctx context.Context, id uuid.UUID) error
}

// WSOptions configures the live stream of an interview.
type WSOptions struct {
	// BaseContext is cancelled on server shutdown, which abandons every
	// running session.
	BaseContext    context.Context
	Integrity      integrity.Config
	SessionOptions interview.SessionOptions
	AllowedOrigins []string
}

// WSHandler runs one interview session per WebSocket connection.
type WSHandler struct {
	interviews StreamAPI
	store      interview.IntegrityStore
	monitor    *service.MonitorService
	analyzer   interview.Analyzer
	opts       WSOptions
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	interviews StreamAPI,
	store interview.IntegrityStore,
	monitor *service.MonitorService,
	analyzer interview.Analyzer,
	opts WSOptions,
	log zerolog.Logger,
) *WSHandler {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &WSHandler{
		interviews: interviews,
		store:      store,
		monitor:    monitor,
		analyzer:   analyzer,
		opts:       opts,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(opts.AllowedOrigins),
	}
}

// InterviewStream godoc
// WS /ws/v1/interviews/:id/stream?token=
// Upgrades to WebSocket and runs the interview: camera gate, question flow
// and attention monitoring.
func (h *WSHandler) InterviewStream(c *gin.Context) {
	id, ok := middleware.GetSessionID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	stored, err := h.interviews.LoadForStream(c.Request.Context(), id)
	switch {
	case errors.Is(err, service.ErrInterviewNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrInterviewNotFound)
		return
	case errors.Is(err, service.ErrInterviewClosed):
		response.Fail(c, http.StatusConflict, response.ErrInterviewClosed)
		return
	case err != nil:
		h.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to load interview")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)

	wsLog := h.log.With().Str("session_id", id.String()).Logger()
	client := newClientWriter(conn, wsLog)
	defer client.close()

	ctx, cancel := context.WithCancel(h.opts.BaseContext)
	defer cancel()

	// The publisher only exists once the live slot is ours; until then the
	// observer fans out to the client alone.
	var pub *service.Publisher
	observers := interview.Observers{client}
	ctrl := interview.NewController(id, stored.InterviewType, stored.Questions, h.opts.Integrity, interview.Deps{
		Flow:     h.interviews,
		Store:    h.store,
		Camera:   client,
		Observer: &observers,
		Sink:     sinkFunc(func(ev model.IntegrityEvent) { pub.RecordEvent(ev) }),
		Logger:   wsLog,
	})

	opts := h.opts.SessionOptions
	opts.Logger = wsLog
	sess := interview.NewSession(ctrl, h.analyzer, opts)

	if err := h.monitor.Register(id, sess); err != nil {
		client.fail(response.ErrSessionBusy)
		client.close()
		_ = conn.Close(websocket.ClosePolicyViolation, string(response.ErrSessionBusy))
		return
	}
	pub = h.monitor.NewPublisher(id)
	observers = append(observers, pub)

	if err := h.interviews.Start(ctx, id); err != nil {
		wsLog.Error().Err(err).Msg("Failed to mark interview in progress")
	}

	go sess.Run(ctx)
	wsLog.Info().Int("questions", len(stored.Questions)).Msg("Candidate connected")

	// A session that ends on its own closes the socket after its final push.
	go func() {
		<-sess.Done()
		_, reason := sess.Result()
		client.close()
		_ = conn.Close(websocket.CloseNormalClosure, string(reason))
	}()

	h.readLoop(conn, client, sess, wsLog)

	sess.Abandon()
	<-sess.Done()
	pub.Close()
	h.monitor.Unregister(id, sess)

	_, reason := sess.Result()
	wsLog.Info().Str("reason", string(reason)).Msg("Candidate disconnected")
}

func (h *WSHandler) readLoop(conn *ws.Conn, client *clientWriter, sess *interview.Session, log zerolog.Logger) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			client.fail(response.ErrInvalidPayload)
			continue
		}

		if err := h.dispatch(env.Action, data, client, sess); err != nil {
			client.failErr(err)
		}
	}
}

// dispatch applies one client action to the session.
func (h *WSHandler) dispatch(action ws.Action, data []byte, client *clientWriter, sess *interview.Session) error {
	switch action {
	case ws.ActionCamera:
		var req ws.CameraRequest
		if err := decodeAction(data, &req); err != nil {
			return err
		}
		return sess.SetCamera(interview.GateState(req.State), req.Reason)

	case ws.ActionFrame:
		var req ws.FrameRequest
		if err := decodeAction(data, &req); err != nil {
			h.monitor.Metrics().IncrementRejectedFrames()
			return err
		}
		raw, err := req.Decode()
		if err != nil {
			h.monitor.Metrics().IncrementRejectedFrames()
			return err
		}
		h.monitor.Metrics().IncrementFrames()
		sess.SubmitFrame(integrity.FrameSample{Data: raw, CapturedAt: req.Captured(time.Now())})
		return nil

	case ws.ActionAffirm:
		return sess.Affirm()

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if err := decodeAction(data, &req); err != nil {
			return err
		}
		return sess.SaveDraft(req.Text)

	case ws.ActionNext:
		return sess.Next()

	case ws.ActionPrev:
		return sess.Previous()

	case ws.ActionFinish:
		return sess.Finish()

	case ws.ActionPing:
		client.push(ws.Message{Event: ws.EventPong, At: time.Now().UnixMilli()})
		return nil

	default:
		return errUnknownAction
	}
}

var errUnknownAction = errors.New("unknown action")

// actionError carries validation details of a malformed action.
type actionError struct {
	fields map[string]string
}

func (e *actionError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for field, msg := range e.fields {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

func decodeAction(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return &actionError{fields: map[string]string{"detail": err.Error()}}
	}
	if fields := validator.Struct(dst); fields != nil {
		return &actionError{fields: fields}
	}
	return nil
}

// errorCode maps a session error onto the code sent to the client.
func errorCode(err error) response.ErrCode {
	var ae *actionError
	switch {
	case errors.As(err, &ae):
		return response.ErrValidation
	case errors.Is(err, ws.ErrFrameEncoding):
		return response.ErrFrameUndecodable
	case errors.Is(err, interview.ErrCameraNotGranted):
		return response.ErrCameraNotGranted
	case errors.Is(err, interview.ErrSessionClosed):
		return response.ErrInterviewClosed
	case errors.Is(err, interview.ErrInvalidGateTransition):
		return response.ErrInvalidPayload
	case errors.Is(err, errUnknownAction):
		return response.ErrUnknownAction
	default:
		return response.ErrInternal
	}
}

type sinkFunc func(model.IntegrityEvent)

func (f sinkFunc) RecordEvent(ev model.IntegrityEvent) { f(ev) }

// clientWriter pushes to one socket from a single goroutine so that neither
// the session loop nor the read loop ever waits on the network.
type clientWriter struct {
	conn *ws.Conn
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
	out    chan ws.Message
	done   chan struct{}
}

func newClientWriter(conn *ws.Conn, log zerolog.Logger) *clientWriter {
	w := &clientWriter{
		conn: conn,
		log:  log,
		out:  make(chan ws.Message, clientQueue),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Notify implements interview.Observer.
func (w *clientWriter) Notify(event interview.Event) {
	w.push(ws.Message{Event: ws.Event(event.Type), At: event.At.UnixMilli(), Data: event.Data})
}

// Release implements interview.Camera: the browser stops its media tracks
// when it receives camera_release.
func (w *clientWriter) Release() {
	w.push(ws.Message{Event: ws.EventCameraRelease, At: time.Now().UnixMilli()})
}

func (w *clientWriter) fail(code response.ErrCode) {
	w.push(ws.Message{
		Event: ws.EventError,
		At:    time.Now().UnixMilli(),
		Error: &ws.Error{Code: string(code), Message: response.GetMessage(code)},
	})
}

func (w *clientWriter) failErr(err error) {
	code := errorCode(err)
	msg := response.GetMessage(code)
	var ae *actionError
	if errors.As(err, &ae) {
		msg = ae.Error()
	}
	w.push(ws.Message{
		Event: ws.EventError,
		At:    time.Now().UnixMilli(),
		Error: &ws.Error{Code: string(code), Message: msg},
	})
}

func (w *clientWriter) push(msg ws.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.out <- msg:
	default:
		w.log.Warn().Str("event", string(msg.Event)).Msg("Client queue full, dropping push")
	}
}

func (w *clientWriter) run() {
	defer close(w.done)
	for msg := range w.out {
		if err := w.conn.WriteTyped(msg); err != nil {
			w.log.Debug().Err(err).Msg("Write failed")
		}
	}
}

// close flushes pending pushes and stops the writer. Safe to call twice.
func (w *clientWriter) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.out)
	}
	w.mu.Unlock()
	<-w.done
}
