package interview

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/model"
)

var (
	ErrCameraNotGranted = errors.New("camera permission not granted")
	ErrSessionClosed    = errors.New("interview session closed")
)

const defaultPersistTimeout = 5 * time.Second

// FlowController owns the question flow outside the integrity subsystem.
type FlowController interface {
	SaveAnswer(ctx context.Context, sessionID uuid.UUID, answer model.Answer) error
	Complete(ctx context.Context, sessionID uuid.UUID, reason model.EndReason) error
}

// IntegrityStore persists the finalized integrity record of a session.
type IntegrityStore interface {
	SaveIntegrity(ctx context.Context, sessionID uuid.UUID, data *model.IntegrityData) error
}

// Camera is the capture device on the client side.
type Camera interface {
	Release()
}

// Deps are the collaborators of a Controller. Only Flow and Store are
// required.
type Deps struct {
	Flow     FlowController
	Store    IntegrityStore
	Camera   Camera
	Observer Observer
	Sink     integrity.EventSink
	Logger   zerolog.Logger

	PersistTimeout time.Duration
}

// Controller is the single-threaded state of one interview session: camera
// gate, question flow, presence tracking, escalation and the final
// countdown. Every method takes the current instant and none of them spawn
// goroutines; Session serialises calls onto one goroutine.
type Controller struct {
	id            uuid.UUID
	cfg           integrity.Config
	interviewType model.InterviewType
	questions     []model.Question

	gate      *CameraPermissionGate
	recorder  *integrity.Recorder
	tracker   *integrity.PresenceTracker
	machine   *integrity.DistractionStateMachine
	countdown integrity.FinalCountdown

	index  int
	timer  *QuestionTimer
	drafts map[string]string

	lastTick      int
	lastCountdown int

	started bool
	closed  bool
	reason  model.EndReason
	result  *model.IntegrityData
	skipped int

	flow           FlowController
	store          IntegrityStore
	camera         Camera
	observer       Observer
	persistTimeout time.Duration
	log            zerolog.Logger
}

// NewController builds the state for a session that has not yet been
// granted camera access.
func NewController(id uuid.UUID, interviewType model.InterviewType, questions []model.Question, cfg integrity.Config, deps Deps) *Controller {
	rec := integrity.NewRecorder(deps.Sink)
	timeout := deps.PersistTimeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	observer := deps.Observer
	if observer == nil {
		observer = Observers(nil)
	}

	return &Controller{
		id:             id,
		cfg:            cfg,
		interviewType:  interviewType,
		questions:      questions,
		gate:           NewCameraPermissionGate(),
		recorder:       rec,
		tracker:        integrity.NewPresenceTracker(cfg.DebounceTicks, rec),
		machine:        integrity.NewDistractionStateMachine(cfg, rec),
		drafts:         make(map[string]string, len(questions)),
		lastTick:       -1,
		lastCountdown:  -1,
		flow:           deps.Flow,
		store:          deps.Store,
		camera:         deps.Camera,
		observer:       observer,
		persistTimeout: timeout,
		log:            deps.Logger.With().Str("session_id", id.String()).Logger(),
	}
}

func (c *Controller) ID() uuid.UUID {
	return c.id
}

func (c *Controller) Gate() GateState {
	return c.gate.State()
}

func (c *Controller) Level() integrity.Level {
	return c.machine.Level()
}

func (c *Controller) Totals() integrity.Totals {
	return c.recorder.Totals()
}

func (c *Controller) Events() []model.IntegrityEvent {
	return c.recorder.Events()
}

func (c *Controller) CountdownActive() bool {
	return c.countdown.Active()
}

func (c *Controller) QuestionIndex() int {
	return c.index
}

func (c *Controller) SkippedFrames() int {
	return c.skipped
}

func (c *Controller) Closed() bool {
	return c.closed
}

func (c *Controller) Result() (*model.IntegrityData, model.EndReason) {
	return c.result, c.reason
}

// Sampling reports whether frames should be analysed.
func (c *Controller) Sampling() bool {
	return c.started && !c.closed
}

// SetCamera applies a camera permission outcome reported by the client.
// Granting for the first time starts the question flow.
func (c *Controller) SetCamera(state GateState, reason string, now time.Time) error {
	if c.closed {
		return ErrSessionClosed
	}

	var err error
	switch state {
	case GateRequesting:
		err = c.gate.Request()
	case GateGranted, GateDenied:
		if s := c.gate.State(); s == GateIdle || s == GateDenied {
			if err = c.gate.Request(); err != nil {
				break
			}
		}
		if state == GateGranted {
			err = c.gate.Grant()
		} else {
			err = c.gate.Deny(reason)
		}
	default:
		err = ErrInvalidGateTransition
	}
	if err != nil {
		return err
	}

	c.emit(EventCamera, now, CameraEvent{
		State:  c.gate.State(),
		Reason: c.gate.Reason(),
		Retry:  c.gate.State() == GateDenied,
	})

	if c.gate.Open() && !c.started {
		c.started = true
		c.log.Info().Int("questions", len(c.questions)).Msg("Camera granted, interview started")
		c.show(0, now)
	}
	return nil
}

// Observe feeds one sampled classification into the presence tracker and
// escalates on a debounced absence.
func (c *Controller) Observe(class integrity.Classification, now time.Time) {
	if !c.Sampling() {
		return
	}

	obs := c.tracker.Observe(class, now)
	if obs.Opened != nil {
		c.log.Debug().Str("kind", string(*obs.Opened)).Msg("Absence started")
	}
	if !obs.Trigger {
		return
	}

	tr := c.machine.Trigger(now)
	c.log.Warn().
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Int("escalations", tr.Escalations).
		Msg("Distraction escalated")
	c.emitLevel(tr)

	if tr.StartCountdown && c.countdown.Start(now, c.cfg.CountdownSeconds) {
		c.emitCountdown(now)
	}
}

// SkipFrame counts a frame that could not be decoded. It never counts as
// absence.
func (c *Controller) SkipFrame() {
	c.skipped++
}

// Affirm is the candidate's "I'm here". The countdown is cancelled before
// the level resets; totals are kept.
func (c *Controller) Affirm(now time.Time) error {
	if c.closed {
		return ErrSessionClosed
	}
	cancelled := c.countdown.Cancel()
	tr := c.machine.Affirm(now)
	if cancelled {
		c.emitCountdown(now)
	}
	if tr.Changed() {
		c.log.Info().Str("from", tr.From.String()).Msg("Candidate affirmed presence")
		c.emitLevel(tr)
	}
	return nil
}

// SaveDraft keeps the in-progress answer text for the current question.
func (c *Controller) SaveDraft(text string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.drafts[c.questions[c.index].ID] = text
	return nil
}

// Next saves the current answer and moves forward, completing the
// interview after the last question.
func (c *Controller) Next(ctx context.Context, now time.Time) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.index == len(c.questions)-1 {
		c.end(ctx, model.EndReasonCompleted, now)
		return nil
	}
	c.saveCurrent(ctx, now)
	c.show(c.index+1, now)
	return nil
}

// Previous saves the current answer and moves back one question.
func (c *Controller) Previous(ctx context.Context, now time.Time) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.index == 0 {
		return nil
	}
	c.saveCurrent(ctx, now)
	c.show(c.index-1, now)
	return nil
}

// Finish completes the interview from any question.
func (c *Controller) Finish(ctx context.Context, now time.Time) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.end(ctx, model.EndReasonCompleted, now)
	return nil
}

// Abandon closes the session because the candidate left. It is a no-op on
// a closed session.
func (c *Controller) Abandon(ctx context.Context, now time.Time) {
	if c.closed {
		return
	}
	c.end(ctx, model.EndReasonAbandoned, now)
}

// Tick advances every deadline: warning dwell, final countdown and the
// question timer. Countdown expiry terminates the session.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	if c.closed {
		return
	}

	if tr := c.machine.Advance(now); tr.Changed() {
		c.emitLevel(tr)
	}

	if c.countdown.Active() {
		remaining, expired := c.countdown.Advance(now)
		if expired {
			c.log.Warn().Msg("Final countdown expired, terminating interview")
			c.end(ctx, model.EndReasonTerminated, now)
			return
		}
		if remaining != c.lastCountdown {
			c.emitCountdown(now)
		}
	}

	if !c.started {
		return
	}
	remaining, expired := c.timer.Advance(now)
	if expired {
		c.log.Info().Int("question", c.index).Msg("Question time expired")
		if c.index == len(c.questions)-1 {
			c.end(ctx, model.EndReasonCompleted, now)
			return
		}
		c.saveCurrent(ctx, now)
		c.show(c.index+1, now)
		return
	}
	if remaining != c.lastTick {
		c.lastTick = remaining
		c.emit(EventTick, now, TickEvent{
			Timer:  c.timer.State(now),
			Level:  c.machine.Level(),
			Totals: c.recorder.Totals(),
		})
	}
}

func (c *Controller) ready() error {
	if c.closed {
		return ErrSessionClosed
	}
	if !c.started {
		return ErrCameraNotGranted
	}
	return nil
}

func (c *Controller) show(index int, now time.Time) {
	c.index = index
	q := c.questions[index]
	c.timer = NewQuestionTimer(DurationFor(c.interviewType, q.Category), now)
	c.lastTick = c.timer.Remaining(now)

	c.emit(EventQuestion, now, QuestionEvent{
		Index:    index,
		Total:    len(c.questions),
		Question: q,
		Draft:    c.drafts[q.ID],
		Timer:    c.timer.State(now),
	})
}

func (c *Controller) saveCurrent(ctx context.Context, now time.Time) {
	if !c.started || c.timer == nil {
		return
	}
	q := c.questions[c.index]
	answer := model.Answer{
		QuestionID: q.ID,
		Text:       c.drafts[q.ID],
		TimeTaken:  c.timer.Elapsed(now),
		UpdatedAt:  now,
	}
	if err := c.flow.SaveAnswer(ctx, c.id, answer); err != nil {
		c.log.Error().Err(err).Str("question_id", q.ID).Msg("Failed to save answer")
	}
}

// end runs every exit path exactly once.
func (c *Controller) end(ctx context.Context, reason model.EndReason, now time.Time) {
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason

	c.countdown.Cancel()
	if c.camera != nil {
		c.camera.Release()
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()

	c.saveCurrent(pctx, now)
	c.result = c.recorder.Finalize(now)

	if err := c.store.SaveIntegrity(pctx, c.id, c.result); err != nil {
		c.log.Error().Err(err).Msg("Failed to persist integrity data")
	}
	if err := c.flow.Complete(pctx, c.id, reason); err != nil {
		c.log.Error().Err(err).Str("reason", string(reason)).Msg("Failed to complete interview")
	}

	c.log.Info().
		Str("reason", string(reason)).
		Int("score", c.result.Score).
		Int("warnings", c.result.WarningCount).
		Int64("absence_ms", c.result.TotalFaceAbsenceMs).
		Int("skipped_frames", c.skipped).
		Msg("Interview finished")

	c.emit(EventFinished, now, FinishedEvent{Reason: reason, Integrity: c.result})
}

func (c *Controller) emitLevel(tr integrity.Transition) {
	c.emit(EventLevel, tr.At, LevelEvent{
		From:        tr.From,
		To:          tr.To,
		Escalations: tr.Escalations,
		Totals:      c.recorder.Totals(),
	})
}

func (c *Controller) emitCountdown(now time.Time) {
	remaining := c.countdown.Remaining(now)
	c.lastCountdown = remaining
	c.emit(EventCountdown, now, CountdownEvent{
		Active:    c.countdown.Active(),
		Remaining: remaining,
		Total:     c.countdown.Total(),
	})
}

func (c *Controller) emit(t EventType, at time.Time, data any) {
	c.observer.Notify(Event{Type: t, SessionID: c.id.String(), At: at, Data: data})
}
