package interview_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/interview"
	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFlow struct{ mock.Mock }

func (m *mockFlow) SaveAnswer(ctx context.Context, id uuid.UUID, answer model.Answer) error {
	return m.Called(ctx, id, answer).Error(0)
}

func (m *mockFlow) Complete(ctx context.Context, id uuid.UUID, reason model.EndReason) error {
	return m.Called(ctx, id, reason).Error(0)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) SaveIntegrity(ctx context.Context, id uuid.UUID, data *model.IntegrityData) error {
	return m.Called(ctx, id, data).Error(0)
}

type fakeCamera struct{ released atomic.Int32 }

func (c *fakeCamera) Release() { c.released.Add(1) }

type eventLog struct {
	mu     sync.Mutex
	events []interview.Event
}

func (l *eventLog) Notify(e interview.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(t interview.EventType) []interview.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []interview.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	id     uuid.UUID
	flow   *mockFlow
	store  *mockStore
	camera *fakeCamera
	events *eventLog
	ctrl   *interview.Controller
}

func questions(n int, category string) []model.Question {
	out := make([]model.Question, n)
	for i := range out {
		out[i] = model.Question{ID: string(rune('a' + i)), Text: "question", Category: category}
	}
	return out
}

func newFixture(t *testing.T, interviewType model.InterviewType, qs []model.Question) *fixture {
	t.Helper()
	f := &fixture{
		id:     uuid.New(),
		flow:   &mockFlow{},
		store:  &mockStore{},
		camera: &fakeCamera{},
		events: &eventLog{},
	}
	f.ctrl = interview.NewController(f.id, interviewType, qs, integrity.DefaultConfig(), interview.Deps{
		Flow:     f.flow,
		Store:    f.store,
		Camera:   f.camera,
		Observer: f.events,
		Logger:   zerolog.Nop(),
	})
	return f
}

func (f *fixture) grant(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.SetCamera(interview.GateGranted, "", at(0)))
}

// absenceRun feeds two absent ticks followed by a present tick starting at
// second start.
func (f *fixture) absenceRun(start float64) {
	f.ctrl.Observe(integrity.NoFaceDetected, at(start))
	f.ctrl.Observe(integrity.NoFaceDetected, at(start+1))
	f.ctrl.Observe(integrity.Present, at(start+2))
}

func TestController_NothingRunsBeforeCameraGranted(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(3, ""))
	ctx := context.Background()

	f.ctrl.Observe(integrity.BlockedByObstruction, at(0))
	f.ctrl.Observe(integrity.BlockedByObstruction, at(1))
	f.ctrl.Tick(ctx, at(500))

	assert.Equal(t, integrity.LevelClean, f.ctrl.Level())
	assert.Empty(t, f.ctrl.Events())
	assert.ErrorIs(t, f.ctrl.SaveDraft("hi"), interview.ErrCameraNotGranted)
	assert.ErrorIs(t, f.ctrl.Next(ctx, at(1)), interview.ErrCameraNotGranted)
	assert.Empty(t, f.events.ofType(interview.EventQuestion))
}

func TestController_DeniedCameraCanRetry(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(3, ""))

	require.NoError(t, f.ctrl.SetCamera(interview.GateDenied, "NotAllowedError", at(0)))
	cam := f.events.ofType(interview.EventCamera)
	require.Len(t, cam, 1)
	assert.Equal(t, interview.CameraEvent{State: interview.GateDenied, Reason: "NotAllowedError", Retry: true}, cam[0].Data)
	assert.False(t, f.ctrl.Sampling())

	require.NoError(t, f.ctrl.SetCamera(interview.GateGranted, "", at(5)))
	assert.True(t, f.ctrl.Sampling())

	shown := f.events.ofType(interview.EventQuestion)
	require.Len(t, shown, 1)
	q := shown[0].Data.(interview.QuestionEvent)
	assert.Equal(t, 0, q.Index)
	assert.Equal(t, 3, q.Total)
	assert.Equal(t, 120, q.Timer.TotalSeconds)

	assert.ErrorIs(t, f.ctrl.SetCamera(interview.GateGranted, "", at(6)), interview.ErrInvalidGateTransition)
	assert.Len(t, f.events.ofType(interview.EventQuestion), 1, "a second grant must not restart the flow")
}

func TestController_QuestionExpiryDuringWarningKeepsDistractionState(t *testing.T) {
	f := newFixture(t, model.InterviewTypeTechnical, questions(2, ""))
	ctx := context.Background()
	f.flow.On("SaveAnswer", mock.Anything, f.id, mock.MatchedBy(func(a model.Answer) bool {
		return a.QuestionID == "a" && a.TimeTaken == 180
	})).Return(nil).Once()
	f.grant(t)

	f.absenceRun(170)
	f.ctrl.Observe(integrity.NoFaceDetected, at(176))
	f.ctrl.Observe(integrity.NoFaceDetected, at(177))
	require.Equal(t, integrity.LevelWarn2, f.ctrl.Level())
	before := f.ctrl.Totals()

	f.ctrl.Tick(ctx, at(180))

	assert.Equal(t, 1, f.ctrl.QuestionIndex())
	assert.Equal(t, integrity.LevelWarn2, f.ctrl.Level())
	assert.Equal(t, before, f.ctrl.Totals())
	assert.False(t, f.ctrl.Closed())
	f.flow.AssertExpectations(t)
}

func TestController_QuestionExpiryOnLastQuestionCompletes(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(1, ""))
	f.flow.On("SaveAnswer", mock.Anything, f.id, mock.Anything).Return(nil)
	f.flow.On("Complete", mock.Anything, f.id, model.EndReasonCompleted).Return(nil).Once()
	f.store.On("SaveIntegrity", mock.Anything, f.id, mock.Anything).Return(nil).Once()
	f.grant(t)

	f.ctrl.Tick(context.Background(), at(120))

	assert.True(t, f.ctrl.Closed())
	f.flow.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestController_CountdownExpiryTerminates(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(3, ""))
	ctx := context.Background()
	f.flow.On("SaveAnswer", mock.Anything, f.id, mock.MatchedBy(func(a model.Answer) bool {
		return a.QuestionID == "a" && a.Text == "partial answer"
	})).Return(nil).Once()
	f.flow.On("Complete", mock.Anything, f.id, model.EndReasonTerminated).Return(nil).Once()
	f.store.On("SaveIntegrity", mock.Anything, f.id, mock.MatchedBy(func(d *model.IntegrityData) bool {
		return d.WarningCount == 3 && d.TotalFaceAbsenceMs == 15000 && d.Score == 67
	})).Return(nil).Once()
	f.grant(t)
	require.NoError(t, f.ctrl.SaveDraft("partial answer"))

	f.absenceRun(1)
	f.absenceRun(4)
	f.ctrl.Observe(integrity.NoFaceDetected, at(7))
	f.ctrl.Observe(integrity.NoFaceDetected, at(8))
	require.Equal(t, integrity.LevelCritical, f.ctrl.Level())
	require.True(t, f.ctrl.CountdownActive())

	started := f.events.ofType(interview.EventCountdown)
	require.Len(t, started, 1)
	assert.Equal(t, interview.CountdownEvent{Active: true, Remaining: 10, Total: 10}, started[0].Data)

	f.ctrl.Tick(ctx, at(17.9))
	require.False(t, f.ctrl.Closed())
	f.ctrl.Tick(ctx, at(18))
	require.True(t, f.ctrl.Closed())

	data, reason := f.ctrl.Result()
	assert.Equal(t, model.EndReasonTerminated, reason)
	assert.Equal(t, model.VerdictMedium, data.Verdict)
	assert.Len(t, data.Events, 5)
	assert.Equal(t, int32(1), f.camera.released.Load())

	finished := f.events.ofType(interview.EventFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, model.EndReasonTerminated, finished[0].Data.(interview.FinishedEvent).Reason)

	f.flow.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestController_AffirmCancelsCountdown(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(3, ""))
	ctx := context.Background()
	f.grant(t)

	f.absenceRun(1)
	f.absenceRun(4)
	f.absenceRun(7)
	require.True(t, f.ctrl.CountdownActive())
	before := f.ctrl.Totals()

	require.NoError(t, f.ctrl.Affirm(at(12)))
	assert.False(t, f.ctrl.CountdownActive())
	assert.Equal(t, integrity.LevelClean, f.ctrl.Level())
	assert.Equal(t, before, f.ctrl.Totals())

	f.ctrl.Tick(ctx, at(30))
	assert.False(t, f.ctrl.Closed())

	// the escalation counter survives the affirmation
	f.absenceRun(31)
	assert.Equal(t, integrity.LevelCritical, f.ctrl.Level())
	assert.True(t, f.ctrl.CountdownActive())
	assert.Equal(t, 4, f.ctrl.Totals().WarningCount)

	f.store.AssertNotCalled(t, "SaveIntegrity", mock.Anything, mock.Anything, mock.Anything)
}

func TestController_WarningClearsAfterDwell(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(3, ""))
	ctx := context.Background()
	f.grant(t)

	f.absenceRun(1)
	require.Equal(t, integrity.LevelWarn1, f.ctrl.Level())

	f.ctrl.Tick(ctx, at(6))
	assert.Equal(t, integrity.LevelWarn1, f.ctrl.Level())
	f.ctrl.Tick(ctx, at(6.5))
	assert.Equal(t, integrity.LevelClean, f.ctrl.Level())

	levels := f.events.ofType(interview.EventLevel)
	require.Len(t, levels, 2)
	assert.Equal(t, integrity.LevelClean, levels[1].Data.(interview.LevelEvent).To)
}

func TestController_CleanSessionScoresHigh(t *testing.T) {
	f := newFixture(t, model.InterviewTypeMixed, questions(3, "Technical"))
	ctx := context.Background()
	f.flow.On("SaveAnswer", mock.Anything, f.id, mock.Anything).Return(nil).Times(3)
	f.flow.On("Complete", mock.Anything, f.id, model.EndReasonCompleted).Return(nil).Once()
	f.store.On("SaveIntegrity", mock.Anything, f.id, mock.MatchedBy(func(d *model.IntegrityData) bool {
		return d.Score == 100 && d.Verdict == model.VerdictHigh && d.WarningCount == 0 && len(d.Events) == 0
	})).Return(nil).Once()
	f.grant(t)

	for sec := 1; sec <= 30; sec++ {
		f.ctrl.Observe(integrity.Present, at(float64(sec)))
		f.ctrl.Tick(ctx, at(float64(sec)))
		if sec%10 == 0 {
			require.NoError(t, f.ctrl.SaveDraft("answer"))
			require.NoError(t, f.ctrl.Next(ctx, at(float64(sec))))
		}
	}

	assert.True(t, f.ctrl.Closed())
	data, reason := f.ctrl.Result()
	assert.Equal(t, model.EndReasonCompleted, reason)
	assert.Equal(t, 100, data.Score)
	f.flow.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestController_ExitRunsOnce(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(3, ""))
	ctx := context.Background()
	f.flow.On("SaveAnswer", mock.Anything, f.id, mock.Anything).Return(nil)
	f.flow.On("Complete", mock.Anything, f.id, mock.Anything).Return(nil)
	f.store.On("SaveIntegrity", mock.Anything, f.id, mock.Anything).Return(nil)
	f.grant(t)

	require.NoError(t, f.ctrl.Finish(ctx, at(3)))
	f.ctrl.Abandon(ctx, at(4))
	f.ctrl.Tick(ctx, at(500))

	assert.ErrorIs(t, f.ctrl.Next(ctx, at(5)), interview.ErrSessionClosed)
	assert.ErrorIs(t, f.ctrl.Affirm(at(5)), interview.ErrSessionClosed)
	assert.ErrorIs(t, f.ctrl.SetCamera(interview.GateRequesting, "", at(5)), interview.ErrSessionClosed)

	f.store.AssertNumberOfCalls(t, "SaveIntegrity", 1)
	f.flow.AssertNumberOfCalls(t, "Complete", 1)
	assert.Equal(t, int32(1), f.camera.released.Load())
	_, reason := f.ctrl.Result()
	assert.Equal(t, model.EndReasonCompleted, reason)
}

func TestController_PersistenceFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(2, ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.flow.On("SaveAnswer", mock.Anything, f.id, mock.Anything).Return(errors.New("redis down"))
	f.flow.On("Complete", mock.Anything, f.id, model.EndReasonAbandoned).Return(nil).Once()
	f.store.On("SaveIntegrity", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), f.id, mock.Anything).Return(errors.New("db down")).Once()
	f.grant(t)

	f.ctrl.Abandon(ctx, at(2))

	assert.True(t, f.ctrl.Closed())
	assert.Len(t, f.events.ofType(interview.EventFinished), 1)
	f.store.AssertExpectations(t)
	f.flow.AssertExpectations(t)
}

func TestController_PreviousStaysOnFirstQuestion(t *testing.T) {
	f := newFixture(t, model.InterviewTypeBehavioral, questions(3, ""))
	ctx := context.Background()
	f.flow.On("SaveAnswer", mock.Anything, f.id, mock.Anything).Return(nil)
	f.grant(t)

	require.NoError(t, f.ctrl.Previous(ctx, at(1)))
	assert.Equal(t, 0, f.ctrl.QuestionIndex())
	f.flow.AssertNotCalled(t, "SaveAnswer", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, f.ctrl.SaveDraft("first"))
	require.NoError(t, f.ctrl.Next(ctx, at(2)))
	require.NoError(t, f.ctrl.Previous(ctx, at(3)))

	shown := f.events.ofType(interview.EventQuestion)
	require.Len(t, shown, 3)
	assert.Equal(t, "first", shown[2].Data.(interview.QuestionEvent).Draft, "draft is restored when going back")
}
