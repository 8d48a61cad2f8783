package interview

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/model"
)

// Analyzer classifies one captured frame.
type Analyzer interface {
	Analyze(sample integrity.FrameSample) (integrity.Classification, error)
}

// SessionOptions tune the session loop. Zero values fall back to the
// production cadence.
type SessionOptions struct {
	SampleInterval       time.Duration
	HousekeepingInterval time.Duration
	Clock                func() time.Time
	Logger               zerolog.Logger
}

type command struct {
	apply func(ctx context.Context, now time.Time) error
	reply chan error
}

type analysis struct {
	class integrity.Classification
	at    time.Time
	err   error
}

// Session runs a Controller on its own goroutine. Client input arrives as
// messages; frames go through a one-slot mailbox where the newest frame
// replaces an unread one.
type Session struct {
	ctrl     *Controller
	analyzer Analyzer

	sampleEvery time.Duration
	houseEvery  time.Duration
	now         func() time.Time
	log         zerolog.Logger

	frames   chan integrity.FrameSample
	commands chan command
	results  chan analysis
	done     chan struct{}
}

// NewSession wires a controller and an analyzer into a runnable session.
func NewSession(ctrl *Controller, analyzer Analyzer, opts SessionOptions) *Session {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.HousekeepingInterval <= 0 {
		opts.HousekeepingInterval = 250 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	log := opts.Logger.With().
		Str("component", "session").
		Str("session_id", ctrl.ID().String()).
		Logger()

	return &Session{
		ctrl:        ctrl,
		analyzer:    analyzer,
		sampleEvery: opts.SampleInterval,
		houseEvery:  opts.HousekeepingInterval,
		now:         opts.Clock,
		log:         log,
		frames:      make(chan integrity.FrameSample, 1),
		commands:    make(chan command),
		results:     make(chan analysis, 1),
		done:        make(chan struct{}),
	}
}

// Done is closed once the session has finished and persisted its record.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the finalized record and exit path. Valid after Done.
func (s *Session) Result() (*model.IntegrityData, model.EndReason) {
	return s.ctrl.Result()
}

// Run drives the session until an exit path closes it. Cancelling ctx
// abandons the interview.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	sample := time.NewTicker(s.sampleEvery)
	defer sample.Stop()
	house := time.NewTicker(s.houseEvery)
	defer house.Stop()

	inFlight := false

	for {
		select {
		case <-ctx.Done():
			s.ctrl.Abandon(ctx, s.now())

		case cmd := <-s.commands:
			cmd.reply <- cmd.apply(ctx, s.now())

		case <-sample.C:
			if inFlight || !s.ctrl.Sampling() {
				continue
			}
			select {
			case frame := <-s.frames:
				inFlight = true
				go s.analyze(frame, s.now())
			default:
			}

		case res := <-s.results:
			inFlight = false
			if res.err != nil {
				s.ctrl.SkipFrame()
				s.log.Debug().Err(res.err).Msg("Skipping undecodable frame")
				continue
			}
			s.ctrl.Observe(res.class, res.at)

		case <-house.C:
			s.ctrl.Tick(ctx, s.now())
		}

		if s.ctrl.Closed() {
			return
		}
	}
}

func (s *Session) analyze(frame integrity.FrameSample, at time.Time) {
	class, err := s.analyzer.Analyze(frame)
	s.results <- analysis{class: class, at: at, err: err}
}

// SubmitFrame offers the latest captured frame. It never blocks.
func (s *Session) SubmitFrame(frame integrity.FrameSample) {
	for {
		select {
		case <-s.done:
			return
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

func (s *Session) SetCamera(state GateState, reason string) error {
	return s.do(func(_ context.Context, now time.Time) error {
		return s.ctrl.SetCamera(state, reason, now)
	})
}

func (s *Session) Affirm() error {
	return s.do(func(_ context.Context, now time.Time) error {
		return s.ctrl.Affirm(now)
	})
}

func (s *Session) SaveDraft(text string) error {
	return s.do(func(_ context.Context, _ time.Time) error {
		return s.ctrl.SaveDraft(text)
	})
}

func (s *Session) Next() error {
	return s.do(s.ctrl.Next)
}

func (s *Session) Previous() error {
	return s.do(s.ctrl.Previous)
}

func (s *Session) Finish() error {
	return s.do(s.ctrl.Finish)
}

// Abandon closes the session as abandoned. Safe to call after it ended.
func (s *Session) Abandon() {
	_ = s.do(func(ctx context.Context, now time.Time) error {
		s.ctrl.Abandon(ctx, now)
		return nil
	})
}

func (s *Session) do(fn func(ctx context.Context, now time.Time) error) error {
	reply := make(chan error, 1)
	select {
	case s.commands <- command{apply: fn, reply: reply}:
	case <-s.done:
		return ErrSessionClosed
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}
