// Package session keeps one machine connected: it scans, connects, runs the vendor
// handshake and polls until the link drops, then starts over.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/device/treadmill"
	"github.com/robertof/go-treadfit/energy"
	"github.com/robertof/go-treadfit/utils"
)

const (
	DefaultReconnectDelay     = 5 * time.Second
	DefaultScanTimeout        = 10 * time.Second
	DefaultConnectTimeout     = 10 * time.Second
	DefaultCheckpointInterval = 30 * time.Second
)

var (
	framesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treadfit_session_frames_total",
		Help: "Notification frames received, by decoded kind.",
	}, []string{"kind"})
	attemptsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treadfit_session_connection_attempts_total",
	})
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(framesCounter, attemptsCounter)
}

type Options struct {
	// TargetName is matched exactly against the advertised local name.
	TargetName string

	ReconnectDelay     time.Duration
	ScanTimeout        time.Duration
	ConnectTimeout     time.Duration
	CommandDelay       time.Duration
	PollInterval       time.Duration
	CheckpointInterval time.Duration

	WeightKg float64
}

func DefaultOptions() Options {
	return Options{
		TargetName:         treadmill.DefaultName,
		ReconnectDelay:     DefaultReconnectDelay,
		ScanTimeout:        DefaultScanTimeout,
		ConnectTimeout:     DefaultConnectTimeout,
		CommandDelay:       treadmill.DefaultCommandDelay,
		PollInterval:       treadmill.DefaultPollInterval,
		CheckpointInterval: DefaultCheckpointInterval,
		WeightKg:           energy.DefaultWeightKg,
	}
}

// Checkpointer persists snapshots. *checkpoint.Store implements it.
type Checkpointer interface {
	Append(snap device.Snapshot) error
}

type Session struct {
	// OnTransition, if set, is called from the session goroutine on every state change.
	// It must not block.
	OnTransition func(Transition)

	opts      Options
	transport device.Transport
	store     Checkpointer

	agg     *device.Aggregator
	tracker *Tracker

	mu      sync.Mutex
	current Transition
	running bool

	// discriminators of unknown frames already reported at warn level.
	unknown sync.Map
}

func New(t device.Transport, store Checkpointer, opts Options) *Session {
	return &Session{
		opts:      opts,
		transport: t,
		store:     store,
		agg:       device.NewAggregator(),
		tracker:   NewTracker(opts.WeightKg),
		current:   Transition{State: StateIdle},
	}
}

func (s *Session) Aggregator() *device.Aggregator {
	return s.agg
}

func (s *Session) Tracker() *Tracker {
	return s.tracker
}

// State returns the current state and, when Disconnected, the reason.
func (s *Session) State() Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

func (s *Session) transition(state State, reason error) {
	t := Transition{State: state, Reason: reason}

	s.mu.Lock()
	s.current = t
	s.mu.Unlock()

	ev := log.Debug()

	if state == StateDisconnected && reason != ErrStopped {
		ev = log.Warn()
	}

	ev.Stringer("State", state).Err(reason).Msg("session: state changed")

	if s.OnTransition != nil {
		s.OnTransition(t)
	}
}

// Run drives the state machine until ctx is done. Link failures never end it: the
// session waits ReconnectDelay and scans again. Run can only be called once.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		panic("attempted to call session.Run() twice")
	}

	s.running = true
	s.mu.Unlock()

	log.Info().
		Str("TargetName", s.opts.TargetName).
		Dur("ReconnectDelaySec", s.opts.ReconnectDelay).
		Dur("PollIntervalSec", s.opts.PollInterval).
		Dur("CheckpointIntervalSec", s.opts.CheckpointInterval).
		Msg("Starting device session")

	for {
		err := s.attempt(ctx)

		if ctx.Err() != nil {
			s.transition(StateDisconnected, ErrStopped)
			return nil
		}

		if utils.ErrorIsAnyOf(err, device.ErrNotFound) {
			// no match within this pass: keep scanning.
			log.Debug().Err(err).Dur("RetryInSec", s.opts.ReconnectDelay).Msg("session: target not found")
		} else {
			if err == nil {
				err = ErrLinkLost
			}

			s.transition(StateDisconnected, err)
		}

		if sleep(ctx, s.opts.ReconnectDelay) != nil {
			s.transition(StateDisconnected, ErrStopped)
			return nil
		}
	}
}

// attempt runs one pass from Scanning to the end of Polling. The link is always released
// before it returns.
func (s *Session) attempt(ctx context.Context) error {
	if st := s.State().State; st != StateScanning {
		s.transition(StateScanning, nil)
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.opts.ScanTimeout)
	p, err := s.transport.Find(scanCtx, s.opts.TargetName)
	cancel()

	if err != nil {
		return err
	}

	s.transition(StateConnecting, nil)
	attemptsCounter.Inc()

	connCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	link, err := s.transport.Connect(connCtx, p)
	cancel()

	if err != nil {
		return fmt.Errorf("failed to connect to %v: %w", p, err)
	}

	defer func() {
		if err := link.Close(); err != nil {
			log.Trace().Err(err).Stringer("Peripheral", p).Msg("session: failed to close link")
		}
	}()

	log.Info().Stringer("Peripheral", p).Msg("Connected to machine")

	// let the connection settle before the first command.
	if err := sleep(ctx, s.opts.CommandDelay); err != nil {
		return err
	}

	s.transition(StateHandshaking, nil)

	if err := s.handshake(ctx, link); err != nil {
		return err
	}

	s.tracker.Restart()
	s.transition(StatePolling, nil)

	return s.poll(ctx, link)
}

func (s *Session) handshake(ctx context.Context, link device.Link) error {
	for i, cmd := range treadmill.InitSequence() {
		if err := link.Write(cmd); err != nil {
			return fmt.Errorf("handshake command %d failed: %w", i, err)
		}

		log.Trace().Int("Index", i).Hex("Command", cmd).Msg("session: sent handshake command")

		if err := sleep(ctx, s.opts.CommandDelay); err != nil {
			return err
		}
	}

	return nil
}

// poll subscribes to notifications and keeps prompting the machine until the link drops
// or ctx is done. The checkpoint task runs alongside and never touches the link.
func (s *Session) poll(ctx context.Context, link device.Link) error {
	if err := link.Subscribe(s.handleNotification); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-link.Disconnected():
			return ErrLinkLost
		}
	})

	g.Go(func() error {
		return s.pollLoop(gctx, link)
	})

	g.Go(func() error {
		s.checkpointLoop(gctx)
		return nil
	})

	return g.Wait()
}

func (s *Session) pollLoop(ctx context.Context, link device.Link) error {
	seq := treadmill.PollSequence()

	for {
		for _, cmd := range seq {
			if err := link.Write(cmd); err != nil {
				return fmt.Errorf("poll command failed: %w", err)
			}
		}

		if sleep(ctx, s.opts.PollInterval) != nil {
			return nil
		}

		s.tracker.Tick(s.agg.CurrentStatus(), time.Now())
	}
}

// checkpointLoop appends the current status every CheckpointInterval. Failed appends are
// reported and the next cycle goes ahead regardless.
func (s *Session) checkpointLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			status := s.agg.Status()

			if status.Version == 0 {
				log.Debug().Msg("session: nothing received yet, skipping checkpoint")
				continue
			}

			snap := status.Snapshot(now)

			if err := s.store.Append(snap); err != nil {
				log.Error().Err(err).Stringer("Snapshot", snap).Msg("Failed to save checkpoint")
				continue
			}

			log.Debug().Stringer("Snapshot", snap).Msg("session: saved checkpoint")
		}
	}
}

// handleNotification runs on the transport's notification goroutine, once per payload
// and in arrival order.
func (s *Session) handleNotification(data []byte) {
	f := treadmill.Decode(data)
	framesCounter.WithLabelValues(f.Kind.String()).Inc()

	switch f.Kind {
	case device.FrameKinematic, device.FrameElapsed:
		s.agg.Apply(f)

		log.Trace().Stringer("Kind", f.Kind).Stringer("Reading", f.Reading).Msg("session: applied frame")
	case device.FrameUnknown:
		ev := log.Debug()

		if _, seen := s.unknown.LoadOrStore(f.Discriminator, struct{}{}); !seen {
			ev = log.Warn()
		}

		ev.Uint8("Discriminator", f.Discriminator).Hex("Data", data).Msg("Received frame of unknown type")
	default:
		log.Trace().Hex("Data", data).Msg("session: ignored frame")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
