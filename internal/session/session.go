// Package session runs the monitor: it owns the application model, applies
// messages one at a time and schedules the periodic market refresh.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brandon/adex-market-monitor/internal/market"
	"github.com/brandon/adex-market-monitor/internal/metrics"
	"github.com/brandon/adex-market-monitor/internal/models"
	"github.com/brandon/adex-market-monitor/internal/state"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const eventBufferSize = 64

// Session is the single writer of the application model. Readers get copies
// through Snapshot or subscriptions.
type Session struct {
	fetcher  market.Fetcher
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time

	events chan state.Msg
	cron   *cron.Cron

	mu          sync.RWMutex
	model       state.Model
	subscribers []func(state.Model)

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	fetches  sync.WaitGroup
	started  bool
	stopped  bool
	stopOnce sync.Once
}

// New creates a session that refreshes from fetcher every interval.
func New(fetcher market.Fetcher, interval time.Duration, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		events:   make(chan state.Msg, eventBufferSize),
		cron:     cron.New(),
		model:    state.NewModel(),
		done:     make(chan struct{}),
	}
}

// Subscribe registers fn to be called with a copy of the model after every
// message that changed it. fn runs on the session goroutine and must not block.
func (s *Session) Subscribe(fn func(state.Model)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Start launches the event loop, requests a first refresh and schedules one
// every interval until Stop.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.loop()

	s.Dispatch(state.RequestRefresh{})
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.Dispatch(state.RequestRefresh{})
	}))
	s.cron.Start()

	s.logger.WithField("interval", s.interval.String()).Info("Market refresh scheduled")
}

// Stop removes the refresh schedule, cancels in-flight fetches and waits for
// the loop to exit. It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		started := s.started
		s.mu.Unlock()

		<-s.cron.Stop().Done()
		if !started {
			close(s.done)
			return
		}

		s.cancel()
		<-s.done
		s.fetches.Wait()
		s.logger.Info("Session stopped")
	})
}

// Dispatch queues msg for the event loop. Messages sent before Start or after
// Stop are dropped.
func (s *Session) Dispatch(msg state.Msg) {
	s.mu.RLock()
	running := s.started && !s.stopped
	s.mu.RUnlock()
	if !running {
		return
	}

	select {
	case s.events <- msg:
	case <-s.done:
	}
}

// Snapshot returns a copy of the current model.
func (s *Session) Snapshot() state.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.events:
			s.apply(msg)
		}
	}
}

func (s *Session) apply(msg state.Msg) {
	s.mu.Lock()
	cmd, outcome := state.Update(&s.model, msg, s.now())
	snapshot := s.model
	subscribers := make([]func(state.Model), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(msgType(msg), outcome.String()).Inc()
	s.observe(msg, outcome, snapshot)

	if fetch, ok := cmd.(state.FetchCmd); ok {
		s.fetches.Add(1)
		go s.runFetch(fetch.Seq)
	}

	if outcome != state.Applied {
		return
	}
	if _, ok := msg.(state.RequestRefresh); ok {
		return
	}
	for _, fn := range subscribers {
		fn(snapshot)
	}
}

func (s *Session) observe(msg state.Msg, outcome state.Outcome, m state.Model) {
	switch msg := msg.(type) {
	case state.RefreshSucceeded:
		if outcome == state.Stale {
			metrics.StaleResponsesTotal.Inc()
			s.logger.WithFields(logrus.Fields{
				"seq":         msg.Seq,
				"applied_seq": m.LastAppliedSeq,
				"channels":    len(msg.Channels),
			}).Info("Discarding stale market listing")
			return
		}
		metrics.ChannelsCount.Set(float64(len(msg.Channels)))
		metrics.ConsecutiveFailures.Set(0)
		s.logger.WithFields(logrus.Fields{
			"seq":      msg.Seq,
			"channels": len(msg.Channels),
		}).Info("Market listing updated")

	case state.RefreshFailed:
		if outcome == state.Stale {
			metrics.StaleResponsesTotal.Inc()
			return
		}
		metrics.ConsecutiveFailures.Set(float64(m.ConsecutiveFailures))
		s.logger.WithError(msg.Err).WithFields(logrus.Fields{
			"seq":                  msg.Seq,
			"consecutive_failures": m.ConsecutiveFailures,
			"last_updated":         m.LastUpdated,
		}).Warn("Market refresh failed; keeping previous data")

	case state.SortModeChanged:
		if outcome == state.Ignored {
			s.logger.WithField("name", msg.Name).Debug("Ignoring unknown sort mode")
		}
	}
}

func (s *Session) runFetch(seq uint64) {
	defer s.fetches.Done()

	channels, err := s.fetcher.FetchChannels(s.ctx)
	if err != nil {
		metrics.MarketFetchTotal.WithLabelValues(errorKind(err)).Inc()
		s.Dispatch(state.RefreshFailed{Seq: seq, Err: err})
		return
	}
	metrics.MarketFetchTotal.WithLabelValues("success").Inc()
	s.Dispatch(state.RefreshSucceeded{Seq: seq, Channels: channels})
}

func errorKind(err error) string {
	var decodeErr *models.DecodeError
	var netErr *market.NetworkError
	switch {
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &netErr):
		return "network_error"
	default:
		return "error"
	}
}

func msgType(msg state.Msg) string {
	switch msg.(type) {
	case state.RequestRefresh:
		return "request_refresh"
	case state.RefreshSucceeded:
		return "refresh_succeeded"
	case state.RefreshFailed:
		return "refresh_failed"
	case state.SortModeChanged:
		return "sort_mode_changed"
	default:
		return "unknown"
	}
}
