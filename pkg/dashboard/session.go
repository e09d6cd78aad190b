// Package dashboard is the client side of the live dashboard channel: it keeps one
// dashboard's stats fresh from push events, polling and staggered refetches, and decides
// which scans raise an alert for the viewed scope.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Defaults for Options
var (
	DefaultRefetchDelays = []time.Duration{0, 2 * time.Second, 5 * time.Second}
	DefaultPollInterval  = 60 * time.Second
	DefaultFetchTimeout  = 10 * time.Second
)

// Fetcher loads occupancy stats for a scope (nil is global)
type Fetcher interface {
	FetchStats(ctx context.Context, scope *int64) (*models.DashboardStats, error)
}

// Options tunes a Session
type Options struct {
	Clock         Clock
	RefetchDelays []time.Duration
	PollInterval  time.Duration
	FetchTimeout  time.Duration
	Logger        logrus.FieldLogger

	// OnChange is called after every state change, outside the session lock
	OnChange func(Snapshot)
}

// Snapshot is what a dashboard renders
type Snapshot struct {
	Scope        *int64
	Stats        *models.DashboardStats // last known good, nil before the first successful fetch
	LocationInfo *models.LocationInfo
	Connected    bool
	Stale        bool // the last fetch failed, Stats are frozen
	Alert        *Alert
	Pending      int // scheduled refetches
	Now          time.Time
}

// Offline reports whether the dashboard should show its offline indicator
func (s Snapshot) Offline() bool {
	return !s.Connected || s.Stale
}

// Session is one dashboard's view state. Refetch timers belong to the scope they were
// scheduled for and are cancelled when the scope changes.
type Session struct {
	fetcher Fetcher
	clock   Clock
	delays  []time.Duration
	poll    time.Duration
	timeout time.Duration
	logger  logrus.FieldLogger
	notify  func(Snapshot)

	mu         sync.Mutex
	scope      *int64
	info       *models.LocationInfo
	stats      *models.DashboardStats
	connected  bool
	stale      bool
	alert      *Alert
	alertTimer Timer
	pollTimer  Timer
	pending    map[uint64]Timer
	nextTimer  uint64
	generation uint64
	closed     bool
}

// NewSession creates a Session viewing scope. Call Start to begin polling.
func NewSession(fetcher Fetcher, scope *int64, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.RefetchDelays == nil {
		opts.RefetchDelays = DefaultRefetchDelays
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		opts.Logger = l
	}

	return &Session{
		fetcher: fetcher,
		clock:   opts.Clock,
		delays:  opts.RefetchDelays,
		poll:    opts.PollInterval,
		timeout: opts.FetchTimeout,
		logger:  opts.Logger,
		notify:  opts.OnChange,
		scope:   copyScope(scope),
		pending: make(map[uint64]Timer),
	}
}

// Start fetches once and arms the safety poll
func (s *Session) Start() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.armPollLocked()
	gen := s.generation
	s.mu.Unlock()

	s.refetch(gen)
}

// Snapshot returns the current view state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// HandleMessage dispatches one frame from the live channel
func (s *Session) HandleMessage(raw []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.WithError(err).Warn("Ignoring malformed live frame")
		return
	}

	switch env.Event {
	case models.LiveEventNewLog:
		var ev models.NewLogPayload
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			s.logger.WithError(err).Warn("Ignoring malformed new_log payload")
			return
		}
		s.HandleNewLog(ev)
	case models.LiveEventDashboardUpdate:
		s.HandleDashboardUpdate()
	default:
		s.logger.WithField("event", env.Event).Debug("Ignoring unknown live event")
	}
}

// HandleNewLog shows the alert when the scan is relevant to the viewed scope, and always
// schedules the staggered refetch of this dashboard's own scope.
func (s *Session) HandleNewLog(ev models.NewLogPayload) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if ShouldAlert(s.alertScopeLocked(), ev) {
		s.showAlertLocked(BuildAlert(ev))
	}
	s.scheduleRefetchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
}

// alertScopeLocked is the viewed scope for alert filtering. Until a fetch has described the
// scope, a scoped dashboard matches its own location exactly.
func (s *Session) alertScopeLocked() *models.LocationInfo {
	if s.info != nil || s.scope == nil {
		return s.info
	}
	return &models.LocationInfo{ID: *s.scope}
}

// HandleDashboardUpdate refetches the viewed scope immediately
func (s *Session) HandleDashboardUpdate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.mu.Unlock()

	s.refetch(gen)
}

// SetScope switches the viewed scope. Refetches scheduled for the old scope are cancelled
// and results still in flight for it are discarded.
func (s *Session) SetScope(scope *int64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelPendingLocked()
	s.generation++
	s.scope = copyScope(scope)
	s.info = nil
	s.stats = nil
	s.stale = false
	gen := s.generation
	s.mu.Unlock()

	s.refetch(gen)
}

// SetConnected records the live channel state. Reconnecting triggers one immediate refetch.
func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	if s.closed || s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	gen := s.generation
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if connected {
		s.refetch(gen)
		return
	}
	s.emit(snap)
}

// DismissAlert hides the visible alert
func (s *Session) DismissAlert() {
	s.mu.Lock()
	if s.alertTimer != nil {
		s.alertTimer.Stop()
		s.alertTimer = nil
	}
	s.alert = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
}

// Close stops every timer. The session ignores all input afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.cancelPendingLocked()
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	if s.alertTimer != nil {
		s.alertTimer.Stop()
		s.alertTimer = nil
	}
}

func (s *Session) scheduleRefetchLocked() {
	gen := s.generation
	for _, d := range s.delays {
		s.nextTimer++
		id := s.nextTimer
		s.pending[id] = s.clock.AfterFunc(d, func() {
			s.mu.Lock()
			if _, ok := s.pending[id]; !ok {
				s.mu.Unlock()
				return
			}
			delete(s.pending, id)
			s.mu.Unlock()

			s.refetch(gen)
		})
	}
}

func (s *Session) cancelPendingLocked() {
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}

func (s *Session) armPollLocked() {
	s.pollTimer = s.clock.AfterFunc(s.poll, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.armPollLocked()
		gen := s.generation
		s.mu.Unlock()

		s.refetch(gen)
	})
}

func (s *Session) showAlertLocked(a Alert) {
	if s.alertTimer != nil {
		s.alertTimer.Stop()
	}
	alert := a
	s.alert = &alert
	s.alertTimer = s.clock.AfterFunc(a.Duration, func() {
		s.mu.Lock()
		if s.alert != &alert {
			s.mu.Unlock()
			return
		}
		s.alert = nil
		s.alertTimer = nil
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.emit(snap)
	})
}

// refetch loads stats for the scope of generation gen and applies them if the scope has
// not changed meanwhile. A failure keeps the last known good stats.
func (s *Session) refetch(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	scope := copyScope(s.scope)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	stats, err := s.fetcher.FetchStats(ctx, scope)
	cancel()
	if err == nil && stats == nil {
		err = errors.New("empty stats response")
	}

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.stale = true
		s.logger.WithError(err).Warn("Dashboard refetch failed, keeping last known stats")
	} else {
		s.stale = false
		s.stats = stats
		s.info = stats.LocationInfo
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Scope:     copyScope(s.scope),
		Stats:     s.stats,
		Connected: s.connected,
		Stale:     s.stale,
		Pending:   len(s.pending),
		Now:       s.clock.Now(),
	}
	if s.info != nil {
		info := *s.info
		snap.LocationInfo = &info
	}
	if s.alert != nil {
		a := *s.alert
		snap.Alert = &a
	}
	return snap
}

func (s *Session) emit(snap Snapshot) {
	if s.notify != nil {
		s.notify(snap)
	}
}

func copyScope(scope *int64) *int64 {
	if scope == nil {
		return nil
	}
	v := *scope
	return &v
}
