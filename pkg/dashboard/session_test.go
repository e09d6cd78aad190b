package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock fires timers only when advanced
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	f     func()
	done  bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward, firing due timers in deadline order
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *manualTimer
		for _, t := range c.timers {
			if !t.done && !t.at.After(target) && (next == nil || t.at.Before(next.at)) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// Active counts timers that have neither fired nor been stopped
func (c *manualClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []*int64
	stats  map[int64]*models.DashboardStats
	global *models.DashboardStats
	err    error
	hook   func(scope *int64)
}

func (f *fakeFetcher) FetchStats(_ context.Context, scope *int64) (*models.DashboardStats, error) {
	f.mu.Lock()
	f.calls = append(f.calls, copyScope(scope))
	hook, err := f.hook, f.err
	var stats *models.DashboardStats
	if scope == nil {
		stats = f.global
	} else {
		stats = f.stats[*scope]
	}
	f.mu.Unlock()

	if hook != nil {
		hook(scope)
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) scopes() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.calls))
	for _, c := range f.calls {
		if c == nil {
			out = append(out, 0)
		} else {
			out = append(out, *c)
		}
	}
	return out
}

func scopeID(v int64) *int64 { return &v }

func siteFetcher() *fakeFetcher {
	return &fakeFetcher{
		global: &models.DashboardStats{POBCount: 9},
		stats: map[int64]*models.DashboardStats{
			1: {POBCount: 7, LocationInfo: &models.LocationInfo{ID: 1, Type: models.LocationTypeSite, Name: "Soka Site"}},
			3: {POBCount: 3, LocationInfo: &models.LocationInfo{ID: 3, Type: models.LocationTypeGate, Name: "Gate G1"}},
			5: {POBCount: 2, LocationInfo: &models.LocationInfo{ID: 5, Type: models.LocationTypeGate, Name: "Gate G2"}},
		},
	}
}

func newTestSession(fetcher Fetcher, scope *int64, clock Clock) *Session {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSession(fetcher, scope, Options{Clock: clock, Logger: logger})
}

func newLog(locationID int64, status models.AttendanceStatus) models.NewLogPayload {
	return models.NewLogPayload{UID: "A1B2C3", Name: "Budi", Status: status, LocationID: locationID, Location: "Gate"}
}

func TestSession_Start(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, scopeID(1), clock)
	defer s.Close()

	s.Start()

	snap := s.Snapshot()
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 7, snap.Stats.POBCount)
	require.NotNil(t, snap.LocationInfo)
	assert.Equal(t, models.LocationTypeSite, snap.LocationInfo.Type)
	assert.Equal(t, []int64{1}, fetcher.scopes())
}

// A gate dashboard gets a scan from a sibling gate: no alert, but its own stats are refetched
func TestSession_SiblingScanRefetchesOwnScope(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, scopeID(5), clock)
	defer s.Close()
	s.Start()

	s.HandleNewLog(newLog(3, models.AttendanceIn))

	snap := s.Snapshot()
	assert.Nil(t, snap.Alert)
	assert.Equal(t, len(DefaultRefetchDelays), snap.Pending)

	clock.Advance(5 * time.Second)

	assert.Equal(t, []int64{5, 5, 5, 5}, fetcher.scopes())
	assert.Equal(t, 0, s.Snapshot().Pending)
}

func TestSession_Alerts(t *testing.T) {
	t.Run("Site dashboard shows descendant scans", func(t *testing.T) {
		clock := newManualClock()
		s := newTestSession(siteFetcher(), scopeID(1), clock)
		defer s.Close()
		s.Start()

		s.HandleNewLog(newLog(3, models.AttendanceIn))

		snap := s.Snapshot()
		require.NotNil(t, snap.Alert)
		assert.Equal(t, "WELCOME", snap.Alert.Title)

		clock.Advance(4 * time.Second)
		assert.NotNil(t, s.Snapshot().Alert)
		clock.Advance(time.Second)
		assert.Nil(t, s.Snapshot().Alert)
	})

	t.Run("Medical warning stays longer", func(t *testing.T) {
		clock := newManualClock()
		s := newTestSession(siteFetcher(), nil, clock)
		defer s.Close()
		s.Start()

		ev := newLog(3, models.AttendanceIn)
		ev.MCUWarning = strPtr("MCU EXPIRED")
		s.HandleNewLog(ev)

		clock.Advance(9 * time.Second)
		require.NotNil(t, s.Snapshot().Alert)
		assert.Equal(t, "MCU EXPIRED", *s.Snapshot().Alert.MCUWarning)
		clock.Advance(time.Second)
		assert.Nil(t, s.Snapshot().Alert)
	})

	t.Run("Newer alert replaces the visible one", func(t *testing.T) {
		clock := newManualClock()
		s := newTestSession(siteFetcher(), nil, clock)
		defer s.Close()
		s.Start()

		s.HandleNewLog(newLog(3, models.AttendanceIn))
		clock.Advance(4 * time.Second)
		s.HandleNewLog(newLog(3, models.AttendanceOut))

		clock.Advance(2 * time.Second)
		snap := s.Snapshot()
		require.NotNil(t, snap.Alert)
		assert.Equal(t, "GOODBYE", snap.Alert.Title)

		clock.Advance(3 * time.Second)
		assert.Nil(t, s.Snapshot().Alert)
	})

	t.Run("Exact gate match", func(t *testing.T) {
		clock := newManualClock()
		s := newTestSession(siteFetcher(), scopeID(3), clock)
		defer s.Close()
		s.Start()

		s.HandleNewLog(newLog(3, models.AttendanceReturn))
		require.NotNil(t, s.Snapshot().Alert)
		assert.Equal(t, "WELCOME BACK", s.Snapshot().Alert.Title)
	})

	t.Run("Gate scope not yet described by the server", func(t *testing.T) {
		clock := newManualClock()
		fetcher := siteFetcher()
		fetcher.setErr(errors.New("connection refused"))
		s := newTestSession(fetcher, scopeID(5), clock)
		defer s.Close()
		s.Start()
		require.Nil(t, s.Snapshot().LocationInfo)

		s.HandleNewLog(newLog(3, models.AttendanceIn))
		assert.Nil(t, s.Snapshot().Alert, "sibling gate scan must stay hidden")

		s.HandleNewLog(newLog(5, models.AttendanceIn))
		assert.NotNil(t, s.Snapshot().Alert)
	})

	t.Run("Scope switch before the new scope is fetched", func(t *testing.T) {
		clock := newManualClock()
		fetcher := siteFetcher()
		s := newTestSession(fetcher, nil, clock)
		defer s.Close()
		s.Start()

		fetcher.setErr(errors.New("connection refused"))
		s.SetScope(scopeID(5))

		s.HandleNewLog(newLog(3, models.AttendanceIn))
		assert.Nil(t, s.Snapshot().Alert)
	})
}

func TestSession_SetScopeCancelsPendingRefetches(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, scopeID(3), clock)
	defer s.Close()
	s.Start()

	s.HandleNewLog(newLog(3, models.AttendanceIn))
	require.Equal(t, 3, s.Snapshot().Pending)

	s.SetScope(scopeID(5))

	assert.Equal(t, 0, s.Snapshot().Pending)
	assert.Equal(t, []int64{3, 5}, fetcher.scopes())

	// Only the poll timer and the alert timer are still armed
	clock.Advance(10 * time.Second)
	assert.Equal(t, []int64{3, 5}, fetcher.scopes(), "no refetch for the old scope may fire after the switch")

	snap := s.Snapshot()
	require.NotNil(t, snap.LocationInfo)
	assert.Equal(t, int64(5), snap.LocationInfo.ID)
	assert.Equal(t, 2, snap.Stats.POBCount)
}

func TestSession_DiscardsResultForOldScope(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, scopeID(3), clock)
	defer s.Close()

	// The scope changes while the first fetch is in flight
	var once sync.Once
	fetcher.hook = func(scope *int64) {
		if scope != nil && *scope == 3 {
			once.Do(func() { s.SetScope(scopeID(5)) })
		}
	}

	s.Start()

	snap := s.Snapshot()
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 2, snap.Stats.POBCount)
	assert.Equal(t, int64(5), *snap.Scope)
}

func TestSession_Polls(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, nil, clock)
	defer s.Close()
	s.Start()

	clock.Advance(59 * time.Second)
	assert.Equal(t, 1, fetcher.callCount())
	clock.Advance(time.Second)
	assert.Equal(t, 2, fetcher.callCount())
	clock.Advance(60 * time.Second)
	assert.Equal(t, 3, fetcher.callCount())
}

func TestSession_OfflineKeepsLastKnownStats(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, scopeID(1), clock)
	defer s.Close()

	s.Start()
	s.SetConnected(true)
	assert.False(t, s.Snapshot().Offline())

	fetcher.setErr(errors.New("503 storage unavailable"))
	s.HandleDashboardUpdate()

	snap := s.Snapshot()
	assert.True(t, snap.Stale)
	assert.True(t, snap.Offline())
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 7, snap.Stats.POBCount)

	s.SetConnected(false)
	assert.True(t, s.Snapshot().Offline())

	fetcher.setErr(nil)
	before := fetcher.callCount()
	s.SetConnected(true)

	assert.Equal(t, before+1, fetcher.callCount(), "reconnect refetches once")
	assert.False(t, s.Snapshot().Offline())
}

func TestSession_HandleMessage(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, nil, clock)
	defer s.Close()
	s.Start()

	raw, err := json.Marshal(models.LiveEnvelope{Event: models.LiveEventNewLog, Data: newLog(3, models.AttendanceOut)})
	require.NoError(t, err)
	s.HandleMessage(raw)
	require.NotNil(t, s.Snapshot().Alert)
	assert.Equal(t, "GOODBYE", s.Snapshot().Alert.Title)

	before := fetcher.callCount()
	s.HandleMessage([]byte(`{"event":"dashboard_update"}`))
	assert.Equal(t, before+1, fetcher.callCount())

	s.HandleMessage([]byte(`not json`))
	s.HandleMessage([]byte(`{"event":"something_else"}`))
	assert.Equal(t, before+1, fetcher.callCount())
}

func TestSession_CloseStopsEverything(t *testing.T) {
	clock := newManualClock()
	fetcher := siteFetcher()
	s := newTestSession(fetcher, nil, clock)
	s.Start()
	s.HandleNewLog(newLog(3, models.AttendanceIn))

	s.Close()

	assert.Equal(t, 0, clock.Active())
	calls := fetcher.callCount()
	clock.Advance(2 * time.Minute)
	s.HandleDashboardUpdate()
	assert.Equal(t, calls, fetcher.callCount())
}

func TestSession_OnChange(t *testing.T) {
	clock := newManualClock()
	var mu sync.Mutex
	var seen []Snapshot

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewSession(siteFetcher(), scopeID(1), Options{
		Clock:  clock,
		Logger: logger,
		OnChange: func(snap Snapshot) {
			mu.Lock()
			seen = append(seen, snap)
			mu.Unlock()
		},
	})
	defer s.Close()

	s.Start()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, 7, seen[0].Stats.POBCount)
}
