package services

import (
	"context"
	"sort"
	"time"

	"github.com/pobtrack/pob-backend/internal/loctree"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const unassignedDivision = "Unassigned"

// OccupancyService computes personnel-on-board statistics. Nothing is cached between calls;
// every request aggregates the current attendance state.
type OccupancyService struct {
	locations  *LocationIndex
	attendance AttendanceStore
	vehicles   VehicleStore
	tz         *time.Location
	now        func() time.Time
	logger     *logrus.Logger
}

// NewOccupancyService creates a new OccupancyService. tz defines the "today" of todayTapIn.
func NewOccupancyService(locations *LocationIndex, attendance AttendanceStore, vehicles VehicleStore, tz *time.Location, logger *logrus.Logger) *OccupancyService {
	if tz == nil {
		tz = time.Local
	}
	return &OccupancyService{
		locations:  locations,
		attendance: attendance,
		vehicles:   vehicles,
		tz:         tz,
		now:        time.Now,
		logger:     logger,
	}
}

// scopeFilter decides which location ids belong to a scope. A nil set means global.
type scopeFilter map[int64]struct{}

func (f scopeFilter) contains(id int64) bool {
	if f == nil {
		return true
	}
	_, ok := f[id]
	return ok
}

// resolveScope applies the scoping rule: a SITE covers its whole subtree, any other location
// covers exactly itself, and a missing or unknown id is global.
func resolveScope(tree *loctree.Tree, scope *int64) (scopeFilter, *models.LocationInfo) {
	if scope == nil {
		return nil, nil
	}
	loc, ok := tree.Get(*scope)
	if !ok {
		return nil, nil
	}
	info := &models.LocationInfo{ID: loc.ID, Type: loc.Type, Name: loc.Name}
	if loc.IsSite() {
		return scopeFilter(tree.SubtreeIDs(loc.ID)), info
	}
	return scopeFilter{loc.ID: {}}, info
}

// ComputeStats aggregates the occupancy of scope (nil for global)
func (s *OccupancyService) ComputeStats(ctx context.Context, scope *int64) (*models.DashboardStats, error) {
	tree, err := s.locations.Tree(ctx)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if _, ok := tree.Get(*scope); !ok {
			if _, tree, err = s.locations.Resolve(ctx, *scope); err != nil {
				return nil, err
			}
		}
	}
	filter, info := resolveScope(tree, scope)

	var (
		open     []models.PresenceRow
		tapped   []models.PresenceRow
		vehicles []models.VehiclePresence
	)
	since := startOfDay(s.now(), s.tz)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.attendance.ListOpenPresence(gctx)
		if err != nil {
			return storageError("failed to load open attendance", err)
		}
		open = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.attendance.ListTappedInSince(gctx, since)
		if err != nil {
			return storageError("failed to load tap-ins", err)
		}
		tapped = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.vehicles.ListOnBoard(gctx)
		if err != nil {
			return storageError("failed to load vehicles", err)
		}
		vehicles = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := aggregate(filter, open, tapped, vehicles)
	stats.LocationInfo = info
	return stats, nil
}

// aggregate is order independent: it only counts rows that pass the filter
func aggregate(filter scopeFilter, open, tapped []models.PresenceRow, vehicles []models.VehiclePresence) *models.DashboardStats {
	stats := &models.DashboardStats{DepartmentCounts: []models.DepartmentCount{}}
	departments := make(map[string]int)

	for _, row := range open {
		if !filter.contains(row.LocationID) {
			continue
		}
		switch {
		case row.Status == models.AttendanceField:
			stats.FieldCount++
		case row.Status.OnBoard():
			stats.POBCount++
			if row.IsSpare {
				stats.VisitorCount++
				continue
			}
			name := unassignedDivision
			if row.DivisionName != nil && *row.DivisionName != "" {
				name = *row.DivisionName
			}
			departments[name]++
		}
	}

	for _, row := range tapped {
		if filter.contains(row.LocationID) {
			stats.TodayTapIn++
		}
	}

	for _, v := range vehicles {
		if filter != nil && (v.LocationID == nil || !filter.contains(*v.LocationID)) {
			continue
		}
		stats.Vehicles.OnBoard++
		switch v.Class {
		case models.VehicleLight:
			stats.Vehicles.Light++
		case models.VehicleHeavy:
			stats.Vehicles.Heavy++
		}
	}

	for name, n := range departments {
		stats.DepartmentCounts = append(stats.DepartmentCounts, models.DepartmentCount{Name: name, ActiveCount: n})
	}
	sort.Slice(stats.DepartmentCounts, func(i, j int) bool {
		a, b := stats.DepartmentCounts[i], stats.DepartmentCounts[j]
		if a.ActiveCount != b.ActiveCount {
			return a.ActiveCount > b.ActiveCount
		}
		return a.Name < b.Name
	})
	return stats
}

func startOfDay(t time.Time, tz *time.Location) time.Time {
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}
