package services

import (
	"context"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/database"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

// fakePersonnel is an in-memory PersonnelStore and VisitorCardStore
type fakePersonnel struct {
	mu   sync.Mutex
	byID map[int64]*models.Personnel
}

func newFakePersonnel(people ...models.Personnel) *fakePersonnel {
	f := &fakePersonnel{byID: make(map[int64]*models.Personnel)}
	for i := range people {
		p := people[i]
		f.byID[p.ID] = &p
	}
	return f
}

func (f *fakePersonnel) GetByUID(_ context.Context, uid string) (*models.Personnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.UID == uid {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePersonnel) GetByID(_ context.Context, id int64) (*models.Personnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePersonnel) ListSpareCards(_ context.Context) ([]models.Personnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Personnel
	for _, p := range f.byID {
		if p.IsSpare {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePersonnel) AssignCard(_ context.Context, cardID int64, a database.VisitorAssignment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[cardID]
	if !ok || !p.IsSpare || p.VisitorName != nil {
		return false, nil
	}
	p.VisitorName = &a.Name
	p.VisitorCompany = &a.Company
	p.VisitorLocationID = &a.LocationID
	p.MCUStatus = a.MCUStatus
	p.VisitorCheckedIn = &a.At
	return true, nil
}

func (f *fakePersonnel) ReleaseCard(_ context.Context, cardID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[cardID]
	if !ok || !p.IsSpare || p.VisitorName == nil {
		return false, nil
	}
	p.VisitorName, p.VisitorCompany, p.VisitorLocationID, p.MCUStatus, p.VisitorCheckedIn = nil, nil, nil, nil, nil
	return true, nil
}

type fakeLocations struct {
	locations []models.Location
	err       error
}

func (f *fakeLocations) ListAll(_ context.Context) ([]models.Location, error) {
	return f.locations, f.err
}

type fakeDevices map[string]models.Device

func (f fakeDevices) GetByIdentifier(_ context.Context, identifier string) (*models.Device, error) {
	if d, ok := f[identifier]; ok {
		return &d, nil
	}
	return nil, nil
}

// fakeAttendance mimics attendance_records. It deliberately does not serialize transitions:
// the read of the open record and the write happen in separate critical sections, so callers
// must provide their own per-person exclusion. The partial unique index is mimicked by
// rejecting a second open record with database.ErrConflict.
type fakeAttendance struct {
	mu          sync.Mutex
	records     []models.AttendanceRecord
	spare       map[int64]bool
	divisions   map[int64]string
	conflicts   int // injected conflicts still to return
	violations  int // second-open attempts seen
	err         error
	transitions int
}

func newFakeAttendance() *fakeAttendance {
	return &fakeAttendance{spare: map[int64]bool{}, divisions: map[int64]string{}}
}

func (f *fakeAttendance) ApplyTransition(_ context.Context, personnelID int64, decide database.TransitionFunc) (*models.Transition, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	var current *models.AttendanceRecord
	for i := range f.records {
		if f.records[i].PersonnelID == personnelID && f.records[i].TimeOut == nil {
			cp := f.records[i]
			current = &cp
		}
	}
	f.mu.Unlock()

	runtime.Gosched()

	t, err := decide(current)
	if err != nil || t == nil {
		return t, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return nil, database.ErrConflict
	}
	if t.Close != nil {
		idx := -1
		for i := range f.records {
			if f.records[i].ID == t.Close.RecordID && f.records[i].TimeOut == nil {
				idx = i
			}
		}
		if idx < 0 {
			f.violations++
			return nil, database.ErrConflict
		}
		to := t.Close.TimeOut
		f.records[idx].TimeOut = &to
		f.records[idx].Status = t.Close.Status
	}
	if t.Open != nil {
		if t.Open.TimeOut == nil {
			for _, r := range f.records {
				if r.PersonnelID == personnelID && r.TimeOut == nil {
					f.violations++
					return nil, database.ErrConflict
				}
			}
		}
		f.records = append(f.records, *t.Open)
	}
	f.transitions++
	return t, nil
}

func (f *fakeAttendance) presence(r models.AttendanceRecord) models.PresenceRow {
	row := models.PresenceRow{
		RecordID:    r.ID,
		PersonnelID: r.PersonnelID,
		LocationID:  r.LocationID,
		Status:      r.Status,
		TimeIn:      r.TimeIn,
		IsSpare:     f.spare[r.PersonnelID],
	}
	if d, ok := f.divisions[r.PersonnelID]; ok {
		row.DivisionName = &d
	}
	return row
}

func (f *fakeAttendance) ListOpenPresence(_ context.Context) ([]models.PresenceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PresenceRow
	for _, r := range f.records {
		if r.TimeOut == nil {
			out = append(out, f.presence(r))
		}
	}
	return out, nil
}

func (f *fakeAttendance) ListTappedInSince(_ context.Context, since time.Time) ([]models.PresenceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PresenceRow
	for _, r := range f.records {
		if r.TimeIn != nil && !r.TimeIn.Before(since) && r.Status != models.AttendanceField {
			out = append(out, f.presence(r))
		}
	}
	return out, nil
}

func (f *fakeAttendance) List(_ context.Context, filter models.AttendanceFilter) ([]models.AttendanceLogEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttendanceLogEntry
	for _, r := range f.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, models.AttendanceLogEntry{ID: r.ID, PersonnelID: r.PersonnelID, LocationID: r.LocationID, Status: r.Status})
	}
	total := len(out)
	if filter.Offset >= len(out) {
		return []models.AttendanceLogEntry{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[filter.Offset:end], total, nil
}

func (f *fakeAttendance) open() []models.AttendanceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttendanceRecord
	for _, r := range f.records {
		if r.TimeOut == nil {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeAttendance) history(personnelID int64) []models.AttendanceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttendanceRecord
	for _, r := range f.records {
		if r.PersonnelID == personnelID {
			out = append(out, r)
		}
	}
	return out
}

// fakeEvents is an in-memory EventStore with the (event_id, personnel_id) uniqueness
type fakeEvents struct {
	mu          sync.Mutex
	events      map[uuid.UUID]*models.Event
	attendances map[uuid.UUID][]models.EventAttendance
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		events:      make(map[uuid.UUID]*models.Event),
		attendances: make(map[uuid.UUID][]models.EventAttendance),
	}
}

func (f *fakeEvents) Create(_ context.Context, e *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.AttendanceCount = len(f.attendances[id])
	return &cp, nil
}

func (f *fakeEvents) List(_ context.Context) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Event{}
	for _, e := range f.events {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeEvents) Close(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok || e.Status != models.EventOpen {
		return false, nil
	}
	e.Status = models.EventClosed
	e.ClosedAt = &at
	return true, nil
}

func (f *fakeEvents) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return false, nil
	}
	delete(f.events, id)
	delete(f.attendances, id)
	return true, nil
}

func (f *fakeEvents) RecordAttendance(_ context.Context, eventID uuid.UUID, personnelID int64, at time.Time) (*database.EventScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &database.EventScanResult{}
	e, ok := f.events[eventID]
	if !ok {
		return res, nil
	}
	res.EventFound = true
	res.EventStatus = e.Status
	if e.Status != models.EventOpen {
		return res, nil
	}
	for _, a := range f.attendances[eventID] {
		if a.PersonnelID == personnelID {
			cp := a
			res.Attendance = &cp
			return res, nil
		}
	}
	a := models.EventAttendance{ID: uuid.New(), EventID: eventID, PersonnelID: personnelID, ScannedAt: at}
	f.attendances[eventID] = append(f.attendances[eventID], a)
	res.Attendance = &a
	res.Created = true
	return res, nil
}

func (f *fakeEvents) ListAttendances(_ context.Context, eventID uuid.UUID) ([]models.EventAttendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EventAttendance{}, f.attendances[eventID]...), nil
}

type fakeVehicles []models.VehiclePresence

func (f fakeVehicles) ListOnBoard(_ context.Context) ([]models.VehiclePresence, error) {
	return f, nil
}

// recordingPublisher captures pushes
type recordingPublisher struct {
	mu      sync.Mutex
	logs    []models.NewLogPayload
	updates int
}

func (p *recordingPublisher) PublishNewLog(payload models.NewLogPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, payload)
}

func (p *recordingPublisher) PublishDashboardUpdate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
}

func (p *recordingPublisher) newLogs() []models.NewLogPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.NewLogPayload{}, p.logs...)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []ScanAuditEntry
}

func (a *recordingAuditor) RecordScan(_ context.Context, entry ScanAuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAuditor) all() []ScanAuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ScanAuditEntry{}, a.entries...)
}

// blockingLocker never grants the lock before ctx is done
type blockingLocker struct{}

func (blockingLocker) Lock(ctx context.Context, _ string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// siteLocations is Site(1) -> MainGate(2) -> Gate(3), plus Field(4) and Gate(5) under the site
// and a detached office (6)
func siteLocations() []models.Location {
	return []models.Location{
		{ID: 1, Name: "Soka Site", Type: models.LocationTypeSite},
		{ID: 2, Name: "Main Gate", Type: models.LocationTypeMainGate, ParentID: int64Ptr(1)},
		{ID: 3, Name: "Gate G1", Type: models.LocationTypeGate, ParentID: int64Ptr(2)},
		{ID: 4, Name: "Pit Area", Type: models.LocationTypeField, ParentID: int64Ptr(1)},
		{ID: 5, Name: "Gate G2", Type: models.LocationTypeGate, ParentID: int64Ptr(1),
			CustomInMessage: strPtr("Selamat datang {name}"), CustomOutMessage: strPtr("Hati-hati di jalan {name}")},
		{ID: 6, Name: "Town Office", Type: models.LocationTypeOffice},
	}
}
