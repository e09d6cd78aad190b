package database

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pobtrack/pob-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &PostgresDB{DB: sqlx.NewDb(mockDB, "sqlmock")}, mock
}

var attendanceCols = []string{"id", "personnel_id", "location_id", "status", "time_in", "time_out", "device_id", "created_at", "updated_at"}

func TestApplyTransition(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	t.Run("Closes the open record and opens the next", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAttendanceRepository(db)
		openID := uuid.New()
		timeIn := now.Add(-time.Hour)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM attendance_records`).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(attendanceCols).
				AddRow(openID.String(), int64(7), int64(4), "FIELD", timeIn, nil, nil, timeIn, timeIn))
		mock.ExpectExec(`UPDATE attendance_records`).
			WithArgs(sqlmock.AnyArg(), "FIELD", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO attendance_records`).
			WithArgs(sqlmock.AnyArg(), int64(7), int64(2), "RETURN", sqlmock.AnyArg(), nil, nil, now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var seen *models.AttendanceRecord
		tr, err := repo.ApplyTransition(ctx, 7, func(current *models.AttendanceRecord) (*models.Transition, error) {
			seen = current
			return &models.Transition{
				PersonnelID: 7,
				Close:       &models.CloseOp{RecordID: current.ID, Status: models.AttendanceField, TimeOut: now},
				Open: &models.AttendanceRecord{
					ID: uuid.New(), PersonnelID: 7, LocationID: 2, Status: models.AttendanceReturn,
					TimeIn: &now, CreatedAt: now, UpdatedAt: now,
				},
			}, nil
		})
		require.NoError(t, err)
		require.NotNil(t, tr)
		require.NotNil(t, seen)
		assert.Equal(t, openID, seen.ID)
		assert.Equal(t, models.AttendanceField, seen.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Decide error rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAttendanceRepository(db)
		denied := errors.New("denied")

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM attendance_records`).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(attendanceCols))
		mock.ExpectRollback()

		tr, err := repo.ApplyTransition(ctx, 7, func(current *models.AttendanceRecord) (*models.Transition, error) {
			assert.Nil(t, current)
			return nil, denied
		})
		assert.ErrorIs(t, err, denied)
		assert.Nil(t, tr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Lost close is a conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAttendanceRepository(db)
		openID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM attendance_records`).
			WillReturnRows(sqlmock.NewRows(attendanceCols).
				AddRow(openID.String(), int64(7), int64(2), "IN", now, nil, nil, now, now))
		mock.ExpectExec(`UPDATE attendance_records`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repo.ApplyTransition(ctx, 7, func(current *models.AttendanceRecord) (*models.Transition, error) {
			return &models.Transition{
				PersonnelID: 7,
				Close:       &models.CloseOp{RecordID: current.ID, Status: models.AttendanceOut, TimeOut: now},
			}, nil
		})
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Begin failure is unavailable", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAttendanceRepository(db)

		mock.ExpectBegin().WillReturnError(&net.OpError{Op: "read", Err: errors.New("connection reset by peer")})

		_, err := repo.ApplyTransition(ctx, 7, func(*models.AttendanceRecord) (*models.Transition, error) {
			t.Fatal("decide must not run")
			return nil, nil
		})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestAttendanceList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttendanceRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("%ali%", "IN").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`ORDER BY ar.updated_at DESC`).
		WithArgs("%ali%", "IN", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "personnel_id", "personnel_name", "uid", "location_id", "location_name", "status", "time_in", "time_out",
		}).AddRow(uuid.New().String(), int64(1), "Ali", "U1", int64(2), "Pos 1", "IN", now, nil))

	entries, total, err := repo.List(context.Background(), models.AttendanceFilter{
		Search: " ali ", Status: models.AttendanceIn, Limit: 20, Offset: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "Ali", entries[0].PersonnelName)
	assert.Equal(t, "Pos 1", entries[0].LocationName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEventAttendance(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	now := time.Now()
	rowCols := []string{"id", "event_id", "personnel_id", "scanned_at"}

	t.Run("First scan inserts", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewEventRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM events`).WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OPEN"))
		mock.ExpectQuery(`INSERT INTO event_attendances`).
			WillReturnRows(sqlmock.NewRows(rowCols).AddRow(uuid.New().String(), eventID.String(), int64(3), now))
		mock.ExpectCommit()

		res, err := repo.RecordAttendance(ctx, eventID, 3, now)
		require.NoError(t, err)
		assert.True(t, res.EventFound)
		assert.True(t, res.Created)
		require.NotNil(t, res.Attendance)
		assert.Equal(t, eventID, res.Attendance.EventID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Repeat scan returns the existing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewEventRepository(db)
		existing := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM events`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OPEN"))
		mock.ExpectQuery(`INSERT INTO event_attendances`).
			WillReturnRows(sqlmock.NewRows(rowCols))
		mock.ExpectQuery(`FROM event_attendances`).
			WillReturnRows(sqlmock.NewRows(rowCols).AddRow(existing.String(), eventID.String(), int64(3), now.Add(-time.Minute)))
		mock.ExpectCommit()

		res, err := repo.RecordAttendance(ctx, eventID, 3, now)
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, existing, res.Attendance.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Closed event writes nothing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewEventRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM events`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CLOSED"))
		mock.ExpectRollback()

		res, err := repo.RecordAttendance(ctx, eventID, 3, now)
		require.NoError(t, err)
		assert.True(t, res.EventFound)
		assert.Equal(t, models.EventClosed, res.EventStatus)
		assert.Nil(t, res.Attendance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing event", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewEventRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM events`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		res, err := repo.RecordAttendance(ctx, eventID, 3, now)
		require.NoError(t, err)
		assert.False(t, res.EventFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCloseEvent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)
	id := uuid.New()
	now := time.Now()

	mock.ExpectExec(`UPDATE events SET status = 'CLOSED'`).WithArgs(sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	closed, err := repo.Close(context.Background(), id, now)
	require.NoError(t, err)
	assert.True(t, closed)

	mock.ExpectExec(`UPDATE events SET status = 'CLOSED'`).WithArgs(sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	closed, err = repo.Close(context.Background(), id, now)
	require.NoError(t, err)
	assert.False(t, closed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitorCards(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewVisitorRepository(db)
	ctx := context.Background()
	assignment := VisitorAssignment{Name: "Budi", Company: "PT Kontraktor", LocationID: 2, At: time.Now()}

	t.Run("Assign available card", func(t *testing.T) {
		mock.ExpectExec(`UPDATE personnel`).
			WithArgs(int64(11), "Budi", "PT Kontraktor", int64(2), nil, assignment.At).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := repo.AssignCard(ctx, 11, assignment)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Card already lent", func(t *testing.T) {
		mock.ExpectExec(`UPDATE personnel`).WillReturnResult(sqlmock.NewResult(0, 0))
		ok, err := repo.AssignCard(ctx, 11, assignment)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Release", func(t *testing.T) {
		mock.ExpectExec(`visitor_name IS NOT NULL`).WithArgs(int64(11)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := repo.ReleaseCard(ctx, 11)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonnelGetByUID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPersonnelRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`WHERE p.uid = \$1`).WithArgs("U1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "uid", "name", "division_id", "division_name", "photo", "mcu_status", "mcu_last_date",
				"is_active", "is_spare", "visitor_name", "visitor_company", "visitor_location_id", "visitor_checked_in_at",
			}).AddRow(int64(1), "U1", "Ali", int64(3), "Mining", nil, "Fit", nil, true, false, nil, nil, nil, nil))

		p, err := repo.GetByUID(ctx, "U1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Ali", p.Name)
		require.NotNil(t, p.DivisionName)
		assert.Equal(t, "Mining", *p.DivisionName)
	})

	t.Run("Unknown uid", func(t *testing.T) {
		mock.ExpectQuery(`WHERE p.uid = \$1`).WithArgs("GHOST").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		p, err := repo.GetByUID(ctx, "GHOST")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationListAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLocationRepository(db)

	mock.ExpectQuery(`FROM locations ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "parent_id", "capacity", "custom_in_message", "custom_out_message"}).
			AddRow(int64(1), "Soka", "SITE", nil, nil, nil, nil).
			AddRow(int64(2), "Pos 1", "MAIN_GATE", int64(1), 40, "Selamat datang {name}", nil))

	locs, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, models.LocationTypeMainGate, locs[1].Type)
	require.NotNil(t, locs[1].ParentID)
	assert.Equal(t, int64(1), *locs[1].ParentID)
	require.NotNil(t, locs[1].CustomInMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
