package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/ledger"
	"github.com/clinicore/appointment_service/internal/models"
)

func InitTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Patient{}, &models.Slot{}, &models.Appointment{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	// A single connection serializes concurrent transactions the way row
	// locks do on Postgres.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func at(hour, min int) time.Time {
	return time.Date(2030, 5, 20, hour, min, 0, 0, time.UTC)
}

func seedPatient(t *testing.T, db *gorm.DB, username string) {
	require.NoError(t, db.Create(&models.Patient{
		Username:     username,
		PasswordHash: "x",
		Name:         username,
	}).Error)
}

func seedSlot(t *testing.T, db *gorm.DB, doctorID string, capacity int) uint64 {
	l := &ledger.Ledger{DB: db}
	id, err := l.CreateSlot(context.Background(), doctorID, at(9, 0), at(10, 0), capacity)
	require.NoError(t, err)
	return id
}

func bookedCount(t *testing.T, db *gorm.DB, slotID uint64) int {
	var slot models.Slot
	require.NoError(t, db.First(&slot, slotID).Error)
	return slot.BookedCount
}

func status(t *testing.T, db *gorm.DB, patientID string, slotID uint64) string {
	var appo models.Appointment
	require.NoError(t, db.Where("patient_id = ? AND slot_id = ?", patientID, slotID).
		First(&appo).Error)
	return appo.Status
}

func TestBookCancelRebookScenario(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		seedPatient(t, db, p)
	}
	slot := seedSlot(t, db, "d1", 2)

	require.NoError(t, e.Book(ctx, "a", slot))
	require.Equal(t, 1, bookedCount(t, db, slot))

	require.NoError(t, e.Book(ctx, "b", slot))
	require.Equal(t, 2, bookedCount(t, db, slot))

	require.ErrorIs(t, e.Book(ctx, "c", slot), apperr.ErrSlotFull)
	require.Equal(t, 2, bookedCount(t, db, slot))

	require.NoError(t, e.Cancel(ctx, "a", slot))
	require.Equal(t, 1, bookedCount(t, db, slot))

	require.NoError(t, e.Book(ctx, "c", slot))
	require.Equal(t, 2, bookedCount(t, db, slot))
}

func TestBookTwiceFails(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	seedPatient(t, db, "a")
	slot := seedSlot(t, db, "d1", 3)

	require.NoError(t, e.Book(ctx, "a", slot))
	require.ErrorIs(t, e.Book(ctx, "a", slot), apperr.ErrAlreadyBooked)
	require.Equal(t, 1, bookedCount(t, db, slot))

	// Finished appointments still block re-booking.
	require.NoError(t, e.Finish(ctx, "a", slot))
	require.ErrorIs(t, e.Book(ctx, "a", slot), apperr.ErrAlreadyBooked)
}

func TestRebookReusesCanceledRow(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	seedPatient(t, db, "a")
	slot := seedSlot(t, db, "d1", 3)

	require.NoError(t, e.Book(ctx, "a", slot))
	require.NoError(t, e.Cancel(ctx, "a", slot))
	require.Equal(t, models.AppointmentCanceled, status(t, db, "a", slot))

	require.NoError(t, e.Book(ctx, "a", slot))
	require.Equal(t, models.AppointmentUnfinished, status(t, db, "a", slot))
	require.Equal(t, 1, bookedCount(t, db, slot))

	// Still exactly one row for the pair.
	var count int64
	require.NoError(t, db.Model(&models.Appointment{}).
		Where("patient_id = ? AND slot_id = ?", "a", slot).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCancelErrors(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	seedPatient(t, db, "a")
	slot := seedSlot(t, db, "d1", 3)

	require.ErrorIs(t, e.Cancel(ctx, "a", slot), apperr.ErrNotBooked)

	require.NoError(t, e.Book(ctx, "a", slot))
	require.NoError(t, e.Cancel(ctx, "a", slot))
	require.ErrorIs(t, e.Cancel(ctx, "a", slot), apperr.ErrAlreadyCanceled)

	require.NoError(t, e.Book(ctx, "a", slot))
	require.NoError(t, e.Finish(ctx, "a", slot))
	require.ErrorIs(t, e.Cancel(ctx, "a", slot), apperr.ErrAlreadyFinished)
}

func TestFinishErrors(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	seedPatient(t, db, "a")
	slot := seedSlot(t, db, "d1", 3)

	require.ErrorIs(t, e.Finish(ctx, "a", slot), apperr.ErrNotBooked)

	// A canceled row exists but has the wrong status: the distinguishing
	// kind is NotUnfinished, not NotBooked.
	require.NoError(t, e.Book(ctx, "a", slot))
	require.NoError(t, e.Cancel(ctx, "a", slot))
	require.ErrorIs(t, e.Finish(ctx, "a", slot), apperr.ErrNotUnfinished)

	require.NoError(t, e.Book(ctx, "a", slot))
	require.NoError(t, e.Finish(ctx, "a", slot))
	require.ErrorIs(t, e.Finish(ctx, "a", slot), apperr.ErrNotUnfinished)
}

func TestFinishKeepsSeatConsumed(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	seedPatient(t, db, "a")
	seedPatient(t, db, "b")
	slot := seedSlot(t, db, "d1", 1)

	require.NoError(t, e.Book(ctx, "a", slot))
	require.NoError(t, e.Finish(ctx, "a", slot))
	require.Equal(t, 1, bookedCount(t, db, slot))

	// The finished visit still occupies its seat.
	require.ErrorIs(t, e.Book(ctx, "b", slot), apperr.ErrSlotFull)
}

func TestConcurrentBookingSingleSeat(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	const workers = 8
	patients := make([]string, workers)
	for i := range patients {
		patients[i] = string(rune('a' + i))
		seedPatient(t, db, patients[i])
	}
	slot := seedSlot(t, db, "d1", 1)

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i, p := range patients {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			errs[i] = e.Book(ctx, p, slot)
		}(i, p)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, apperr.ErrSlotFull)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, bookedCount(t, db, slot))
}

func TestSearch(t *testing.T) {
	db := InitTestDB(t)
	e := &Engine{DB: db}
	l := &ledger.Ledger{DB: db}
	ctx := context.Background()

	seedPatient(t, db, "a")
	seedPatient(t, db, "b")

	early, err := l.CreateSlot(ctx, "d1", at(9, 0), at(10, 0), 2)
	require.NoError(t, err)
	late, err := l.CreateSlot(ctx, "d1", at(11, 0), at(12, 0), 2)
	require.NoError(t, err)

	require.NoError(t, e.Book(ctx, "a", early))
	require.NoError(t, e.Book(ctx, "a", late))
	require.NoError(t, e.Book(ctx, "b", late))
	require.NoError(t, e.Cancel(ctx, "b", late))

	// Doctor view widened to every status, slot start descending.
	recs, err := e.SearchByDoctor(ctx, "d1", StatusAll, at(0, 0), at(23, 0), 0, 30)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.True(t, !recs[0].StartTime.Before(recs[1].StartTime))

	// An empty filter means Unfinished, so the canceled row drops out.
	recs, err = e.SearchByDoctor(ctx, "d1", "", at(0, 0), at(23, 0), 0, 30)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		require.Equal(t, models.AppointmentUnfinished, rec.Status)
	}

	// Status filter.
	recs, err = e.SearchByDoctor(ctx, "d1", models.AppointmentCanceled, at(0, 0), at(23, 0), 0, 30)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "b", recs[0].PatientID)

	// Patient view carries the joined identity and slot fields.
	recs, err = e.SearchByPatient(ctx, "a", "", at(0, 0), at(23, 0), 0, 30)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "d1", recs[0].DoctorID)
	require.Equal(t, "a", recs[0].PatientName)

	// Pagination.
	recs, err = e.SearchByPatient(ctx, "a", "", at(0, 0), at(23, 0), 1, 30)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}
