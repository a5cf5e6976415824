package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/models"
)

func InitTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Slot{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func at(hour, min int) time.Time {
	return time.Date(2030, 5, 20, hour, min, 0, 0, time.UTC)
}

func TestCreateSlotInvalidInterval(t *testing.T) {
	l := &Ledger{DB: InitTestDB(t)}
	ctx := context.Background()

	_, err := l.CreateSlot(ctx, "d1", at(10, 0), at(9, 0), 5)
	require.ErrorIs(t, err, apperr.ErrInvalidInterval)

	_, err = l.CreateSlot(ctx, "d1", at(9, 0), at(9, 0), 5)
	require.ErrorIs(t, err, apperr.ErrInvalidInterval)
}

func TestCreateSlotOverlap(t *testing.T) {
	l := &Ledger{DB: InitTestDB(t)}
	ctx := context.Background()

	_, err := l.CreateSlot(ctx, "d1", at(9, 0), at(10, 0), 5)
	require.NoError(t, err)

	// Start falls inside the existing interval.
	_, err = l.CreateSlot(ctx, "d1", at(9, 30), at(10, 30), 5)
	require.ErrorIs(t, err, apperr.ErrSlotConflict)

	// Existing interval swallowed whole.
	_, err = l.CreateSlot(ctx, "d1", at(8, 30), at(10, 30), 5)
	require.ErrorIs(t, err, apperr.ErrSlotConflict)

	// Another doctor is free to use the same interval.
	_, err = l.CreateSlot(ctx, "d2", at(9, 0), at(10, 0), 5)
	require.NoError(t, err)

	// Disjoint interval for the same doctor is fine.
	_, err = l.CreateSlot(ctx, "d1", at(11, 0), at(12, 0), 5)
	require.NoError(t, err)
}

func TestUpdateCapacityBounds(t *testing.T) {
	l := &Ledger{DB: InitTestDB(t)}
	ctx := context.Background()

	id, err := l.CreateSlot(ctx, "d1", at(9, 0), at(10, 0), 5)
	require.NoError(t, err)

	// Three seats taken.
	require.NoError(t, l.DB.Model(&models.Slot{}).Where("id = ?", id).
		Update("booked_count", 3).Error)

	require.ErrorIs(t, l.UpdateCapacity(ctx, id, 2), apperr.ErrCapacityBelowBooked)
	require.NoError(t, l.UpdateCapacity(ctx, id, 3))
	require.NoError(t, l.UpdateCapacity(ctx, id, 10))

	var slot models.Slot
	require.NoError(t, l.DB.First(&slot, id).Error)
	require.Equal(t, 10, slot.Capacity)
	require.Equal(t, 3, slot.BookedCount)
}

func TestUpdateIntervalRequiresEmptySlot(t *testing.T) {
	l := &Ledger{DB: InitTestDB(t)}
	ctx := context.Background()

	id, err := l.CreateSlot(ctx, "d1", at(9, 0), at(10, 0), 5)
	require.NoError(t, err)

	require.NoError(t, l.DB.Model(&models.Slot{}).Where("id = ?", id).
		Update("booked_count", 1).Error)

	start := at(11, 0)
	require.ErrorIs(t, l.UpdateInterval(ctx, id, &start, nil), apperr.ErrSlotHasBookings)

	require.NoError(t, l.DB.Model(&models.Slot{}).Where("id = ?", id).
		Update("booked_count", 0).Error)

	// Moving only the start past the current end is rejected.
	late := at(10, 30)
	require.ErrorIs(t, l.UpdateInterval(ctx, id, &late, nil), apperr.ErrInvalidInterval)

	end := at(12, 0)
	require.NoError(t, l.UpdateInterval(ctx, id, &start, &end))

	var slot models.Slot
	require.NoError(t, l.DB.First(&slot, id).Error)
	require.True(t, slot.StartTime.Equal(start))
	require.True(t, slot.EndTime.Equal(end))
}

func TestDeleteSlot(t *testing.T) {
	l := &Ledger{DB: InitTestDB(t)}
	ctx := context.Background()

	id, err := l.CreateSlot(ctx, "d1", at(9, 0), at(10, 0), 5)
	require.NoError(t, err)

	require.NoError(t, l.DB.Model(&models.Slot{}).Where("id = ?", id).
		Update("booked_count", 1).Error)
	require.ErrorIs(t, l.DeleteSlot(ctx, id), apperr.ErrSlotHasBookings)

	require.NoError(t, l.DB.Model(&models.Slot{}).Where("id = ?", id).
		Update("booked_count", 0).Error)
	require.NoError(t, l.DeleteSlot(ctx, id))

	require.ErrorIs(t, l.DeleteSlot(ctx, id), apperr.ErrNotFound)
}

func TestListSlots(t *testing.T) {
	l := &Ledger{DB: InitTestDB(t)}
	ctx := context.Background()

	for hour := 9; hour < 13; hour++ {
		_, err := l.CreateSlot(ctx, "d1", at(hour, 0), at(hour, 30), 5)
		require.NoError(t, err)
	}
	_, err := l.CreateSlot(ctx, "d2", at(9, 0), at(10, 0), 5)
	require.NoError(t, err)

	slots, err := l.ListSlots(ctx, "d1", at(0, 0), at(23, 0), 0, 30)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	for i := 1; i < len(slots); i++ {
		require.True(t, slots[i-1].StartTime.Before(slots[i].StartTime))
	}

	// Window narrows the result.
	slots, err = l.ListSlots(ctx, "d1", at(10, 0), at(11, 30), 0, 30)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	// Offset/limit pagination.
	slots, err = l.ListSlots(ctx, "d1", at(0, 0), at(23, 0), 2, 30)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	slots, err = l.ListSlots(ctx, "d1", at(0, 0), at(23, 0), 0, 0)
	require.NoError(t, err)
	require.Len(t, slots, 0)
}

func TestConcurrentCreateSlotOverlap(t *testing.T) {
	db := InitTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	l := &Ledger{DB: db}
	ctx := context.Background()

	// Mutually overlapping intervals racing into an empty table: the
	// check-then-insert must serialize even though no existing row can be
	// locked yet.
	const workers = 6
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.CreateSlot(ctx, "d1", at(9, i*5), at(10, i*5), 5)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, apperr.ErrSlotConflict)
		}
	}
	require.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, db.Model(&models.Slot{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
