// Package ledger owns doctor time slots: interval validity, non-overlap on
// creation, and the capacity/booked-count bounds on every mutation. All
// writes run read-then-write inside a single transaction so the checks hold
// under concurrent callers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/models"
	"github.com/clinicore/appointment_service/internal/store"
)

type Ledger struct {
	DB *gorm.DB
}

// CreateSlot inserts a new slot with no bookings. The overlap check treats
// intervals as conflicting when either endpoint of an existing slot falls
// inside [start, end], and runs in the same transaction as the insert.
func (l *Ledger) CreateSlot(ctx context.Context, doctorID string, start, end time.Time, capacity int) (uint64, error) {
	if !start.Before(end) {
		return 0, apperr.ErrInvalidInterval
	}
	if capacity < 0 {
		return 0, apperr.ErrCapacityBelowBooked
	}

	slot := models.Slot{
		DoctorID:    doctorID,
		StartTime:   start,
		EndTime:     end,
		Capacity:    capacity,
		BookedCount: 0,
	}
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The no-overlap predicate ranges over rows that may not exist yet,
		// so row locks cannot serialize it; the advisory lock on the
		// doctor's slot set does. It also keeps the count free of locking
		// clauses, which Postgres rejects on aggregates.
		if err := store.LockKeyedSet(tx, "slots:"+doctorID); err != nil {
			return err
		}

		var count int64
		err := tx.Model(&models.Slot{}).
			Where("doctor_id = ?", doctorID).
			Where("(start_time BETWEEN ? AND ?) OR (end_time BETWEEN ? AND ?)",
				start, end, start, end).
			Count(&count).Error
		if err != nil {
			return store.Unavailable("slot overlap check", err)
		}
		if count > 0 {
			return apperr.ErrSlotConflict
		}

		if err := tx.Create(&slot).Error; err != nil {
			return store.Unavailable("slot create", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return slot.ID, nil
}

// UpdateCapacity changes the seat count of a slot. Shrinking below the
// current booked count is rejected.
func (l *Ledger) UpdateCapacity(ctx context.Context, slotID uint64, newCapacity int) error {
	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := LockSlotTx(tx, slotID)
		if err != nil {
			return err
		}
		if newCapacity < slot.BookedCount {
			return apperr.ErrCapacityBelowBooked
		}
		if err := tx.Model(slot).Update("capacity", newCapacity).Error; err != nil {
			return store.Unavailable("slot capacity update", err)
		}
		return nil
	})
}

// UpdateInterval moves a slot in time. Only slots nobody has booked may move;
// nil keeps the corresponding endpoint.
func (l *Ledger) UpdateInterval(ctx context.Context, slotID uint64, newStart, newEnd *time.Time) error {
	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := LockSlotTx(tx, slotID)
		if err != nil {
			return err
		}
		if slot.BookedCount > 0 {
			return apperr.ErrSlotHasBookings
		}

		start, end := slot.StartTime, slot.EndTime
		if newStart != nil {
			start = *newStart
		}
		if newEnd != nil {
			end = *newEnd
		}
		if !start.Before(end) {
			return apperr.ErrInvalidInterval
		}

		updates := map[string]any{"start_time": start, "end_time": end}
		if err := tx.Model(slot).Updates(updates).Error; err != nil {
			return store.Unavailable("slot interval update", err)
		}
		return nil
	})
}

// DeleteSlot removes an empty slot.
func (l *Ledger) DeleteSlot(ctx context.Context, slotID uint64) error {
	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := LockSlotTx(tx, slotID)
		if err != nil {
			return err
		}
		if slot.BookedCount > 0 {
			return apperr.ErrSlotHasBookings
		}
		if err := tx.Delete(slot).Error; err != nil {
			return store.Unavailable("slot delete", err)
		}
		return nil
	})
}

// ListSlots returns a doctor's slots inside [from, to], start ascending.
func (l *Ledger) ListSlots(ctx context.Context, doctorID string, from, to time.Time, offset, limit int) ([]models.Slot, error) {
	var slots []models.Slot
	err := l.DB.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Where("start_time >= ? AND end_time <= ?", from, to).
		Order("start_time ASC").
		Offset(offset).
		Limit(limit).
		Find(&slots).Error
	if err != nil {
		return nil, store.Unavailable("slot list", err)
	}
	return slots, nil
}

// LockSlotTx reads a slot under FOR UPDATE (on Postgres) inside the caller's
// transaction, so the subsequent write cannot race another transaction on the
// same row. The booking engine uses it to serialize per-slot mutations.
func LockSlotTx(tx *gorm.DB, slotID uint64) (*models.Slot, error) {
	var slot models.Slot
	err := store.LockForUpdate(tx).Where("id = ?", slotID).First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("slot %d: %w", slotID, apperr.ErrNotFound)
		}
		return nil, store.Unavailable("slot read", err)
	}
	return &slot, nil
}

// AdjustBookedCountTx moves the slot's seat counter by delta inside the
// caller's transaction. The slot must have been read through LockSlotTx in
// the same transaction. Bounds are rechecked here: a violation means the
// caller's state checks were wrong and the transaction must roll back.
func AdjustBookedCountTx(tx *gorm.DB, slot *models.Slot, delta int) error {
	next := slot.BookedCount + delta
	if next > slot.Capacity {
		return apperr.ErrSlotFull
	}
	if next < 0 {
		return fmt.Errorf("slot %d booked count underflow: %w", slot.ID, apperr.ErrNotBooked)
	}
	if err := tx.Model(slot).Update("booked_count", next).Error; err != nil {
		return store.Unavailable("booked count update", err)
	}
	slot.BookedCount = next
	return nil
}
