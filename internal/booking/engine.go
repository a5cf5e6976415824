// Package booking is the appointment state machine. A booking binds a
// patient to one seat of a slot; the pair (patient, slot) identifies at most
// one row whose status walks Unfinished -> Finished or Unfinished -> Canceled,
// with Canceled -> Unfinished on re-booking. Every mutation runs in one
// transaction with a locked read of the slot, which is what serializes
// concurrent calls touching the same slot.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/events"
	"github.com/clinicore/appointment_service/internal/ledger"
	"github.com/clinicore/appointment_service/internal/logging"
	"github.com/clinicore/appointment_service/internal/models"
	"github.com/clinicore/appointment_service/internal/store"
)

type Engine struct {
	DB       *gorm.DB
	Producer *events.Producer
}

// Book claims one seat of the slot for the patient. A Canceled row is
// revived instead of inserting a second one.
func (e *Engine) Book(ctx context.Context, patientID string, slotID uint64) error {
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := ledger.LockSlotTx(tx, slotID)
		if err != nil {
			return err
		}

		var appo models.Appointment
		err = tx.Where("patient_id = ? AND slot_id = ?", patientID, slotID).First(&appo).Error
		switch {
		case err == nil:
			if appo.Status != models.AppointmentCanceled {
				return apperr.ErrAlreadyBooked
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first booking for this pair
		default:
			return store.Unavailable("appointment read", err)
		}

		if slot.BookedCount >= slot.Capacity {
			return apperr.ErrSlotFull
		}

		now := time.Now().UTC()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			appo = models.Appointment{
				PatientID: patientID,
				SlotID:    slotID,
				Status:    models.AppointmentUnfinished,
				BookedAt:  now,
			}
			if err := tx.Create(&appo).Error; err != nil {
				return store.Unavailable("appointment create", err)
			}
		} else {
			err := tx.Model(&models.Appointment{}).
				Where("patient_id = ? AND slot_id = ?", patientID, slotID).
				Updates(map[string]any{"status": models.AppointmentUnfinished, "booked_at": now}).Error
			if err != nil {
				return store.Unavailable("appointment update", err)
			}
		}

		return ledger.AdjustBookedCountTx(tx, slot, +1)
	})
	if err != nil {
		return err
	}

	e.publish(ctx, "booked", patientID, slotID)
	return nil
}

// Cancel releases the patient's seat. Only Unfinished appointments cancel.
func (e *Engine) Cancel(ctx context.Context, patientID string, slotID uint64) error {
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := ledger.LockSlotTx(tx, slotID)
		if err != nil {
			return err
		}

		appo, err := readAppointment(tx, patientID, slotID)
		if err != nil {
			return err
		}
		switch appo.Status {
		case models.AppointmentFinished:
			return apperr.ErrAlreadyFinished
		case models.AppointmentCanceled:
			return apperr.ErrAlreadyCanceled
		}

		err = tx.Model(&models.Appointment{}).
			Where("patient_id = ? AND slot_id = ?", patientID, slotID).
			Update("status", models.AppointmentCanceled).Error
		if err != nil {
			return store.Unavailable("appointment update", err)
		}

		return ledger.AdjustBookedCountTx(tx, slot, -1)
	})
	if err != nil {
		return err
	}

	e.publish(ctx, "canceled", patientID, slotID)
	return nil
}

// Finish marks an Unfinished appointment as done. The seat stays consumed:
// finishing never raises the slot's free capacity.
func (e *Engine) Finish(ctx context.Context, patientID string, slotID uint64) error {
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ledger.LockSlotTx(tx, slotID); err != nil {
			return err
		}

		appo, err := readAppointment(tx, patientID, slotID)
		if err != nil {
			return err
		}
		if appo.Status != models.AppointmentUnfinished {
			return apperr.ErrNotUnfinished
		}

		err = tx.Model(&models.Appointment{}).
			Where("patient_id = ? AND slot_id = ?", patientID, slotID).
			Update("status", models.AppointmentFinished).Error
		if err != nil {
			return store.Unavailable("appointment update", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, "finished", patientID, slotID)
	return nil
}

// Record is one row of an appointment search: the appointment joined with
// its slot and the counterparty's display name.
type Record struct {
	PatientID   string    `json:"username"`
	PatientName string    `json:"name"`
	DoctorID    string    `json:"did"`
	SlotID      uint64    `json:"tid"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
	BookedAt    time.Time `json:"booked_at"`
}

// StatusAll widens an appointment search to every status. An empty status
// filter means Unfinished.
const StatusAll = "all"

// SearchByDoctor lists appointments on the doctor's slots inside [from, to],
// newest slot first.
func (e *Engine) SearchByDoctor(ctx context.Context, doctorID, status string, from, to time.Time, offset, limit int) ([]Record, error) {
	return e.search(ctx, "slots.doctor_id = ?", doctorID, status, from, to, offset, limit)
}

// SearchByPatient lists the patient's appointments inside [from, to], newest
// slot first.
func (e *Engine) SearchByPatient(ctx context.Context, patientID, status string, from, to time.Time, offset, limit int) ([]Record, error) {
	return e.search(ctx, "appointments.patient_id = ?", patientID, status, from, to, offset, limit)
}

func (e *Engine) search(ctx context.Context, cond string, subject, status string, from, to time.Time, offset, limit int) ([]Record, error) {
	q := e.DB.WithContext(ctx).
		Table("appointments").
		Select(`appointments.patient_id, patients.name AS patient_name,
			slots.doctor_id, appointments.slot_id,
			slots.start_time, slots.end_time,
			appointments.status, appointments.booked_at`).
		Joins("JOIN slots ON slots.id = appointments.slot_id").
		Joins("JOIN patients ON patients.username = appointments.patient_id").
		Where(cond, subject).
		Where("slots.start_time >= ? AND slots.end_time <= ?", from, to)
	if status == "" {
		status = models.AppointmentUnfinished
	}
	if status != StatusAll {
		q = q.Where("appointments.status = ?", status)
	}

	var recs []Record
	err := q.Order("slots.start_time DESC").
		Offset(offset).
		Limit(limit).
		Scan(&recs).Error
	if err != nil {
		return nil, store.Unavailable("appointment search", err)
	}
	return recs, nil
}

func readAppointment(tx *gorm.DB, patientID string, slotID uint64) (*models.Appointment, error) {
	var appo models.Appointment
	err := tx.Where("patient_id = ? AND slot_id = ?", patientID, slotID).First(&appo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotBooked
		}
		return nil, store.Unavailable("appointment read", err)
	}
	return &appo, nil
}

// publish emits a lifecycle event after the transaction committed. Delivery
// is best effort; a broker failure must not fail the booking.
func (e *Engine) publish(ctx context.Context, action, patientID string, slotID uint64) {
	if e.Producer == nil {
		return
	}
	event := map[string]any{
		"action":     action,
		"patient_id": patientID,
		"slot_id":    slotID,
		"at":         time.Now().UTC(),
	}
	key := fmt.Sprintf("%s:%d", patientID, slotID)
	if err := e.Producer.PublishEvent(ctx, "appointment_events", key, event); err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "action", action, "error", err)
	}
}
