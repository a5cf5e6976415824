// Package lookup holds the existence checks handlers run before calling a
// mutating core operation, so "no such slot" stays distinguishable from
// "slot full".
package lookup

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/models"
	"github.com/clinicore/appointment_service/internal/store"
)

type Checker struct {
	DB *gorm.DB
}

func (c *Checker) assert(ctx context.Context, entity string, model any, cond string, args ...any) error {
	var count int64
	err := c.DB.WithContext(ctx).Model(model).Where(cond, args...).Count(&count).Error
	if err != nil {
		return store.Unavailable("existence check", err)
	}
	if count == 0 {
		return fmt.Errorf("no such %s: %w", entity, apperr.ErrNotFound)
	}
	return nil
}

func (c *Checker) Patient(ctx context.Context, username string) error {
	return c.assert(ctx, "patient", &models.Patient{}, "username = ?", username)
}

// ActivePatient additionally rejects banned accounts.
func (c *Checker) ActivePatient(ctx context.Context, username string) error {
	return c.assert(ctx, "patient", &models.Patient{}, "username = ? AND is_banned = ?", username, false)
}

func (c *Checker) Doctor(ctx context.Context, id string) error {
	return c.assert(ctx, "doctor", &models.Doctor{}, "id = ?", id)
}

func (c *Checker) Department(ctx context.Context, name string) error {
	return c.assert(ctx, "department", &models.Department{}, "name = ?", name)
}

func (c *Checker) Slot(ctx context.Context, id uint64) error {
	return c.assert(ctx, "slot", &models.Slot{}, "id = ?", id)
}

func (c *Checker) Appointment(ctx context.Context, patientID string, slotID uint64) error {
	return c.assert(ctx, "appointment", &models.Appointment{}, "patient_id = ? AND slot_id = ?", patientID, slotID)
}

func (c *Checker) Comment(ctx context.Context, id uint64) error {
	return c.assert(ctx, "comment", &models.Comment{}, "id = ?", id)
}
