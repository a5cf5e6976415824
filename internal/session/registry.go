// Package session issues, resolves and revokes the time-bounded login tokens
// used by all three actor roles. One registry serves every role; the role is
// data, kept on the stored row, not a separate table per role.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/models"
	"github.com/clinicore/appointment_service/internal/store"
)

// MaxLoginAge is how long an issued token stays valid.
const MaxLoginAge = 3600 * time.Second

type Registry struct {
	DB     *gorm.DB
	Secret []byte
}

type loginClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// mint builds the opaque token string. It happens to be a signed JWT so the
// string carries enough entropy per issue (uuid JTI), but nothing ever reads
// it back: validity comes from the stored row alone.
func (r *Registry) mint(subjectID, role string, issuedAt time.Time) (string, error) {
	claims := loginClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subjectID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
			ID:       uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.Secret)
}

// Issue creates a fresh token for the subject. Earlier tokens of the same
// subject stay valid; logging in twice yields two independent sessions.
func (r *Registry) Issue(ctx context.Context, subjectID, role string) (string, error) {
	now := time.Now().UTC()
	token, err := r.mint(subjectID, role, now)
	if err != nil {
		return "", err
	}

	row := models.LoginToken{
		Token:     token,
		SubjectID: subjectID,
		Role:      role,
		IssuedAt:  now,
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return "", store.Unavailable("session issue", err)
	}
	return token, nil
}

// Resolve returns the subject behind a token, judged by the most recently
// issued matching row. Expired rows are left in place (revoked lazily).
func (r *Registry) Resolve(ctx context.Context, token, role string) (string, error) {
	var row models.LoginToken
	err := r.DB.WithContext(ctx).
		Where("token = ? AND role = ?", token, role).
		Order("issued_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.ErrUnauthenticated
		}
		return "", store.Unavailable("session resolve", err)
	}

	if time.Now().UTC().Sub(row.IssuedAt) > MaxLoginAge {
		return "", apperr.ErrSessionExpired
	}
	return row.SubjectID, nil
}

// Revoke deletes every row matching the token. Revoking an unknown token is
// a no-op, not an error.
func (r *Registry) Revoke(ctx context.Context, token, role string) error {
	err := r.DB.WithContext(ctx).
		Where("token = ? AND role = ?", token, role).
		Delete(&models.LoginToken{}).Error
	if err != nil {
		return store.Unavailable("session revoke", err)
	}
	return nil
}
