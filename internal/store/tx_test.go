package store

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
)

func TestUnavailableKeepsCauseChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable("slot read", cause)

	require.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	// The driver error stays reachable for transient-error classification.
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "slot read")
}

func TestLockHelpersNoopOffPostgres(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return LockKeyedSet(tx, "slots:d1")
	}))
}
