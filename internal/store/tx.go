package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clinicore/appointment_service/internal/apperr"
)

// LockForUpdate makes the next read a row-locking one on Postgres, so a
// read-then-write transaction serializes against concurrent writers of the
// same row. SQLite has no FOR UPDATE; its single-writer transactions already
// give the same guarantee, so the clause is skipped there.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// LockKeyedSet takes a transaction-scoped advisory lock on a logical set of
// rows named by key. Row locks cannot serialize a predicate over rows that do
// not exist yet: two transactions can each match nothing, each pass the
// check, and both insert (phantom). The advisory lock covers the whole keyed
// set, inserts included, and releases on commit or rollback. On SQLite the
// single-writer transaction model already excludes the interleaving.
func LockKeyedSet(tx *gorm.DB, key string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return Unavailable("advisory lock", err)
	}
	return nil
}

// Unavailable tags a driver/transport failure as the one retriable kind.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperr.ErrStoreUnavailable, err)
}
