package storage

import (
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/glamhq/glam/libs/db"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already booked")
	ErrRejected  = errors.New("value rejected by database")
)

// Constraint names referenced when mapping Postgres errors.
const (
	activeSlotConstraint  = "bookings_active_slot_key"
	idempotencyConstraint = "bookings_customer_idempotency_key"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// rejected maps values the schema refuses (CHECK failures, unparsable uuids) to ErrRejected.
func rejected(err error) error {
	if db.IsCheckViolation(err) || db.IsInvalidText(err) {
		return errors.Join(ErrRejected, err)
	}
	return err
}
