// Package queue stores pending add/remove actions in a named FIFO list.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/go-playground/validator/v10"
)

var ErrInvalidRecord = errors.New("invalid action record")

// Queue is an at-least-once FIFO of action records. It does not deduplicate:
// producers compare action.Key values against DrainAll before pushing.
type Queue interface {
	Name() string
	Push(ctx context.Context, rec action.Record) error
	// DrainAll lists every pending record without removing any.
	DrainAll(ctx context.Context) ([]action.Record, error)
	// PopOne atomically removes and returns the head, or nil when the queue is empty.
	PopOne(ctx context.Context) (*action.Record, error)
}

var validate = validator.New()

func validateRecord(rec action.Record) error {
	if err := validate.Struct(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if rec.Type == action.TypeRemove && rec.Phone == "" {
		return fmt.Errorf("%w: remove requires a phone", ErrInvalidRecord)
	}
	if rec.Type == action.TypeAdd && rec.Phone == "" && rec.RegistrationID == nil {
		return fmt.Errorf("%w: add requires a phone or a registration", ErrInvalidRecord)
	}
	return nil
}
