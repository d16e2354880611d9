// Package storage persists reminders in SQLite.
//
// Bucket sent flags live in a (reminder_id, bucket) side table instead
// of one column per bucket, so bucket definitions stay configuration
// data and marking is naturally idempotent.
package storage

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/reminder"
)

// ErrNotFound is returned for operations on an unknown reminder id.
var ErrNotFound = errors.New("reminder not found")

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default

	// Horizon bounds the candidate fetch window: reminders targeting
	// later than ref+Horizon cannot have a due bucket yet. Derived from
	// the configured buckets (max lead+tolerance) plus slack.
	Horizon time.Duration

	// BucketCount lets the candidate query skip reminders whose every
	// bucket already fired. Purely an optimization; the evaluator
	// re-checks the flags.
	BucketCount int
}

// NewReminder is the creation payload.
type NewReminder struct {
	OwnerID int64
	Target  time.Time
	Payload string

	// PreMarked buckets are recorded as sent in the same transaction,
	// used for windows already unreachable at creation time.
	PreMarked []string
}

// Field enumerates the updatable reminder fields. The sweep never
// touches these; they exist for the command surface only.
type Field int

const (
	FieldTarget Field = iota
	FieldPayload
)

// FieldUpdate is one field assignment; the value read depends on Field.
type FieldUpdate struct {
	Field   Field
	Target  time.Time
	Payload string
}

// Store is the full persistence API. It embeds the narrow surface the
// sweeper consumes (reminder.Store).
type Store interface {
	reminder.Store

	Create(ctx context.Context, n NewReminder) (reminder.Reminder, error)
	ByID(ctx context.Context, id int64) (reminder.Reminder, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error)
	Update(ctx context.Context, id int64, updates []FieldUpdate) error
	Delete(ctx context.Context, id int64) error

	Close() error
}
