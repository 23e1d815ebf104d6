package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/warehouse-ledger/internal/port"
)

const defaultCheckpointQueueSize = 64

type options struct {
	logger          zerolog.Logger
	now             func() time.Time
	newID           func() string
	snapshots       port.SnapshotCache
	checkpointEvery int
	queueSize       int
}

type Option func(*options)

func defaultOptions() options {
	return options{
		logger:    zerolog.Nop(),
		now:       time.Now,
		newID:     newEventID,
		queueSize: defaultCheckpointQueueSize,
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock replaces time.Now when stamping events.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithSnapshotCache lets the ledger warm-start scopes from saved checkpoints.
func WithSnapshotCache(cache port.SnapshotCache) Option {
	return func(o *options) { o.snapshots = cache }
}

// WithCheckpointEvery queues a scope for checkpointing after every n applied
// events. Zero disables it.
func WithCheckpointEvery(n int) Option {
	return func(o *options) { o.checkpointEvery = n }
}

// newEventID returns a time-ordered UUIDv7 so ids also sort by creation.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
