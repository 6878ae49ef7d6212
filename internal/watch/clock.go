package watch

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time so the poll loop's sleeps and timestamps are
// deterministic in tests. Sleep is not interruptible; shutdown is
// observed at loop-iteration boundaries instead.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// IDGenerator abstracts unique ID generation so tests are deterministic.
// Run IDs tag every log line a watcher emits.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
