// Package clock is the time source shared by the reconcilers, the scorer and
// the sync loop. Production code uses the wall clock; tests drive a mock.
package clock

import (
	"time"

	fbclock "github.com/facebookgo/clock"
)

// Clock is the subset of facebookgo/clock used by the worker.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// New returns the wall clock.
func New() Clock { return fbclock.New() }

// Mock is a manually advanced clock for tests. Now reports times in the
// location of the start instant.
type Mock struct {
	*fbclock.Mock
	loc *time.Location
}

// NewMock returns a mock clock set to start. The underlying mock begins at
// the Unix epoch, so it is advanced to start before being returned.
func NewMock(start time.Time) *Mock {
	m := fbclock.NewMock()
	m.Add(start.Sub(m.Now()))
	return &Mock{Mock: m, loc: start.Location()}
}

func (m *Mock) Now() time.Time { return m.Mock.Now().In(m.loc) }

// Today returns midnight of c's current date in c's location.
func Today(c Clock) time.Time {
	now := c.Now()
	y, mo, d := now.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
}
