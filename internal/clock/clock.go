// Package clock abstracts wall-clock time so lifecycle expiry and quota
// day-keying can be tested deterministically.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the system wall clock in UTC.
func NewSystemClock() Clock { return systemClock{} }

var Module = fx.Module("clock", fx.Provide(NewSystemClock))
