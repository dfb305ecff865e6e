// Alarmd
// Copyright (C) 2013-2026+ the alarmd contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package timer implements the Timer capability of spec.md §4.A: a single
// hardware/OS wakeup source that can arm one callback at a wall-clock
// instant. Two classes exist, normal and power-up-capable; spec.md treats
// the concrete backends (fine-grained monotonic timer vs. RTC wakeup) as
// out of scope beyond this interface, so MonotonicTimer and RTCTimer here
// are reference implementations rather than the final OS integration.
package timer

import "time"

// Timer is the capability contract every backend implements.
type Timer interface {
	// Arm schedules onFire(token, delayed) at at. Exactly one of onFire
	// or onCancel is delivered per successful Arm, never both, never
	// neither. Replaces any prior arming. Returns false on refusal.
	Arm(at time.Time, onFire func(token interface{}, delayed bool), onCancel func(token interface{}), token interface{}) bool

	// Disarm cancels the current arming, invoking onCancel exactly once
	// if an arming was present.
	Disarm()

	// TimeChanged re-evaluates the pending arming against the new wall
	// clock; if the armed instant is now in the past, onFire is invoked
	// with delayed=true.
	TimeChanged()

	// IsPowerupCapable declares whether this Timer can wake a
	// powered-off device.
	IsPowerupCapable() bool
}
