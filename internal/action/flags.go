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

package action

// Flags is the bitset carried by every Action. Every named bit is persisted
// with its Action; System and Activation are carried but not read by any
// code in this module. Unnamed bits are legal to set and are opaque.
type Flags uint32

const (
	// NoDialog suppresses the UI request entirely.
	NoDialog Flags = 1 << 0
	// NoSnooze shows the dialog without offering a snooze affordance.
	NoSnooze Flags = 1 << 1
	// System is a routing hint for the Bus variant. Bus does not read it;
	// the bus is chosen by Bus.Session.
	System Flags = 1 << 2
	// Boot marks an event as needing a power-up-capable Timer.
	Boot Flags = 1 << 3
	// ActDead routes the dialog through the power-up UI path when the
	// device is in acting-dead mode.
	ActDead Flags = 1 << 4
	// ShowIcon toggles the statusbar indicator for the life of the Action.
	ShowIcon Flags = 1 << 5
	// RunDelayed means the action still runs if its fire was missed.
	RunDelayed Flags = 1 << 6
	// Connected gates the action on connectivity before running.
	Connected Flags = 1 << 7
	// Activation is a routing hint for the Bus variant. Bus does not read
	// it.
	Activation Flags = 1 << 8
	// PostponeDelayed, if missed by more than 24h, jumps base_time forward
	// in whole days instead of running.
	PostponeDelayed Flags = 1 << 9
	// BackReschedule, for recurring events, shifts real_time backward on
	// wall-clock-backward jumps so the recurrence period is preserved.
	BackReschedule Flags = 1 << 10
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}
