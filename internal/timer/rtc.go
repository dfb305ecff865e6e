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

package timer

import (
	"os"
	"strconv"
	"time"
)

// RTCTimer is the power-up-capable Timer class (spec.md §4.A
// is_powerup_capable). It schedules the same way MonotonicTimer does while
// the daemon is running, and additionally writes the armed wake instant to
// WakePath (when set) so that a real RTC-wake collaborator — out of scope
// per spec.md §1 — can program the hardware to resume a powered-down
// device at that instant.
type RTCTimer struct {
	*MonotonicTimer

	// WakePath, if non-empty, receives the armed wake time as a decimal
	// unix timestamp on every Arm/Disarm, the same shape as
	// /sys/class/rtc/rtc0/wakealarm on Linux.
	WakePath string
}

// NewRTC returns a ready-to-use RTCTimer.
func NewRTC(wakePath string) *RTCTimer {
	return &RTCTimer{MonotonicTimer: NewMonotonic(), WakePath: wakePath}
}

// Arm implements Timer, additionally publishing the wake instant.
func (t *RTCTimer) Arm(at time.Time, onFire func(interface{}, bool), onCancel func(interface{}), token interface{}) bool {
	ok := t.MonotonicTimer.Arm(at, onFire, onCancel, token)
	if ok {
		t.writeWake(at)
	}
	return ok
}

// Disarm implements Timer, additionally clearing the published wake instant.
func (t *RTCTimer) Disarm() {
	t.MonotonicTimer.Disarm()
	t.writeWake(time.Time{})
}

// IsPowerupCapable implements Timer.
func (t *RTCTimer) IsPowerupCapable() bool { return true }

func (t *RTCTimer) writeWake(at time.Time) {
	if t.WakePath == "" {
		return
	}
	var s string
	if at.IsZero() {
		s = "0"
	} else {
		s = strconv.FormatInt(at.Unix(), 10)
	}
	_ = os.WriteFile(t.WakePath, []byte(s), 0o644)
}
