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
	"sync"
	"time"
)

// MonotonicTimer arms a single time.Timer and is not power-up capable. It
// mirrors the single-owner, single-slot replace-on-arm discipline used by
// the teacher's engine/graph/semaphore.go and converger.go timer-driven
// reevaluation loops: exactly one pending *time.Timer at a time, replaced
// rather than layered.
type MonotonicTimer struct {
	mu       sync.Mutex
	armed    bool
	at       time.Time
	onFire   func(token interface{}, delayed bool)
	onCancel func(token interface{})
	token    interface{}
	timer    *time.Timer

	// Now is the clock source; overridable in tests.
	Now func() time.Time
}

// NewMonotonic returns a ready-to-use MonotonicTimer.
func NewMonotonic() *MonotonicTimer {
	return &MonotonicTimer{Now: time.Now}
}

func (t *MonotonicTimer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Arm implements Timer.
func (t *MonotonicTimer) Arm(at time.Time, onFire func(interface{}, bool), onCancel func(interface{}), token interface{}) bool {
	t.mu.Lock()
	t.replaceLocked()
	t.at = at
	t.onFire = onFire
	t.onCancel = onCancel
	t.token = token
	t.armed = true
	d := at.Sub(t.now())
	if d < 0 {
		d = 0
	}
	t.timer = time.AfterFunc(d, t.fire)
	t.mu.Unlock()
	return true
}

// replaceLocked stops any existing timer and fires its onCancel, without
// touching t.armed's final state (the caller sets it next). Must be called
// with t.mu held.
func (t *MonotonicTimer) replaceLocked() {
	if !t.armed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	onCancel := t.onCancel
	token := t.token
	t.armed = false
	if onCancel != nil {
		t.mu.Unlock()
		onCancel(token)
		t.mu.Lock()
	}
}

// lateTolerance is how far past t.at a delivery may land and still count as
// on time: time.AfterFunc always runs slightly after its deadline, and the
// daemon does not work at sub-second precision.
const lateTolerance = time.Second

// fire delivers onFire, computing delayed from the wall clock at delivery
// time rather than trusting the scheduling delay passed to AfterFunc:
// delayed is true when delivery lags t.at by more than lateTolerance, which
// also covers the case where Arm was called with an already-past at_time
// (e.g. persist.Load re-arming a missed event on daemon start).
func (t *MonotonicTimer) fire() {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return
	}
	onFire := t.onFire
	token := t.token
	at := t.at
	t.armed = false
	t.mu.Unlock()
	if onFire != nil {
		onFire(token, t.now().Sub(at) > lateTolerance)
	}
}

// Disarm implements Timer.
func (t *MonotonicTimer) Disarm() {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	onCancel := t.onCancel
	token := t.token
	t.armed = false
	t.mu.Unlock()
	if onCancel != nil {
		onCancel(token)
	}
}

// TimeChanged implements Timer.
func (t *MonotonicTimer) TimeChanged() {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return
	}
	now := t.now()
	if !now.Before(t.at) {
		if t.timer != nil {
			t.timer.Stop()
		}
		t.armed = false
		onFire := t.onFire
		token := t.token
		t.mu.Unlock()
		if onFire != nil {
			onFire(token, true)
		}
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	d := t.at.Sub(now)
	t.timer = time.AfterFunc(d, t.fire)
	t.mu.Unlock()
}

// IsPowerupCapable implements Timer.
func (t *MonotonicTimer) IsPowerupCapable() bool { return false }
