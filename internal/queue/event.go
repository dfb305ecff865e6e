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

// Package queue implements the Event/RecurringEvent state machine and the
// Queue that owns them (spec.md §3, §4.C, §4.D).
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/kernelpanic-labs/alarmd/internal/action"
	"github.com/kernelpanic-labs/alarmd/internal/propbag"
	"github.com/kernelpanic-labs/alarmd/internal/weakref"
)

// Recurrence holds the RecurringEvent-only fields of spec.md §3: the
// interval, the remaining count (-1 for unbounded), and the un-snoozed
// base of the current iteration.
type Recurrence struct {
	IntervalMinutes int64
	CountRemaining  int64
	RealTime        time.Time
}

// Kind implements propbag.Persistable.
func (r *Recurrence) Kind() string { return "recurrence" }

// Props implements propbag.Persistable.
func (r *Recurrence) Props() []propbag.Prop {
	return []propbag.Prop{
		{Name: "recur_interval_minutes", Value: propbag.Int64(r.IntervalMinutes)},
		{Name: "recur_count_remaining", Value: propbag.Int64(r.CountRemaining)},
		{Name: "real_time", Value: propbag.Int64(r.RealTime.Unix())},
	}
}

// SetProp implements propbag.Persistable.
func (r *Recurrence) SetProp(name string, v propbag.Value) error {
	switch name {
	case "recur_interval_minutes":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		r.IntervalMinutes = i
		return nil
	case "recur_count_remaining":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		r.CountRemaining = i
		return nil
	case "real_time":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		r.RealTime = time.Unix(i, 0).UTC()
		return nil
	}
	return fmt.Errorf("queue/recurrence: unknown property %q", name)
}

// Event is the scheduling unit of spec.md §3. Fields are unexported and
// accessed through methods, the way engine.Res's KindedRes/NamedRes
// interfaces in the teacher expose Name()/Kind() rather than bare struct
// fields.
type Event struct {
	mu sync.Mutex

	cookie             int32
	baseTime           time.Time
	snoozeAccumMinutes int64
	snoozeStepMinutes  int64
	act                action.Action
	recurring          *Recurrence

	seq     int64 // insertion-order tiebreak, assigned once by Queue.Add
	removed bool  // tombstone: set by Queue.Remove before an in-flight Disarm/Action settles

	queueRef weakref.Ref[*Queue]
}

// NewEvent constructs a one-shot Event. Cookie is left at zero; Queue.Add
// assigns one.
func NewEvent(baseTime time.Time, snoozeStepMinutes int64, act action.Action) *Event {
	return &Event{
		baseTime:          baseTime,
		snoozeStepMinutes: snoozeStepMinutes,
		act:               act,
	}
}

// NewRecurringEvent constructs a RecurringEvent: an Event with a Recurrence
// attached (spec.md §3's RecurringEvent variant).
func NewRecurringEvent(baseTime time.Time, snoozeStepMinutes int64, act action.Action, intervalMinutes, countRemaining int64) *Event {
	ev := NewEvent(baseTime, snoozeStepMinutes, act)
	ev.recurring = &Recurrence{
		IntervalMinutes: intervalMinutes,
		CountRemaining:  countRemaining,
		RealTime:        baseTime,
	}
	return ev
}

// NewEmptyEvent returns a zero-valued Event suitable for persist.Load to
// populate field-by-field via SetProp before Queue.Add assigns it back in.
func NewEmptyEvent() *Event {
	return &Event{}
}

// Cookie implements action.EventHandle and is the stable unique identifier
// of this Event.
func (e *Event) Cookie() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cookie
}

func (e *Event) setCookie(c int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cookie = c
}

// BaseTime returns the nominal due time.
func (e *Event) BaseTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseTime
}

// SetBaseTime sets the nominal due time.
func (e *Event) SetBaseTime(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseTime = t
}

// SnoozeAccumMinutes returns the current snooze accumulator.
func (e *Event) SnoozeAccumMinutes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snoozeAccumMinutes
}

// SetSnoozeAccumMinutes sets the snooze accumulator.
func (e *Event) SetSnoozeAccumMinutes(m int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snoozeAccumMinutes = m
}

// SnoozeStepMinutes returns the per-event snooze increment (0 means "use
// the Queue default").
func (e *Event) SnoozeStepMinutes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snoozeStepMinutes
}

// Action returns the owned Action.
func (e *Event) Action() action.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.act
}

// Recurring returns the Recurrence, or nil for a plain Event.
func (e *Event) Recurring() *Recurrence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recurring
}

// EffectiveTime is base_time + snooze_accum_minutes*60, per spec.md §3.
func (e *Event) EffectiveTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseTime.Add(time.Duration(e.snoozeAccumMinutes) * time.Minute)
}

// NeedsPowerUp is action.flags & BOOT, per spec.md §4.C.
func (e *Event) NeedsPowerUp() bool {
	e.mu.Lock()
	act := e.act
	e.mu.Unlock()
	return act != nil && act.NeedsPowerUp()
}

// Kind implements propbag.Persistable.
func (e *Event) Kind() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recurring != nil {
		return "recurringevent"
	}
	return "event"
}

// Props implements propbag.Persistable.
func (e *Event) Props() []propbag.Prop {
	e.mu.Lock()
	defer e.mu.Unlock()
	props := []propbag.Prop{
		{Name: "cookie", Value: propbag.Int(int64(e.cookie))},
		{Name: "base_time", Value: propbag.Int64(e.baseTime.Unix())},
		{Name: "snooze_accum_minutes", Value: propbag.Int64(e.snoozeAccumMinutes)},
		{Name: "snooze_step_minutes", Value: propbag.Int64(e.snoozeStepMinutes)},
	}
	if e.act != nil {
		props = append(props, propbag.Prop{Name: "action", Value: propbag.Object(e.act)})
	}
	if e.recurring != nil {
		props = append(props, propbag.Prop{Name: "recurring", Value: propbag.Object(e.recurring)})
	}
	return props
}

// SetProp implements propbag.Persistable.
func (e *Event) SetProp(name string, v propbag.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch name {
	case "cookie":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		e.cookie = int32(i)
		return nil
	case "base_time":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		e.baseTime = time.Unix(i, 0).UTC()
		return nil
	case "snooze_accum_minutes":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		e.snoozeAccumMinutes = i
		return nil
	case "snooze_step_minutes":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		e.snoozeStepMinutes = i
		return nil
	case "action":
		if v.Tag != propbag.TagObject {
			return fmt.Errorf("queue/event: action property must be an object")
		}
		act, ok := v.Obj.(action.Action)
		if !ok {
			return fmt.Errorf("queue/event: action property has wrong concrete type")
		}
		e.act = act
		return nil
	case "recurring":
		if v.Tag != propbag.TagObject {
			return fmt.Errorf("queue/event: recurring property must be an object")
		}
		rec, ok := v.Obj.(*Recurrence)
		if !ok {
			return fmt.Errorf("queue/event: recurring property has wrong concrete type")
		}
		e.recurring = rec
		return nil
	}
	return fmt.Errorf("queue/event: unknown property %q", name)
}
