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

// Package dispatch translates the six external request operations of
// spec.md §6 into internal/queue.Queue operations. It carries no opinion
// about IPC framing (spec.md §1 places "transport-layer IPC marshalling"
// out of scope): callers hand it already-decoded Go values and get back
// already-encoded Go values; cmd/alarmd is responsible for whatever wire
// format sits in front of it.
package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/kernelpanic-labs/alarmd/internal/action"
	"github.com/kernelpanic-labs/alarmd/internal/propbag"
	"github.com/kernelpanic-labs/alarmd/internal/queue"
)

// Envelope wraps a single request with a correlation id, the way a real
// transport would frame it (spec.md §6 "each carries a versioned envelope
// opaque to the core"). Grounded on mgmt's use of github.com/google/uuid
// for resource/world identifiers (engine/resources, etcd/) — reused here
// for the one identifier a bodyless IPC envelope actually needs.
type Envelope struct {
	ID      uuid.UUID
	Version int
}

// NewEnvelope returns an Envelope with a fresh correlation id at the
// current wire version.
func NewEnvelope() Envelope {
	return Envelope{ID: uuid.New(), Version: 1}
}

// Dispatcher exposes the six request/response operations of spec.md §6
// (add_event, del_event, query_event, get_event, set_snooze, get_snooze),
// cookie-keyed, against a single Queue.
type Dispatcher struct {
	q    *queue.Queue
	logf func(format string, v ...interface{})
}

// New constructs a Dispatcher bound to q.
func New(q *queue.Queue, logf func(format string, v ...interface{})) *Dispatcher {
	return &Dispatcher{q: q, logf: logf}
}

// RecurringSpec carries the optional recurrence parameters of an
// AddEventRequest. A nil RecurringSpec in AddEventRequest means "plain
// Event", per spec.md §3's RecurringEvent variant.
type RecurringSpec struct {
	IntervalMinutes int64
	CountRemaining  int64
}

// AddEventRequest is the decoded add_event payload of spec.md §6: a
// type-tagged property bag describing an Event plus its owned Action,
// already resolved to concrete Go values by the transport layer.
type AddEventRequest struct {
	BaseTime          time.Time
	SnoozeStepMinutes int64
	Action            action.Action
	Recurring         *RecurringSpec
}

// InputError is the spec.md §7 "Input error" category: invalid cookie,
// malformed payload, set_snooze(0). Reported to the caller; the Queue is
// left unchanged.
type InputError struct{ msg string }

func (e *InputError) Error() string { return e.msg }

// AddEvent implements spec.md §6 add_event: installs ev into the Queue and
// returns its assigned cookie.
func (d *Dispatcher) AddEvent(req AddEventRequest) (int32, error) {
	if req.Action == nil {
		return 0, &InputError{"dispatch: add_event requires an action"}
	}
	if req.BaseTime.IsZero() {
		return 0, &InputError{"dispatch: add_event requires a base time"}
	}

	var ev *queue.Event
	if req.Recurring != nil {
		if req.Recurring.IntervalMinutes <= 0 {
			return 0, &InputError{"dispatch: recurring event requires a positive interval"}
		}
		ev = queue.NewRecurringEvent(req.BaseTime, req.SnoozeStepMinutes, req.Action, req.Recurring.IntervalMinutes, req.Recurring.CountRemaining)
	} else {
		ev = queue.NewEvent(req.BaseTime, req.SnoozeStepMinutes, req.Action)
	}

	cookie := d.q.Add(ev)
	d.log("add_event: cookie=%d base_time=%s", cookie, req.BaseTime)
	return cookie, nil
}

// DelEvent implements spec.md §6 del_event.
func (d *Dispatcher) DelEvent(cookie int32) (bool, error) {
	if cookie == 0 {
		return false, &InputError{"dispatch: del_event requires a non-zero cookie"}
	}
	found := d.q.Remove(cookie)
	d.log("del_event: cookie=%d found=%t", cookie, found)
	return found, nil
}

// QueryEvent implements spec.md §6 query_event.
func (d *Dispatcher) QueryEvent(lo, hi time.Time, mask, vals action.Flags) ([]int32, error) {
	if hi.Before(lo) {
		return nil, &InputError{"dispatch: query_event time_hi before time_lo"}
	}
	return d.q.Query(lo, hi, mask, vals), nil
}

// EventInfo is the decoded get_event response: the property bag of an
// Event and its Action, flattened for a caller that doesn't want to walk
// propbag.Persistable itself.
type EventInfo struct {
	Cookie             int32
	BaseTime           time.Time
	EffectiveTime      time.Time
	SnoozeAccumMinutes int64
	SnoozeStepMinutes  int64
	ActionKind         string
	Flags              action.Flags
	Recurring          *RecurringSpec
}

// GetEvent implements spec.md §6 get_event.
func (d *Dispatcher) GetEvent(cookie int32) (EventInfo, bool, error) {
	if cookie == 0 {
		return EventInfo{}, false, &InputError{"dispatch: get_event requires a non-zero cookie"}
	}
	ev, ok := d.q.Get(cookie)
	if !ok {
		return EventInfo{}, false, nil
	}
	info := EventInfo{
		Cookie:             ev.Cookie(),
		BaseTime:           ev.BaseTime(),
		EffectiveTime:      ev.EffectiveTime(),
		SnoozeAccumMinutes: ev.SnoozeAccumMinutes(),
		SnoozeStepMinutes:  ev.SnoozeStepMinutes(),
	}
	if act := ev.Action(); act != nil {
		info.ActionKind = act.Kind()
		info.Flags = act.Flags()
	}
	if rec := ev.Recurring(); rec != nil {
		info.Recurring = &RecurringSpec{IntervalMinutes: rec.IntervalMinutes, CountRemaining: rec.CountRemaining}
	}
	return info, true, nil
}

// GetSnooze implements spec.md §6 get_snooze.
func (d *Dispatcher) GetSnooze() uint32 {
	return uint32(d.q.DefaultSnoozeGet())
}

// SetSnooze implements spec.md §6 set_snooze: minutes must be positive
// (spec.md §7 "set_snooze(0)" is an input error).
func (d *Dispatcher) SetSnooze(minutes uint32) error {
	if minutes == 0 {
		return &InputError{"dispatch: set_snooze requires minutes > 0"}
	}
	return d.q.DefaultSnoozeSet(int64(minutes))
}

func (d *Dispatcher) log(format string, v ...interface{}) {
	if d.logf != nil {
		d.logf(format, v...)
	}
}

// Props flattens an EventInfo back into the property-bag shape the rest of
// the document/wire format uses (spec.md §6 get_event "Output: property
// bag"), for a transport that wants to encode the response the same way
// persist.Load/Save encode an Event.
func (info EventInfo) Props() []propbag.Prop {
	p := []propbag.Prop{
		{Name: "cookie", Value: propbag.Int(int64(info.Cookie))},
		{Name: "base_time", Value: propbag.Int64(info.BaseTime.Unix())},
		{Name: "snooze_accum_minutes", Value: propbag.Int64(info.SnoozeAccumMinutes)},
		{Name: "snooze_step_minutes", Value: propbag.Int64(info.SnoozeStepMinutes)},
		{Name: "action_kind", Value: propbag.String(info.ActionKind)},
		{Name: "flags", Value: propbag.Int64(int64(info.Flags))},
	}
	if info.Recurring != nil {
		p = append(p,
			propbag.Prop{Name: "recur_interval_minutes", Value: propbag.Int64(info.Recurring.IntervalMinutes)},
			propbag.Prop{Name: "recur_count_remaining", Value: propbag.Int64(info.Recurring.CountRemaining)},
		)
	}
	return p
}
