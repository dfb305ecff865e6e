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

package queue

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kernelpanic-labs/alarmd/internal/action"
	"github.com/kernelpanic-labs/alarmd/internal/propbag"
	"github.com/kernelpanic-labs/alarmd/internal/statusbar"
	"github.com/kernelpanic-labs/alarmd/internal/timer"
	"github.com/kernelpanic-labs/alarmd/internal/weakref"
)

// Queue owns every live Event and drives the arming reconciliation of
// spec.md §4.D. It is the single point of truth for events_active and
// events_pending (spec.md §3 invariant: "every Event is present in exactly
// one of the two containers").
type Queue struct {
	mu sync.Mutex

	active  []*Event        // sorted by EffectiveTime, ties by seq
	pending map[int32]*Event

	defaultSnoozeMinutes int64
	nextSeq              int64

	timerNormal  timer.Timer
	timerPowerup timer.Timer
	armedNormal  *Event
	armedPowerup *Event

	logf    func(format string, v ...interface{})
	changed func()
	nowFn   func() time.Time

	env ActionEnv
}

// ActionEnv carries the external collaborators spec.md §4.B's Action
// variants consume (the UI/connectivity/bus hooks, the acting-dead probe,
// the statusbar counter, and the journal failure logger). These are
// daemon-wide, installed once via SetActionEnv, and wired into every
// Event's owned Action the moment it enters the Queue (Add) or the env
// itself changes (SetActionEnv) — not only when the Action fires — so that
// construction-time side effects like SHOW_ICON take effect immediately,
// per spec.md §4.B "toggled on Action construction".
type ActionEnv struct {
	UI              action.DialogHook
	PowerupUI       action.DialogHook
	Connectivity    action.ConnectivityHook
	Bus             action.BusHook
	ActingDead      action.ActingDeadProbe
	Statusbar       *statusbar.Counter
	JournalFailures func(string)
}

// SetActionEnv installs the shared Action collaborators and re-wires every
// Event currently owned by the Queue (active and pending) against the new
// env, so hooks registered after events were already added (e.g. during
// persist.Load, which runs before cmd/alarmd builds the hooks) still reach
// them.
func (q *Queue) SetActionEnv(env ActionEnv) {
	q.mu.Lock()
	q.env = env
	evs := make([]*Event, 0, len(q.active)+len(q.pending))
	evs = append(evs, q.active...)
	for _, ev := range q.pending {
		evs = append(evs, ev)
	}
	q.mu.Unlock()

	for _, ev := range evs {
		q.wireAction(ev)
	}
}

// wireAction builds a fresh action.Init from the current env plus an
// Acknowledge callback bound to ev, and installs it on ev's Action. Called
// from Add (so a freshly added Event is wired even if SetActionEnv already
// ran) and from SetActionEnv (so already-added Events pick up a
// newly-installed env).
func (q *Queue) wireAction(ev *Event) {
	act := ev.Action()
	if act == nil {
		return
	}

	q.mu.Lock()
	env := q.env
	logf := q.logf
	q.mu.Unlock()

	eventRef := &weakref.Ref[action.EventHandle]{}
	eventRef.Set(ev)

	act.SetInit(&action.Init{
		Logf:            logf,
		Acknowledge:     func(o action.Outcome) { q.onAcknowledge(ev, o) },
		EventRef:        eventRef,
		Connectivity:    env.Connectivity,
		UI:              env.UI,
		PowerupUI:       env.PowerupUI,
		ActingDead:      env.ActingDead,
		Bus:             env.Bus,
		Statusbar:       env.Statusbar,
		JournalFailures: env.JournalFailures,
	})
}

// New constructs an empty Queue with the given default snooze step. Timers
// and the persistence-changed hook are wired afterward via TimerSet and
// SetChanged, the way cmd/alarmd assembles the daemon.
func New(defaultSnoozeMinutes int64) *Queue {
	return &Queue{
		pending:              make(map[int32]*Event),
		defaultSnoozeMinutes: defaultSnoozeMinutes,
		nowFn:                time.Now,
	}
}

// SetLogf installs a namespaced logger.
func (q *Queue) SetLogf(fn func(format string, v ...interface{})) {
	q.mu.Lock()
	q.logf = fn
	q.mu.Unlock()
}

// SetChanged installs the persistence hook, called after every mutating
// operation completes (spec.md §6: "the document is re-saved after every
// mutating operation").
func (q *Queue) SetChanged(fn func()) {
	q.mu.Lock()
	q.changed = fn
	q.mu.Unlock()
}

// SetClock overrides the wall-clock source. Exists for tests; production
// callers never need it.
func (q *Queue) SetClock(fn func() time.Time) {
	q.mu.Lock()
	q.nowFn = fn
	q.mu.Unlock()
}

func (q *Queue) now() time.Time {
	q.mu.Lock()
	fn := q.nowFn
	q.mu.Unlock()
	return fn()
}

func (q *Queue) log(format string, v ...interface{}) {
	q.mu.Lock()
	fn := q.logf
	q.mu.Unlock()
	if fn != nil {
		fn(format, v...)
	}
}

func (q *Queue) markChanged() {
	q.mu.Lock()
	fn := q.changed
	q.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// TimerKind selects which arming slot a Timer serves.
type TimerKind int

const (
	// TimerNormal serves events whose Action does not need power-up.
	TimerNormal TimerKind = iota
	// TimerPowerup serves events whose Action needs power-up (Boot flag).
	TimerPowerup
)

// TimerSet installs a Timer backend. See the Open Question resolution in
// SPEC_FULL.md: TimerSet takes an explicit kind rather than the original's
// single overloaded timer_get, because only one of NormalTimer/PowerupTimer
// would otherwise be reachable when both slots share one concrete value.
func (q *Queue) TimerSet(kind TimerKind, t timer.Timer) {
	q.mu.Lock()
	switch kind {
	case TimerNormal:
		q.timerNormal = t
	case TimerPowerup:
		q.timerPowerup = t
	}
	q.mu.Unlock()
	q.reconcile()
}

// NormalTimer returns the Timer currently serving non-power-up events, or
// nil if none is installed.
func (q *Queue) NormalTimer() timer.Timer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timerNormal
}

// PowerupTimer returns the Timer currently serving power-up events, or nil
// if none is installed.
func (q *Queue) PowerupTimer() timer.Timer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timerPowerup
}

// DefaultSnoozeGet returns the process-wide default snooze step, in
// minutes.
func (q *Queue) DefaultSnoozeGet() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.defaultSnoozeMinutes
}

// DefaultSnoozeSet installs the process-wide default snooze step. minutes
// must be positive, per spec.md §4.E's Queue.default_snooze_minutes
// invariant.
func (q *Queue) DefaultSnoozeSet(minutes int64) error {
	if minutes <= 0 {
		return fmt.Errorf("queue: default snooze minutes must be positive, got %d", minutes)
	}
	q.mu.Lock()
	q.defaultSnoozeMinutes = minutes
	q.mu.Unlock()
	q.markChanged()
	return nil
}

// Add inserts ev into events_active, assigning it a cookie if it does not
// already have one (spec.md §6 add_event / the Open Question on cookie
// allocation): seed from the event's base time, then linearly probe until
// a cookie not already in use by either container is found.
func (q *Queue) Add(ev *Event) int32 {
	q.mu.Lock()
	if ev.Cookie() == 0 {
		ev.setCookie(q.allocCookieLocked(ev.BaseTime()))
	}
	ev.seq = q.nextSeq
	q.nextSeq++
	ev.mu.Lock()
	ev.removed = false
	ev.mu.Unlock()
	ev.queueRef.Set(q)
	q.insertSortedLocked(ev)
	q.mu.Unlock()

	q.wireAction(ev)
	q.markChanged()
	q.reconcile()
	return ev.Cookie()
}

func (q *Queue) allocCookieLocked(seedTime time.Time) int32 {
	seed := int32(seedTime.Unix() & 0x7fffffff)
	if seed == 0 {
		seed = 1
	}
	c := seed
	for q.cookieTakenLocked(c) {
		c++
		if c <= 0 {
			c = 1
		}
		if c == seed {
			// Exhausted the entire int32 space; cannot happen in practice.
			panic("queue: cookie space exhausted")
		}
	}
	return c
}

func (q *Queue) cookieTakenLocked(c int32) bool {
	if _, ok := q.pending[c]; ok {
		return true
	}
	for _, ev := range q.active {
		if ev.Cookie() == c {
			return true
		}
	}
	return false
}

// insertSortedLocked inserts ev into q.active keeping it sorted by
// EffectiveTime ascending, ties broken by seq (insertion order), per
// spec.md §3's events_active ordering invariant.
func (q *Queue) insertSortedLocked(ev *Event) {
	et := ev.EffectiveTime()
	i := sort.Search(len(q.active), func(i int) bool {
		o := q.active[i]
		oet := o.EffectiveTime()
		if et.Before(oet) {
			return true
		}
		if et.After(oet) {
			return false
		}
		return ev.seq < o.seq
	})
	q.active = append(q.active, nil)
	copy(q.active[i+1:], q.active[i:])
	q.active[i] = ev
}

func (q *Queue) removeFromActiveLocked(ev *Event) bool {
	for i, o := range q.active {
		if o == ev {
			q.active = append(q.active[:i], q.active[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) activeContainsLocked(ev *Event) bool {
	for _, o := range q.active {
		if o == ev {
			return true
		}
	}
	return false
}

// Get returns the Event by cookie, wherever it currently lives.
func (q *Queue) Get(cookie int32) (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ev, ok := q.pending[cookie]; ok {
		return ev, true
	}
	for _, ev := range q.active {
		if ev.Cookie() == cookie {
			return ev, true
		}
	}
	return nil, false
}

// Remove detaches the Event by cookie from the Queue (spec.md §6
// del_event). An Event with an Action still in flight (present in
// events_pending) is detached immediately; its eventual acknowledge is
// dropped on arrival rather than forcibly aborted, since Action.Run has no
// cancellation contract (spec.md §4.B).
func (q *Queue) Remove(cookie int32) bool {
	q.mu.Lock()
	for _, ev := range q.active {
		if ev.Cookie() != cookie {
			continue
		}
		ev.mu.Lock()
		ev.removed = true
		ev.mu.Unlock()
		q.removeFromActiveLocked(ev)
		ev.queueRef.Clear()

		armedOnNormal := q.armedNormal == ev
		armedOnPowerup := q.armedPowerup == ev
		if armedOnNormal {
			q.armedNormal = nil
		}
		if armedOnPowerup {
			q.armedPowerup = nil
		}
		tn, tp := q.timerNormal, q.timerPowerup
		q.mu.Unlock()

		if armedOnNormal && tn != nil {
			tn.Disarm()
		} else if armedOnPowerup && tp != nil {
			tp.Disarm()
		}
		if act := ev.Action(); act != nil {
			act.Close()
		}
		q.markChanged()
		q.reconcile()
		return true
	}
	if ev, ok := q.pending[cookie]; ok {
		ev.mu.Lock()
		ev.removed = true
		ev.mu.Unlock()
		delete(q.pending, cookie)
		ev.queueRef.Clear()
		q.mu.Unlock()
		if act := ev.Action(); act != nil {
			act.Close()
		}
		q.markChanged()
		return true
	}
	q.mu.Unlock()
	return false
}

// Query returns the cookies of active events whose effective time falls in
// [lo, hi] and whose Action flags match (flags & mask == vals & mask),
// ordered by effective time (spec.md §6 query_event).
func (q *Queue) Query(lo, hi time.Time, mask, vals action.Flags) []int32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []int32
	for _, ev := range q.active {
		et := ev.EffectiveTime()
		if et.After(hi) {
			break
		}
		if et.Before(lo) {
			continue
		}
		act := ev.Action()
		if act == nil {
			continue
		}
		if act.Flags()&mask != vals&mask {
			continue
		}
		out = append(out, ev.Cookie())
	}
	return out
}

// Snapshot returns every Event currently owned by the Queue (active and
// pending), for persist.Save to walk. Order is not significant.
func (q *Queue) Snapshot() []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Event, 0, len(q.active)+len(q.pending))
	out = append(out, q.active...)
	for _, ev := range q.pending {
		out = append(out, ev)
	}
	return out
}

// TimeChanged notifies the Queue of a wall-clock jump (spec.md §4.D /
// §7 Open Question resolution): any BackReschedule recurring event still in
// events_active whose anchor lies more than one interval ahead of the new
// clock has it pulled back by whole intervals, is re-sorted, and the Timers
// are re-armed against the shifted times; then both installed Timers
// re-check their current arming against the new clock.
func (q *Queue) TimeChanged() {
	q.mu.Lock()
	tn, tp := q.timerNormal, q.timerPowerup
	now := q.nowFn()
	var moved []*Event
	for _, ev := range q.active {
		rec := ev.Recurring()
		if rec == nil {
			continue
		}
		act := ev.Action()
		if act == nil || !act.Flags().Has(action.BackReschedule) {
			continue
		}
		interval := time.Duration(rec.IntervalMinutes) * time.Minute
		if interval <= 0 {
			continue
		}
		gap := rec.RealTime.Sub(now)
		if gap > interval {
			// Clock jumped backward by more than one interval: subtract
			// whole intervals (not the entire gap) so the anchor keeps
			// its phase, e.g. a daily 9am alarm stays a 9am alarm rather
			// than landing on whatever time "now" happens to be.
			intervals := int64(gap / interval)
			rec.RealTime = rec.RealTime.Add(-time.Duration(intervals) * interval)
			ev.SetSnoozeAccumMinutes(0)
			ev.SetBaseTime(rec.RealTime)
			moved = append(moved, ev)
		}
	}
	for _, ev := range moved {
		q.removeFromActiveLocked(ev)
		q.insertSortedLocked(ev)
	}
	q.mu.Unlock()

	if len(moved) > 0 {
		// Each disarm's onCancel re-drives reconcile at the new times.
		for _, t := range []timer.Timer{tn, tp} {
			if t != nil {
				t.Disarm()
			}
		}
		q.reconcile()
	}
	if tn != nil {
		tn.TimeChanged()
	}
	if tp != nil {
		tp.TimeChanged()
	}
}

// computeTargetsLocked picks, per installed Timer, the lowest-EffectiveTime
// active event it should serve (spec.md §4.D). If only one Timer is
// installed it serves every event regardless of NeedsPowerUp, and is
// reported through targetN for a sole timerNormal or targetP for a sole
// timerPowerup.
func (q *Queue) computeTargetsLocked() (targetN, targetP *Event) {
	switch {
	case q.timerNormal != nil && q.timerPowerup != nil:
		for _, ev := range q.active {
			if ev.NeedsPowerUp() {
				if targetP == nil {
					targetP = ev
				}
			} else if targetN == nil {
				targetN = ev
			}
			if targetN != nil && targetP != nil {
				break
			}
		}
	case q.timerNormal != nil:
		if len(q.active) > 0 {
			targetN = q.active[0]
		}
	case q.timerPowerup != nil:
		if len(q.active) > 0 {
			targetP = q.active[0]
		}
	}
	return
}

// reconcile performs at most one state-changing step toward the converged
// arming described by computeTargetsLocked, per spec.md §4.D: "if the
// currently armed event differs from the target, disarm it first; the
// disarm callback re-drives reconciliation." Each call either disarms one
// wrong slot (and returns, letting onCancel's own reconcile call continue
// the convergence) or arms whichever empty slots now have a target.
func (q *Queue) reconcile() {
	q.mu.Lock()
	targetN, targetP := q.computeTargetsLocked()

	if q.armedNormal != nil && q.armedNormal != targetN {
		t := q.timerNormal
		q.mu.Unlock()
		if t != nil {
			t.Disarm()
		}
		return
	}
	if q.armedPowerup != nil && q.armedPowerup != targetP {
		t := q.timerPowerup
		q.mu.Unlock()
		if t != nil {
			t.Disarm()
		}
		return
	}

	var armN, armP *Event
	if q.armedNormal == nil && targetN != nil && q.timerNormal != nil {
		armN = targetN
	}
	if q.armedPowerup == nil && targetP != nil && q.timerPowerup != nil {
		armP = targetP
	}
	tn, tp := q.timerNormal, q.timerPowerup
	q.mu.Unlock()

	if armN != nil {
		if tn.Arm(armN.EffectiveTime(), q.onFire, q.onCancel, armN) {
			q.mu.Lock()
			q.armedNormal = armN
			q.mu.Unlock()
		}
	}
	if armP != nil {
		if tp.Arm(armP.EffectiveTime(), q.onFire, q.onCancel, armP) {
			q.mu.Lock()
			q.armedPowerup = armP
			q.mu.Unlock()
		}
	}
}

// onCancel is the Timer callback for a disarm not caused by firing: either
// Remove tore the event down (ev.removed, nothing to do beyond letting
// reconcile try the now-open slot) or reconcile itself disarmed a
// no-longer-target event, which was never removed from events_active in the
// first place (arming only records which Timer currently watches an event;
// it does not move the event out of events_active) and so needs no
// reinsertion here.
func (q *Queue) onCancel(token interface{}) {
	ev, _ := token.(*Event)
	if ev == nil {
		return
	}
	q.mu.Lock()
	if q.armedNormal == ev {
		q.armedNormal = nil
	}
	if q.armedPowerup == ev {
		q.armedPowerup = nil
	}
	ev.mu.Lock()
	removed := ev.removed
	ev.mu.Unlock()
	if !removed && !q.activeContainsLocked(ev) {
		q.insertSortedLocked(ev)
	}
	q.mu.Unlock()
	q.reconcile()
}

// onFire is the Timer callback for a successful fire: the Event moves from
// events_active to events_pending and its Action is run (spec.md §4.C
// Armed -> Firing -> Acknowledging), except for the PostponeDelayed miss
// policy, which instead advances base_time in whole days and returns the
// event directly to events_active without ever running the Action.
func (q *Queue) onFire(token interface{}, delayed bool) {
	ev, _ := token.(*Event)
	if ev == nil {
		return
	}
	q.mu.Lock()
	if q.armedNormal == ev {
		q.armedNormal = nil
	}
	if q.armedPowerup == ev {
		q.armedPowerup = nil
	}
	q.removeFromActiveLocked(ev)

	act := ev.Action()
	if delayed && act != nil && act.Flags().Has(action.PostponeDelayed) {
		missBy := q.nowFn().Sub(ev.EffectiveTime())
		if missBy > 24*time.Hour {
			days := int64(math.Ceil(missBy.Hours() / 24))
			ev.SetBaseTime(ev.BaseTime().Add(time.Duration(days) * 24 * time.Hour))
			q.insertSortedLocked(ev)
			q.mu.Unlock()
			q.markChanged()
			q.reconcile()
			return
		}
	}

	q.pending[ev.Cookie()] = ev
	q.mu.Unlock()
	q.markChanged()
	q.reconcile()
	q.runAction(ev, delayed)
}

// runAction calls the Action's Run on its own goroutine, since Run may
// suspend arbitrarily long waiting on a dialog response (spec.md §4.B). The
// acknowledge callback was already installed by wireAction when the Event
// was added. An Event without an Action is acknowledged NORMAL directly.
func (q *Queue) runAction(ev *Event, delayed bool) {
	act := ev.Action()
	if act == nil {
		q.onAcknowledge(ev, action.Normal)
		return
	}
	go act.Run(delayed)
}

// onAcknowledge is the Action's completion callback (spec.md §4.C
// Acknowledging): SNOOZE reschedules with the snooze step, a non-terminal
// recurrence reschedules its next iteration, and everything else
// terminates the Event. An acknowledge arriving after Remove already
// detached the Event is dropped.
func (q *Queue) onAcknowledge(ev *Event, outcome action.Outcome) {
	q.mu.Lock()
	if _, ok := q.pending[ev.Cookie()]; !ok {
		q.mu.Unlock()
		return
	}
	delete(q.pending, ev.Cookie())

	terminated := false
	switch {
	case outcome == action.Snooze:
		q.applySnoozeLocked(ev)
		q.insertSortedLocked(ev)
	case ev.Recurring() != nil:
		if q.applyRecurLocked(ev) {
			ev.queueRef.Clear()
			terminated = true
		} else {
			q.insertSortedLocked(ev)
		}
	default:
		ev.queueRef.Clear()
		terminated = true
	}
	q.mu.Unlock()

	if terminated {
		if act := ev.Action(); act != nil {
			act.Close()
		}
	}
	q.markChanged()
	q.reconcile()
}

// applySnoozeLocked implements spec.md §4.C's SNOOZE reschedule: bump the
// accumulator by the event's own snooze step (or the Queue default), then,
// if the effective time is still not in the future, pull it forward to
// exactly one step past now.
func (q *Queue) applySnoozeLocked(ev *Event) {
	step := ev.SnoozeStepMinutes()
	if step <= 0 {
		step = q.defaultSnoozeMinutes
	}
	ev.SetSnoozeAccumMinutes(ev.SnoozeAccumMinutes() + step)

	now := q.nowFn()
	if !ev.EffectiveTime().After(now) {
		missMinutes := int64(math.Ceil(now.Sub(ev.BaseTime()).Minutes()))
		ev.SetSnoozeAccumMinutes(missMinutes + step)
	}
}

// applyRecurLocked advances a RecurringEvent's Recurrence past "now",
// consuming count_remaining if bounded, and reports whether the
// recurrence has now terminated (spec.md §4.C / §3 RecurringEvent).
func (q *Queue) applyRecurLocked(ev *Event) (terminated bool) {
	rec := ev.Recurring()
	now := q.nowFn()

	elapsed := now.Sub(rec.RealTime).Minutes()
	cycles := int64(math.Floor(elapsed/float64(rec.IntervalMinutes))) + 1
	if cycles < 1 {
		cycles = 1
	}
	if rec.CountRemaining != -1 && cycles > rec.CountRemaining {
		return true
	}
	if rec.CountRemaining != -1 {
		rec.CountRemaining -= cycles
	}
	rec.RealTime = rec.RealTime.Add(time.Duration(cycles*rec.IntervalMinutes) * time.Minute)
	ev.SetSnoozeAccumMinutes(0)
	ev.SetBaseTime(rec.RealTime)
	return false
}

// Kind implements propbag.Persistable for the Queue's own scalar state
// (defaultSnoozeMinutes). The Event/Action tree is not part of Props:
// persist.Worker.Save appends it from Snapshot as an `events` value_array
// parameter under the same `queue` root element.
func (q *Queue) Kind() string { return "queue" }

// Props implements propbag.Persistable.
func (q *Queue) Props() []propbag.Prop {
	return []propbag.Prop{
		{Name: "default_snooze_minutes", Value: propbag.Int64(q.DefaultSnoozeGet())},
	}
}

// SetProp implements propbag.Persistable.
func (q *Queue) SetProp(name string, v propbag.Value) error {
	if name != "default_snooze_minutes" {
		return fmt.Errorf("queue: unknown property %q", name)
	}
	i, err := v.AsInt64()
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.defaultSnoozeMinutes = i
	q.mu.Unlock()
	return nil
}
