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

package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/kernelpanic-labs/alarmd/internal/action"
	"github.com/kernelpanic-labs/alarmd/internal/propbag"
	"github.com/kernelpanic-labs/alarmd/internal/queue"
)

// fakeTimer is a synchronous, test-only Timer: Arm/Disarm only record state,
// and Fire/Cancel are driven explicitly by the test rather than by a real
// clock.
type fakeTimer struct {
	mu       sync.Mutex
	armed    bool
	at       time.Time
	onFire   func(token interface{}, delayed bool)
	onCancel func(token interface{})
	token    interface{}
	powerup  bool
}

func newFakeTimer(powerup bool) *fakeTimer { return &fakeTimer{powerup: powerup} }

func (f *fakeTimer) Arm(at time.Time, onFire func(interface{}, bool), onCancel func(interface{}), token interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	f.at = at
	f.onFire = onFire
	f.onCancel = onCancel
	f.token = token
	return true
}

func (f *fakeTimer) Disarm() {
	f.mu.Lock()
	if !f.armed {
		f.mu.Unlock()
		return
	}
	f.armed = false
	onCancel, token := f.onCancel, f.token
	f.mu.Unlock()
	if onCancel != nil {
		onCancel(token)
	}
}

func (f *fakeTimer) TimeChanged() {}

func (f *fakeTimer) IsPowerupCapable() bool { return f.powerup }

// Fire simulates the armed instant elapsing.
func (f *fakeTimer) Fire(delayed bool) {
	f.mu.Lock()
	if !f.armed {
		f.mu.Unlock()
		return
	}
	f.armed = false
	onFire, token := f.onFire, f.token
	f.mu.Unlock()
	if onFire != nil {
		onFire(token, delayed)
	}
}

func (f *fakeTimer) isArmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

func (f *fakeTimer) armedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at
}

// testAction is a controllable Action double: Run acknowledges with a
// preset outcome (swappable between Run calls for the snooze-three-times
// scenario) and signals completion on done so the test can wait for the
// asynchronous Queue.runAction goroutine before inspecting Queue state.
type testAction struct {
	mu          sync.Mutex
	flags       action.Flags
	init        *action.Init
	kind        string
	outcome     action.Outcome
	runCount    int
	lastDelayed bool
	closed      bool
	done        chan struct{}
}

func newTestAction(kind string, outcome action.Outcome) *testAction {
	return &testAction{kind: kind, outcome: outcome, done: make(chan struct{}, 8)}
}

func (t *testAction) Kind() string                                    { return t.kind }
func (t *testAction) Props() []propbag.Prop                           { return nil }
func (t *testAction) SetProp(name string, v propbag.Value) error      { return nil }
func (t *testAction) Flags() action.Flags                             { t.mu.Lock(); defer t.mu.Unlock(); return t.flags }
func (t *testAction) NeedsPowerUp() bool                              { return t.Flags().Has(action.Boot) }
func (t *testAction) SetFlags(f action.Flags)                         { t.mu.Lock(); t.flags = f; t.mu.Unlock() }
func (t *testAction) SetInit(init *action.Init)                       { t.mu.Lock(); t.init = init; t.mu.Unlock() }

func (t *testAction) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *testAction) setOutcome(o action.Outcome) {
	t.mu.Lock()
	t.outcome = o
	t.mu.Unlock()
}

func (t *testAction) Run(delayed bool) {
	t.mu.Lock()
	t.runCount++
	t.lastDelayed = delayed
	init := t.init
	outcome := t.outcome
	t.mu.Unlock()
	if init != nil && init.Acknowledge != nil {
		init.Acknowledge(outcome)
	}
	t.done <- struct{}{}
}

func (t *testAction) waitRun(tb testing.TB) {
	tb.Helper()
	select {
	case <-t.done:
	case <-time.After(2 * time.Second):
		tb.Fatal("action never ran")
	}
}

func (t *testAction) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *testAction) runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runCount
}

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// S1 — basic one-shot: fire, acknowledge(NORMAL), queue empty.
func TestScenarioS1BasicOneShot(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.New(10)
	q.SetClock(clockAt(base))

	tn := newFakeTimer(false)
	q.TimerSet(queue.TimerNormal, tn)

	act := newTestAction("null", action.Normal)
	ev := queue.NewEvent(base.Add(10*time.Second), 0, act)
	cookie := q.Add(ev)
	if cookie == 0 {
		t.Fatal("expected non-zero cookie")
	}
	if !tn.isArmed() {
		t.Fatal("expected timer_normal armed after Add")
	}

	q.SetClock(clockAt(base.Add(10 * time.Second)))
	tn.Fire(false)
	act.waitRun(t)

	if _, ok := q.Get(cookie); ok {
		t.Fatal("expected event removed from queue after NORMAL acknowledge")
	}
	if act.runs() != 1 {
		t.Fatalf("expected exactly one Run, got %d", act.runs())
	}
	if !act.isClosed() {
		t.Fatal("expected Action.Close on termination")
	}
}

// S2 — snooze accumulation: three SNOOZE outcomes produce effective times
// base+5, base+10, base+15 minutes, measured from the original base_time
// (no drift).
func TestScenarioS2SnoozeAccumulation(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.New(10)
	now := base
	q.SetClock(func() time.Time { return now })

	tn := newFakeTimer(false)
	q.TimerSet(queue.TimerNormal, tn)

	act := newTestAction("dialog", action.Snooze)
	ev := queue.NewEvent(base.Add(time.Second), 5, act)
	cookie := q.Add(ev)

	wantSteps := []int64{5, 10, 15}
	for _, want := range wantSteps {
		now = ev.EffectiveTime().Add(time.Second) // move clock past current effective time
		tn.Fire(false)
		act.waitRun(t)

		got, ok := q.Get(cookie)
		if !ok {
			t.Fatalf("event vanished after snooze step %d", want)
		}
		if got.SnoozeAccumMinutes() != want {
			t.Fatalf("snooze_accum_minutes = %d, want %d", got.SnoozeAccumMinutes(), want)
		}
		wantEffective := base.Add(time.Second).Add(time.Duration(want) * time.Minute)
		if !got.EffectiveTime().Equal(wantEffective) {
			t.Fatalf("effective_time = %v, want %v (drift)", got.EffectiveTime(), wantEffective)
		}
	}
}

// S3 — miss by 25h with POSTPONE_DELAYED: base_time advances by 2 days,
// action is never invoked.
func TestScenarioS3MissPostponeDelayed(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	missedBy := 25 * time.Hour
	base := now.Add(-missedBy)

	q := queue.New(10)
	q.SetClock(clockAt(now))

	tn := newFakeTimer(false)
	q.TimerSet(queue.TimerNormal, tn)

	act := newTestAction("null", action.Normal)
	act.SetFlags(action.PostponeDelayed)
	ev := queue.NewEvent(base, 0, act)
	cookie := q.Add(ev)
	if !tn.isArmed() {
		t.Fatal("expected timer_normal armed")
	}

	tn.Fire(true) // delayed=true: the arming instant was already in the past

	if act.runs() != 0 {
		t.Fatalf("expected action NOT invoked, got %d runs", act.runs())
	}
	got, ok := q.Get(cookie)
	if !ok {
		t.Fatal("expected event to remain in the queue")
	}
	wantBase := base.Add(2 * 24 * time.Hour)
	if !got.BaseTime().Equal(wantBase) {
		t.Fatalf("base_time = %v, want %v", got.BaseTime(), wantBase)
	}
}

// S4 — miss with RUN_DELAYED only: action runs with delayed=true, then the
// event terminates.
func TestScenarioS4MissRunDelayed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	base := now.Add(-5 * time.Minute)

	q := queue.New(10)
	q.SetClock(clockAt(now))

	tn := newFakeTimer(false)
	q.TimerSet(queue.TimerNormal, tn)

	act := newTestAction("null", action.Normal)
	act.SetFlags(action.RunDelayed)
	ev := queue.NewEvent(base, 0, act)
	cookie := q.Add(ev)

	tn.Fire(true)
	act.waitRun(t)

	if act.runs() != 1 {
		t.Fatalf("expected exactly one Run, got %d", act.runs())
	}
	if !act.lastDelayed {
		t.Fatal("expected Run(delayed=true)")
	}
	if _, ok := q.Get(cookie); ok {
		t.Fatal("expected event terminated after RUN_DELAYED fire")
	}
}

// S5 — recurring count: interval=60min, recur_count_remaining=2 yields
// three fires total, then the event terminates.
func TestScenarioS5RecurringCount(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	q := queue.New(10)
	q.SetClock(func() time.Time { return now })

	tn := newFakeTimer(false)
	q.TimerSet(queue.TimerNormal, tn)

	act := newTestAction("null", action.Normal)
	ev := queue.NewRecurringEvent(base.Add(time.Second), 0, act, 60, 2)
	cookie := q.Add(ev)

	fireTimes := []time.Time{
		base.Add(time.Second),
		base.Add(time.Second).Add(60 * time.Minute),
		base.Add(time.Second).Add(120 * time.Minute),
	}
	for i, ft := range fireTimes {
		now = ft
		if !tn.isArmed() {
			t.Fatalf("fire %d: expected timer armed", i+1)
		}
		tn.Fire(false)
		act.waitRun(t)
	}

	if act.runs() != 3 {
		t.Fatalf("expected 3 fires total, got %d", act.runs())
	}
	if _, ok := q.Get(cookie); ok {
		t.Fatal("expected queue empty after recurrence exhausted")
	}
	if tn.isArmed() {
		t.Fatal("expected timer_normal disarmed, no fourth fire scheduled")
	}
}

// S6 — power-up preemption: a later BOOT event can be preempted by an
// earlier one on timer_powerup without disturbing timer_normal.
func TestScenarioS6PowerupPreemption(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.New(10)
	q.SetClock(clockAt(base))

	tn := newFakeTimer(false)
	tp := newFakeTimer(true)
	q.TimerSet(queue.TimerNormal, tn)
	q.TimerSet(queue.TimerPowerup, tp)

	e1Act := newTestAction("null", action.Normal)
	e2Act := newTestAction("null", action.Normal)
	e2Act.SetFlags(action.Boot)

	e1 := queue.NewEvent(base.Add(10*time.Minute), 0, e1Act)
	q.Add(e1)
	e2 := queue.NewEvent(base.Add(20*time.Minute), 0, e2Act)
	q.Add(e2)

	if !tn.isArmed() || !tn.armedAt().Equal(e1.EffectiveTime()) {
		t.Fatal("expected E1 armed on timer_normal")
	}
	if !tp.isArmed() || !tp.armedAt().Equal(e2.EffectiveTime()) {
		t.Fatal("expected E2 armed on timer_powerup")
	}

	e3Act := newTestAction("null", action.Normal)
	e3Act.SetFlags(action.Boot)
	e3 := queue.NewEvent(base.Add(5*time.Minute), 0, e3Act)
	q.Add(e3)

	if !tp.isArmed() || !tp.armedAt().Equal(e3.EffectiveTime()) {
		t.Fatal("expected E3 to preempt E2 on timer_powerup")
	}
	if !tn.isArmed() || !tn.armedAt().Equal(e1.EffectiveTime()) {
		t.Fatal("expected E1's arming on timer_normal to be unaffected")
	}

	// A preempted-but-not-fired event (E2) must not be duplicated in
	// events_active by the disarm/onCancel round trip.
	if got := len(q.Snapshot()); got != 3 {
		t.Fatalf("expected 3 events after preemption, got %d (duplicate in events_active?)", got)
	}
	hits := q.Query(base, base.Add(time.Hour), 0, 0)
	seen := map[int32]int{}
	for _, c := range hits {
		seen[c]++
	}
	for cookie, n := range seen {
		if n != 1 {
			t.Fatalf("cookie %d appears %d times in query results", cookie, n)
		}
	}
}

// S7 — clock jump backward with BACK_RESCHEDULE: after a 7-day backward
// jump, the recurrence anchor is pulled back so the next fire still lands
// within one interval of "now" rather than years in the future.
func TestScenarioS7ClockJumpBackward(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	q := queue.New(10)
	now := base
	q.SetClock(func() time.Time { return now })

	tn := newFakeTimer(false)
	q.TimerSet(queue.TimerNormal, tn)

	act := newTestAction("null", action.Normal)
	act.SetFlags(action.BackReschedule)
	ev := queue.NewRecurringEvent(base, 0, act, 24*60, -1)
	q.Add(ev)

	now = base.Add(-7 * 24 * time.Hour)
	q.TimeChanged()

	rec := ev.Recurring()
	if rec == nil {
		t.Fatal("expected Recurrence to survive TimeChanged")
	}
	if rec.RealTime.Sub(now) > 24*time.Hour {
		t.Fatalf("real_time %v is more than 24h past the new now %v", rec.RealTime, now)
	}
	if ev.EffectiveTime().Sub(now).Abs() != rec.RealTime.Sub(now).Abs() {
		// effective_time tracks base_time when snooze_accum is zero.
		t.Fatalf("effective_time %v did not move with real_time %v", ev.EffectiveTime(), rec.RealTime)
	}
}

// S8 — query: five events at now+{1..5}min, two flagged BOOT; querying
// [now, now+10min] with mask=vals=BOOT returns exactly those two cookies in
// ascending time order.
func TestScenarioS8Query(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.New(10)
	q.SetClock(clockAt(base))

	var bootCookies []int32
	for i := 1; i <= 5; i++ {
		act := newTestAction("null", action.Normal)
		if i == 2 || i == 4 {
			act.SetFlags(action.Boot)
		}
		ev := queue.NewEvent(base.Add(time.Duration(i)*time.Minute), 0, act)
		cookie := q.Add(ev)
		if i == 2 || i == 4 {
			bootCookies = append(bootCookies, cookie)
		}
	}

	got := q.Query(base, base.Add(10*time.Minute), action.Boot, action.Boot)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d: %v", len(got), got)
	}
	if got[0] != bootCookies[0] || got[1] != bootCookies[1] {
		t.Fatalf("query results %v not in ascending-time order matching %v", got, bootCookies)
	}
}

// Invariant 1: cookies are unique and non-zero, and an event lives in
// exactly one of active/pending at a time.
func TestInvariantUniqueCookies(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.New(10)
	q.SetClock(clockAt(base))

	seen := map[int32]bool{}
	for i := 0; i < 20; i++ {
		act := newTestAction("null", action.Normal)
		ev := queue.NewEvent(base.Add(time.Duration(i)*time.Second), 0, act)
		cookie := q.Add(ev)
		if cookie == 0 {
			t.Fatalf("event %d got zero cookie", i)
		}
		if seen[cookie] {
			t.Fatalf("duplicate cookie %d", cookie)
		}
		seen[cookie] = true
	}
	if len(q.Snapshot()) != 20 {
		t.Fatalf("expected 20 events in snapshot, got %d", len(q.Snapshot()))
	}
}

// Invariant 2: at most one event is armed per Timer after any mutation.
func TestInvariantAtMostOneArmedPerTimer(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.New(10)
	q.SetClock(clockAt(base))

	tn := newFakeTimer(false)
	q.TimerSet(queue.TimerNormal, tn)

	for i := 1; i <= 5; i++ {
		act := newTestAction("null", action.Normal)
		ev := queue.NewEvent(base.Add(time.Duration(i)*time.Minute), 0, act)
		q.Add(ev)
		if !tn.isArmed() {
			t.Fatalf("after adding event %d, expected timer_normal armed", i)
		}
		if !tn.armedAt().Equal(base.Add(time.Minute)) {
			t.Fatalf("after adding event %d, expected earliest event still armed, got %v", i, tn.armedAt())
		}
	}
}
