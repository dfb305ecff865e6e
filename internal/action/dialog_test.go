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

import (
	"context"
	"testing"
)

type fakeDialogHook struct {
	calls int
	resp  DialogResponse
	err   error
}

func (f *fakeDialogHook) Request(ctx context.Context, req DialogRequest) (DialogResponse, error) {
	f.calls++
	return f.resp, f.err
}

// timeoutThenAcceptHook answers ResponseTimeout for its first N-1 calls,
// then resp on the Nth, exercising the 5-minute/3-attempt resend policy
// without actually waiting 5 minutes: request() only inspects the returned
// DialogResponse, never the context deadline itself.
type timeoutThenAcceptHook struct {
	calls      int
	timeoutFor int
	resp       DialogResponse
}

func (h *timeoutThenAcceptHook) Request(ctx context.Context, req DialogRequest) (DialogResponse, error) {
	h.calls++
	if h.calls <= h.timeoutFor {
		return ResponseTimeout, nil
	}
	return h.resp, nil
}

type fakeConnectivity struct {
	online bool
	ch     chan struct{}
}

func (f *fakeConnectivity) Online() bool { return f.online }
func (f *fakeConnectivity) Subscribe() (<-chan struct{}, func()) {
	return f.ch, func() {}
}

// A missed fire without RUN_DELAYED acknowledges NORMAL immediately and
// never contacts the UI hook.
func TestDialogMissPolicyWithoutRunDelayed(t *testing.T) {
	hook := &fakeDialogHook{resp: ResponseAccept}
	d := &Dialog{}
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{Acknowledge: func(o Outcome) { outcome <- o }, UI: hook})
	d.Run(true) // delayed, no RunDelayed flag set
	if got := <-outcome; got != Normal {
		t.Fatalf("outcome = %v, want Normal", got)
	}
	if hook.calls != 0 {
		t.Fatalf("expected the UI hook never called, got %d calls", hook.calls)
	}
}

// A missed fire WITH RUN_DELAYED proceeds to the normal dialog flow.
func TestDialogMissPolicyWithRunDelayed(t *testing.T) {
	hook := &fakeDialogHook{resp: ResponseAccept}
	d := &Dialog{}
	d.SetFlags(RunDelayed)
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{Acknowledge: func(o Outcome) { outcome <- o }, UI: hook})
	d.Run(true)
	if got := <-outcome; got != Normal {
		t.Fatalf("outcome = %v, want Normal", got)
	}
	if hook.calls != 1 {
		t.Fatalf("expected exactly one UI hook call, got %d", hook.calls)
	}
}

// NO_DIALOG suppresses the UI request entirely.
func TestDialogNoDialogSuppressesRequest(t *testing.T) {
	hook := &fakeDialogHook{resp: ResponseAccept}
	d := &Dialog{}
	d.SetFlags(NoDialog)
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{Acknowledge: func(o Outcome) { outcome <- o }, UI: hook})
	d.Run(false)
	if got := <-outcome; got != Normal {
		t.Fatalf("outcome = %v, want Normal", got)
	}
	if hook.calls != 0 {
		t.Fatalf("expected the UI hook never called under NO_DIALOG, got %d calls", hook.calls)
	}
}

// A SNOOZE response maps to the Snooze outcome.
func TestDialogSnoozeResponse(t *testing.T) {
	hook := &fakeDialogHook{resp: ResponseSnooze}
	d := &Dialog{}
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{Acknowledge: func(o Outcome) { outcome <- o }, UI: hook})
	d.Run(false)
	if got := <-outcome; got != Snooze {
		t.Fatalf("outcome = %v, want Snooze", got)
	}
}

// ACTDEAD routes the request through PowerupUI when acting-dead is true.
func TestDialogActDeadRoutesToPowerupUI(t *testing.T) {
	normalHook := &fakeDialogHook{resp: ResponseAccept}
	powerupHook := &fakeDialogHook{resp: ResponseAccept}
	d := &Dialog{}
	d.SetFlags(ActDead)
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{
		Acknowledge: func(o Outcome) { outcome <- o },
		UI:          normalHook,
		PowerupUI:   powerupHook,
		ActingDead:  func() bool { return true },
	})
	d.Run(false)
	<-outcome
	if normalHook.calls != 0 {
		t.Fatalf("expected the normal UI hook never called, got %d calls", normalHook.calls)
	}
	if powerupHook.calls != 1 {
		t.Fatalf("expected exactly one PowerupUI call, got %d", powerupHook.calls)
	}
}

// ACTDEAD with acting-dead false routes through the normal UI.
func TestDialogActDeadFalseUsesNormalUI(t *testing.T) {
	normalHook := &fakeDialogHook{resp: ResponseAccept}
	powerupHook := &fakeDialogHook{resp: ResponseAccept}
	d := &Dialog{}
	d.SetFlags(ActDead)
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{
		Acknowledge: func(o Outcome) { outcome <- o },
		UI:          normalHook,
		PowerupUI:   powerupHook,
		ActingDead:  func() bool { return false },
	})
	d.Run(false)
	<-outcome
	if normalHook.calls != 1 {
		t.Fatalf("expected exactly one normal UI call, got %d", normalHook.calls)
	}
	if powerupHook.calls != 0 {
		t.Fatalf("expected PowerupUI never called, got %d calls", powerupHook.calls)
	}
}

// CONNECTED blocks the request until the connectivity hook reports online.
func TestDialogConnectedWaitsForConnectivity(t *testing.T) {
	hook := &fakeDialogHook{resp: ResponseAccept}
	conn := &fakeConnectivity{online: false, ch: make(chan struct{}, 1)}
	d := &Dialog{}
	d.SetFlags(Connected)
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{Acknowledge: func(o Outcome) { outcome <- o }, UI: hook, Connectivity: conn})

	done := make(chan struct{})
	go func() {
		d.Run(false)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Run returned before connectivity came online")
	default:
	}

	conn.ch <- struct{}{}
	<-done
	if got := <-outcome; got != Normal {
		t.Fatalf("outcome = %v, want Normal", got)
	}
	if hook.calls != 1 {
		t.Fatalf("expected exactly one UI hook call after connectivity, got %d", hook.calls)
	}
}

// A timeout on the first attempt is resent, and a later attempt's real
// answer wins.
func TestDialogResendAfterTimeoutThenAnswered(t *testing.T) {
	hook := &timeoutThenAcceptHook{timeoutFor: 1, resp: ResponseSnooze}
	d := &Dialog{}
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{Acknowledge: func(o Outcome) { outcome <- o }, UI: hook})
	d.Run(false)
	if got := <-outcome; got != Snooze {
		t.Fatalf("outcome = %v, want Snooze", got)
	}
	if hook.calls != 2 {
		t.Fatalf("expected 2 attempts (1 timeout + 1 answered), got %d", hook.calls)
	}
}

// Exhausting all 3 attempts with no answer falls back to NORMAL.
func TestDialogExhaustsAttemptsFallsBackToNormal(t *testing.T) {
	hook := &timeoutThenAcceptHook{timeoutFor: 10} // always times out
	d := &Dialog{}
	outcome := make(chan Outcome, 1)
	d.SetInit(&Init{Acknowledge: func(o Outcome) { outcome <- o }, UI: hook})
	d.Run(false)
	if got := <-outcome; got != Normal {
		t.Fatalf("outcome = %v, want Normal after exhausting attempts", got)
	}
	if hook.calls != dialogMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", dialogMaxAttempts, hook.calls)
	}
}
