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
	"fmt"
	"time"

	"github.com/kernelpanic-labs/alarmd/internal/propbag"
)

// dialogAttemptTimeout and dialogMaxAttempts implement spec.md §5:
// "Dialog requests to the UI collaborator that receive no response within
// 5 minutes are re-sent, up to 3 attempts total; no alternative channel is
// tried."
const (
	dialogAttemptTimeout = 5 * time.Minute
	dialogMaxAttempts    = 3
)

// Dialog shows the user a message and maps their response to an Outcome.
// Bus and Exec embed it and define their own Kind and Run, which only run
// their side effect on a NORMAL outcome. See spec.md §4.B.
type Dialog struct {
	base

	// Title and Message are opaque dialog payload.
	Title   string `prop:"title"`
	Message string `prop:"message"`
}

// Kind returns the persisted type tag.
func (d *Dialog) Kind() string { return "dialog" }

// Props implements propbag.Persistable.
func (d *Dialog) Props() []propbag.Prop {
	return d.dialogProps()
}

// dialogProps returns the shared flags+title+message property list. Bus
// and Exec call this and append their own fields.
func (d *Dialog) dialogProps() []propbag.Prop {
	return []propbag.Prop{
		d.flagsProp(),
		{Name: "title", Value: propbag.String(d.Title)},
		{Name: "message", Value: propbag.String(d.Message)},
	}
}

// SetProp implements propbag.Persistable.
func (d *Dialog) SetProp(name string, v propbag.Value) error {
	if ok, err := d.trySetDialogProp(name, v); ok {
		return err
	}
	return fmt.Errorf("action/dialog: unknown property %q", name)
}

// trySetDialogProp applies a shared flags/title/message property. Bus and
// Exec call this before handling their own fields.
func (d *Dialog) trySetDialogProp(name string, v propbag.Value) (bool, error) {
	if ok, err := d.applyFlagsProp(name, v); ok {
		return true, err
	}
	switch name {
	case "title":
		s, err := v.AsString()
		if err != nil {
			return true, err
		}
		d.Title = s
		return true, nil
	case "message":
		s, err := v.AsString()
		if err != nil {
			return true, err
		}
		d.Message = s
		return true, nil
	}
	return false, nil
}

// Run implements the full spec.md §4.B decision tree for a plain dialog
// action (no Bus/Exec side effect).
func (d *Dialog) Run(delayed bool) {
	outcome, _ := d.evaluate(delayed)
	d.acknowledge(outcome)
}

// evaluate runs the shared miss-policy/connectivity/dialog decision tree and
// returns the outcome to acknowledge plus whether a variant-specific side
// effect (Bus call, Exec spawn) should run. runVariant is only ever true
// when outcome == Normal, per spec.md: "the eventual acknowledge back to the
// Event is NORMAL regardless of external call outcome".
func (d *Dialog) evaluate(delayed bool) (Outcome, bool) {
	flags := d.Flags()

	// Miss policy: delayed fire without RUN_DELAYED acknowledges NORMAL
	// immediately and never proceeds to a variant-specific step.
	if delayed && !flags.Has(RunDelayed) {
		return Normal, false
	}

	if flags.Has(Connected) && d.init != nil && d.init.Connectivity != nil {
		if !d.init.Connectivity.Online() {
			ch, cancel := d.init.Connectivity.Subscribe()
			<-ch
			cancel()
		}
	}

	if flags.Has(NoDialog) {
		// Proceeds directly to the variant-specific step.
		return Normal, true
	}

	hook := d.chooseHook(flags)
	if hook == nil {
		// No UI collaborator wired: treat like NO_DIALOG rather than
		// block forever.
		return Normal, true
	}

	resp := d.request(hook)
	if resp == ResponseSnooze {
		return Snooze, false
	}
	return Normal, true
}

// chooseHook implements the ACTDEAD routing supplement from
// original_source/actiondialog.c: when the device is acting-dead and
// ACTDEAD is set, the dialog request goes through the power-up UI path.
func (d *Dialog) chooseHook(flags Flags) DialogHook {
	if d.init == nil {
		return nil
	}
	if flags.Has(ActDead) && d.init.ActingDead != nil && d.init.ActingDead() {
		if d.init.PowerupUI != nil {
			return d.init.PowerupUI
		}
	}
	return d.init.UI
}

// request drives the 5-minute/3-attempt resend policy (spec.md §5) and
// maps {accept, timeout} -> NORMAL, {snooze} -> SNOOZE (spec.md §4.B).
func (d *Dialog) request(hook DialogHook) DialogResponse {
	req := DialogRequest{
		Title:       d.Title,
		Message:     d.Message,
		AllowSnooze: !d.Flags().Has(NoSnooze),
	}
	for attempt := 1; attempt <= dialogMaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), dialogAttemptTimeout)
		resp, err := hook.Request(ctx, req)
		cancel()
		if err == nil {
			if resp == ResponseTimeout {
				// This attempt's window lapsed with no answer;
				// resend unless we're out of attempts.
				if attempt < dialogMaxAttempts {
					continue
				}
				return ResponseAccept // miss policy: treat as NORMAL
			}
			return resp
		}
		d.logf("dialog request failed (attempt %d/%d): %v", attempt, dialogMaxAttempts, err)
		if d.init != nil && d.init.JournalFailures != nil {
			d.init.JournalFailures("dialog request failed: " + err.Error())
		}
	}
	return ResponseAccept
}
