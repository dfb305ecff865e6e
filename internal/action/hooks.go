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

import "context"

// DialogResponse is the user's answer to a dialog request.
type DialogResponse int

const (
	// ResponseAccept means the user accepted/dismissed the dialog normally.
	ResponseAccept DialogResponse = iota
	// ResponseTimeout means the dialog request timed out with no answer.
	ResponseTimeout
	// ResponseSnooze means the user asked to snooze.
	ResponseSnooze
)

// DialogRequest describes what to show the user. Title/Message are opaque
// payload to the core; only AllowSnooze affects control flow.
type DialogRequest struct {
	Title       string
	Message     string
	AllowSnooze bool
}

// DialogHook is the narrow interface onto the external UI collaborator.
// Implementations own their own retry/timeout policy internally is NOT
// assumed here: the core (see dialog.go) drives the 5-minute/3-attempt
// policy from spec.md itself, calling Request once per attempt.
type DialogHook interface {
	// Request enqueues a single dialog request and blocks until the user
	// responds or ctx is done.
	Request(ctx context.Context, req DialogRequest) (DialogResponse, error)
}

// ConnectivityHook reports and signals network connectivity.
type ConnectivityHook interface {
	// Online reports current connectivity.
	Online() bool
	// Subscribe returns a channel that is closed (or receives) the next
	// time connectivity comes online, plus a cancel func to release it.
	Subscribe() (ch <-chan struct{}, cancel func())
}

// BusHook performs the actual bus method invocation for the Bus variant.
type BusHook interface {
	Call(ctx context.Context, target BusTarget) error
}

// BusTarget names the bus call the Bus variant should make. Opaque payload
// to the core; the default implementation (internal/dbushook) connects to
// the session bus when Session is true and to the system bus otherwise.
// The System and Activation flags are not consulted.
type BusTarget struct {
	Session   bool
	Service   string
	Path      string
	Interface string
	Method    string
	Args      []interface{}
}

// ActingDeadProbe reports whether the device is currently in acting-dead
// mode. Supplements spec.md from original_source/actiondialog.c's ACTDEAD
// branch.
type ActingDeadProbe func() bool
