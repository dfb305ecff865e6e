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

// Package action implements the Action state machine of spec.md §4.B: a
// tagged variant set {Null, Dialog, Bus, Exec} sharing a common contract
// (Run/NeedsPowerUp/Flags) the way engine.Res's registered-kind pattern in
// the teacher (engine/resources.go) lets the Queue instantiate the right
// concrete type by name, here driven by the persisted document's object
// type tags instead of YAML.
package action

import (
	"fmt"
	"log"
	"sync"

	"github.com/kernelpanic-labs/alarmd/internal/propbag"
	"github.com/kernelpanic-labs/alarmd/internal/statusbar"
	"github.com/kernelpanic-labs/alarmd/internal/weakref"
)

// Outcome is what an Action concludes with.
type Outcome int

const (
	// Normal is the default, "nothing special" acknowledgement.
	Normal Outcome = iota
	// Snooze asks the Event to postpone by a snooze step.
	Snooze
)

func (o Outcome) String() string {
	if o == Snooze {
		return "snooze"
	}
	return "normal"
}

// EventHandle is the minimal view of an Event an Action needs for its weak
// back-reference (spec.md §3 event_ref, invariant 8). Event implements this
// structurally; action never imports the queue package, so there is no
// import cycle.
type EventHandle interface {
	Cookie() int32
}

// Init carries everything the core injects into an Action at construction
// time: the external collaborators (dialog/bus/connectivity hooks), the
// acknowledge callback, and a namespaced logger. Mirrors engine.Init's role
// in the teacher (engine/resources.go).
type Init struct {
	// Logf is a namespaced logging facility, analogous to engine.Init.Logf.
	Logf func(format string, v ...interface{})

	// Acknowledge must be called exactly once by the Action's Run.
	Acknowledge func(Outcome)

	// EventRef is the weak back-reference to the owning Event.
	EventRef *weakref.Ref[EventHandle]

	// Connectivity gates CONNECTED actions. May be nil if the flag is
	// never used.
	Connectivity ConnectivityHook

	// UI is the normal dialog collaborator.
	UI DialogHook

	// PowerupUI is the dialog collaborator used when ActingDead() is true
	// and ACTDEAD is set.
	PowerupUI DialogHook

	// ActingDead reports whether the device is in acting-dead mode. May
	// be nil, treated as always false.
	ActingDead ActingDeadProbe

	// Bus performs the Bus variant's method call.
	Bus BusHook

	// Statusbar is the process-wide reference-counted icon handle.
	Statusbar *statusbar.Counter

	// JournalFailures logs external-action failures (bus/exec/dialog) to
	// the systemd journal when available; see internal/journallog.
	JournalFailures func(msg string)
}

// Action is the common contract every variant satisfies. It embeds
// propbag.Persistable so persist.Load/Save can walk any Action without a
// type switch: Kind() doubles as propbag's type tag.
type Action interface {
	propbag.Persistable

	// Flags returns the bitset carried by this Action.
	Flags() Flags

	// NeedsPowerUp returns whether the Boot flag is set.
	NeedsPowerUp() bool

	// SetFlags installs the flag bitset. Called by persist.Load (and by
	// callers constructing a fresh Action) before SetInit/Run.
	SetFlags(Flags)

	// SetInit wires the external collaborators. Called once before Run.
	SetInit(*Init)

	// Run initiates the action. May suspend arbitrarily long. Must call
	// init.Acknowledge exactly once when complete.
	Run(delayed bool)

	// Close releases any side effects acquired at construction (e.g. the
	// statusbar reference).
	Close()
}

// base is embedded by every variant; it holds the flags and the shared
// show-icon bookkeeping (spec.md §4.B SHOW_ICON).
type base struct {
	mu        sync.Mutex
	flags     Flags
	init      *Init
	iconShown bool
}

func (b *base) Flags() Flags       { return b.flags }
func (b *base) NeedsPowerUp() bool { return b.flags.Has(Boot) }

func (b *base) SetFlags(f Flags) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags = f
}

func (b *base) SetInit(init *Init) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init = init
	if b.flags.Has(ShowIcon) && init.Statusbar != nil && !b.iconShown {
		init.Statusbar.Show()
		b.iconShown = true
	}
}

func (b *base) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.iconShown && b.init != nil && b.init.Statusbar != nil {
		b.init.Statusbar.Hide()
		b.iconShown = false
	}
}

// flagsProp and applyFlagsProp are shared by every variant's Props/SetProp:
// the "flags" property is the one field every Action kind carries.
func (b *base) flagsProp() propbag.Prop {
	return propbag.Prop{Name: "flags", Value: propbag.Int64(int64(b.Flags()))}
}

func (b *base) applyFlagsProp(name string, v propbag.Value) (bool, error) {
	if name != "flags" {
		return false, nil
	}
	i, err := v.AsInt64()
	if err != nil {
		return true, err
	}
	b.SetFlags(Flags(i))
	return true, nil
}

func (b *base) logf(format string, v ...interface{}) {
	if b.init != nil && b.init.Logf != nil {
		b.init.Logf(format, v...)
		return
	}
	log.Printf("Action: "+format, v...)
}

func (b *base) acknowledge(o Outcome) {
	if b.init == nil || b.init.Acknowledge == nil {
		return
	}
	b.init.Acknowledge(o)
}

// registeredActions mirrors engine.RegisterResource/NewResource in the
// teacher: a name->constructor table so persist.Load can instantiate the
// right variant from its type tag without a type switch living in the
// persistence package.
var (
	registryMu sync.Mutex
	registry   = map[string]func() Action{}
)

// Register adds a new Action kind. Panics on duplicate/empty kind, exactly
// like engine.RegisterResource, since this only ever runs from package
// init().
func Register(kind string, fn func() Action) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if kind == "" {
		panic("action: cannot register an empty kind")
	}
	if _, ok := registry[kind]; ok {
		panic(fmt.Sprintf("action: kind %q already registered", kind))
	}
	registry[kind] = fn
}

// New constructs a zero-valued Action of the given kind.
func New(kind string) (Action, error) {
	registryMu.Lock()
	fn, ok := registry[kind]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("action: no kind %q registered", kind)
	}
	return fn(), nil
}

func init() {
	Register("null", func() Action { return &Null{} })
	Register("dialog", func() Action { return &Dialog{} })
	Register("bus", func() Action { return &Bus{} })
	Register("exec", func() Action { return &Exec{} })
}
