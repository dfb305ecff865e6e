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

	"github.com/kernelpanic-labs/alarmd/internal/propbag"
)

// Bus extends Dialog (spec.md §4.B): the dialog, if any, runs first; only on
// a NORMAL internal outcome does it actually emit the bus call. Grounded on
// engine/resources/cron.go and svc.go's godbus/dbus/v5 usage in the teacher.
type Bus struct {
	Dialog

	Session   bool          `prop:"session"`
	Service   string        `prop:"service"`
	Path      string        `prop:"path"`
	Interface string        `prop:"interface"`
	Method    string        `prop:"method"`
	Args      []interface{} `prop:"args"`
}

// Kind returns the persisted type tag.
func (b *Bus) Kind() string { return "bus" }

// Run shows the dialog (unless suppressed), then fires the bus call on a
// NORMAL internal outcome. The bus call is fire-and-forget at core
// granularity: failures are logged, never retried, and never change the
// acknowledgement sent back to the Event (spec.md §4.B).
func (b *Bus) Run(delayed bool) {
	outcome, runVariant := b.evaluate(delayed)
	if runVariant {
		go b.callBus()
	}
	b.acknowledge(outcome)
}

// Props implements propbag.Persistable.
func (b *Bus) Props() []propbag.Prop {
	args := make([]propbag.Value, len(b.Args))
	for i, a := range b.Args {
		args[i] = propbag.String(fmt.Sprint(a))
	}
	return append(b.dialogProps(),
		propbag.Prop{Name: "session", Value: propbag.Bool(b.Session)},
		propbag.Prop{Name: "service", Value: propbag.String(b.Service)},
		propbag.Prop{Name: "path", Value: propbag.String(b.Path)},
		propbag.Prop{Name: "interface", Value: propbag.String(b.Interface)},
		propbag.Prop{Name: "method", Value: propbag.String(b.Method)},
		propbag.Prop{Name: "args", Value: propbag.Array(args)},
	)
}

// SetProp implements propbag.Persistable.
func (b *Bus) SetProp(name string, v propbag.Value) error {
	if ok, err := b.trySetDialogProp(name, v); ok {
		return err
	}
	switch name {
	case "session":
		val, err := v.AsBool()
		if err != nil {
			return err
		}
		b.Session = val
		return nil
	case "service":
		val, err := v.AsString()
		if err != nil {
			return err
		}
		b.Service = val
		return nil
	case "path":
		val, err := v.AsString()
		if err != nil {
			return err
		}
		b.Path = val
		return nil
	case "interface":
		val, err := v.AsString()
		if err != nil {
			return err
		}
		b.Interface = val
		return nil
	case "method":
		val, err := v.AsString()
		if err != nil {
			return err
		}
		b.Method = val
		return nil
	case "args":
		if v.Tag != propbag.TagArray {
			return fmt.Errorf("action/bus: args must be a value_array")
		}
		args := make([]interface{}, len(v.Arr))
		for i, item := range v.Arr {
			args[i] = item.Str
		}
		b.Args = args
		return nil
	}
	return fmt.Errorf("action/bus: unknown property %q", name)
}

func (b *Bus) callBus() {
	if b.init == nil || b.init.Bus == nil {
		return
	}
	target := BusTarget{
		Session:   b.Session,
		Service:   b.Service,
		Path:      b.Path,
		Interface: b.Interface,
		Method:    b.Method,
		Args:      b.Args,
	}
	if err := b.init.Bus.Call(context.Background(), target); err != nil {
		b.logf("bus call %s.%s failed: %v", b.Interface, b.Method, err)
		if b.init.JournalFailures != nil {
			b.init.JournalFailures("bus call failed: " + err.Error())
		}
	}
}
