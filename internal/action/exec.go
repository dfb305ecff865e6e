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
	"os/exec"
	"strings"
	"time"

	"github.com/kernelpanic-labs/alarmd/internal/propbag"
)

// Exec extends Dialog (spec.md §4.B): the dialog, if any, runs first; only
// on a NORMAL internal outcome does it actually spawn the command. Grounded
// on engine/resources/exec.go's os/exec + timeout shape in the teacher.
type Exec struct {
	Dialog

	Path    string        `prop:"path"`
	Args    []string      `prop:"args"`
	Timeout time.Duration `prop:"timeout"`
}

// Kind returns the persisted type tag.
func (e *Exec) Kind() string { return "exec" }

// Run shows the dialog (unless suppressed), then spawns the command on a
// NORMAL internal outcome. Like Bus, this is fire-and-forget at core
// granularity: spawn failures are logged, never retried, and never change
// the acknowledgement sent back to the Event.
func (e *Exec) Run(delayed bool) {
	outcome, runVariant := e.evaluate(delayed)
	if runVariant {
		go e.spawn()
	}
	e.acknowledge(outcome)
}

// Props implements propbag.Persistable.
func (e *Exec) Props() []propbag.Prop {
	return append(e.dialogProps(),
		propbag.Prop{Name: "path", Value: propbag.String(e.Path)},
		propbag.Prop{Name: "args", Value: propbag.String(strings.Join(e.Args, "\x00"))},
		propbag.Prop{Name: "timeout", Value: propbag.Int64(int64(e.Timeout / time.Second))},
	)
}

// SetProp implements propbag.Persistable.
func (e *Exec) SetProp(name string, v propbag.Value) error {
	if ok, err := e.trySetDialogProp(name, v); ok {
		return err
	}
	switch name {
	case "path":
		s, err := v.AsString()
		if err != nil {
			return err
		}
		e.Path = s
		return nil
	case "args":
		s, err := v.AsString()
		if err != nil {
			return err
		}
		if s == "" {
			e.Args = nil
		} else {
			e.Args = strings.Split(s, "\x00")
		}
		return nil
	case "timeout":
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		e.Timeout = time.Duration(i) * time.Second
		return nil
	}
	return fmt.Errorf("action/exec: unknown property %q", name)
}

func (e *Exec) spawn() {
	if e.Path == "" {
		return
	}
	ctx := context.Background()
	var cancel context.CancelFunc
	if e.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	if err := cmd.Run(); err != nil {
		e.logf("exec %s failed: %v", e.Path, err)
		if e.init != nil && e.init.JournalFailures != nil {
			e.init.JournalFailures("exec failed: " + err.Error())
		}
	}
}
