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
	"fmt"

	"github.com/kernelpanic-labs/alarmd/internal/propbag"
)

// Null is the no-op Action: it acknowledges NORMAL immediately, per
// spec.md §4.B "Null Action: run() immediately emits acknowledge(NORMAL)".
type Null struct {
	base
}

// Kind returns the persisted type tag.
func (n *Null) Kind() string { return "null" }

// Run immediately acknowledges NORMAL.
func (n *Null) Run(delayed bool) {
	n.acknowledge(Normal)
}

// Props implements propbag.Persistable.
func (n *Null) Props() []propbag.Prop {
	return []propbag.Prop{n.flagsProp()}
}

// SetProp implements propbag.Persistable.
func (n *Null) SetProp(name string, v propbag.Value) error {
	if ok, err := n.applyFlagsProp(name, v); ok {
		return err
	}
	return fmt.Errorf("action/null: unknown property %q", name)
}
