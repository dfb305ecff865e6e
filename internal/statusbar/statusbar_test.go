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

package statusbar

import "testing"

func TestCounterTogglesOnlyAtEdges(t *testing.T) {
	var events []bool
	c := New(func(visible bool) { events = append(events, visible) })

	c.Show()
	c.Show()
	c.Show()
	c.Hide()
	c.Hide()
	c.Hide()

	if c.Count() != 0 {
		t.Fatalf("Count = %d, want 0", c.Count())
	}
	want := []bool{true, false}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("hook events = %v, want %v (toggle only at 0<->1 edges)", events, want)
	}
}

func TestCounterHideClampedAtZero(t *testing.T) {
	called := false
	c := New(func(visible bool) { called = true })
	c.Hide()
	if called {
		t.Fatal("hook fired on Hide of an already-hidden counter")
	}
	if c.Count() != 0 {
		t.Fatalf("Count = %d, want 0 (clamped)", c.Count())
	}
}

func TestCounterNilHookIsSafe(t *testing.T) {
	c := New(nil)
	c.Show()
	c.Hide()
	if c.Count() != 0 {
		t.Fatalf("Count = %d, want 0", c.Count())
	}
}
