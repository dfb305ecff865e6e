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

// Package statusbar models the process-wide statusbar icon hook: a
// reference-counted show/hide pair. Supplements spec.md from
// original_source/rpc-statusbar.c; spec.md §4.B and §5 describe it as "a
// simple reference-counted show/hide pair maintained by the core".
package statusbar

import "sync"

// Counter is a clamped-at-zero reference count. The zero value is ready to
// use (hidden).
type Counter struct {
	mu    sync.Mutex
	count int
	hook  func(visible bool)
}

// New returns a Counter that invokes hook whenever visibility toggles
// (count transitions 0<->1). hook may be nil, in which case the Counter
// just tracks state without any external side effect.
func New(hook func(visible bool)) *Counter {
	return &Counter{hook: hook}
}

// Show increments the reference count, showing the icon if it was hidden.
func (c *Counter) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if c.count == 1 && c.hook != nil {
		c.hook(true)
	}
}

// Hide decrements the reference count, clamped at zero, hiding the icon
// once it reaches zero.
func (c *Counter) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return
	}
	c.count--
	if c.count == 0 && c.hook != nil {
		c.hook(false)
	}
}

// Count returns the current reference count, for tests/diagnostics.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
