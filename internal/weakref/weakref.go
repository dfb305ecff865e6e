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

// Package weakref provides a tiny non-owning reference cell.
//
// Event<->Action and Event<->Queue back-references are lookup-only: neither
// side may keep the other alive, and either side's destruction must zero the
// other's slot (spec.md invariant 8). A Ref is always accessed through Get,
// which returns (nil, false) once cleared, so callers cannot forget the
// null-check.
package weakref

import "sync"

// Ref is a non-owning, concurrency-safe handle to a value of type T.
type Ref[T any] struct {
	mu  sync.Mutex
	val T
	set bool
}

// Set installs v as the referenced value.
func (r *Ref[T]) Set(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.val = v
	r.set = true
}

// Get returns the referenced value and whether it is still present.
func (r *Ref[T]) Get() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.val, r.set
}

// Clear invalidates the reference. Must be called by the referenced side's
// own destruction path.
func (r *Ref[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.val = zero
	r.set = false
}
