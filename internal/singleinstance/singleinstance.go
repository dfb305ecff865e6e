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

// Package singleinstance implements the single-instance daemon lock of
// spec.md §6 Lifecycle ("A single-instance lock prevents multiple
// daemons"). Grounded on util/flock.go's TryLock shape in the teacher,
// swapped from syscall.Flock to golang.org/x/sys/unix.Flock per
// SPEC_FULL.md's DOMAIN STACK wiring for golang.org/x/sys.
package singleinstance

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is a held advisory lock on a pidfile. The zero value is not usable;
// construct one with TryLock.
type Lock struct {
	path string
	file *os.File
}

// TryLock attempts to take an exclusive, non-blocking lock on path. A nil
// Lock with a nil error means another instance already holds it.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("singleinstance: opening %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, nil
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("singleinstance: truncating %s: %w", path, err)
	}
	if _, err := f.WriteString(fmt.Sprintf("%d\n", os.Getpid())); err != nil {
		f.Close()
		return nil, fmt.Errorf("singleinstance: writing pid to %s: %w", path, err)
	}

	return &Lock{path: path, file: f}, nil
}

// Unlock releases the lock and closes the pidfile handle.
func (l *Lock) Unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
