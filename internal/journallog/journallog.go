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

// Package journallog logs external-action failures (spec.md §7 "External
// action failure": bus call fails, subprocess spawn fails, dialog request
// rejected -> logged, never retried) to the systemd journal when available,
// grounded on engine/resources/msg.go's use of
// github.com/coreos/go-systemd/v22/journal in the teacher.
package journallog

import (
	"log"

	"github.com/coreos/go-systemd/v22/journal"
)

// Logger logs a message to the journal, falling back to the standard
// logger when the journal socket isn't reachable (e.g. not running under
// systemd).
func Logger(prefix string) func(string) {
	return func(msg string) {
		if ok, _ := journal.StderrIsJournalStream(); ok {
			_ = journal.Send(prefix+msg, journal.PriErr, nil)
			return
		}
		if err := journal.Send(prefix+msg, journal.PriErr, nil); err != nil {
			log.Printf("%s%s", prefix, msg)
		}
	}
}
