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

package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Parse(nil) = %+v, want Default() = %+v", cfg, Default())
	}
}

func TestParseOverridesFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"-document", "/tmp/doc.xml",
		"-default-snooze-minutes", "3",
		"-debug",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DocumentPath != "/tmp/doc.xml" {
		t.Fatalf("DocumentPath = %q, want /tmp/doc.xml", cfg.DocumentPath)
	}
	if cfg.DefaultSnoozeMinutes != 3 {
		t.Fatalf("DefaultSnoozeMinutes = %d, want 3", cfg.DefaultSnoozeMinutes)
	}
	if !cfg.Debug {
		t.Fatal("expected Debug = true")
	}
	if cfg.AlarmTimePath != Default().AlarmTimePath {
		t.Fatalf("expected unset flags to keep their default, got %q", cfg.AlarmTimePath)
	}
}

func TestParseRejectsNonPositiveSnooze(t *testing.T) {
	if _, err := Parse([]string{"-default-snooze-minutes", "0"}); err == nil {
		t.Fatal("expected an error for -default-snooze-minutes=0")
	}
	if _, err := Parse([]string{"-default-snooze-minutes", "-5"}); err == nil {
		t.Fatal("expected an error for a negative -default-snooze-minutes")
	}
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	if _, err := Parse([]string{"-not-a-real-flag"}); err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
}
