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

// Package config assembles the daemon's runtime configuration from command
// line flags, the way cli/run.go builds a Main struct from parsed flags in
// the teacher before calling Run. No DSL/graph config language is needed
// for a single-purpose alarm daemon (the SPEC_FULL.md AMBIENT STACK
// decision), so this uses stdlib flag rather than go-arg or cobra.
package config

import (
	"flag"
	"fmt"
)

// Config holds every knob the daemon needs at startup.
type Config struct {
	// DocumentPath is where the persisted Queue document lives.
	DocumentPath string
	// AlarmTimePath and AlarmModePath are the two hint files an external
	// power-management collaborator reads (spec.md §4.E).
	AlarmTimePath string
	AlarmModePath string
	// SocketPath is where the request-dispatcher transport listens. The
	// transport framing itself is out of scope per spec.md §1; this is
	// only the rendezvous path.
	SocketPath string
	// PidPath is the single-instance lock file (spec.md §6 Lifecycle).
	PidPath string
	// DefaultSnoozeMinutes seeds Queue.default_snooze_minutes.
	DefaultSnoozeMinutes int64
	// RTCWakePath, if set, is where RTCTimer publishes its wake hint.
	RTCWakePath string
	// Debug records the -debug flag. No component reads it, so it does not
	// change what the daemon logs.
	Debug bool
}

// Default returns the configuration a bare `alarmd` invocation uses.
func Default() Config {
	return Config{
		DocumentPath:         "/var/lib/alarmd/queue.xml",
		AlarmTimePath:        "/var/lib/alarmd/next_alarm_time",
		AlarmModePath:        "/var/lib/alarmd/next_alarm_mode",
		SocketPath:           "/run/alarmd/alarmd.sock",
		PidPath:              "/run/alarmd/alarmd.pid",
		DefaultSnoozeMinutes: 10,
		RTCWakePath:          "",
		Debug:                false,
	}
}

// Parse populates a Config from args (typically os.Args[1:]), starting
// from Default().
func Parse(args []string) (Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("alarmd", flag.ContinueOnError)
	fs.StringVar(&cfg.DocumentPath, "document", cfg.DocumentPath, "path to the persisted queue document")
	fs.StringVar(&cfg.AlarmTimePath, "alarm-time-file", cfg.AlarmTimePath, "path to the next-alarm-time hint file")
	fs.StringVar(&cfg.AlarmModePath, "alarm-mode-file", cfg.AlarmModePath, "path to the next-alarm-mode hint file")
	fs.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "path to the request dispatcher's listening socket")
	fs.StringVar(&cfg.PidPath, "pid-file", cfg.PidPath, "path to the single-instance lock/pid file")
	fs.Int64Var(&cfg.DefaultSnoozeMinutes, "default-snooze-minutes", cfg.DefaultSnoozeMinutes, "default snooze step, in minutes")
	fs.StringVar(&cfg.RTCWakePath, "rtc-wake-file", cfg.RTCWakePath, "path to the RTC wakealarm-shaped hint file (empty disables power-up timer)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "accepted; has no effect on logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.DefaultSnoozeMinutes <= 0 {
		return Config{}, fmt.Errorf("config: default-snooze-minutes must be positive, got %d", cfg.DefaultSnoozeMinutes)
	}
	return cfg, nil
}
