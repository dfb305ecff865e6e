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

// Command alarmd is the daemon entrypoint: it assembles every package
// under internal/ into a running process, the way cli/run.go assembles a
// Main struct from parsed flags before calling Run in the teacher. Process
// lifecycle (signal handling, single-instance lock) mirrors that file's
// conventions (spec.md §6 Lifecycle); the client-side library, CLI tool,
// and any concrete IPC transport are out of scope per spec.md §1, so this
// binary only owns the daemon core itself.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kernelpanic-labs/alarmd/internal/clockwatch"
	"github.com/kernelpanic-labs/alarmd/internal/config"
	"github.com/kernelpanic-labs/alarmd/internal/connectivityhook"
	"github.com/kernelpanic-labs/alarmd/internal/dbushook"
	"github.com/kernelpanic-labs/alarmd/internal/dispatch"
	"github.com/kernelpanic-labs/alarmd/internal/journallog"
	"github.com/kernelpanic-labs/alarmd/internal/persist"
	"github.com/kernelpanic-labs/alarmd/internal/queue"
	"github.com/kernelpanic-labs/alarmd/internal/singleinstance"
	"github.com/kernelpanic-labs/alarmd/internal/statusbar"
	"github.com/kernelpanic-labs/alarmd/internal/timer"
	"github.com/kernelpanic-labs/alarmd/internal/uihook"
	"github.com/kernelpanic-labs/alarmd/util/errwrap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("alarmd: %v", err)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return errwrap.Wrapf(err, "parsing configuration")
	}

	for _, dir := range []string{filepath.Dir(cfg.DocumentPath), filepath.Dir(cfg.PidPath)} {
		if dir != "." && dir != "/" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	lock, err := singleinstance.TryLock(cfg.PidPath)
	if err != nil {
		return errwrap.Wrapf(err, "acquiring single-instance lock")
	}
	if lock == nil {
		return fmt.Errorf("alarmd: another instance is already running (see %s)", cfg.PidPath)
	}
	defer lock.Unlock()

	queueLog := log.New(os.Stderr, "Queue: ", log.LstdFlags)
	persistLog := log.New(os.Stderr, "Persist: ", log.LstdFlags)
	dispatchLog := log.New(os.Stderr, "Dispatch: ", log.LstdFlags)
	timerLog := log.New(os.Stderr, "Timer: ", log.LstdFlags)
	mainLog := log.New(os.Stderr, "Main: ", log.LstdFlags)

	q, err := persist.Load(cfg.DocumentPath, cfg.DefaultSnoozeMinutes, queueLog.Printf)
	if err != nil {
		return errwrap.Wrapf(err, "loading persisted document")
	}

	normalTimer := timer.NewMonotonic()
	q.TimerSet(queue.TimerNormal, normalTimer)
	if cfg.RTCWakePath != "" {
		rtcTimer := timer.NewRTC(cfg.RTCWakePath)
		q.TimerSet(queue.TimerPowerup, rtcTimer)
	}
	_ = timerLog

	sb := statusbar.New(nil)

	connHook, err := connectivityhook.New()
	if err != nil {
		mainLog.Printf("connectivity hook unavailable, CONNECTED actions will run immediately: %v", err)
		connHook = nil
	}

	env := queue.ActionEnv{
		UI:              uihook.New(),
		PowerupUI:       uihook.New(),
		Bus:             dbushook.New(),
		Statusbar:       sb,
		JournalFailures: journallog.Logger("alarmd: "),
	}
	if connHook != nil {
		env.Connectivity = connHook
	}
	q.SetActionEnv(env)

	worker := persist.NewWorker(q, cfg.DocumentPath, cfg.AlarmTimePath, cfg.AlarmModePath, persistLog.Printf)
	worker.Connect()
	if err := worker.Save(); err != nil {
		persistLog.Printf("initial save failed: %v", err)
	}

	watcher, err := clockwatch.New(q)
	if err != nil {
		mainLog.Printf("clock-change watcher unavailable: %v", err)
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}
	if connHook != nil {
		defer connHook.Close()
	}

	_ = dispatch.New(q, dispatchLog.Printf)
	// A concrete IPC transport (net.Listener framing of the six
	// dispatch.Dispatcher operations) is out of scope per spec.md §1; the
	// Dispatcher above is ready for one to be attached.

	waitForShutdown(mainLog, q, worker)
	return nil
}

// waitForShutdown blocks until SIGTERM or ^C, then performs the orderly
// shutdown of spec.md §6 Lifecycle: stop accepting requests (there is
// nothing more to stop once this function returns), persist once more,
// release Timers, and return so main can exit. SIGHUP and SIGUSR1 are
// reserved and explicitly ignored.
func waitForShutdown(logf *log.Logger, q *queue.Queue, worker *persist.Worker) {
	signals := make(chan os.Signal, 4)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGUSR1)

	for sig := range signals {
		switch sig {
		case syscall.SIGHUP, syscall.SIGUSR1:
			logf.Printf("ignoring reserved signal %v", sig)
			continue
		default:
			logf.Printf("shutting down on signal %v", sig)
			if err := worker.Save(); err != nil {
				logf.Printf("final save failed: %v", err)
			}
			if nt := q.NormalTimer(); nt != nil {
				nt.Disarm()
			}
			if pt := q.PowerupTimer(); pt != nil {
				pt.Disarm()
			}
			return
		}
	}
}
