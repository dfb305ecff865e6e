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

// Package clockwatch implements the clock-change fan-out of spec.md §4.F: a
// single subscriber on the platform's wall-clock-change signal that invokes
// Queue.TimeChanged(). Grounded on
// github.com/purpleidea-mgmt/engine/resources/cron.go's
// AddMatch/bus.Signal shape, subscribing here to systemd-timedated's
// `org.freedesktop.DBus.Properties.PropertiesChanged` signal on
// `org.freedesktop.timedate1`, which fires whenever the wall clock is set
// (NTP sync, manual `timedatectl set-time`, etc.) — the real equivalent of
// the original's `/system/osso/dsm/time` Gconf notification
// (original_source/timechange.c is absent from the retrieval pack; this
// uses the modern systemd analogue of the same capability).
package clockwatch

import (
	"github.com/godbus/dbus/v5"

	"github.com/kernelpanic-labs/alarmd/internal/queue"
)

const (
	timedateInterface = "org.freedesktop.timedate1"
	propsInterface    = "org.freedesktop.DBus.Properties"
	propsSignal       = "PropertiesChanged"
)

// Watcher owns the bus subscription and fans every wall-clock-change signal
// out to a single Queue via TimeChanged.
type Watcher struct {
	conn     *dbus.Conn
	dbusChan chan *dbus.Signal
	done     chan struct{}
}

// New subscribes to the system bus's timedate1 property-change signal and
// starts forwarding every occurrence to q.TimeChanged.
func New(q *queue.Queue) (*Watcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	rule := "type='signal',interface='" + propsInterface + "',member='" + propsSignal + "',arg0='" + timedateInterface + "'"
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		conn.Close()
		return nil, call.Err
	}

	w := &Watcher{
		conn:     conn,
		dbusChan: make(chan *dbus.Signal, 16),
		done:     make(chan struct{}),
	}
	conn.Signal(w.dbusChan)
	go w.loop(q)
	return w, nil
}

func (w *Watcher) loop(q *queue.Queue) {
	for {
		select {
		case sig, ok := <-w.dbusChan:
			if !ok {
				return
			}
			if sig.Name != propsInterface+"."+propsSignal {
				continue
			}
			q.TimeChanged()
		case <-w.done:
			return
		}
	}
}

// Close releases the bus connection and stops the forwarding goroutine.
func (w *Watcher) Close() error {
	close(w.done)
	return w.conn.Close()
}
