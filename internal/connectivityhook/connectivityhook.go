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

// Package connectivityhook implements action.ConnectivityHook against the
// session bus's connectivity-manager signal, supplementing spec.md from
// original_source/rpc-ic.c (the original's Internet Connectivity daemon
// hook). Grounded on engine/resources/cron.go's bus.Signal/AddMatch shape
// in the teacher.
package connectivityhook

import (
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	icInterface = "com.alarmd.Connectivity"
	icSignal    = "StateChanged"
)

// Hook watches a connectivity-manager D-Bus signal and tracks the latest
// known online/offline state.
type Hook struct {
	mu       sync.Mutex
	online   bool
	conn     *dbus.Conn
	dbusChan chan *dbus.Signal
	subs     []chan struct{}
}

// New connects to the session bus and starts watching for connectivity
// signals. The initial state is assumed online until a signal says
// otherwise, since a fresh daemon has no other way to know.
func New() (*Hook, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	h := &Hook{online: true, conn: conn, dbusChan: make(chan *dbus.Signal, 16)}

	rule := "type='signal',interface='" + icInterface + "',member='" + icSignal + "'"
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		conn.Close()
		return nil, call.Err
	}
	conn.Signal(h.dbusChan)
	go h.loop()
	return h, nil
}

func (h *Hook) loop() {
	for sig := range h.dbusChan {
		if !strings.HasSuffix(sig.Name, icSignal) {
			continue
		}
		online := false
		if len(sig.Body) > 0 {
			if b, ok := sig.Body[0].(bool); ok {
				online = b
			}
		}
		h.setOnline(online)
	}
}

func (h *Hook) setOnline(online bool) {
	h.mu.Lock()
	h.online = online
	var fire []chan struct{}
	if online {
		fire = h.subs
		h.subs = nil
	}
	h.mu.Unlock()
	for _, ch := range fire {
		close(ch)
	}
}

// Online implements action.ConnectivityHook.
func (h *Hook) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

// Subscribe implements action.ConnectivityHook.
func (h *Hook) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{})
	h.mu.Lock()
	if h.online {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs = append(h.subs, ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, c := range h.subs {
			if c == ch {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Close releases the bus connection.
func (h *Hook) Close() error {
	close(h.dbusChan)
	return h.conn.Close()
}
