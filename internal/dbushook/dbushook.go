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

// Package dbushook implements action.BusHook against the real D-Bus session
// and system buses. Grounded on engine/resources/cron.go and svc.go, which
// open a private session or system bus connection depending on a Session
// bool, exactly as BusTarget.Session selects here.
package dbushook

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/kernelpanic-labs/alarmd/internal/action"
)

// Hook is the default action.BusHook implementation.
type Hook struct{}

// New returns a ready-to-use Hook.
func New() *Hook { return &Hook{} }

// Call opens a connection to the requested bus and invokes the method,
// fire-and-forget at this layer too (the caller, action.Bus, already treats
// it that way). A fresh connection per call keeps this stateless and safe
// to use from the goroutine action.Bus.callBus spawns.
func (h *Hook) Call(ctx context.Context, target action.BusTarget) error {
	var conn *dbus.Conn
	var err error
	if target.Session {
		conn, err = dbus.ConnectSessionBus(dbus.WithContext(ctx))
	} else {
		conn, err = dbus.ConnectSystemBus(dbus.WithContext(ctx))
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	obj := conn.Object(target.Service, dbus.ObjectPath(target.Path))
	call := obj.CallWithContext(ctx, target.Interface+"."+target.Method, 0, target.Args...)
	return call.Err
}
