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

// Package uihook implements action.DialogHook against a D-Bus-based system
// UI service, supplementing spec.md from original_source/rpc-systemui.c
// (the original's dialog-request RPC). The resend/timeout policy itself
// lives in action.Dialog per spec.md §5; this hook only performs one
// request per call.
package uihook

import (
	"context"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/kernelpanic-labs/alarmd/internal/action"
)

const (
	defaultService   = "com.alarmd.SystemUI"
	defaultPath      = "/com/alarmd/SystemUI"
	defaultInterface = "com.alarmd.SystemUI"
)

// Hook is a DialogHook backed by a single named D-Bus service that exposes
// an "OpenDialog(payload string, allowSnooze bool) (response int32)"
// method, where payload is the escaped title and message built by
// formatPayload. Opaque payload details (title/message) are not
// interpreted here.
type Hook struct {
	Session   bool
	Service   string
	Path      string
	Interface string
}

// New returns a Hook talking to the default system UI service name, on the
// session bus (the UI process is expected to run per-session).
func New() *Hook {
	return &Hook{Session: true, Service: defaultService, Path: defaultPath, Interface: defaultInterface}
}

// Request implements action.DialogHook.
func (h *Hook) Request(ctx context.Context, req action.DialogRequest) (action.DialogResponse, error) {
	var conn *dbus.Conn
	var err error
	if h.Session {
		conn, err = dbus.ConnectSessionBus(dbus.WithContext(ctx))
	} else {
		conn, err = dbus.ConnectSystemBus(dbus.WithContext(ctx))
	}
	if err != nil {
		return action.ResponseTimeout, err
	}
	defer conn.Close()

	payload := formatPayload(req.Title, req.Message)
	obj := conn.Object(h.Service, dbus.ObjectPath(h.Path))
	call := obj.CallWithContext(ctx, h.Interface+".OpenDialog", 0, payload, req.AllowSnooze)
	if call.Err != nil {
		if ctx.Err() != nil {
			return action.ResponseTimeout, nil
		}
		return action.ResponseTimeout, call.Err
	}

	var code int32
	if err := call.Store(&code); err != nil {
		return action.ResponseTimeout, err
	}
	switch code {
	case 1:
		return action.ResponseSnooze, nil
	case 2:
		return action.ResponseTimeout, nil
	default:
		return action.ResponseAccept, nil
	}
}

// formatPayload embeds title and message into the single delimited string
// the system UI service expects (spec.md §6 "String escaping"): each field
// is escaped (backslashes doubled, braces prefixed with a backslash) and
// wrapped in its own {...} segment.
func formatPayload(title, message string) string {
	return "{" + EscapePayload(title) + "}{" + EscapePayload(message) + "}"
}

// EscapePayload duplicates backslashes and prefixes '{'/'}' with a
// backslash, per spec.md §6.
func EscapePayload(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '{':
			b.WriteString(`\{`)
		case '}':
			b.WriteString(`\}`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UnescapePayload reverses EscapePayload exactly.
func UnescapePayload(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
