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

package uihook

import "testing"

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"plain text",
		"braces {like this} and {nested {deeper}}",
		`back\slash`,
		`mixed \ { } \\ {{}} \{\}`,
		"unicode café 日本語 {ok}",
	}
	for _, s := range cases {
		got := UnescapePayload(EscapePayload(s))
		if got != s {
			t.Errorf("round trip mismatch: input %q, escaped %q, unescaped %q", s, EscapePayload(s), got)
		}
	}
}

func TestUnescapeOfPlainStringIsIdentity(t *testing.T) {
	cases := []string{
		"",
		"no special characters here",
		"just spaces and punctuation, like: this!",
	}
	for _, s := range cases {
		if got := UnescapePayload(s); got != s {
			t.Errorf("unescape of non-escaped string %q = %q, want identity", s, got)
		}
	}
}
