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

// Package propbag implements the statically-derived property list that
// spec.md §4.E and the Design Notes ask for in place of the original's
// dynamic GObject reflection (original_source/object.c,
// xmlobjectfactory.c): "each persistable type publishes its own list of
// property names to include; composite objects recursively inline owned
// sub-objects." Every persistable Go type (Queue, Event, the Action
// variants) implements Persistable by hand, listing its own Props — no
// runtime reflection is used anywhere in this path.
package propbag

import "fmt"

// Tag is one of the scalar/composite type tags spec.md §4.E enumerates.
type Tag string

// The type tags named in spec.md §4.E.
const (
	TagBool   Tag = "boolean"
	TagChar   Tag = "char"
	TagInt    Tag = "int"
	TagUint   Tag = "uint"
	TagInt64  Tag = "int64"
	TagUint64 Tag = "uint64"
	TagLong   Tag = "long"
	TagUlong  Tag = "ulong"
	TagDouble Tag = "double"
	TagFloat  Tag = "float"
	TagString Tag = "string"
	TagObject Tag = "object"
	TagArray  Tag = "value_array"
)

// Value is a single typed scalar, nested object, or heterogeneous array.
type Value struct {
	Tag     Tag
	Bool    bool
	Int64   int64
	Uint64  uint64
	Float64 float64
	Str     string
	Obj     Persistable
	Arr     []Value
}

// Bool, Int64, Uint64, Float64, String, Object, and Array build Values of
// the matching tag; they keep call sites in Props() methods short.
func Bool(b bool) Value             { return Value{Tag: TagBool, Bool: b} }
func Int(i int64) Value             { return Value{Tag: TagInt, Int64: i} }
func Uint(u uint64) Value           { return Value{Tag: TagUint, Uint64: u} }
func Int64(i int64) Value           { return Value{Tag: TagInt64, Int64: i} }
func Uint64(u uint64) Value         { return Value{Tag: TagUint64, Uint64: u} }
func String(s string) Value         { return Value{Tag: TagString, Str: s} }
func Object(p Persistable) Value    { return Value{Tag: TagObject, Obj: p} }
func Array(vs []Value) Value        { return Value{Tag: TagArray, Arr: vs} }

// AsInt64/AsUint64/AsBool/AsString extract a scalar, erroring on a tag
// mismatch. Used by SetProp implementations, which receive a Value decoded
// off the wire and must apply it back onto a concrete Go field.
func (v Value) AsInt64() (int64, error) {
	switch v.Tag {
	case TagInt, TagInt64, TagLong:
		return v.Int64, nil
	case TagUint, TagUint64, TagUlong:
		return int64(v.Uint64), nil
	}
	return 0, fmt.Errorf("propbag: value has tag %q, not an integer", v.Tag)
}

func (v Value) AsUint64() (uint64, error) {
	switch v.Tag {
	case TagUint, TagUint64, TagUlong:
		return v.Uint64, nil
	case TagInt, TagInt64, TagLong:
		return uint64(v.Int64), nil
	}
	return 0, fmt.Errorf("propbag: value has tag %q, not an unsigned integer", v.Tag)
}

func (v Value) AsBool() (bool, error) {
	if v.Tag != TagBool {
		return false, fmt.Errorf("propbag: value has tag %q, not boolean", v.Tag)
	}
	return v.Bool, nil
}

func (v Value) AsString() (string, error) {
	if v.Tag != TagString {
		return "", fmt.Errorf("propbag: value has tag %q, not string", v.Tag)
	}
	return v.Str, nil
}

// Prop is one named property of a Persistable.
type Prop struct {
	Name  string
	Value Value
}

// Persistable is implemented by every type whose instances appear in the
// persisted document: Queue, Event, and the Action variants.
type Persistable interface {
	// Kind is the persisted type tag (e.g. "event", "recurringevent",
	// "null", "dialog", "bus", "exec", "queue").
	Kind() string

	// Props returns this instance's current property list, in a stable
	// order, for serialisation.
	Props() []Prop

	// SetProp applies one decoded property back onto the instance.
	// Implementations return an error for an unknown name; persist.Load
	// discards that error and skips the property without logging it.
	SetProp(name string, v Value) error
}
