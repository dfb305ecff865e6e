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

// Package persist implements the crash-safe persistence contract of
// spec.md §4.E: the whole Queue, and every Event/Action it owns, is
// serialised to a versioned XML document matching spec.md §6's
// object/parameter/item schema, written atomically (temp file + rename),
// and reloaded symmetrically on start. Grounded on
// _examples/original_source/xmlobjectfactory.c and object.c, the original's
// own reflection-driven property-bag/XML schema, reimplemented here against
// internal/propbag's statically-derived property lists instead of GObject
// introspection.
package persist

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/kernelpanic-labs/alarmd/internal/action"
	"github.com/kernelpanic-labs/alarmd/internal/propbag"
	"github.com/kernelpanic-labs/alarmd/internal/queue"
	"github.com/kernelpanic-labs/alarmd/util/errwrap"
)

// node is the generic element the whole document schema is built from: an
// `object`, `parameter`, or `item`, each carrying `type` and (for
// parameters) `name` attributes, with either chardata or nested elements
// as content (spec.md §6 "Persisted document"). xml:",any" lets one Go
// type round-trip all three element names without three near-identical
// structs.
type node struct {
	XMLName xml.Name
	Type    string  `xml:"type,attr"`
	Name    string  `xml:"name,attr,omitempty"`
	Text    string  `xml:",chardata"`
	Kids    []*node `xml:",any"`
}

func newElement(name xml.Name, tag propbag.Tag) *node {
	return &node{XMLName: name, Type: string(tag)}
}

// valueToNode renders one propbag.Value as a node with the given element
// name (and, for a parameter, its property name).
func valueToNode(name xml.Name, propName string, v propbag.Value) *node {
	n := newElement(name, v.Tag)
	n.Name = propName
	switch v.Tag {
	case propbag.TagBool:
		n.Text = strconv.FormatBool(v.Bool)
	case propbag.TagInt, propbag.TagInt64, propbag.TagLong:
		n.Text = strconv.FormatInt(v.Int64, 10)
	case propbag.TagUint, propbag.TagUint64, propbag.TagUlong:
		n.Text = strconv.FormatUint(v.Uint64, 10)
	case propbag.TagDouble, propbag.TagFloat:
		n.Text = strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case propbag.TagChar, propbag.TagString:
		n.Text = v.Str
	case propbag.TagObject:
		n.Kids = []*node{objectToNode(v.Obj)}
	case propbag.TagArray:
		for _, item := range v.Arr {
			n.Kids = append(n.Kids, valueToNode(xml.Name{Local: "item"}, "", item))
		}
	}
	return n
}

// objectChildren renders a Persistable's Props as `parameter` child nodes.
func objectChildren(p propbag.Persistable) []*node {
	var kids []*node
	for _, prop := range p.Props() {
		kids = append(kids, valueToNode(xml.Name{Local: "parameter"}, prop.Name, prop.Value))
	}
	return kids
}

// objectToNode renders a whole Persistable as an `object` node: its Kind()
// becomes the type tag (overriding the scalar Tag an object Value would
// otherwise carry), and its Props become `parameter` children.
func objectToNode(p propbag.Persistable) *node {
	n := &node{XMLName: xml.Name{Local: "object"}, Type: p.Kind()}
	n.Kids = objectChildren(p)
	return n
}

// Worker owns the document path, the two hint files, and the "serialise on
// change" hook the Queue calls into (spec.md §4.E "On `changed`, the
// persistence worker serialises the whole Queue... and atomically replaces
// the stored file"). The persisted document's root is a single `queue`
// element (spec.md §6 "Tree with root `queue`"), with the Queue's own
// scalar properties plus an `events` value_array parameter holding every
// active and pending Event as an `item`.
type Worker struct {
	mu sync.Mutex

	q             *queue.Queue
	docPath       string
	alarmTimePath string
	alarmModePath string
	logf          func(format string, v ...interface{})

	// ModeProbe reports the hint-file mode tag ("actdead", "powerup", or
	// "n/a"). Defaults to "powerup" when a BOOT event exists and "n/a"
	// otherwise, matching spec.md §4.E's hint-file description absent a
	// wired acting-dead collaborator.
	ModeProbe func() string
}

// NewWorker constructs a Worker. Connect must be called separately, once
// any initial Load has finished, per spec.md §4.E: "During load, event
// mutations MUST NOT trigger persistence; the worker connects only after
// bulk load completes."
func NewWorker(q *queue.Queue, docPath, alarmTimePath, alarmModePath string, logf func(format string, v ...interface{})) *Worker {
	return &Worker{
		q:             q,
		docPath:       docPath,
		alarmTimePath: alarmTimePath,
		alarmModePath: alarmModePath,
		logf:          logf,
	}
}

// Connect wires the Worker's Save into the Queue's changed hook.
func (w *Worker) Connect() {
	w.q.SetChanged(func() { w.onChanged() })
}

func (w *Worker) onChanged() {
	if err := w.Save(); err != nil {
		w.log("save failed: %v", err)
	}
}

func (w *Worker) log(format string, v ...interface{}) {
	if w.logf != nil {
		w.logf(format, v...)
	}
}

// Save serialises the whole Queue and atomically replaces docPath, then
// refreshes the two hint files. A failure here is logged and dropped per
// spec.md §7 "Persistence failure: I/O error writing the document -> logged;
// no rollback of in-memory state; next successful write absorbs the delta."
func (w *Worker) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	root := objectToNode(w.q)
	events := w.q.Snapshot()
	sort.Slice(events, func(i, j int) bool {
		return events[i].EffectiveTime().Before(events[j].EffectiveTime())
	})
	var items []propbag.Value
	for _, ev := range events {
		items = append(items, propbag.Object(ev))
	}
	root.Kids = append(root.Kids, valueToNode(xml.Name{Local: "parameter"}, "events", propbag.Array(items)))

	if err := writeAtomic(w.docPath, root); err != nil {
		return errwrap.Wrapf(err, "persist: writing document")
	}
	return w.writeHints(events)
}

func (w *Worker) writeHints(events []*queue.Event) error {
	var earliest time.Time
	for _, ev := range events {
		if !ev.NeedsPowerUp() {
			continue
		}
		et := ev.EffectiveTime()
		if earliest.IsZero() || et.Before(earliest) {
			earliest = et
		}
	}

	var timeStr string
	if earliest.IsZero() {
		timeStr = "0"
	} else {
		timeStr = strconv.FormatInt(earliest.Unix(), 10)
	}
	if err := os.WriteFile(w.alarmTimePath, []byte(timeStr), 0o644); err != nil {
		return errwrap.Wrapf(err, "persist: writing %s", w.alarmTimePath)
	}

	mode := "n/a"
	switch {
	case w.ModeProbe != nil:
		mode = w.ModeProbe()
	case !earliest.IsZero():
		mode = "powerup"
	}
	if err := os.WriteFile(w.alarmModePath, []byte(mode), 0o644); err != nil {
		return errwrap.Wrapf(err, "persist: writing %s", w.alarmModePath)
	}
	return nil
}

// writeAtomic renders root to XML and writes it to path via a temp file in
// the same directory, then os.Rename, so a reader never observes a
// partially-written document (spec.md §3 invariant 6).
func writeAtomic(path string, root *node) error {
	root.XMLName = xml.Name{Local: "queue"}
	data, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return errwrap.Wrapf(err, "persist: marshalling document")
	}
	data = append([]byte(xml.Header), data...)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".alarmd-doc-*.tmp")
	if err != nil {
		return errwrap.Wrapf(err, "persist: creating temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errwrap.Wrapf(err, "persist: writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errwrap.Wrapf(err, "persist: syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return errwrap.Wrapf(err, "persist: closing temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errwrap.Wrapf(err, "persist: renaming temp file into place")
	}
	return nil
}

// Load parses docPath (if present) and populates a fresh Queue with its
// Events and Actions. A missing file is not an error: the daemon starts
// with an empty Queue. Queue mutations performed here never trigger
// persistence: the returned Queue has no changed hook installed yet (see
// Worker.Connect).
func Load(docPath string, defaultSnoozeMinutes int64, logf func(format string, v ...interface{})) (*queue.Queue, error) {
	q := queue.New(defaultSnoozeMinutes)
	q.SetLogf(logf)

	data, err := os.ReadFile(docPath)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, errwrap.Wrapf(err, "persist: reading %s", docPath)
	}

	var root node
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, errwrap.Wrapf(err, "persist: parsing %s", docPath)
	}

	for _, kid := range root.Kids {
		if kid.XMLName.Local != "parameter" {
			continue
		}
		switch kid.Name {
		case "default_snooze_minutes":
			if i, err := strconv.ParseInt(kid.Text, 10, 64); err == nil {
				_ = q.DefaultSnoozeSet(i)
			}
		case "events":
			loadEvents(q, kid, logf)
		}
	}
	return q, nil
}

// firstChild returns the first direct child element named local, or nil.
func firstChild(n *node, local string) *node {
	for _, k := range n.Kids {
		if k.XMLName.Local == local {
			return k
		}
	}
	return nil
}

func loadEvents(q *queue.Queue, eventsParam *node, logf func(format string, v ...interface{})) {
	for _, item := range eventsParam.Kids {
		if item.XMLName.Local != "item" || item.Type != string(propbag.TagObject) {
			continue
		}
		objNode := firstChild(item, "object")
		if objNode == nil {
			continue
		}
		ev, err := loadEvent(objNode)
		if err != nil {
			if logf != nil {
				logf("persist: skipping malformed event: %v", err)
			}
			continue
		}
		q.Add(ev)
	}
}

// loadEvent populates a fresh Event from an <object type="event"|
// "recurringevent"> node's `parameter` children.
func loadEvent(n *node) (*queue.Event, error) {
	ev := queue.NewEmptyEvent()
	for _, kid := range n.Kids {
		if kid.XMLName.Local != "parameter" {
			continue
		}
		switch kid.Type {
		case string(propbag.TagObject):
			objNode := firstChild(kid, "object")
			if objNode == nil {
				continue
			}
			switch kid.Name {
			case "action":
				act, err := loadAction(objNode)
				if err != nil {
					return nil, err
				}
				if err := ev.SetProp("action", propbag.Object(act)); err != nil {
					return nil, err
				}
			case "recurring":
				rec, err := loadRecurrence(objNode)
				if err != nil {
					return nil, err
				}
				if err := ev.SetProp("recurring", propbag.Object(rec)); err != nil {
					return nil, err
				}
			default:
				// Unknown nested object: skipped. No warning is
				// logged for it.
			}
		default:
			val, err := scalarValue(kid)
			if err != nil {
				return nil, err
			}
			if err := ev.SetProp(kid.Name, val); err != nil {
				// Unknown field: skip rather than fail the whole load.
				continue
			}
		}
	}
	return ev, nil
}

// loadRecurrence populates a Recurrence from an <object type="recurrence">
// node's `parameter` children.
func loadRecurrence(n *node) (*queue.Recurrence, error) {
	rec := &queue.Recurrence{}
	for _, kid := range n.Kids {
		if kid.XMLName.Local != "parameter" {
			continue
		}
		val, err := scalarValue(kid)
		if err != nil {
			return nil, err
		}
		_ = rec.SetProp(kid.Name, val)
	}
	return rec, nil
}

// loadAction instantiates and populates an Action from an
// <object type="null"|"dialog"|"bus"|"exec"> node, using its type attribute
// as the registered kind name (spec.md §4.E "parse type tags, instantiate
// by type name, assign properties").
func loadAction(n *node) (action.Action, error) {
	act, err := action.New(n.Type)
	if err != nil {
		return nil, errwrap.Wrapf(err, "persist: loading action")
	}
	for _, kid := range n.Kids {
		if kid.XMLName.Local != "parameter" {
			continue
		}
		val, err := scalarOrArrayValue(kid)
		if err != nil {
			return nil, err
		}
		_ = act.SetProp(kid.Name, val)
	}
	return act, nil
}

func scalarOrArrayValue(n *node) (propbag.Value, error) {
	if n.Type == string(propbag.TagArray) {
		var items []propbag.Value
		for _, item := range n.Kids {
			v, err := scalarValue(item)
			if err != nil {
				return propbag.Value{}, err
			}
			items = append(items, v)
		}
		return propbag.Array(items), nil
	}
	return scalarValue(n)
}

// scalarValue parses a leaf node's text content back into a typed
// propbag.Value according to its `type` attribute.
func scalarValue(n *node) (propbag.Value, error) {
	tag := propbag.Tag(n.Type)
	switch tag {
	case propbag.TagBool:
		b, err := strconv.ParseBool(n.Text)
		if err != nil {
			return propbag.Value{}, err
		}
		return propbag.Bool(b), nil
	case propbag.TagInt, propbag.TagInt64, propbag.TagLong:
		i, err := strconv.ParseInt(n.Text, 10, 64)
		if err != nil {
			return propbag.Value{}, err
		}
		return propbag.Value{Tag: tag, Int64: i}, nil
	case propbag.TagUint, propbag.TagUint64, propbag.TagUlong:
		u, err := strconv.ParseUint(n.Text, 10, 64)
		if err != nil {
			return propbag.Value{}, err
		}
		return propbag.Value{Tag: tag, Uint64: u}, nil
	case propbag.TagDouble, propbag.TagFloat:
		f, err := strconv.ParseFloat(n.Text, 64)
		if err != nil {
			return propbag.Value{}, err
		}
		return propbag.Value{Tag: tag, Float64: f}, nil
	case propbag.TagChar, propbag.TagString:
		return propbag.String(n.Text), nil
	}
	return propbag.Value{}, fmt.Errorf("persist: unknown scalar type %q", n.Type)
}
