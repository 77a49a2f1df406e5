package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidDelta is returned for deltas that do not fit the table's stored
// shape.
var ErrInvalidDelta = errors.New("ledger: delta does not match table")

type shapeKind int

const (
	shapeObject shapeKind = iota
	shapeLeaf
	shapeList
	shapeRows
)

// shape is the stored form of a table: nested objects whose leaves are single
// values, Columnar columns (lists of values) or Objects sequences (lists of
// row objects).
type shape struct {
	kind   shapeKind
	fields map[string]*shape
}

func newObject() *shape {
	return &shape{kind: shapeObject, fields: map[string]*shape{}}
}

// place hangs leaf below root at path, creating intermediate objects.
func (s *shape) place(path []string, leaf *shape) {
	node := s
	for _, k := range path[:len(path)-1] {
		next, ok := node.fields[k]
		if !ok || next.kind != shapeObject {
			next = newObject()
			node.fields[k] = next
		}
		node = next
	}
	node.fields[path[len(path)-1]] = leaf
}

func (t *Table) shape() *shape {
	root := newObject()
	for si := range t.Sections {
		sec := &t.Sections[si]
		for _, sc := range sec.Scalars {
			root.place(wirePath(sec.Section, sc.Wire), &shape{kind: shapeLeaf})
		}
		for i := range sec.Sequences {
			seq := &sec.Sequences[i]
			switch seq.Layout {
			case Columnar:
				for _, col := range seq.Columns {
					root.place(wirePath(sec.Section, col.Wire), &shape{kind: shapeList})
				}
			case Objects:
				rows := &shape{kind: shapeRows, fields: map[string]*shape{}}
				for _, col := range seq.Columns {
					rows.place(col.Wire, &shape{kind: shapeLeaf})
				}
				if seq.Tag != "" {
					rows.fields[seq.Tag] = &shape{kind: shapeLeaf}
				}
				root.place(wirePath(sec.Section, seq.Wire), rows)
			}
		}
	}
	return root
}

// ValidateDelta checks that every key of d names a location of t and that
// every value has the kind stored there: single values for scalars, lists of
// single values for Columnar columns and lists of row objects for Objects
// sequences. Null values are allowed anywhere; merging ignores them.
func ValidateDelta(t *Table, d Document) error {
	return t.shape().checkObject(map[string]any(d), nil)
}

func (s *shape) checkObject(obj map[string]any, at []string) error {
	for _, k := range sortedKeys(obj) {
		loc := append(append([]string(nil), at...), k)
		child, ok := s.fields[k]
		if !ok {
			return fmt.Errorf("%w: unknown field %s", ErrInvalidDelta, strings.Join(loc, "."))
		}
		if err := child.check(obj[k], loc); err != nil {
			return err
		}
	}
	return nil
}

func (s *shape) check(v any, loc []string) error {
	if v == nil {
		return nil
	}
	switch s.kind {
	case shapeObject:
		obj, ok := asMap(v)
		if !ok {
			return wrongKind(loc, "an object")
		}
		return s.checkObject(obj, loc)
	case shapeLeaf:
		if !isLeaf(v) {
			return wrongKind(loc, "a single value")
		}
	case shapeList:
		items, ok := asList(v)
		if !ok {
			return wrongKind(loc, "a list")
		}
		for i, it := range items {
			if it != nil && !isLeaf(it) {
				return wrongKind(append(loc, strconv.Itoa(i)), "a single value")
			}
		}
	case shapeRows:
		items, ok := asList(v)
		if !ok {
			return wrongKind(loc, "a list of rows")
		}
		for i, it := range items {
			if it == nil {
				continue
			}
			at := append(append([]string(nil), loc...), strconv.Itoa(i))
			row, ok := asMap(it)
			if !ok {
				return wrongKind(at, "a row object")
			}
			if err := s.checkObject(row, at); err != nil {
				return err
			}
		}
	}
	return nil
}

func wrongKind(loc []string, want string) error {
	return fmt.Errorf("%w: %s must be %s", ErrInvalidDelta, strings.Join(loc, "."), want)
}

func asList(v any) ([]any, bool) {
	switch v.(type) {
	case []any, []string:
		return asSlice(v), true
	}
	return nil, false
}

func isLeaf(v any) bool {
	switch v.(type) {
	case string, bool, json.Number, float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	}
	return false
}
