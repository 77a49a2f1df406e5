package ledger

import "sort"

// LockMap is the set of paths that already hold a non-blank value in the last
// fetched record. It is derived, never persisted.
type LockMap struct {
	paths map[string]FieldPath
}

// NewLockMap builds a lock map from explicit paths.
func NewLockMap(paths ...FieldPath) LockMap {
	m := LockMap{paths: make(map[string]FieldPath, len(paths))}
	for _, p := range paths {
		m.paths[p.String()] = p
	}
	return m
}

// DeriveLockMap walks every scalar and sequence of t and locks the paths that
// hold a non-blank value in doc. A nil or empty doc yields an empty map.
func DeriveLockMap(t *Table, doc Document) LockMap {
	m := NewLockMap()
	if doc == nil {
		return m
	}
	for si := range t.Sections {
		sec := &t.Sections[si]
		for _, sc := range sec.Scalars {
			if v, ok := doc.Lookup(sec.Section, sc.Wire...); ok && !IsBlank(v) {
				m.add(ScalarPath(sec.Section, sc.Name))
			}
		}
		for i := range sec.Sequences {
			seq := &sec.Sequences[i]
			switch seq.Layout {
			case Columnar:
				for c, col := range seq.Columns {
					v, _ := doc.Lookup(sec.Section, col.Wire...)
					for idx, cell := range asSlice(v) {
						if !IsBlank(cell) {
							m.add(cellPath(sec.Section, seq, idx, c))
						}
					}
				}
			case Objects:
				v, _ := doc.Lookup(sec.Section, seq.Wire...)
				for idx, row := range asSlice(v) {
					if !rowBlank(seq, row) {
						m.add(SeqPath(sec.Section, seq.Name, idx))
					}
				}
			}
		}
	}
	return m
}

// rowBlank ignores the sequence tag: a row carrying only its number holds no
// measurement.
func rowBlank(seq *Sequence, row any) bool {
	obj, ok := asMap(row)
	if !ok {
		return IsBlank(row)
	}
	for k, v := range obj {
		if k == seq.Tag {
			continue
		}
		if !IsBlank(v) {
			return false
		}
	}
	return true
}

func (m *LockMap) add(p FieldPath) {
	if m.paths == nil {
		m.paths = make(map[string]FieldPath)
	}
	m.paths[p.String()] = p
}

// Contains reports whether exactly p is locked.
func (m LockMap) Contains(p FieldPath) bool {
	_, ok := m.paths[p.String()]
	return ok
}

// Locked reports whether p, or the row it belongs to, is locked.
func (m LockMap) Locked(p FieldPath) bool {
	if m.Contains(p) {
		return true
	}
	return p.Column != "" && m.Contains(p.Row())
}

// Len is the number of locked paths.
func (m LockMap) Len() int { return len(m.paths) }

// Paths lists the locked paths in string order.
func (m LockMap) Paths() []FieldPath {
	keys := make([]string, 0, len(m.paths))
	for k := range m.paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]FieldPath, len(keys))
	for i, k := range keys {
		out[i] = m.paths[k]
	}
	return out
}

// IsSupersetOf reports whether every path locked in o is locked in m.
func (m LockMap) IsSupersetOf(o LockMap) bool {
	for k := range o.paths {
		if _, ok := m.paths[k]; !ok {
			return false
		}
	}
	return true
}
