package ledger

import "strings"

// Payload is the minimal set of new values of one table, already shaped the
// way the storage engine stores the table.
type Payload struct {
	Table int
	Data  Document
	paths []FieldPath
}

// BuildDelta collects every editable, non-blank scalar and every new row with
// at least one non-blank cell. Committed paths are never included.
//
// Columnar row groups are sent rectangular: every column receives one cell
// per new row, and columns a legacy record left short are padded first, so
// all columns land on the same index when the server appends them.
func BuildDelta(s *State) Payload {
	p := Payload{Table: s.table.Num, Data: Document{}}
	for si := range s.table.Sections {
		sec := &s.table.Sections[si]
		for _, sc := range sec.Scalars {
			path := ScalarPath(sec.Section, sc.Name)
			slot := s.scalars[fieldKey(sec.Section, sc.Name)]
			if slot.readOnly || s.locks.Locked(path) || strings.TrimSpace(slot.value) == "" {
				continue
			}
			assign(p.Data, wirePath(sec.Section, sc.Wire), slot.value)
			p.paths = append(p.paths, path)
		}
		for i := range sec.Sequences {
			seq := &sec.Sequences[i]
			ss := s.seqs[fieldKey(sec.Section, seq.Name)]
			var fresh []Slot
			for idx := ss.committed; idx < len(ss.rows); idx++ {
				if s.rowLocked(ss, idx) || cellsBlank(ss.rows[idx].Cells) {
					continue
				}
				fresh = append(fresh, ss.rows[idx])
			}
			if len(fresh) == 0 {
				continue
			}
			switch seq.Layout {
			case Columnar:
				p.addColumnar(sec.Section, ss, fresh)
			case Objects:
				p.addObjects(sec.Section, ss, fresh)
			}
		}
	}
	return p
}

func (p *Payload) addColumnar(section Section, ss *sequenceState, fresh []Slot) {
	for c, col := range ss.spec.Columns {
		pad := ss.committed - ss.colCommitted[c]
		vals := make([]any, 0, pad+len(fresh))
		for i := 0; i < pad; i++ {
			vals = append(vals, "")
		}
		for j, row := range fresh {
			vals = append(vals, row.Cells[c])
			if strings.TrimSpace(row.Cells[c]) != "" {
				p.paths = append(p.paths, SeqPath(section, col.Name, ss.committed+j))
			}
		}
		assign(p.Data, wirePath(section, col.Wire), vals)
	}
}

func (p *Payload) addObjects(section Section, ss *sequenceState, fresh []Slot) {
	vals := make([]any, 0, len(fresh))
	for j, row := range fresh {
		obj := make(map[string]any, len(row.Cells)+1)
		for c, col := range ss.spec.Columns {
			assign(obj, col.Wire, row.Cells[c])
		}
		if ss.spec.Tag != "" {
			obj[ss.spec.Tag] = ss.committed + j + 1
		}
		vals = append(vals, obj)
		p.paths = append(p.paths, SeqPath(section, ss.spec.Name, ss.committed+j))
	}
	assign(p.Data, wirePath(section, ss.spec.Wire), vals)
}

func wirePath(section Section, wire []string) []string {
	return append([]string{string(section)}, wire...)
}

// Empty reports whether the payload carries nothing new.
func (p Payload) Empty() bool { return len(p.paths) == 0 }

// Paths lists the lock-map paths the payload will commit.
func (p Payload) Paths() []FieldPath {
	return append([]FieldPath(nil), p.paths...)
}

// Body renders the request body expected by the storage engine:
// {tableNum, data: {...delta, date, key}}.
func (p Payload) Body(key Key) map[string]any {
	data := map[string]any(p.Data.Clone())
	if data == nil {
		data = make(map[string]any)
	}
	data["date"] = key.Date
	if key.Unit != "" {
		data["key"] = key.Unit
	}
	return map[string]any{
		"tableNum": p.Table,
		"data":     data,
	}
}
