package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// LayoutISO is the calendar-day format of record keys.
const LayoutISO = "2006-01-02"

var validate = validator.New()

// Key identifies one daily record: a calendar day plus an optional secondary
// discriminant such as an equipment unit.
type Key struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Unit string `json:"key,omitempty" validate:"omitempty,max=64,printascii,excludesall=/"`
}

// ErrInvalidKey is returned for malformed dates or units.
var ErrInvalidKey = errors.New("ledger: invalid record key")

// ParseKey validates and normalises a record key.
func ParseKey(date, unit string) (Key, error) {
	k := Key{Date: strings.TrimSpace(date), Unit: strings.TrimSpace(unit)}
	if err := validate.Struct(k); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// KeyFor returns the key of the calendar day containing t.
func KeyFor(t time.Time, unit string) Key {
	return Key{Date: t.Format(LayoutISO), Unit: strings.TrimSpace(unit)}
}

// Time returns the day the key addresses.
func (k Key) Time() (time.Time, error) {
	return time.Parse(LayoutISO, k.Date)
}

func (k Key) String() string {
	if k.Unit == "" {
		return k.Date
	}
	return k.Date + "/" + k.Unit
}

// IsZero reports whether no date has been selected.
func (k Key) IsZero() bool { return k.Date == "" }

// Document is the stored (wire-shaped) tree of one table: nested objects,
// arrays, and scalar leaves as produced by encoding/json.
type Document map[string]any

// Clone deep-copies the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

// Lookup returns the value at the wire location below section.
func (d Document) Lookup(section Section, wire ...string) (any, bool) {
	return lookup(map[string]any(d), append([]string{string(section)}, wire...))
}

// IsEmpty reports whether the document holds no non-blank value.
func (d Document) IsEmpty() bool {
	return IsBlank(map[string]any(d))
}

// Record is the aggregate daily record shared by every table of a workflow.
type Record struct {
	Key     Key
	Tables  map[int]Document
	Updated time.Time
}

// NewRecord returns an empty record for key.
func NewRecord(key Key) *Record {
	return &Record{Key: key, Tables: make(map[int]Document)}
}

// Table returns the document of table num, or nil.
func (r *Record) Table(num int) Document {
	if r == nil || r.Tables == nil {
		return nil
	}
	return r.Tables[num]
}

// IsEmpty treats a record with no committed values like a missing one.
func (r *Record) IsEmpty() bool {
	if r == nil {
		return true
	}
	for _, doc := range r.Tables {
		if !doc.IsEmpty() {
			return false
		}
	}
	return true
}

// Clone deep-copies the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{Key: r.Key, Updated: r.Updated, Tables: make(map[int]Document, len(r.Tables))}
	for n, doc := range r.Tables {
		out.Tables[n] = doc.Clone()
	}
	return out
}

const tablePrefix = "table"

// MarshalJSON renders the record as {"date", "key", "updatedAt", "table1", ...}.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Tables)+3)
	out["date"] = r.Key.Date
	if r.Key.Unit != "" {
		out["key"] = r.Key.Unit
	}
	if !r.Updated.IsZero() {
		out["updatedAt"] = r.Updated.UTC().Format(time.RFC3339Nano)
	}
	for n, doc := range r.Tables {
		if doc == nil {
			continue
		}
		out[tablePrefix+strconv.Itoa(n)] = map[string]any(doc)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown keys are ignored.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	rec := Record{Tables: make(map[int]Document)}
	for k, v := range raw {
		switch {
		case k == "date":
			if err := json.Unmarshal(v, &rec.Key.Date); err != nil {
				return fmt.Errorf("ledger: record date: %w", err)
			}
		case k == "key":
			if err := json.Unmarshal(v, &rec.Key.Unit); err != nil {
				return fmt.Errorf("ledger: record key: %w", err)
			}
		case k == "updatedAt":
			var s string
			if err := json.Unmarshal(v, &s); err == nil && s != "" {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					rec.Updated = t
				}
			}
		case strings.HasPrefix(k, tablePrefix):
			n, err := strconv.Atoi(strings.TrimPrefix(k, tablePrefix))
			if err != nil || n <= 0 {
				continue
			}
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("ledger: %s: %w", k, err)
			}
			rec.Tables[n] = doc
		}
	}
	*r = rec
	return nil
}

// IsBlank reports whether v carries no information: nil, whitespace-only
// strings, and containers holding only blank values.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		for _, x := range t {
			if !IsBlank(x) {
				return false
			}
		}
		return true
	case Document:
		return IsBlank(map[string]any(t))
	case []any:
		for _, x := range t {
			if !IsBlank(x) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Text renders a stored leaf for display and editing.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, p := range path {
		obj, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func assign(m map[string]any, path []string, v any) {
	cur := m
	for _, p := range path[:len(path)-1] {
		next, ok := asMap(cur[p])
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = v
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return map[string]any(t), true
	}
	return nil, false
}

func asSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case Document:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []string:
		return cloneValue(asSlice(t))
	default:
		return t
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
