package ledger

import (
	"reflect"
	"strings"
)

// MergeReport summarises how a delta was folded into a stored document.
type MergeReport struct {
	// Accepted counts scalars written into previously unset locations.
	Accepted int `json:"accepted"`
	// Appended counts sequence entries added to the end of arrays.
	Appended int `json:"appended"`
	// Rejected lists dotted locations whose value was already set.
	Rejected []string `json:"rejected,omitempty"`
}

// Changed reports whether the merge altered the document.
func (r MergeReport) Changed() bool { return r.Accepted+r.Appended > 0 }

// Merge folds delta into a copy of existing following the storage contract:
// scalars are write-once registers, accepted only where the stored value is
// unset or blank; arrays are grow-only and only ever appended to; objects are
// merged key by key. Existing indices are never replaced, so deltas from
// independent sessions compose in any arrival order.
func Merge(existing, delta Document) (Document, MergeReport) {
	out := existing.Clone()
	if out == nil {
		out = Document{}
	}
	var rep MergeReport
	mergeInto(out, delta, nil, &rep)
	return out, rep
}

func mergeInto(dst map[string]any, src map[string]any, at []string, rep *MergeReport) {
	for _, k := range sortedKeys(src) {
		sv := src[k]
		loc := append(append([]string(nil), at...), k)
		dv, exists := dst[k]
		switch v := sv.(type) {
		case map[string]any, Document:
			obj, _ := asMap(v)
			if IsBlank(obj) {
				continue
			}
			target, ok := asMap(dv)
			if !ok {
				if exists && !IsBlank(dv) {
					rep.Rejected = append(rep.Rejected, strings.Join(loc, "."))
					continue
				}
				target = make(map[string]any)
				dst[k] = target
			}
			mergeInto(target, obj, loc, rep)
		case []any, []string:
			items := asSlice(v)
			if len(items) == 0 {
				continue
			}
			cur := asSlice(dv)
			if cur == nil && exists && !IsBlank(dv) {
				rep.Rejected = append(rep.Rejected, strings.Join(loc, "."))
				continue
			}
			grown := make([]any, 0, len(cur)+len(items))
			grown = append(grown, cur...)
			for _, it := range items {
				grown = append(grown, cloneValue(it))
			}
			dst[k] = grown
			rep.Appended += len(items)
		default:
			if IsBlank(sv) {
				continue
			}
			if exists && !IsBlank(dv) {
				if !reflect.DeepEqual(dv, sv) {
					rep.Rejected = append(rep.Rejected, strings.Join(loc, "."))
				}
				continue
			}
			dst[k] = sv
			rep.Accepted++
		}
	}
}
