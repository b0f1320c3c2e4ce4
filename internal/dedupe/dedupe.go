// Package dedupe removes repeated device records after the merge. Records
// are ordered by serial first so the survivor per key tuple does not
// depend on source row order.
package dedupe

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/fleetrecon/internal/merge"
)

// Dedupe returns the survivors after keeping the first record per key
// tuple, plus the number of records removed. Records are stable-sorted by
// serial ascending before selection; the input slice is not modified.
// Keys name record fields (serial, model, subsidiary); an empty key list
// disables deduplication.
func Dedupe(records []merge.Merged, keys []string) ([]merge.Merged, int) {
	out := make([]merge.Merged, len(records))
	copy(out, records)

	if len(keys) == 0 {
		return out, 0
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Device.Serial < out[j].Device.Serial
	})

	seen := make(map[string]bool, len(out))
	survivors := out[:0]
	removed := 0
	for _, rec := range out {
		k := keyTuple(rec, keys)
		if seen[k] {
			removed++
			continue
		}
		seen[k] = true
		survivors = append(survivors, rec)
	}
	return survivors, removed
}

// keyTuple builds the composite dedup key. Fields unknown to the record
// contribute an empty component.
func keyTuple(rec merge.Merged, keys []string) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fieldValue(rec, key)
	}
	return strings.Join(parts, "\x00")
}

func fieldValue(rec merge.Merged, key string) string {
	switch key {
	case "serial":
		return rec.Device.Serial
	case "model":
		return rec.Device.Model
	case "subsidiary":
		return rec.Device.Subsidiary
	default:
		return ""
	}
}
