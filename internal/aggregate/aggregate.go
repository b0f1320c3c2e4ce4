// Package aggregate groups lifecycle records along configured dimensions
// and produces per-bucket and whole-run statistics. TTF statistics are
// computed over non-null values only and reported as null, never zero,
// when a bucket carries no TTF-bearing record.
package aggregate

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/fleetrecon/internal/lifecycle"
)

// Bucket is one group of records sharing a dimension-value tuple.
// TTFCount and AgeCount are the sample sizes behind the statistics; they
// also make buckets combinable (see CollapseLongTail).
type Bucket struct {
	// Key holds the dimension values in configured dimension order.
	Key   []string `json:"key"`
	Count int      `json:"count"`

	MeanTTFDays *float64 `json:"mean_ttf_days"`
	MinTTFDays  *int     `json:"min_ttf_days"`
	MaxTTFDays  *int     `json:"max_ttf_days"`
	TTFCount    int      `json:"ttf_count"`

	MeanAgeDays *float64 `json:"mean_age_days"`
	AgeCount    int      `json:"age_count"`
}

// Aggregate buckets records by the given dimension fields (model,
// subsidiary). Records with an empty dimension value bucket under the
// empty string rather than being dropped. Buckets sort by count
// descending, ties by key ascending.
func Aggregate(records []lifecycle.Record, dims []string) []Bucket {
	type accum struct {
		bucket Bucket
		ttfSum float64
		ageSum float64
	}

	byKey := make(map[string]*accum)
	order := make([]string, 0)

	for _, rec := range records {
		key := dimensionKey(rec, dims)
		joined := strings.Join(key, "\x00")
		acc, ok := byKey[joined]
		if !ok {
			acc = &accum{bucket: Bucket{Key: key}}
			byKey[joined] = acc
			order = append(order, joined)
		}
		acc.bucket.Count++
		if ttf := rec.TimeToFailureDays; ttf != nil {
			acc.ttfSum += float64(*ttf)
			acc.bucket.TTFCount++
			if acc.bucket.MinTTFDays == nil || *ttf < *acc.bucket.MinTTFDays {
				v := *ttf
				acc.bucket.MinTTFDays = &v
			}
			if acc.bucket.MaxTTFDays == nil || *ttf > *acc.bucket.MaxTTFDays {
				v := *ttf
				acc.bucket.MaxTTFDays = &v
			}
		}
		if age := rec.AgeSinceInstallationDays; age != nil {
			acc.ageSum += float64(*age)
			acc.bucket.AgeCount++
		}
	}

	out := make([]Bucket, 0, len(byKey))
	for _, joined := range order {
		acc := byKey[joined]
		if acc.bucket.TTFCount > 0 {
			mean := acc.ttfSum / float64(acc.bucket.TTFCount)
			acc.bucket.MeanTTFDays = &mean
		}
		if acc.bucket.AgeCount > 0 {
			mean := acc.ageSum / float64(acc.bucket.AgeCount)
			acc.bucket.MeanAgeDays = &mean
		}
		out = append(out, acc.bucket)
	}

	sortBuckets(out)
	return out
}

// CollapseLongTail folds buckets whose count share falls below threshold
// into a single bucket carrying label in the first key component. Bucket
// statistics combine exactly (weighted means, min/max); per-record data is
// untouched. A non-positive threshold returns the input unchanged.
func CollapseLongTail(buckets []Bucket, threshold float64, label string) []Bucket {
	if threshold <= 0 || len(buckets) == 0 {
		return buckets
	}

	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	if total == 0 {
		return buckets
	}

	width := len(buckets[0].Key)
	other := Bucket{Key: otherKey(width, label)}
	var ttfSum, ageSum float64

	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		share := float64(b.Count) / float64(total)
		if share >= threshold {
			out = append(out, b)
			continue
		}
		other.Count += b.Count
		if b.TTFCount > 0 {
			ttfSum += *b.MeanTTFDays * float64(b.TTFCount)
			other.TTFCount += b.TTFCount
			if other.MinTTFDays == nil || *b.MinTTFDays < *other.MinTTFDays {
				v := *b.MinTTFDays
				other.MinTTFDays = &v
			}
			if other.MaxTTFDays == nil || *b.MaxTTFDays > *other.MaxTTFDays {
				v := *b.MaxTTFDays
				other.MaxTTFDays = &v
			}
		}
		if b.AgeCount > 0 {
			ageSum += *b.MeanAgeDays * float64(b.AgeCount)
			other.AgeCount += b.AgeCount
		}
	}

	if other.Count == 0 {
		return out
	}
	if other.TTFCount > 0 {
		mean := ttfSum / float64(other.TTFCount)
		other.MeanTTFDays = &mean
	}
	if other.AgeCount > 0 {
		mean := ageSum / float64(other.AgeCount)
		other.MeanAgeDays = &mean
	}

	out = append(out, other)
	sortBuckets(out)
	return out
}

// dimensionKey extracts the record's value tuple for the dimensions.
func dimensionKey(rec lifecycle.Record, dims []string) []string {
	key := make([]string, len(dims))
	for i, dim := range dims {
		switch dim {
		case "serial":
			key[i] = rec.Device.Serial
		case "model":
			key[i] = rec.Device.Model
		case "subsidiary":
			key[i] = rec.Device.Subsidiary
		default:
			key[i] = ""
		}
	}
	return key
}

func otherKey(width int, label string) []string {
	key := make([]string, width)
	if width > 0 {
		key[0] = label
	}
	return key
}

// sortBuckets orders by count descending, ties by key ascending.
func sortBuckets(buckets []Bucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return keyLess(buckets[i].Key, buckets[j].Key)
	})
}

func keyLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
