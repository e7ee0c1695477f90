package batch

import (
	"cmp"
	"slices"
)

// Partition groups events by conversation key and orders every partition by
// timestamp. The sort is stable, so equal timestamps keep arrival order. The
// input slice is not modified.
func Partition(events []Event) map[Key][]Event {
	partitions := make(map[Key][]Event)
	for _, ev := range events {
		key := KeyOf(ev)
		partitions[key] = append(partitions[key], ev)
	}
	for _, bucket := range partitions {
		slices.SortStableFunc(bucket, func(a, b Event) int {
			return cmp.Compare(a.Timestamp, b.Timestamp)
		})
	}
	return partitions
}

// Keys returns the partition keys in sorted order.
func Keys(partitions map[Key][]Event) []Key {
	keys := make([]Key, 0, len(partitions))
	for key := range partitions {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
