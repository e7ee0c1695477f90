package batch

import (
	"reflect"
	"testing"
)

func TestKeyOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ev   Event
		want Key
	}{
		{name: "both ids", ev: Event{SenderID: "S", RecipientID: "P"}, want: "S_P"},
		{name: "missing sender", ev: Event{RecipientID: "P"}, want: "undefined_P"},
		{name: "missing recipient", ev: Event{SenderID: "S"}, want: "S_undefined"},
		{name: "blank sender", ev: Event{SenderID: "  ", RecipientID: "P"}, want: "undefined_P"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KeyOf(tc.ev); got != tc.want {
				t.Fatalf("KeyOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPartitionGroupsEveryEventOnce(t *testing.T) {
	t.Parallel()

	events := []Event{
		event("S1", "P", 3, "a"),
		event("S2", "P", 1, "b"),
		event("S1", "P", 2, "c"),
		event("S1", "Q", 1, "d"),
		event("", "P", 1, "e"),
	}
	partitions := Partition(events)

	if len(partitions) != 4 {
		t.Fatalf("expected 4 partitions, got %d", len(partitions))
	}
	total := 0
	for key, bucket := range partitions {
		total += len(bucket)
		for _, ev := range bucket {
			if KeyOf(ev) != key {
				t.Fatalf("event with key %q filed under %q", KeyOf(ev), key)
			}
		}
	}
	if total != len(events) {
		t.Fatalf("expected %d events across partitions, got %d", len(events), total)
	}
	if len(partitions["undefined_P"]) != 1 {
		t.Fatalf("expected sender-less event under sentinel key, got %v", Keys(partitions))
	}
}

func TestPartitionOrdersByTimestampStably(t *testing.T) {
	t.Parallel()

	events := []Event{
		event("S", "P", 5, "late"),
		event("S", "P", 1, "first-a"),
		event("S", "P", 3, "mid"),
		event("S", "P", 1, "first-b"),
		event("S", "P", 5, "late-b"),
	}
	bucket := Partition(events)["S_P"]
	got := make([]string, 0, len(bucket))
	for i, ev := range bucket {
		if i > 0 && bucket[i-1].Timestamp > ev.Timestamp {
			t.Fatalf("partition not ordered at %d", i)
		}
		got = append(got, ev.Payload["text"].(string))
	}
	want := []string{"first-a", "first-b", "mid", "late", "late-b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestPartitionIsPure(t *testing.T) {
	t.Parallel()

	events := []Event{
		event("S", "P", 2, "b"),
		event("S", "P", 1, "a"),
		event("T", "P", 1, "c"),
	}
	snapshot := append([]Event(nil), events...)

	first := Partition(events)
	second := Partition(events)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("partitioning twice differs:\n%v\n%v", first, second)
	}
	if !reflect.DeepEqual(events, snapshot) {
		t.Fatalf("input was modified: %v", events)
	}
}

func TestBatchEventsFlattensEntriesInOrder(t *testing.T) {
	t.Parallel()

	b := Batch{Entries: []Entry{
		{ID: "e1", Events: []Event{event("S", "P", 1, "a"), event("S", "P", 2, "b")}},
		{ID: "e2"},
		{ID: "e3", Events: []Event{event("T", "P", 1, "c")}},
	}}
	events := b.Events()
	if b.Len() != 3 || len(events) != 3 {
		t.Fatalf("expected 3 events, got Len=%d events=%d", b.Len(), len(events))
	}
	if events[2].Payload["text"] != "c" {
		t.Fatalf("unexpected flatten order: %v", events)
	}
}

func TestKeysSorted(t *testing.T) {
	t.Parallel()

	keys := Keys(map[Key][]Event{"b_P": nil, "a_P": nil, "c_P": nil})
	want := []Key{"a_P", "b_P", "c_P"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
}
