package batch

import "strings"

// MissingID stands in for an absent sender or recipient id in a partition key.
// Such events are still partitioned and dispatched; the pipeline rejects them.
const MissingID = "undefined"

const keySeparator = "_"

// Event is one inbound message or notification from a channel.
type Event struct {
	SenderID    string         `json:"sender_id"`
	RecipientID string         `json:"recipient_id"`
	Timestamp   int64          `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Key identifies a conversation partition.
type Key string

func (k Key) String() string {
	return string(k)
}

// KeyOf derives the partition key of an event.
func KeyOf(ev Event) Key {
	return Key(idOrMissing(ev.SenderID) + keySeparator + idOrMissing(ev.RecipientID))
}

func idOrMissing(id string) string {
	if strings.TrimSpace(id) == "" {
		return MissingID
	}
	return id
}

// Entry is one top-level entry of a delivery.
type Entry struct {
	ID     string  `json:"id,omitempty"`
	Events []Event `json:"events"`
}

// Batch is one webhook delivery.
type Batch struct {
	Entries []Entry `json:"entries"`
}

// Events flattens all entries' events in delivery order.
func (b Batch) Events() []Event {
	events := make([]Event, 0, b.Len())
	for _, entry := range b.Entries {
		events = append(events, entry.Events...)
	}
	return events
}

// Len returns the total number of events across entries.
func (b Batch) Len() int {
	n := 0
	for _, entry := range b.Entries {
		n += len(entry.Events)
	}
	return n
}

// Status tags a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome of dispatching one event.
type Result struct {
	Status       Status         `json:"status"`
	Key          Key            `json:"key"`
	ActivationID string         `json:"activation_id,omitempty"`
	Response     map[string]any `json:"response,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// OK reports whether the dispatch succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Report aggregates the results of one batch.
type Report struct {
	SuccessfulInvocations []Result `json:"successfulInvocations"`
	FailedInvocations     []Result `json:"failedInvocations"`
}

// Total returns the number of results in the report.
func (r Report) Total() int {
	return len(r.SuccessfulInvocations) + len(r.FailedInvocations)
}
