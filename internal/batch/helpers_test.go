package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/memohai/relay/internal/pipeline"
)

// fakeInvoker records dispatch order and concurrency. Payloads in these tests
// carry "sender", "recipient" and "text".
type fakeInvoker struct {
	mu        sync.Mutex
	calls     []map[string]any
	inFlight  map[string]int
	maxPerKey int
	active    int
	maxActive int
	seq       int

	before func(params map[string]any)
	fail   func(params map[string]any) error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{inFlight: map[string]int{}}
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, params map[string]any) (pipeline.Activation, error) {
	sender, _ := params["sender"].(string)
	recipient, _ := params["recipient"].(string)
	key := sender + "_" + recipient

	f.mu.Lock()
	f.seq++
	activationID := fmt.Sprintf("act-%d", f.seq)
	f.calls = append(f.calls, params)
	f.inFlight[key]++
	if f.inFlight[key] > f.maxPerKey {
		f.maxPerKey = f.inFlight[key]
	}
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight[key]--
		f.active--
		f.mu.Unlock()
	}()

	if f.before != nil {
		f.before(params)
	}
	if sender == "" {
		return pipeline.Activation{}, &pipeline.InvokeError{ActivationID: activationID, Message: "sender id is required"}
	}
	if recipient == "" {
		return pipeline.Activation{}, &pipeline.InvokeError{ActivationID: activationID, Message: "recipient id is required"}
	}
	if f.fail != nil {
		if err := f.fail(params); err != nil {
			return pipeline.Activation{}, &pipeline.InvokeError{ActivationID: activationID, Message: err.Error()}
		}
	}
	return pipeline.Activation{ID: activationID, Result: map[string]any{"text": params["text"]}}, nil
}

func (f *fakeInvoker) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		text, _ := call["text"].(string)
		out = append(out, text)
	}
	return out
}

func textsFor(calls []map[string]any, sender, recipient string) []string {
	out := []string{}
	for _, call := range calls {
		if call["sender"] == sender && call["recipient"] == recipient {
			text, _ := call["text"].(string)
			out = append(out, text)
		}
	}
	return out
}

func event(sender, recipient string, ts int64, text string) Event {
	payload := map[string]any{"text": text}
	if sender != "" {
		payload["sender"] = sender
	}
	if recipient != "" {
		payload["recipient"] = recipient
	}
	return Event{SenderID: sender, RecipientID: recipient, Timestamp: ts, Payload: payload}
}

var errInjected = errors.New("injected failure")

func testAuth() AuthContext {
	return NewAuthContext("ns-test", "messenger", "tok-test", map[string]string{"page_id": "P"})
}
