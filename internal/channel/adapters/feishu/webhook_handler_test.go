package feishu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
)

type fakeRelayer struct {
	mu      sync.Mutex
	batches []batch.Batch
	auths   []batch.AuthContext
}

func (r *fakeRelayer) Relay(_ context.Context, b batch.Batch, auth batch.AuthContext) batch.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	r.auths = append(r.auths, auth)
	return batch.Record{ID: "rec-1", Events: b.Len()}
}

func newWebhookHandler(t *testing.T, cfg Config, relayer channel.Relayer) *WebhookHandler {
	t.Helper()
	adapter, err := NewFeishuAdapter(nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewWebhookHandler(nil, adapter, relayer, channel.NewAuthIssuer("ns", "", 0))
}

func postWebhook(h *WebhookHandler, body string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, webhookPath, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h.Handle(e.NewContext(req, rec))
}

var testCredentials = Config{AppID: "app", AppSecret: "secret", VerificationToken: "verify-token"}

func TestWebhookHandler_URLVerification(t *testing.T) {
	t.Parallel()

	relayer := &fakeRelayer{}
	h := newWebhookHandler(t, testCredentials, relayer)

	rec, err := postWebhook(h, `{"schema":"2.0","header":{"event_type":"im.message.receive_v1","token":"verify-token"},"type":"url_verification","challenge":"hello"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"challenge":"hello"`) {
		t.Fatalf("unexpected challenge response: %s", rec.Body.String())
	}
	if len(relayer.batches) != 0 {
		t.Fatalf("expected no relayed batches, got %d", len(relayer.batches))
	}
}

func TestWebhookHandler_Probe(t *testing.T) {
	t.Parallel()

	h := newWebhookHandler(t, testCredentials, &fakeRelayer{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, webhookPath, nil)
	rec := httptest.NewRecorder()
	if err := h.HandleProbe(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Fatalf("unexpected probe response: %q", rec.Body.String())
	}
}

func TestWebhookHandler_EventCallbackRelaysBatch(t *testing.T) {
	t.Parallel()

	relayer := &fakeRelayer{}
	h := newWebhookHandler(t, testCredentials, relayer)

	body := `{"schema":"2.0","header":{"event_id":"evt_1","event_type":"im.message.receive_v1","token":"verify-token"},"event":{"sender":{"sender_id":{"open_id":"ou_user_1","user_id":"u_user_1"}},"message":{"message_id":"om_1","chat_id":"oc_1","chat_type":"p2p","message_type":"text","create_time":"1700000000000","content":"{\"text\":\"hello\"}"}},"type":"event_callback"}`
	rec, err := postWebhook(h, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if len(relayer.batches) != 1 {
		t.Fatalf("expected one relayed batch, got %d", len(relayer.batches))
	}
	got := relayer.batches[0]
	if got.Entries[0].ID != "evt_1" {
		t.Fatalf("unexpected entry id: %s", got.Entries[0].ID)
	}
	events := got.Events()
	if len(events) != 1 || events[0].SenderID != "ou_user_1" || events[0].RecipientID != "oc_1" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if relayer.auths[0].Provider() != "feishu" {
		t.Fatalf("unexpected provider: %s", relayer.auths[0].Provider())
	}

	turn, err := h.adapter.Decode(events[0].Payload)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if turn.Text != "hello" {
		t.Fatalf("unexpected text: %q", turn.Text)
	}
}

func TestWebhookHandler_EventCallbackRejectsInvalidTokenWhenEncryptKeyMissing(t *testing.T) {
	t.Parallel()

	relayer := &fakeRelayer{}
	h := newWebhookHandler(t, testCredentials, relayer)

	body := `{"schema":"2.0","header":{"event_id":"evt_1","event_type":"im.message.receive_v1","token":"wrong-token"},"event":{"message":{"message_id":"om_1","chat_id":"oc_1","chat_type":"p2p","message_type":"text","content":"{\"text\":\"hello\"}"}},"type":"event_callback"}`
	_, err := postWebhook(h, body)
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(relayer.batches) != 0 {
		t.Fatalf("expected no relayed batches, got %d", len(relayer.batches))
	}
}

func TestWebhookHandler_EventCallbackRequiresVerificationTokenWhenEncryptKeyMissing(t *testing.T) {
	t.Parallel()

	h := newWebhookHandler(t, Config{AppID: "app", AppSecret: "secret"}, &fakeRelayer{})
	body := `{"schema":"2.0","header":{"event_id":"evt_1","event_type":"im.message.receive_v1","token":"any"},"event":{},"type":"event_callback"}`
	_, err := postWebhook(h, body)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWebhookHandler_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	h := newWebhookHandler(t, testCredentials, &fakeRelayer{})
	_, err := postWebhook(h, strings.Repeat("x", channel.WebhookBodyLimit+1))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected error: %v", err)
	}
}
