package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/healthcheck"
	"github.com/memohai/relay/internal/pipeline"
)

const testSecret = "test-secret"

type stubAdapter struct{ channelType channel.ChannelType }

func (a stubAdapter) Type() channel.ChannelType { return a.channelType }

func (a stubAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        a.channelType,
		DisplayName: strings.ToUpper(a.channelType.String()),
		WebhookPath: "/channels/" + a.channelType.String() + "/webhook",
	}
}

func newTestRegistry(t *testing.T) *channel.Registry {
	t.Helper()
	reg := channel.NewRegistry()
	reg.MustRegister(stubAdapter{channelType: "messenger"})
	reg.MustRegister(stubAdapter{channelType: "telegram"})
	return reg
}

func newTestService(t *testing.T) *batch.Service {
	t.Helper()
	pipelines := pipeline.NewRegistry(nil)
	pipelines.MustRegister("echo", func(_ context.Context, params map[string]any) (map[string]any, error) {
		if params["kind"] == "bad" {
			return nil, errors.New("rejected")
		}
		return map[string]any{"provider": params["provider"]}, nil
	})
	engine := batch.NewEngine(nil, pipelines)
	return batch.NewService(nil, engine, batch.NewHistory(10), "echo")
}

func operatorContext(t *testing.T, e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) echo.Context {
	t.Helper()
	c := e.NewContext(req, rec)
	signed, _, err := auth.GenerateToken("ops", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	token, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte(testSecret), nil })
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	c.Set("user", token)
	return c
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	return httpErr.Code
}

func TestBatchesDispatch(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	h := NewBatchesHandler(nil, svc, newTestRegistry(t), channel.NewAuthIssuer("acme", testSecret, time.Minute))
	e := echo.New()

	body := `{"provider":"Messenger","entries":[{"id":"e1","events":[
		{"sender_id":"u1","recipient_id":"p1","timestamp":2,"payload":{"kind":"ok"}},
		{"sender_id":"u1","recipient_id":"p1","timestamp":1,"payload":{"kind":"bad"}}
	]}]}`
	req := httptest.NewRequest(http.MethodPost, "/batches/dispatch", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Dispatch(operatorContext(t, e, req, rec)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got batch.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.Provider != "messenger" || got.Pipeline != "echo" {
		t.Fatalf("unexpected record header: %+v", got)
	}
	if len(got.Report.SuccessfulInvocations) != 1 || len(got.Report.FailedInvocations) != 1 {
		t.Fatalf("unexpected report: %+v", got.Report)
	}
	if _, ok := svc.History().Get(got.ID); !ok {
		t.Fatalf("record %s missing from history", got.ID)
	}
}

func TestBatchesDispatchRejectsBadRequests(t *testing.T) {
	t.Parallel()

	h := NewBatchesHandler(nil, newTestService(t), newTestRegistry(t), channel.NewAuthIssuer("", "", 0))
	e := echo.New()

	cases := []struct {
		name string
		body string
	}{
		{name: "no entries", body: `{"provider":"messenger","entries":[]}`},
		{name: "unknown provider", body: `{"provider":"pager","entries":[{"events":[{"sender_id":"a","recipient_id":"b"}]}]}`},
		{name: "malformed json", body: `{"provider":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/batches/dispatch", strings.NewReader(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			err := h.Dispatch(operatorContext(t, e, req, httptest.NewRecorder()))
			if code := httpStatus(t, err); code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", code)
			}
		})
	}
}

func TestBatchesListAndGet(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	first := svc.Relay(context.Background(), batch.Batch{Entries: []batch.Entry{{Events: []batch.Event{{SenderID: "a", RecipientID: "b"}}}}}, batch.NewAuthContext("ns", "telegram", "", nil))
	svc.Relay(context.Background(), batch.Batch{}, batch.NewAuthContext("ns", "telegram", "", nil))

	h := NewBatchesHandler(nil, svc, newTestRegistry(t), channel.NewAuthIssuer("", "", 0))
	e := echo.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/batches?limit=1", nil)
	if err := h.List(operatorContext(t, e, req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	var records []batch.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec = httptest.NewRecorder()
	c := operatorContext(t, e, httptest.NewRequest(http.MethodGet, "/batches/"+first.ID, nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(first.ID)
	if err := h.Get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(rec.Body.String(), first.ID) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	c = operatorContext(t, e, httptest.NewRequest(http.MethodGet, "/batches/missing", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")
	if code := httpStatus(t, h.Get(c)); code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}

	bad := operatorContext(t, e, httptest.NewRequest(http.MethodGet, "/batches?limit=-1", nil), httptest.NewRecorder())
	if code := httpStatus(t, h.List(bad)); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}

func TestBatchesRequireOperatorToken(t *testing.T) {
	t.Parallel()

	h := NewBatchesHandler(nil, newTestService(t), newTestRegistry(t), channel.NewAuthIssuer("", "", 0))
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/batches", nil), httptest.NewRecorder())
	if code := httpStatus(t, h.List(c)); code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
}

func TestChannelHandler(t *testing.T) {
	t.Parallel()

	h := NewChannelHandler(newTestRegistry(t))
	e := echo.New()

	rec := httptest.NewRecorder()
	if err := h.ListChannels(operatorContext(t, e, httptest.NewRequest(http.MethodGet, "/channels", nil), rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	var descs []channel.Descriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &descs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(descs) != 2 || descs[0].Type != "messenger" {
		t.Fatalf("unexpected descriptors: %+v", descs)
	}

	rec = httptest.NewRecorder()
	c := operatorContext(t, e, httptest.NewRequest(http.MethodGet, "/channels/telegram", nil), rec)
	c.SetParamNames("platform")
	c.SetParamValues("telegram")
	if err := h.GetChannel(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "/channels/telegram/webhook") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	c = operatorContext(t, e, httptest.NewRequest(http.MethodGet, "/channels/pager", nil), httptest.NewRecorder())
	c.SetParamNames("platform")
	c.SetParamValues("pager")
	if code := httpStatus(t, h.GetChannel(c)); code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	h := NewPingHandler(nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/ping", nil), rec)
	if err := h.Ping(c); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

type staticChecker []healthcheck.CheckResult

func (s staticChecker) ListChecks(context.Context) []healthcheck.CheckResult { return s }

func TestHealthChecks(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(nil,
		staticChecker{{ID: "a", Status: healthcheck.StatusOK}},
		staticChecker{{ID: "b", Status: healthcheck.StatusError, Summary: "down"}},
	)
	rec := httptest.NewRecorder()
	if err := h.Checks(operatorContext(t, echo.New(), httptest.NewRequest(http.MethodGet, "/health/checks", nil), rec)); err != nil {
		t.Fatalf("checks: %v", err)
	}
	var summary healthcheck.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Status != healthcheck.StatusError || len(summary.Checks) != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
