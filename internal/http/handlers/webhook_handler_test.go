package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type webhookFixture struct {
	r        *gin.Engine
	verifier *stubVerifier
	disp     *stubDispatcher
	runner   *syncRunner
}

func newWebhookFixture(t *testing.T, valid bool) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		verifier: &stubVerifier{valid: valid},
		disp:     &stubDispatcher{},
		runner:   &syncRunner{},
	}
	h := New(Services{Verifier: f.verifier, Notifications: f.disp, Tasks: f.runner}, Options{})
	f.r = newEngine(t, identity{})
	f.r.POST("/webhooks/mercadopago", h.MercadoPagoWebhook)
	f.r.POST("/webhook", h.LegacyWebhook)
	f.r.POST("/webhooks/mercadopago/health", h.WebhookHealth)
	return f
}

func (f *webhookFixture) post(path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func TestWebhook_ValidSignature_AcksAndDispatches(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhooks/mercadopago", `{"type":"payment","data":{"id":12345}}`, map[string]string{"X-Signature": "abc"})
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
	if len(f.disp.got) != 1 {
		t.Fatalf("dispatched %d notifications", len(f.disp.got))
	}
	n := f.disp.got[0]
	if n.Topic() != "payment" || n.ResourceID() != "12345" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if len(f.runner.names) != 1 || f.runner.names[0] != "webhook_dispatch" {
		t.Fatalf("runner names=%v", f.runner.names)
	}
	if f.verifier.sigs[0] != "abc" {
		t.Fatalf("signature passed=%q", f.verifier.sigs[0])
	}
}

func TestWebhook_InvalidSignature_401NoDispatch(t *testing.T) {
	f := newWebhookFixture(t, false)

	w := f.post("/webhooks/mercadopago", `{"type":"payment","data":{"id":"1"}}`, map[string]string{"X-Signature": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeError(t, w); er.Code != ErrCodeInvalidSignature || er.Message != "invalid signature" {
		t.Fatalf("body=%+v", er)
	}
	if len(f.disp.got) != 0 {
		t.Fatalf("dispatch must not run on a rejected delivery")
	}
}

func TestWebhook_VerifierError_FailsClosed(t *testing.T) {
	f := newWebhookFixture(t, true)
	f.verifier.err = errors.New("bad hex")

	w := f.post("/webhooks/mercadopago", `{"type":"payment","data":{"id":"1"}}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	if len(f.disp.got) != 0 {
		t.Fatalf("unexpected dispatch")
	}
}

func TestWebhook_HookSignatureFallback(t *testing.T) {
	f := newWebhookFixture(t, true)

	f.post("/webhooks/mercadopago", `{"type":"payment","data":{"id":"1"}}`, map[string]string{"X-Hook-Signature": "legacy"})
	if len(f.verifier.sigs) != 1 || f.verifier.sigs[0] != "legacy" {
		t.Fatalf("signatures=%v", f.verifier.sigs)
	}
}

func TestWebhook_EmptyBodyOnMainRoute_400(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhooks/mercadopago", "  ", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWebhook_MalformedJSON_400(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhooks/mercadopago", `{"type":`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if len(f.disp.got) != 0 {
		t.Fatalf("unexpected dispatch")
	}
}

func TestWebhook_AliasReadsQuery(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhook?topic=merchant_order&id=777", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(f.disp.got) != 1 {
		t.Fatalf("dispatched %d", len(f.disp.got))
	}
	n := f.disp.got[0]
	if n.Topic() != "merchant_order" || n.ResourceID() != "777" {
		t.Fatalf("notification=%+v", n)
	}
}

func TestWebhook_AliasQueryOverridesBody(t *testing.T) {
	f := newWebhookFixture(t, true)

	f.post("/webhook?data.id=99", `{"type":"payment","data":{"id":"1"},"live_mode":true}`, nil)
	if len(f.disp.got) != 1 {
		t.Fatalf("dispatched %d", len(f.disp.got))
	}
	n := f.disp.got[0]
	if n.ResourceID() != "99" || n.Topic() != "payment" || !n.LiveMode {
		t.Fatalf("notification=%+v", n)
	}
}

func TestWebhook_AliasIgnoresMalformedBody(t *testing.T) {
	f := newWebhookFixture(t, true)

	// "action" has the wrong type, so decoding stops after "type".
	w := f.post("/webhook?data.id=99", `{"type":"merchant_order","action":5}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(f.disp.got) != 0 {
		t.Fatalf("half-decoded body leaked into the notification: %+v", f.disp.got)
	}

	f.post("/webhook?data.id=99&topic=payment", `{"type":`, nil)
	if len(f.disp.got) != 1 || f.disp.got[0].Topic() != "payment" || f.disp.got[0].ResourceID() != "99" {
		t.Fatalf("query notification not dispatched: %+v", f.disp.got)
	}
}

func TestWebhook_AliasEmpty_400(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhook", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWebhook_MainRouteIgnoresQuery(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhooks/mercadopago?topic=payment&id=1", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWebhook_NoResourceID_AckedNotDispatched(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhooks/mercadopago", `{"type":"payment"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(f.runner.names) != 0 {
		t.Fatalf("runner should not be used, got %v", f.runner.names)
	}
}

func TestWebhook_DispatchErrorStillAcked(t *testing.T) {
	f := newWebhookFixture(t, true)
	f.disp.err = errors.New("payment lookup failed")

	w := f.post("/webhooks/mercadopago", `{"action":"payment.updated","data":{"id":"5"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(f.runner.errs) != 1 {
		t.Fatalf("runner errs=%v", f.runner.errs)
	}
}

func TestWebhook_BodyTooLarge_400(t *testing.T) {
	f := newWebhookFixture(t, true)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 16)
		c.Next()
	})
	r.POST("/webhooks/mercadopago", New(Services{Verifier: f.verifier}, Options{}).MercadoPagoWebhook)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", strings.NewReader(strings.Repeat("x", 64)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if len(f.verifier.sigs) != 0 {
		t.Fatalf("verifier must not see a truncated body")
	}
}

func TestWebhookHealth(t *testing.T) {
	f := newWebhookFixture(t, true)

	w := f.post("/webhooks/mercadopago/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
