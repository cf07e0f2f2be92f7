package billing

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/menushield/menushield/internal/auditlog"
)

const testWebhookSecret = "whsec_test_secret"

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	handler := NewWebhookHandler(testWebhookSecret, NewReconciler(reg, nil, audit))

	payload := `{"id":"evt_bad_sig","object":"event","type":"checkout.session.completed","data":{"object":{}}}`
	req := signedWebhookRequest(t, "whsec_wrong_secret", payload)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%q", rec.Code, rec.Body.String())
	}

	entries, err := audit.ListRecent(10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != auditlog.OutcomeRejected {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestWebhookMissingSignatureHeader(t *testing.T) {
	reg := newTestRegistry(t)
	handler := NewWebhookHandler(testWebhookSecret, NewReconciler(reg, nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	reg := newTestRegistry(t)
	handler := NewWebhookHandler(testWebhookSecret, NewReconciler(reg, nil, nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stripe/webhook", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookSecretNotConfigured(t *testing.T) {
	reg := newTestRegistry(t)
	handler := NewWebhookHandler("", NewReconciler(reg, nil, nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader([]byte("{}"))))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestWebhookCheckoutCompletedEndToEnd(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	handler := NewWebhookHandler(testWebhookSecret, NewReconciler(reg, nil, audit))
	createTestRestaurant(t, reg, "r1")

	payload := `{"id":"evt_checkout_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1","metadata":{"restaurant_id":"r1","plan":"pro"}}}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%q", rec.Code, rec.Body.String())
	}

	rest, err := reg.GetRestaurant("r1")
	if err != nil || rest == nil {
		t.Fatalf("GetRestaurant: %v, %v", rest, err)
	}
	if rest.StripeCustomerID != "cus_1" || rest.Plan != "pro" || rest.SubscriptionStatus != "active" {
		t.Fatalf("billing state = %+v", rest)
	}

	// Stripe redelivers on timeouts. The same event must ack again without drift.
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, signedWebhookRequest(t, testWebhookSecret, payload))
	if rec2.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", rec2.Code)
	}
	rest2, _ := reg.GetRestaurant("r1")
	if rest2.StripeCustomerID != "cus_1" || rest2.Plan != "pro" {
		t.Fatalf("state drifted on redelivery: %+v", rest2)
	}
}

func TestWebhookSubscriptionDeletedAcksUnknownCustomer(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	handler := NewWebhookHandler(testWebhookSecret, NewReconciler(reg, nil, audit))
	createTestRestaurant(t, reg, "r1")

	payload := `{"id":"evt_del_1","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_gone","customer":"cus_never_seen"}}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 ack, body=%q", rec.Code, rec.Body.String())
	}

	rest, _ := reg.GetRestaurant("r1")
	if rest.SubscriptionStatus != "" {
		t.Fatalf("unlinked restaurant touched: %+v", rest)
	}
	entries, _ := audit.ListByEventID("evt_del_1")
	if len(entries) != 1 || entries[0].Outcome != auditlog.OutcomeSkipped {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestWebhookAcksMalformedPayload(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	handler := NewWebhookHandler(testWebhookSecret, NewReconciler(reg, nil, audit))
	createTestRestaurant(t, reg, "r1")

	// Signature-valid but the metadata field has the wrong JSON type.
	// Redelivery cannot fix this, so it must be acked, not retried.
	payload := `{"id":"evt_mangled","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","customer":"cus_1","metadata":[]}}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 ack, body=%q", rec.Code, rec.Body.String())
	}

	rest, _ := reg.GetRestaurant("r1")
	if rest.StripeCustomerID != "" {
		t.Fatalf("billing state touched by malformed payload: %+v", rest)
	}
	entries, _ := audit.ListByEventID("evt_mangled")
	if len(entries) != 1 || entries[0].Outcome != auditlog.OutcomeRejected {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestWebhookAcksUnhandledEventType(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	handler := NewWebhookHandler(testWebhookSecret, NewReconciler(reg, nil, audit))

	payload := `{"id":"evt_inv_1","object":"event","type":"invoice.paid","data":{"object":{}}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 ack", rec.Code)
	}
	entries, _ := audit.ListByEventID("evt_inv_1")
	if len(entries) != 1 || entries[0].Outcome != auditlog.OutcomeIgnored {
		t.Fatalf("audit = %+v", entries)
	}
}
