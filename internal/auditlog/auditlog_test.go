package auditlog

import (
	"net/http/httptest"
	"testing"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndListByEventID(t *testing.T) {
	l := newTestLog(t)

	// Two deliveries of the same logical event produce two rows.
	for i := 0; i < 2; i++ {
		err := l.Record(Entry{
			EventID:    "evt_1",
			EventType:  "checkout.session.completed",
			Outcome:    OutcomeProcessed,
			CustomerID: "cus_1",
			RequestID:  "req-1",
		})
		if err != nil {
			t.Fatalf("Record #%d: %v", i, err)
		}
	}

	entries, err := l.ListByEventID("evt_1")
	if err != nil {
		t.Fatalf("ListByEventID: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("duplicate delivery not recorded separately: %d rows", len(entries))
	}
	if entries[0].ID == entries[1].ID {
		t.Fatal("entries share an id")
	}
	if entries[0].Outcome != OutcomeProcessed {
		t.Fatalf("outcome = %q", entries[0].Outcome)
	}
	if entries[0].RequestID != "req-1" {
		t.Fatalf("request id = %q", entries[0].RequestID)
	}
}

func TestListByCustomerAndRecent(t *testing.T) {
	l := newTestLog(t)
	seed := []Entry{
		{EventID: "evt_a", EventType: "customer.subscription.updated", Outcome: OutcomeProcessed, CustomerID: "cus_1"},
		{EventID: "evt_b", EventType: "customer.subscription.deleted", Outcome: OutcomeSkipped, CustomerID: "cus_2"},
		{EventID: "evt_c", EventType: "invoice.paid", Outcome: OutcomeIgnored},
	}
	for _, e := range seed {
		if err := l.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	byCustomer, err := l.ListByCustomer("cus_1")
	if err != nil {
		t.Fatalf("ListByCustomer: %v", err)
	}
	if len(byCustomer) != 1 || byCustomer[0].EventID != "evt_a" {
		t.Fatalf("ListByCustomer = %+v", byCustomer)
	}

	recent, err := l.ListRecent(2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecent returned %d rows", len(recent))
	}
	if recent[0].EventID != "evt_c" {
		t.Fatalf("newest first expected, got %q", recent[0].EventID)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/stripe/webhook", nil)
	r.RemoteAddr = "10.0.0.9:4444"
	if got := ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("remote addr ip = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("xff ip = %q", got)
	}
}
