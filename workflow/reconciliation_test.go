package workflow

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
)

func intPtr(v int) *int { return &v }

func TestFindLedgerMismatches(t *testing.T) {
	rows := []productLedgerRow{
		{ProductId: 1, Sku: "OK", Quantity: 5, LedgerSum: 5, Entries: 2, LastNewQuantity: intPtr(5)},
		{ProductId: 2, Sku: "EMPTY", Quantity: 0, LedgerSum: 0, Entries: 0},
		{ProductId: 3, Sku: "NEG", Quantity: -1, LedgerSum: -1, Entries: 1, LastNewQuantity: intPtr(-1)},
		{ProductId: 4, Sku: "SUM", Quantity: 7, LedgerSum: 4, Entries: 1, LastNewQuantity: intPtr(7)},
		{ProductId: 5, Sku: "SNAP", Quantity: 3, LedgerSum: 3, Entries: 2, LastNewQuantity: intPtr(2)},
	}
	got := findLedgerMismatches(rows)
	if len(got) != 3 {
		t.Fatalf("expected 3 mismatches, got %d: %+v", len(got), got)
	}
	expected := map[int]string{
		3: "negative quantity",
		4: "ledger sums to 4",
		5: "last entry snapshot is 2",
	}
	for _, m := range got {
		if m.Problem != expected[m.ProductId] {
			t.Fatalf("product %d expected %q, got %q", m.ProductId, expected[m.ProductId], m.Problem)
		}
	}
}

func TestShipmentIdFromReason(t *testing.T) {
	cases := []struct {
		reason   string
		inbound  bool
		id       int
		expected bool
	}{
		{models.InboundCompletionReason(12, ""), true, 12, true},
		{models.InboundCompletionReason(12, "dock 3"), true, 12, true},
		{models.OutboundCompletionReason(7, "SO-1"), false, 7, true},
		{"Initial stock", true, 0, false},
		{"Re: Inbound shipment #4 completed.", true, 0, false},
		{models.OutboundCompletionReason(7, ""), true, 0, false},
	}
	for _, tc := range cases {
		pattern := outboundReasonPattern
		if tc.inbound {
			pattern = inboundReasonPattern
		}
		id, ok := shipmentIdFromReason(pattern, tc.reason)
		if ok != tc.expected || id != tc.id {
			t.Fatalf("shipmentIdFromReason(%q) expected %d/%v, got %d/%v", tc.reason, tc.id, tc.expected, id, ok)
		}
	}
}

func TestDispatchOnce_WithoutDatabase(t *testing.T) {
	d := NewOutboxDispatcher(nil, nil)
	sent, err := d.DispatchOnce(context.Background())
	if err != nil || sent != 0 {
		t.Fatalf("expected 0, nil without a database, got %d, %v", sent, err)
	}
}

func TestRetryBackoff(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second}
	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{7, 320 * time.Second},
		{8, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := d.retryBackoff(tc.attempt); got != tc.expected {
			t.Fatalf("retryBackoff(%d) expected %s, got %s", tc.attempt, tc.expected, got)
		}
	}
}

func TestRun_StopsWhenContextIsCancelled(t *testing.T) {
	d := NewOutboxDispatcher(nil, nil)
	d.PollInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
