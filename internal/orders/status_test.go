package orders

import "testing"

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusDelivered, true},
		{StatusProcessing, StatusPending, false},
		{StatusDelivered, StatusShipped, false},
		{StatusShipped, StatusCancelled, true},
		{StatusDelivered, StatusRefunded, true},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusRefunded, StatusCancelled, false},
		{StatusPending, "lost", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAdminSettable(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		if !s.AdminSettable() {
			t.Fatalf("expected %s settable", s)
		}
	}
	if StatusRefunded.AdminSettable() {
		t.Fatal("refunded must only come from a refund")
	}
	if !StatusRefunded.Valid() {
		t.Fatal("refunded is a valid stored status")
	}
}

func TestPaymentCaptured(t *testing.T) {
	t.Parallel()

	for s, want := range map[string]bool{"capture": true, "settlement": true, "pending": false, "": false, "deny": false} {
		if got := PaymentCaptured(s); got != want {
			t.Fatalf("%q: expected %v, got %v", s, want, got)
		}
	}
}
