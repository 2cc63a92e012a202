package cart

import "testing"

func TestLineSubtotal(t *testing.T) {
	t.Parallel()

	l := Line{Price: 10000, Quantity: 3}
	if got := l.Subtotal(); got != 30000 {
		t.Fatalf("expected 30000, got %d", got)
	}
}
