package catalog

import "testing"

func TestProductLowStock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		stock     int
		threshold int
		want      bool
	}{
		{name: "above", stock: 10, threshold: 5, want: false},
		{name: "equal", stock: 5, threshold: 5, want: true},
		{name: "below", stock: 0, threshold: 5, want: true},
		{name: "no_threshold", stock: 0, threshold: 0, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Product{Stock: tt.stock, LowStockThreshold: tt.threshold}
			if got := p.LowStock(); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
