package vector

import "testing"

func TestCandidatePool(t *testing.T) {
	tests := []struct{ topK, size, want int }{
		{1, 3, 3},
		{1, 100, 16},
		{10, 100, 40},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := CandidatePool(tt.topK, tt.size); got != tt.want {
			t.Fatalf("CandidatePool(%d, %d) = %d, want %d", tt.topK, tt.size, got, tt.want)
		}
	}
}
