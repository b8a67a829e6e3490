package security

import "testing"

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" {
		t.Fatal("empty hash")
	}
	if err := h.Compare(hash, []byte("correct horse battery staple")); err != nil {
		t.Errorf("Compare: %v", err)
	}
	if err := h.Compare(hash, []byte("wrong password")); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestHasherCostClamping(t *testing.T) {
	tests := []struct {
		in      int
		atLeast int
		atMost  int
	}{
		{0, 4, 31},
		{-1, 4, 31},
		{2, 4, 4},
		{12, 12, 12},
		{99, 31, 31},
	}
	for _, tc := range tests {
		h := NewHasher(tc.in)
		if h.Cost < tc.atLeast || h.Cost > tc.atMost {
			t.Errorf("NewHasher(%d).Cost = %d, want in [%d,%d]", tc.in, h.Cost, tc.atLeast, tc.atMost)
		}
	}
}

func TestHasherRejectsGarbageHash(t *testing.T) {
	h := NewHasher(4)
	if err := h.Compare("not-a-bcrypt-hash", []byte("pw")); err == nil {
		t.Error("garbage hash accepted")
	}
}
