package sentinel

import "testing"

func TestGenerateAESKey_Sizes(t *testing.T) {
	for _, bits := range []int{128, 256} {
		key, err := generateAESKey(bits)
		if err != nil {
			t.Fatalf("generateAESKey(%d) error = %v", bits, err)
		}
		if len(key) != bits/4 { // hex doubles byte length
			t.Errorf("generateAESKey(%d) len = %d, want %d", bits, len(key), bits/4)
		}
	}
}

func TestGenerateAESKey_Unique(t *testing.T) {
	a, err := generateAESKey(256)
	if err != nil {
		t.Fatalf("generateAESKey() error = %v", err)
	}
	b, err := generateAESKey(256)
	if err != nil {
		t.Fatalf("generateAESKey() error = %v", err)
	}
	if a == b {
		t.Error("two generated keys should not collide")
	}
}
