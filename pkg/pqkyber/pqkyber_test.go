package pqkyber

import "testing"

func TestGenerateKeyPair_AllLevels(t *testing.T) {
	for _, level := range []int{512, 768, 1024} {
		pub, sec, err := GenerateKeyPair(level)
		if err != nil {
			t.Fatalf("GenerateKeyPair(%d) error = %v", level, err)
		}
		if pub == "" || sec == "" {
			t.Fatalf("GenerateKeyPair(%d) returned empty keys", level)
		}
	}
}

func TestGenerateKeyPair_UnsupportedLevel(t *testing.T) {
	if _, _, err := GenerateKeyPair(256); err == nil {
		t.Error("GenerateKeyPair(256) should fail for an unsupported level")
	}
}

func TestEncapsulateDecapsulate_RoundTrip(t *testing.T) {
	pub, sec, err := GenerateKeyPair(512)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	ct, ss1, err := Encapsulate(512, pub)
	if err != nil {
		t.Fatalf("Encapsulate() error = %v", err)
	}

	ss2, err := Decapsulate(512, sec, ct)
	if err != nil {
		t.Fatalf("Decapsulate() error = %v", err)
	}

	if ss1 != ss2 {
		t.Error("shared secrets from encapsulate and decapsulate should match")
	}
}
