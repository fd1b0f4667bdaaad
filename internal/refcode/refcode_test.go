package refcode

import (
	"strings"
	"testing"
)

func TestComputeDeterministic(t *testing.T) {
	a := Compute("secret", 12345)
	b := Compute("secret", 12345)
	if a != b {
		t.Errorf("same inputs produced %s and %s", a, b)
	}
}

func TestComputeLengthAndAlphabet(t *testing.T) {
	ids := []int64{1, 2, 42, 999999, 5000000000}
	for _, id := range ids {
		code := Compute("secret", id)
		if len(code) != CodeLength {
			t.Errorf("Compute(%d) = %s, length %d, want %d", id, code, len(code), CodeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(alphabet, c) {
				t.Errorf("Compute(%d) = %s contains %q outside the alphabet", id, code, c)
			}
		}
	}
}

func TestComputeVariesByUserAndSecret(t *testing.T) {
	if Compute("secret", 1) == Compute("secret", 2) {
		t.Error("adjacent user ids produced the same code")
	}
	if Compute("secret", 1) == Compute("other", 1) {
		t.Error("different secrets produced the same code")
	}
}
