package hnswlite

import (
	"math"
	"testing"
)

func TestVectorValidate(t *testing.T) {
	if err := (Vector{1, 2, 3}).Validate(3); err != nil {
		t.Fatalf("expected valid vector to pass, got %v", err)
	}
	if err := (Vector{1, 2}).Validate(3); err == nil {
		t.Fatal("expected error for dimension mismatch")
	}
	if err := (Vector{float32(math.NaN())}).Validate(1); err == nil {
		t.Fatal("expected error for NaN component")
	}
	if err := (Vector{float32(math.Inf(-1))}).Validate(1); err == nil {
		t.Fatal("expected error for infinite component")
	}
}

func TestVectorClone(t *testing.T) {
	v := Vector{1, 2, 3}
	clone := v.Clone()
	clone[0] = 99
	if v[0] == 99 {
		t.Fatal("Clone should be independent of the original")
	}
}
