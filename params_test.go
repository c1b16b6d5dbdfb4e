package hnswlite

import "testing"

func TestDefaultParametersValidate(t *testing.T) {
	p := DefaultParameters("cosine")
	if err := p.Validate(); err != nil {
		t.Fatalf("expected default parameters to validate, got %v", err)
	}
}

func TestParamsValidateRejectsBadM(t *testing.T) {
	p := DefaultParameters("euclidean")
	p.M = 0
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for M < 1")
	}
}

func TestParamsValidateRejectsBadMmax(t *testing.T) {
	p := DefaultParameters("euclidean")
	p.M = 8
	p.Mmax = 4
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for Mmax < M")
	}
}

func TestParamsValidateRejectsUnknownDistance(t *testing.T) {
	p := DefaultParameters("manhattan")
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for unknown distance kernel")
	}
}

func TestParamsNormalizeFillsDerivedFields(t *testing.T) {
	p := IndexParameters{Distance: "euclidean", M: 16, EfConstruction: 100}
	n := p.normalize()
	if n.Mmax != 16 {
		t.Fatalf("expected Mmax to default to M, got %d", n.Mmax)
	}
	if n.Mmax0 != 32 {
		t.Fatalf("expected Mmax0 to default to 2*M, got %d", n.Mmax0)
	}
	if n.ML <= 0 {
		t.Fatalf("expected a positive default mL, got %v", n.ML)
	}
}
