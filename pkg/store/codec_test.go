package store

import (
	"reflect"
	"testing"
)

func idFromByte(b byte) NodeID {
	var id NodeID
	id[15] = b
	return id
}

func TestVectorRoundTrip(t *testing.T) {
	cases := [][]float32{
		{},
		{1},
		{1.5, -2.25, 0, 3.125},
	}
	for _, v := range cases {
		data := EncodeVector(v)
		got, err := DecodeVector(data)
		if err != nil {
			t.Fatalf("DecodeVector: %v", err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("got %v, want %v", got, v)
		}
	}
}

func TestDecodeVectorLengthMismatch(t *testing.T) {
	data := EncodeVector([]float32{1, 2, 3})
	if _, err := DecodeVector(data[:len(data)-1]); err == nil {
		t.Fatal("expected error for truncated vector record")
	}
}

func TestNeighborsRoundTrip(t *testing.T) {
	neighbors := map[int][]NodeID{
		0: {idFromByte(1), idFromByte(2)},
		2: {idFromByte(3)},
	}
	data := EncodeNeighbors(neighbors)
	got, err := DecodeNeighbors(data)
	if err != nil {
		t.Fatalf("DecodeNeighbors: %v", err)
	}
	if !reflect.DeepEqual(got, neighbors) {
		t.Fatalf("got %v, want %v", got, neighbors)
	}
}

func TestNeighborsRoundTripEmpty(t *testing.T) {
	data := EncodeNeighbors(nil)
	got, err := DecodeNeighbors(data)
	if err != nil {
		t.Fatalf("DecodeNeighbors: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestLayerRoundTrip(t *testing.T) {
	for _, layer := range []int{0, 1, 63} {
		data := EncodeLayer(layer)
		got, err := DecodeLayer(data)
		if err != nil {
			t.Fatalf("DecodeLayer: %v", err)
		}
		if got != layer {
			t.Fatalf("got %d, want %d", got, layer)
		}
	}
}

func TestDecodeLayerBadLength(t *testing.T) {
	if _, err := DecodeLayer([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for malformed layer record")
	}
}
