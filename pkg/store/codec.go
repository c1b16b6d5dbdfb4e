package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector writes the §6 vector record: an i32 dimension followed by
// dimension little-endian f32 components.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	for i, c := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], math.Float32bits(c))
	}
	return buf
}

// DecodeVector parses a vector record produced by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("store: vector record too short: %d bytes", len(data))
	}
	dim := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	if dim < 0 {
		return nil, fmt.Errorf("store: negative vector dimension %d", dim)
	}
	want := 4 + 4*dim
	if len(data) != want {
		return nil, fmt.Errorf("store: vector record length mismatch: want %d, got %d", want, len(data))
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i : 8+4*i]))
	}
	return out, nil
}

// EncodeNeighbors writes the §6 neighbor record: an i32 layer count, then
// per layer an i32 layer index, i32 neighbor count, and that many raw
// 16-byte node ids. Layers are written in ascending order for determinism.
func EncodeNeighbors(neighbors map[int][]NodeID) []byte {
	layers := sortedLayerKeys(neighbors)
	buf := new(bytes.Buffer)
	writeI32(buf, int32(len(layers)))
	for _, layer := range layers {
		ids := neighbors[layer]
		writeI32(buf, int32(layer))
		writeI32(buf, int32(len(ids)))
		for _, id := range ids {
			buf.Write(id[:])
		}
	}
	return buf.Bytes()
}

// DecodeNeighbors parses a neighbor record produced by EncodeNeighbors.
func DecodeNeighbors(data []byte) (map[int][]NodeID, error) {
	r := bytes.NewReader(data)
	layerCount, err := readI32(r)
	if err != nil {
		return nil, fmt.Errorf("store: decode neighbor record: %w", err)
	}
	if layerCount < 0 {
		return nil, fmt.Errorf("store: negative layer count %d", layerCount)
	}
	if layerCount == 0 {
		return nil, nil
	}
	out := make(map[int][]NodeID, layerCount)
	for i := int32(0); i < layerCount; i++ {
		layerIndex, err := readI32(r)
		if err != nil {
			return nil, fmt.Errorf("store: decode layer index: %w", err)
		}
		count, err := readI32(r)
		if err != nil {
			return nil, fmt.Errorf("store: decode neighbor count: %w", err)
		}
		if count < 0 {
			return nil, fmt.Errorf("store: negative neighbor count %d", count)
		}
		ids := make([]NodeID, count)
		for j := int32(0); j < count; j++ {
			var id NodeID
			if _, err := r.Read(id[:]); err != nil {
				return nil, fmt.Errorf("store: decode neighbor id: %w", err)
			}
			ids[j] = id
		}
		out[int(layerIndex)] = ids
	}
	return out, nil
}

// EncodeLayer writes the §6 layer record: a single i32 in [0, 63].
func EncodeLayer(layer int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(int32(layer)))
	return buf
}

// DecodeLayer parses a layer record produced by EncodeLayer.
func DecodeLayer(data []byte) (int, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("store: layer record must be 4 bytes, got %d", len(data))
	}
	return int(int32(binary.LittleEndian.Uint32(data))), nil
}

func sortedLayerKeys(m map[int][]NodeID) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func writeI32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func readI32(r *bytes.Reader) (int32, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(tmp[:])), nil
}
