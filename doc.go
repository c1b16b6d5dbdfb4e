// Package hnswlite is an embeddable approximate-nearest-neighbor index over
// dense float32 vectors, based on the Hierarchical Navigable Small World
// graph (Malkov & Yashunin).
//
// # Key Components
//
//   - Engine: the public entry point, managing insertion, deletion, and
//     top-k search over a layered proximity graph.
//   - Backings: an in-memory store (Open) and a durable single-file
//     SQLite store (OpenDurable), both implementing pkg/store's NodeStore
//     and LayerStore interfaces.
//   - IndexParameters: the degree/candidate-list/level-distribution knobs
//     that shape the graph (M, Mmax, Mmax0, efConstruction, mL, seed).
//
// # Observability
//
// The engine accepts a pluggable Logger (see logger.go); by default it is
// silent.
package hnswlite
