package hnsw

import "errors"

// Sentinel causes the root facade classifies into its Kind taxonomy. This
// package stays independent of that taxonomy; it only needs to distinguish
// "bad input", "refuse to write", and "closed" from ordinary storage
// failures, which propagate unwrapped.
var (
	ErrInvalidArgument    = errors.New("hnsw: invalid argument")
	ErrCorruptionPossible = errors.New("hnsw: edge rollback failed, engine refuses further writes")
	ErrClosed             = errors.New("hnsw: engine is closed")
)
