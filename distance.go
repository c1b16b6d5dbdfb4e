package hnswlite

import "github.com/liliang-cn/hnswlite/pkg/metric"

// distanceByName resolves an IndexParameters.Distance string to a kernel,
// used during validation and engine construction.
func distanceByName(name string) (metric.Func, error) {
	return metric.Lookup(name)
}
