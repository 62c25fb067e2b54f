package memory

import "errors"

// ErrNotFound is returned by Update/Delete when no record with the given id
// is visible under the owner filter (PointGet reports that case as a nil
// record and a nil error). HTTP maps this to 404.
var ErrNotFound = errors.New("memory: record not found")

// ErrDimensionMismatch is returned by Insert/Update when an embedding's
// length does not equal the collection's DenseDimension (spec invariant I2).
var ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch")

// ErrSparseUnsupported is returned by SparseSearch/HybridSearch (with a
// sparse vector) when the backing collection has no sparse column; callers
// should downgrade to the non-sparse path and log a warning once.
var ErrSparseUnsupported = errors.New("memory: sparse vectors not supported by this collection")
