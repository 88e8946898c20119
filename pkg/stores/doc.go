// Package stores provides the durable key/value and recency-index storage
// backing the admission gate and the run state store. The SQLite
// implementation is the production default; the memory implementation is the
// explicit degraded mode for single-node or test deployments.
package stores
