// Package domain defines the core entities of the journey engine: journeys
// and their stage graphs, per-contact progression records, metric
// declarations, and analytics snapshots.
//
// Types here are plain data with small invariant helpers. Business logic
// lives in the service packages; persistence in repository implementations.
package domain
